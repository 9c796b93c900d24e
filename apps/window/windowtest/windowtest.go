// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package windowtest provides an in-memory window.Factory for tests. Tests drive the windows
// it creates by notifying redirects, navigations and closes.
package windowtest

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/batch-explorer-auth/apps/window"
)

// Window is a fake window.Window that records how it was used.
type Window struct {
	loaded chan<- *Window

	mu        sync.Mutex
	urls      []string
	visible   bool
	destroyed int
	events    chan window.Event
}

// LoadURL implements window.Window.
func (w *Window) LoadURL(url string) error {
	w.mu.Lock()
	w.urls = append(w.urls, url)
	w.mu.Unlock()

	w.loaded <- w
	return nil
}

// Show implements window.Window.
func (w *Window) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
}

// IsVisible implements window.Window.
func (w *Window) IsVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Destroy implements window.Window.
func (w *Window) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed++
	w.visible = false
}

// Events implements window.Window.
func (w *Window) Events() <-chan window.Event {
	return w.events
}

// URLs returns every URL loaded in the window.
func (w *Window) URLs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.urls...)
}

// LastURL returns the last URL loaded in the window.
func (w *Window) LastURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.urls) == 0 {
		return ""
	}
	return w.urls[len(w.urls)-1]
}

// DestroyCalls is the number of times Destroy was called.
func (w *Window) DestroyCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// NotifyRedirect reports a redirect to url.
func (w *Window) NotifyRedirect(url string) {
	w.events <- window.Event{Kind: window.Redirect, URL: url}
}

// NotifyNavigate reports a navigation to url.
func (w *Window) NotifyNavigate(url string) {
	w.events <- window.Event{Kind: window.Navigate, URL: url}
}

// NotifyClose reports that the window was closed.
func (w *Window) NotifyClose() {
	w.events <- window.Event{Kind: window.Close}
}

// Factory is a window.Factory creating fake Windows.
type Factory struct {
	// Err is returned by NewWindow when set.
	Err error

	once   sync.Once
	loaded chan *Window

	mu      sync.Mutex
	windows []*Window
}

func (f *Factory) init() {
	f.once.Do(func() {
		f.loaded = make(chan *Window, 64)
	})
}

// NewWindow implements window.Factory.
func (f *Factory) NewWindow(ctx context.Context) (window.Window, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.init()

	w := &Window{loaded: f.loaded, events: make(chan window.Event, 8)}
	f.mu.Lock()
	f.windows = append(f.windows, w)
	f.mu.Unlock()
	return w, nil
}

// Windows returns every window created so far.
func (f *Factory) Windows() []*Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Window(nil), f.windows...)
}

// Next waits for the next window to load a URL. It returns nil after timeout.
func (f *Factory) Next(timeout time.Duration) *Window {
	f.init()
	select {
	case w := <-f.loaded:
		return w
	case <-time.After(timeout):
		return nil
	}
}

// Idle reports whether no window loaded a URL within wait.
func (f *Factory) Idle(wait time.Duration) bool {
	f.init()
	select {
	case w := <-f.loaded:
		// Put it back for a later Next.
		f.loaded <- w
		return false
	case <-time.After(wait):
		return true
	}
}
