// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package window

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Azure/batch-explorer-auth/apps/internal/local"
	"github.com/Azure/batch-explorer-auth/apps/logger"
	"github.com/pkg/browser"
)

// silentPrompt marks an authorize URL that must complete without any user interaction.
const silentPrompt = "prompt=none"

// Browser is a Factory for windows backed by the system browser. The redirect URI registered
// for the application must be http://localhost:{Port}.
type Browser struct {
	// Port the redirect listener binds on localhost. 0 picks a free port, which only works
	// with redirect URIs that ignore the port.
	Port int
	// SuccessPage and ErrorPage replace the pages shown once the redirect arrived.
	SuccessPage []byte
	ErrorPage   []byte
	// Logger receives debug information. May be nil.
	Logger *logger.Logger

	// openURL opens the system browser, replaced in tests.
	openURL func(url string) error
}

// RedirectURI returns the redirect URI matching b.Port.
func (b *Browser) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d", b.Port)
}

// NewWindow implements Factory. Each window owns a redirect listener until destroyed.
func (b *Browser) NewWindow(ctx context.Context) (Window, error) {
	serv, err := local.New(b.Port, b.SuccessPage, b.ErrorPage)
	if err != nil {
		return nil, fmt.Errorf("could not start the redirect listener on port %d: %w", b.Port, err)
	}

	open := b.openURL
	if open == nil {
		open = browser.OpenURL
	}

	w := &browserWindow{
		serv:    serv,
		open:    open,
		log:     b.Logger,
		events:  make(chan Event, 2),
		done:    make(chan struct{}),
		relayed: make(chan struct{}),
	}
	go w.relay()
	return w, nil
}

type browserWindow struct {
	serv *local.Server
	open func(url string) error
	log  *logger.Logger

	mu      sync.Mutex
	url     string
	visible bool

	events    chan Event
	done      chan struct{}
	relayed   chan struct{}
	destroyed sync.Once
}

// LoadURL remembers url until Show opens it. A system browser has no hidden mode, so a silent
// authorization cannot run in it: the window reports Close right away and the caller falls
// back to an interactive attempt.
func (w *browserWindow) LoadURL(url string) error {
	w.mu.Lock()
	w.url = url
	w.mu.Unlock()

	if strings.HasSuffix(url, "&"+silentPrompt) || strings.Contains(url, "&"+silentPrompt+"&") {
		w.log.Log(context.Background(), logger.Debug, "silent authorization is not supported by the system browser")
		w.send(Event{Kind: Close})
	}
	return nil
}

func (w *browserWindow) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visible || w.url == "" {
		return
	}
	if err := w.open(w.url); err != nil {
		w.log.Log(context.Background(), logger.Warn, "could not open the system browser", logger.Field("error", err))
		w.send(Event{Kind: Close})
		return
	}
	w.visible = true
}

func (w *browserWindow) IsVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *browserWindow) Destroy() {
	w.destroyed.Do(func() {
		close(w.done)
		w.serv.Shutdown()
		<-w.relayed

		w.mu.Lock()
		w.visible = false
		w.mu.Unlock()
	})
}

func (w *browserWindow) Events() <-chan Event {
	return w.events
}

// relay turns the listener result into a Redirect event.
func (w *browserWindow) relay() {
	defer close(w.relayed)
	select {
	case <-w.done:
	case r := <-w.serv.Results():
		if r.Err != nil {
			w.log.Log(context.Background(), logger.Warn, "redirect listener failed", logger.Field("error", r.Err))
			w.send(Event{Kind: Close})
			return
		}
		w.send(Event{Kind: Redirect, URL: r.URL})
	}
}

func (w *browserWindow) send(e Event) {
	select {
	case w.events <- e:
	case <-w.done:
	default:
		// The consumer only needs the first terminal event.
	}
}
