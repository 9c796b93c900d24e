// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package window defines the authorization window used for AAD sign-in and a default
implementation that drives the system browser.

A Window is created for a single authorization, loaded with the authorize URL and then reports
what happens in it through Events. The authentication service decides what a redirect means;
the window only relays URLs.
*/
package window

import (
	"context"
	"fmt"
)

// Kind is the type of a window Event.
type Kind int

const (
	// Redirect is reported when the identity provider redirects the window.
	Redirect Kind = iota
	// Navigate is reported when the window navigated to a new page.
	Navigate
	// Close is reported when the window went away, closed by the user or by the platform.
	Close
)

func (k Kind) String() string {
	switch k {
	case Redirect:
		return "redirect"
	case Navigate:
		return "navigate"
	case Close:
		return "close"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is something that happened in a Window. URL is empty for Close.
type Event struct {
	Kind Kind
	URL  string
}

// Window is a window able to show the AAD sign-in pages.
type Window interface {
	// LoadURL starts loading url in the window.
	LoadURL(url string) error
	// Show makes the window visible to the user.
	Show()
	// IsVisible reports whether Show was called on a live window.
	IsVisible() bool
	// Destroy releases the window. Events stops delivering afterwards.
	Destroy()
	// Events delivers what happens in the window.
	Events() <-chan Event
}

// Factory creates a fresh Window for every authorization.
type Factory interface {
	NewWindow(ctx context.Context) (Window, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Window, error)

// NewWindow implements Factory.
func (f FactoryFunc) NewWindow(ctx context.Context) (Window, error) {
	return f(ctx)
}
