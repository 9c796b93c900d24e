// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package authentication runs the AAD v1 authorize step: it opens an authorization window on the
authorize URL for a tenant and waits for the identity provider to redirect back with an id token
and an authorization code.

Only one window may exist at a time. Authorize calls are served one after the other in the order
they were made, so a user is never asked to sign in to two tenants at once.
*/
package authentication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/Azure/batch-explorer-auth/apps/internal/observe"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"
	"github.com/Azure/batch-explorer-auth/apps/logger"
	"github.com/Azure/batch-explorer-auth/apps/window"
)

// AuthorizeError codes produced locally rather than by the identity provider.
const (
	// WindowClosed is used when the window went away before redirecting.
	WindowClosed = "window_closed"
	// InvalidResponse is used when the redirect carried neither a result nor an error.
	InvalidResponse = "invalid_response"
)

// State is the state of the authentication service.
type State int

const (
	// NotAuthenticated is the idle state before any authorization completed.
	NotAuthenticated State = iota
	// UserInput means a window is shown and waiting for the user.
	UserInput
	// Authenticated means the last authorization succeeded.
	Authenticated
	// Error means the last authorization failed.
	Error
)

func (s State) String() string {
	switch s {
	case NotAuthenticated:
		return "NotAuthenticated"
	case UserInput:
		return "UserInput"
	case Authenticated:
		return "Authenticated"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is what a successful authorization returns.
type Result struct {
	IDToken string `json:"id_token"`
	Code    string `json:"code"`
}

// Config is the application registration used to build authorize URLs.
type Config struct {
	ClientID          string
	RedirectURI       string
	LogoutRedirectURI string
	Environment       authority.Environment
}

func (c Config) validate() error {
	if c.ClientID == "" {
		return errors.New("ClientID must be set")
	}
	if c.RedirectURI == "" {
		return errors.New("RedirectURI must be set")
	}
	if _, err := url.Parse(c.RedirectURI); err != nil {
		return fmt.Errorf("RedirectURI(%s) cannot be parsed: %w", c.RedirectURI, err)
	}
	if c.Environment.AADURL == "" || c.Environment.ARMURL == "" {
		return errors.New("Environment must have an AADURL and an ARMURL")
	}
	return nil
}

// Option is an optional argument to New.
type Option func(s *Service)

// WithLogger sets the logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = logger.New(l)
	}
}

type authorizeFunc func(ctx context.Context, tenant string, silent bool) (Result, error)

// Service authorizes the user for a tenant through an authorization window.
type Service struct {
	factory window.Factory
	cfg     Config
	log     *logger.Logger

	queue turnQueue
	state *observe.Value[State]

	// authorize is what AuthorizeTrySilentFirst calls, Authorize unless a test replaces it.
	authorize authorizeFunc
}

// New creates a Service that opens windows from factory.
func New(factory window.Factory, cfg Config, options ...Option) (*Service, error) {
	if factory == nil {
		return nil, errors.New("window factory must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.LogoutRedirectURI == "" {
		cfg.LogoutRedirectURI = cfg.RedirectURI
	}

	s := &Service{
		factory: factory,
		cfg:     cfg,
		state:   observe.New(NotAuthenticated),
	}
	for _, o := range options {
		o(s)
	}
	if s.log == nil {
		s.log = logger.New(nil)
	}
	s.authorize = s.Authorize
	return s, nil
}

// State returns the current state.
func (s *Service) State() State {
	return s.state.Get()
}

// Subscribe delivers the current state and every later change. Slow readers only see the
// latest state. cancel must be called once the caller stops reading.
func (s *Service) Subscribe() (states <-chan State, cancel func()) {
	return s.state.Subscribe()
}

// LogoutURL is the URL that signs the user out of AAD.
func (s *Service) LogoutURL() string {
	return s.cfg.Environment.LogoutURL(s.cfg.LogoutRedirectURI)
}

// Authorize opens a window on the authorize URL for tenant and waits for the redirect.
// When silent is true the window stays hidden and the identity provider is asked not to
// prompt, so it only succeeds if a session already exists.
//
// Calls wait for the ones made before them. A failed authorization returns an
// *errors.AuthorizeError. ctx cancels the wait for a turn as well as the wait for the window;
// a cancelled flow puts the state back to what it was before the flow started.
func (s *Service) Authorize(ctx context.Context, tenant string, silent bool) (Result, error) {
	if err := s.queue.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer s.queue.release()

	prev := s.state.Get()
	res, err := s.authorizeInWindow(ctx, tenant, silent)
	// The window is gone by now, so the state must not stay at UserInput.
	switch {
	case err == nil:
		s.state.Set(Authenticated)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		s.state.Set(prev)
	default:
		s.state.Set(Error)
	}
	return res, err
}

// AuthorizeTrySilentFirst tries a silent authorization and falls back to an interactive one
// when it fails. If both fail the interactive error is returned.
func (s *Service) AuthorizeTrySilentFirst(ctx context.Context, tenant string) (Result, error) {
	res, err := s.authorize(ctx, tenant, true)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, err
	}
	s.log.Log(ctx, logger.Debug, "silent authorization failed, asking the user", logger.Field("tenant", tenant), logger.Field("error", err))
	return s.authorize(ctx, tenant, false)
}

func (s *Service) authorizeInWindow(ctx context.Context, tenant string, silent bool) (Result, error) {
	authorizeURL := s.cfg.Environment.AuthorizeURL(authority.AuthorizeParams{
		Tenant:      tenant,
		Resource:    s.cfg.Environment.ARMURL,
		ClientID:    s.cfg.ClientID,
		RedirectURI: s.cfg.RedirectURI,
		Silent:      silent,
	})

	w, err := s.factory.NewWindow(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("could not create the authorization window: %w", err)
	}
	defer w.Destroy()

	s.log.Log(ctx, logger.Debug, "authorizing", logger.Field("tenant", tenant), logger.Field("silent", silent))
	if err := w.LoadURL(authorizeURL); err != nil {
		return Result{}, fmt.Errorf("could not load the authorize URL: %w", err)
	}
	if !silent {
		w.Show()
		s.state.Set(UserInput)
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case e, ok := <-w.Events():
			if !ok || e.Kind == window.Close {
				return Result{}, &customErrors.AuthorizeError{Code: WindowClosed, Description: "the authorization window was closed before signing in"}
			}
			if !s.isRedirect(e.URL) {
				s.log.Log(ctx, logger.Debug, "ignoring navigation", logger.Field("kind", e.Kind.String()))
				continue
			}
			return parseRedirect(e.URL)
		}
	}
}

func (s *Service) isRedirect(u string) bool {
	return strings.HasPrefix(u, s.cfg.RedirectURI)
}

// parseRedirect reads the result out of the fragment of a redirect URL.
func parseRedirect(redirect string) (Result, error) {
	_, fragment, _ := strings.Cut(redirect, "#")
	// ParseQuery keeps the pairs it could parse when it also returns an error.
	params, _ := url.ParseQuery(fragment)

	if code := params.Get("error"); code != "" {
		return Result{}, &customErrors.AuthorizeError{Code: code, Description: params.Get("error_description")}
	}

	res := Result{IDToken: params.Get("id_token"), Code: params.Get("code")}
	if res.IDToken == "" || res.Code == "" {
		return Result{}, &customErrors.AuthorizeError{Code: InvalidResponse, Description: "the redirect did not contain an id_token and a code"}
	}
	return res, nil
}
