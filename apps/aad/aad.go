// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package aad is the entry point for getting AAD access tokens in Batch Explorer.

A Service hands out an access token for any (tenant, resource) pair. It returns the cached token
while it is comfortably valid, renews it with its refresh token when it is about to expire and
otherwise signs the user in through an authorization window, trying silently first.

Usage:

	svc, err := aad.New(aad.Config{ClientID: clientID, RedirectURI: "http://localhost:8400"})
	if err != nil {
		// Do something
	}
	if err := svc.Init(ctx); err != nil {
		// Do something
	}
	tok, err := svc.AccessTokenData(ctx, tenant, aad.AzurePublic.ARMURL)
*/
package aad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Azure/batch-explorer-auth/apps/authentication"
	"github.com/Azure/batch-explorer-auth/apps/cache"
	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/Azure/batch-explorer-auth/apps/internal/observe"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops"
	"github.com/Azure/batch-explorer-auth/apps/logger"
	"github.com/Azure/batch-explorer-auth/apps/storage"
	"github.com/Azure/batch-explorer-auth/apps/token"
	"github.com/Azure/batch-explorer-auth/apps/window"
)

const (
	// CurrentUserKey is the storage key of the signed in user.
	CurrentUserKey = "current_user"
	// TokenCacheKey is the key the token cache is exported under.
	TokenCacheKey = "token_cache"
)

// Config is the application registration.
type Config struct {
	ClientID    string
	RedirectURI string
	// LogoutRedirectURI defaults to RedirectURI.
	LogoutRedirectURI string
}

// Options configures the Service's behavior.
type Options struct {
	// WindowFactory creates authorization windows. Defaults to the system browser listening
	// on the port of a http://localhost redirect URI.
	WindowFactory window.Factory
	// Storage keeps the current user. Defaults to memory.
	Storage storage.Storage
	// Cache persists the token cache. Defaults to no persistence.
	Cache cache.ExportReplace
	// HTTPClient sends requests to the token endpoint.
	HTTPClient ops.HTTPClient
	// Logger receives the service logs.
	Logger *slog.Logger
	// RefreshMargin is how long before expiry a cached token is renewed.
	RefreshMargin time.Duration
	// Environment is the Azure cloud to sign in to.
	Environment Environment
	// ValidateAuthority rejects environments whose AAD host is not a known Azure authority.
	ValidateAuthority bool
}

func (o *Options) validate() error {
	if o.HTTPClient == nil {
		return errors.New("HTTPClient must not be nil")
	}
	if o.RefreshMargin < 0 {
		return fmt.Errorf("RefreshMargin(%s) must not be negative", o.RefreshMargin)
	}
	if err := o.Environment.Validate(); err != nil {
		return err
	}
	if o.ValidateAuthority && !o.Environment.Trusted() {
		return fmt.Errorf("environment(%s) AADURL(%s) is not a known Azure authority", o.Environment.Name, o.Environment.AADURL)
	}
	return nil
}

// Option is an optional argument to New.
type Option func(o *Options)

// WithWindowFactory sets how authorization windows are created.
func WithWindowFactory(f window.Factory) Option {
	return func(o *Options) {
		o.WindowFactory = f
	}
}

// WithStorage sets where the current user is kept.
func WithStorage(s storage.Storage) Option {
	return func(o *Options) {
		o.Storage = s
	}
}

// WithCache provides an accessor that will read and write the token cache to external storage.
func WithCache(accessor cache.ExportReplace) Option {
	return func(o *Options) {
		o.Cache = accessor
	}
}

// WithHTTPClient allows for a custom HTTP client to be set.
func WithHTTPClient(httpClient ops.HTTPClient) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// WithLogger sets the logger of the Service and of the services it creates.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRefreshMargin changes how long before expiry a cached token is renewed.
func WithRefreshMargin(d time.Duration) Option {
	return func(o *Options) {
		o.RefreshMargin = d
	}
}

// WithEnvironment selects the Azure cloud.
func WithEnvironment(env Environment) Option {
	return func(o *Options) {
		o.Environment = env
	}
}

// WithAuthorityValidation enables or disables the check that the AAD host is a known Azure
// authority. It is enabled by default.
func WithAuthorityValidation(enabled bool) Option {
	return func(o *Options) {
		o.ValidateAuthority = enabled
	}
}

type authorizer interface {
	AuthorizeTrySilentFirst(ctx context.Context, tenant string) (authentication.Result, error)
	LogoutURL() string
}

type userDecoder interface {
	Decode(raw string) (User, error)
}

// Result is a token together with the user who signed in to get it. User is nil when the
// token came from the cache or from a refresh.
type Result struct {
	Token token.AccessToken
	User  *User
}

// Service provides AAD access tokens.
type Service struct {
	opts Options
	log  *logger.Logger

	auth    authorizer
	tokens  oauth.AccessTokens
	decoder userDecoder

	cache *token.Cache
	user  *observe.Value[*User]
}

// New is the constructor for Service.
func New(cfg Config, options ...Option) (*Service, error) {
	opts := Options{
		RefreshMargin:     token.DefaultRefreshMargin,
		Environment:       AzurePublic,
		ValidateAuthority: true,
		HTTPClient:        &http.Client{},
	}
	for _, o := range options {
		o(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		opts.Storage = storage.NewMemory()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	log := logger.New(opts.Logger)
	if opts.WindowFactory == nil {
		port, err := loopbackPort(cfg.RedirectURI)
		if err != nil {
			return nil, fmt.Errorf("no window factory given and the system browser cannot be used: %w", err)
		}
		opts.WindowFactory = &window.Browser{Port: port, Logger: log}
	}

	auth, err := authentication.New(opts.WindowFactory, authentication.Config{
		ClientID:          cfg.ClientID,
		RedirectURI:       cfg.RedirectURI,
		LogoutRedirectURI: cfg.LogoutRedirectURI,
		Environment:       opts.Environment,
	}, authentication.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}

	return &Service{
		opts:    opts,
		log:     log,
		auth:    auth,
		tokens:  oauth.New(opts.HTTPClient, opts.Environment, cfg.ClientID, cfg.RedirectURI),
		decoder: Decoder{},
		cache:   token.NewCache(),
		user:    observe.New[*User](nil),
	}, nil
}

// Init restores the current user and the token cache from storage. A missing, corrupt or
// unreadable value is not an error: the service starts signed out. Only errors that are not
// a *errors.StorageError, and ctx errors, are returned.
func (s *Service) Init(ctx context.Context) error {
	raw, ok, err := s.opts.Storage.GetItem(ctx, CurrentUserKey)
	if err != nil {
		var storageErr *customErrors.StorageError
		if ctx.Err() != nil || !errors.As(err, &storageErr) {
			return err
		}
		s.log.Log(ctx, logger.Warn, "ignoring stored user", logger.Field("error", err))
		ok = false
	}
	if ok {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.log.Log(ctx, logger.Warn, "ignoring stored user", logger.Field("error", &customErrors.StorageError{Key: CurrentUserKey, Op: "decode", Err: err}))
		} else {
			s.user.Set(&u)
		}
	}

	if err := s.opts.Cache.Replace(ctx, s.cache, TokenCacheKey); err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.log.Log(ctx, logger.Warn, "ignoring stored token cache", logger.Field("error", err))
		s.cache.Clear()
	}
	return nil
}

// AccessTokenData returns a valid access token to resource in tenant.
func (s *Service) AccessTokenData(ctx context.Context, tenant, resource string) (token.AccessToken, error) {
	res, err := s.AcquireToken(ctx, tenant, resource)
	if err != nil {
		return token.AccessToken{}, err
	}
	return res.Token, nil
}

// AcquireToken returns a valid access token to resource in tenant, signing the user in when
// neither the cache nor a refresh can provide one.
func (s *Service) AcquireToken(ctx context.Context, tenant, resource string) (Result, error) {
	if tenant == "" || resource == "" {
		return Result{}, errors.New("tenant and resource must be set")
	}

	if cached, ok := s.cache.Get(tenant, resource); ok {
		if !cached.IsExpired(s.opts.RefreshMargin) {
			return Result{Token: cached}, nil
		}
		if cached.HasRefreshToken() {
			s.log.Log(ctx, logger.Debug, "refreshing token", logger.Field("tenant", tenant), logger.Field("resource", resource))
			tok, err := s.tokens.Refresh(ctx, resource, tenant, cached.RefreshToken)
			if err != nil {
				return Result{}, err
			}
			if !tok.HasRefreshToken() {
				tok.RefreshToken = cached.RefreshToken
			}
			s.store(ctx, tenant, resource, tok)
			return Result{Token: tok}, nil
		}
	}

	authResult, err := s.auth.AuthorizeTrySilentFirst(ctx, tenant)
	if err != nil {
		return Result{}, err
	}
	tok, err := s.tokens.Redeem(ctx, resource, tenant, authResult.Code)
	if err != nil {
		return Result{}, err
	}
	user, err := s.decoder.Decode(authResult.IDToken)
	if err != nil {
		return Result{}, err
	}
	s.setCurrentUser(ctx, user)
	s.store(ctx, tenant, resource, tok)
	return Result{Token: tok, User: &user}, nil
}

// CurrentUser returns the user who last signed in.
func (s *Service) CurrentUser() (User, bool) {
	u := s.user.Get()
	if u == nil {
		return User{}, false
	}
	return *u, true
}

// SubscribeCurrentUser delivers the current user, nil when signed out, and every later
// change. cancel must be called once the caller stops reading.
func (s *Service) SubscribeCurrentUser() (users <-chan *User, cancel func()) {
	return s.user.Subscribe()
}

// CachedTokens lists the tenant and resource of every cached token.
func (s *Service) CachedTokens() []token.Key {
	return s.cache.Keys()
}

// Forget drops the cached token to resource in tenant, so the next request for it signs in
// again. The current user is kept.
func (s *Service) Forget(ctx context.Context, tenant, resource string) error {
	s.cache.Remove(tenant, resource)
	return s.opts.Cache.Export(ctx, s.cache, TokenCacheKey)
}

// LogoutURL is the URL that ends the AAD browser session.
func (s *Service) LogoutURL() string {
	return s.auth.LogoutURL()
}

// Logout forgets every token and the current user.
func (s *Service) Logout(ctx context.Context) error {
	s.cache.Clear()
	s.user.Set(nil)

	var errs []error
	if err := s.opts.Storage.RemoveItem(ctx, CurrentUserKey); err != nil {
		errs = append(errs, err)
	}
	if err := s.opts.Cache.Export(ctx, s.cache, TokenCacheKey); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// setCurrentUser replaces the single current user slot, whatever the tenant.
func (s *Service) setCurrentUser(ctx context.Context, u User) {
	s.user.Set(&u)

	b, err := json.Marshal(u)
	if err != nil {
		s.log.Log(ctx, logger.Err, "could not encode the current user", logger.Field("error", err))
		return
	}
	if err := s.opts.Storage.SetItem(ctx, CurrentUserKey, string(b)); err != nil {
		s.log.Log(ctx, logger.Warn, "could not save the current user", logger.Field("error", err))
	}
}

func (s *Service) store(ctx context.Context, tenant, resource string, tok token.AccessToken) {
	s.cache.Store(tenant, resource, tok)
	if err := s.opts.Cache.Export(ctx, s.cache, TokenCacheKey); err != nil {
		s.log.Log(ctx, logger.Warn, "could not export the token cache", logger.Field("error", err))
	}
}

// loopbackPort returns the port of a http://localhost redirect URI.
func loopbackPort(redirectURI string) (int, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return 0, err
	}
	if u.Scheme != "http" || u.Hostname() != "localhost" || u.Port() == "" {
		return 0, fmt.Errorf("redirect URI(%s) is not of the form http://localhost:{port}", redirectURI)
	}
	return strconv.Atoi(u.Port())
}
