// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Azure/batch-explorer-auth/apps/aad"
	"github.com/Azure/batch-explorer-auth/apps/storage"
	"github.com/spf13/pflag"
)

const (
	envClientID    = "BATCH_AUTH_CLIENT_ID"
	envTenant      = "BATCH_AUTH_TENANT"
	envRedirectURI = "BATCH_AUTH_REDIRECT_URI"
	envStore       = "BATCH_AUTH_STORE"
	envEnvironment = "BATCH_AUTH_ENVIRONMENT"
	envPassphrase  = "BATCH_AUTH_PASSPHRASE"

	defaultRedirectURI = "http://localhost:8400"
	defaultTenant      = "common"
)

// globalFlags are the flags shared by every command.
type globalFlags struct {
	clientID    string
	tenant      string
	redirectURI string
	store       string
	environment string
	debug       bool
}

func (f *globalFlags) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&f.clientID, "client-id", "", "Application (client) id of the AAD app registration. Env: "+envClientID)
	flags.StringVar(&f.tenant, "tenant", "", "Tenant to sign in to. Env: "+envTenant)
	flags.StringVar(&f.redirectURI, "redirect-uri", "", "Loopback redirect URI registered for the app. Env: "+envRedirectURI)
	flags.StringVar(&f.store, "store", "", "Directory keeping the signed in user and tokens. Env: "+envStore)
	flags.StringVar(&f.environment, "environment", "", "Azure cloud: AzureCloud, AzureChinaCloud, AzureUSGovernment or AzureGermanCloud. Env: "+envEnvironment)
	flags.BoolVar(&f.debug, "debug", false, "Log debug information and verbose errors to stderr")
}

// config is the resolved configuration of a run.
type config struct {
	clientID    string
	tenant      string
	redirectURI string
	store       string
	passphrase  string
	environment aad.Environment
	debug       bool
}

// resolve fills every setting from its flag, then its environment variable, then its default.
func (f *globalFlags) resolve(getenv func(string) string) (config, error) {
	cfg := config{
		clientID:    firstNonEmpty(f.clientID, getenv(envClientID)),
		tenant:      firstNonEmpty(f.tenant, getenv(envTenant), defaultTenant),
		redirectURI: firstNonEmpty(f.redirectURI, getenv(envRedirectURI), defaultRedirectURI),
		store:       firstNonEmpty(f.store, getenv(envStore)),
		passphrase:  getenv(envPassphrase),
		debug:       f.debug,
	}
	if cfg.clientID == "" {
		return config{}, errors.New("a client id is required, use --client-id or " + envClientID)
	}

	cfg.environment = aad.AzurePublic
	if name := firstNonEmpty(f.environment, getenv(envEnvironment)); name != "" {
		env, err := aad.EnvironmentByName(name)
		if err != nil {
			return config{}, err
		}
		cfg.environment = env
	}

	if cfg.store == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return config{}, err
		}
		cfg.store = filepath.Join(dir, "batch-explorer-auth")
	}
	return cfg, nil
}

// newService builds the aad.Service described by cfg, with the user and token cache kept on disk.
func newService(cfg config) (*aad.Service, error) {
	var fileOpts []storage.FileOption
	if cfg.passphrase != "" {
		fileOpts = append(fileOpts, storage.WithPassphrase(cfg.passphrase))
	}
	store, err := storage.NewFile(cfg.store, fileOpts...)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if cfg.debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return aad.New(
		aad.Config{ClientID: cfg.clientID, RedirectURI: cfg.redirectURI},
		aad.WithEnvironment(cfg.environment),
		aad.WithStorage(store),
		aad.WithCache(storage.CacheAccessor{Storage: store}),
		aad.WithLogger(log),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
