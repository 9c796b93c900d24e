// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package ops provides operations to the AAD backend using REST clients.

Usage is simple:

	rest := ops.New(httpClient)

	// Creates a token endpoint client and redeems an authorization code.
	tok, err := rest.AccessTokens(env, clientID, redirectURI).Redeem(ctx, resource, tenant, code)
	if err != nil {
		// Do something
	}
*/
package ops

import (
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/accesstokens"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/internal/comm"
)

// HTTPClient represents an HTTP client.
// It's usually an *http.Client from the standard library.
type HTTPClient = comm.HTTPClient

// REST provides REST clients for communicating with the AAD backend.
type REST struct {
	client *comm.Client
}

// New is the constructor for REST.
func New(httpClient HTTPClient) *REST {
	return &REST{client: comm.New(httpClient)}
}

// AccessTokens returns a client that redeems codes and refresh tokens at the token endpoint
// of env for the application clientID.
func (r *REST) AccessTokens(env authority.Environment, clientID, redirectURI string) accesstokens.Client {
	return accesstokens.Client{Comm: r.client, Environment: env, ClientID: clientID, RedirectURI: redirectURI}
}
