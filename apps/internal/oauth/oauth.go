// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package oauth exposes the token operations of the sign-in flow: redeeming an authorization
// code and refreshing a token. It hides which REST client talks to AAD.
package oauth

import (
	"context"
	"errors"

	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"
	"github.com/Azure/batch-explorer-auth/apps/token"
)

// AccessTokens contains the methods for fetching tokens from the token endpoint.
type AccessTokens interface {
	Redeem(ctx context.Context, resource, tenant, code string) (token.AccessToken, error)
	Refresh(ctx context.Context, resource, tenant, refreshToken string) (token.AccessToken, error)
}

// Client provides tokens for the application registration it was created with.
type Client struct {
	accessTokens AccessTokens
}

// New is the constructor for Client.
func New(httpClient ops.HTTPClient, env authority.Environment, clientID, redirectURI string) *Client {
	r := ops.New(httpClient)
	return &Client{accessTokens: r.AccessTokens(env, clientID, redirectURI)}
}

// Redeem exchanges an authorization code for a token to resource in tenant.
func (t *Client) Redeem(ctx context.Context, resource, tenant, code string) (token.AccessToken, error) {
	if err := checkTarget(resource, tenant); err != nil {
		return token.AccessToken{}, err
	}
	return t.accessTokens.Redeem(ctx, resource, tenant, code)
}

// Refresh uses refreshToken to get a new token to resource in tenant.
func (t *Client) Refresh(ctx context.Context, resource, tenant, refreshToken string) (token.AccessToken, error) {
	if err := checkTarget(resource, tenant); err != nil {
		return token.AccessToken{}, err
	}
	return t.accessTokens.Refresh(ctx, resource, tenant, refreshToken)
}

func checkTarget(resource, tenant string) error {
	if tenant == "" {
		return errors.New("tenant must not be empty")
	}
	if resource == "" {
		return errors.New("resource must not be empty")
	}
	return nil
}
