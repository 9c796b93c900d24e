// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package accesstokens exposes a REST client for the AAD v1 token endpoint. It redeems
authorization codes and refresh tokens for access tokens scoped to a resource.

These calls are of type "application/x-www-form-urlencoded".  This means we use url.Values to
represent arguments and then encode them into the POST body message.  We receive JSON in
return for the requests.
*/
package accesstokens

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"
	"github.com/Azure/batch-explorer-auth/apps/token"
)

const (
	grantType    = "grant_type"
	clientID     = "client_id"
	resourceKey  = "resource"
	redirectURI  = "redirect_uri"
	codeKey      = "code"
	refreshToken = "refresh_token"

	grantAuthCode     = "authorization_code"
	grantRefreshToken = "refresh_token"
)

type urlFormCaller interface {
	URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error
}

// Client represents the REST calls to get tokens from the token endpoint.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm        urlFormCaller
	Environment authority.Environment
	ClientID    string
	RedirectURI string
}

// Redeem exchanges an authorization code obtained for tenant into a token for resource.
func (c Client) Redeem(ctx context.Context, resource, tenant, code string) (token.AccessToken, error) {
	if code == "" {
		return token.AccessToken{}, &customErrors.RedeemError{Tenant: tenant, Resource: resource, Err: errors.New("authorization code is empty")}
	}

	qv := url.Values{}
	qv.Set(grantType, grantAuthCode)
	qv.Set(clientID, c.ClientID)
	qv.Set(codeKey, code)
	qv.Set(resourceKey, resource)
	qv.Set(redirectURI, c.RedirectURI)

	tok, err := c.doTokenResp(ctx, tenant, resource, qv)
	if err != nil {
		return token.AccessToken{}, &customErrors.RedeemError{Tenant: tenant, Resource: resource, Err: err}
	}
	return tok, nil
}

// Refresh uses a refresh token to get a new access token for resource.
func (c Client) Refresh(ctx context.Context, resource, tenant, rt string) (token.AccessToken, error) {
	if rt == "" {
		return token.AccessToken{}, &customErrors.RefreshError{Tenant: tenant, Resource: resource, Err: errors.New("refresh token is empty")}
	}

	qv := url.Values{}
	qv.Set(grantType, grantRefreshToken)
	qv.Set(clientID, c.ClientID)
	qv.Set(refreshToken, rt)
	qv.Set(resourceKey, resource)

	tok, err := c.doTokenResp(ctx, tenant, resource, qv)
	if err != nil {
		return token.AccessToken{}, &customErrors.RefreshError{Tenant: tenant, Resource: resource, Err: err}
	}
	return tok, nil
}

func (c Client) doTokenResp(ctx context.Context, tenant, resource string, qv url.Values) (token.AccessToken, error) {
	resp := TokenResponseJSONPayload{}
	err := c.Comm.URLFormCall(ctx, c.Environment.TokenEndpoint(tenant), qv, &resp)
	if err != nil {
		if resp.Error != "" {
			return token.AccessToken{}, fmt.Errorf("%s: %s: %w", resp.Error, resp.ErrorDescription, err)
		}
		return token.AccessToken{}, err
	}
	return resp.AccessToken(tenant, resource)
}
