// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package accesstokens

import (
	"errors"
	"fmt"
	"time"

	internalTime "github.com/Azure/batch-explorer-auth/apps/internal/json/types/time"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"
	"github.com/Azure/batch-explorer-auth/apps/token"
)

// TokenResponseJSONPayload is the body returned by the v1 token endpoint.
// expires_on and not_before are unix seconds sent as strings.
type TokenResponseJSONPayload struct {
	authority.OAuthResponseBase

	TokenType       string                    `json:"token_type"`
	Scope           string                    `json:"scope"`
	ExpiresIn       internalTime.DurationTime `json:"expires_in"`
	ExpiresOn       internalTime.Unix         `json:"expires_on"`
	NotBefore       internalTime.Unix         `json:"not_before"`
	Resource        string                    `json:"resource"`
	AccessTokenRaw  string                    `json:"access_token"`
	RefreshTokenRaw string                    `json:"refresh_token"`
	IDToken         string                    `json:"id_token"`
}

// AccessToken converts the payload into the token handed to callers.
func (p TokenResponseJSONPayload) AccessToken(tenant, resource string) (token.AccessToken, error) {
	if p.Error != "" {
		return token.AccessToken{}, fmt.Errorf("%s: %s", p.Error, p.ErrorDescription)
	}
	if p.AccessTokenRaw == "" {
		// Access token is required in a token response
		return token.AccessToken{}, errors.New("response is missing access_token")
	}

	expiresOn := p.ExpiresOn.T
	if expiresOn.IsZero() {
		expiresOn = p.ExpiresIn.T
	}
	if expiresOn.IsZero() {
		return token.AccessToken{}, errors.New("response is missing expires_on and expires_in")
	}

	if p.Resource != "" {
		resource = p.Resource
	}

	return token.AccessToken{
		AccessToken:  p.AccessTokenRaw,
		TokenType:    p.TokenType,
		RefreshToken: p.RefreshTokenRaw,
		IDToken:      p.IDToken,
		Resource:     resource,
		Tenant:       tenant,
		ExpiresOn:    expiresOn.UTC(),
		NotBefore:    utcOrZero(p.NotBefore.T),
	}, nil
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
