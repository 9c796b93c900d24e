// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package token holds the access token value handed to callers and the in-memory cache that
keeps the latest token for every (tenant, resource) pair.
*/
package token

import (
	"time"
)

// DefaultRefreshMargin is how long before expiry a token is treated as expired.
const DefaultRefreshMargin = 5 * time.Minute

// AccessToken is a bearer credential for one resource in one tenant.
// Values are never modified after creation; a refresh produces a new AccessToken.
type AccessToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Resource     string    `json:"resource,omitempty"`
	Tenant       string    `json:"tenant,omitempty"`
	ExpiresOn    time.Time `json:"expires_on"`
	NotBefore    time.Time `json:"not_before,omitempty"`
}

// IsExpired reports whether the token expires within margin of now.
func (t AccessToken) IsExpired(margin time.Duration) bool {
	return !time.Now().Add(margin).Before(t.ExpiresOn)
}

// HasRefreshToken checks if the AccessToken can be renewed without the user.
func (t AccessToken) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// IsZero indicates if the AccessToken is the zero value.
func (t AccessToken) IsZero() bool {
	return t.AccessToken == "" && t.ExpiresOn.IsZero()
}
