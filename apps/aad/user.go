// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package aad

import (
	"time"

	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/golang-jwt/jwt/v5"
)

// User holds the identity claims of the id token returned by a sign-in.
type User struct {
	Aud        string   `json:"aud"`
	Iss        string   `json:"iss"`
	Iat        int64    `json:"iat"`
	Nbf        int64    `json:"nbf"`
	Exp        int64    `json:"exp"`
	Amr        []string `json:"amr,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	IPAddr     string   `json:"ipaddr,omitempty"`
	Name       string   `json:"name,omitempty"`
	Nonce      string   `json:"nonce,omitempty"`
	OID        string   `json:"oid,omitempty"`
	Platf      string   `json:"platf,omitempty"`
	Sub        string   `json:"sub,omitempty"`
	TID        string   `json:"tid"`
	UniqueName string   `json:"unique_name,omitempty"`
	UPN        string   `json:"upn,omitempty"`
	Ver        string   `json:"ver,omitempty"`
}

// The methods below implement jwt.Claims so a User can be parsed straight out of a token.

func (u User) GetExpirationTime() (*jwt.NumericDate, error) { return numericDate(u.Exp), nil }
func (u User) GetIssuedAt() (*jwt.NumericDate, error) { return numericDate(u.Iat), nil }
func (u User) GetNotBefore() (*jwt.NumericDate, error) { return numericDate(u.Nbf), nil }
func (u User) GetIssuer() (string, error) { return u.Iss, nil }
func (u User) GetSubject() (string, error) { return u.Sub, nil }
func (u User) GetAudience() (jwt.ClaimStrings, error) {
	if u.Aud == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{u.Aud}, nil
}

func numericDate(sec int64) *jwt.NumericDate {
	if sec == 0 {
		return nil
	}
	return jwt.NewNumericDate(time.Unix(sec, 0))
}

// Username is the best display name for the user.
func (u User) Username() string {
	switch {
	case u.UPN != "":
		return u.UPN
	case u.UniqueName != "":
		return u.UniqueName
	}
	return u.Name
}

// Decoder reads the claims of an id token. The signature is not verified: the token comes
// straight from the token endpoint over TLS and is only used to know who signed in.
type Decoder struct{}

// Decode returns the user described by the id token raw.
func (Decoder) Decode(raw string) (User, error) {
	var u User
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &u); err != nil {
		return User{}, &customErrors.DecodeError{Reason: "malformed token", Err: err}
	}
	if u.TID == "" {
		return User{}, &customErrors.DecodeError{Reason: "missing tid claim"}
	}
	if u.OID == "" && u.Sub == "" {
		return User{}, &customErrors.DecodeError{Reason: "missing oid and sub claims"}
	}
	return u, nil
}
