// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package fake provides fake implementations of the oauth interfaces for tests.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Azure/batch-explorer-auth/apps/token"
)

// Call records the arguments of one AccessTokens call.
type Call struct {
	Resource string
	Tenant   string
	// Secret is the code or refresh token that was sent.
	Secret string
}

// AccessTokens is a fake oauth.AccessTokens. Without Result set it returns a token valid
// for an hour.
type AccessTokens struct {
	// Err makes every call fail.
	Err bool
	// Result is returned by successful calls when set.
	Result token.AccessToken
	// RefreshResult replaces Result for Refresh calls when set.
	RefreshResult token.AccessToken

	mu        sync.Mutex
	Redeems   []Call
	Refreshes []Call
}

func (f *AccessTokens) Redeem(ctx context.Context, resource, tenant, code string) (token.AccessToken, error) {
	f.mu.Lock()
	f.Redeems = append(f.Redeems, Call{Resource: resource, Tenant: tenant, Secret: code})
	f.mu.Unlock()
	return f.result(resource, tenant)
}

func (f *AccessTokens) Refresh(ctx context.Context, resource, tenant, refreshToken string) (token.AccessToken, error) {
	f.mu.Lock()
	f.Refreshes = append(f.Refreshes, Call{Resource: resource, Tenant: tenant, Secret: refreshToken})
	f.mu.Unlock()
	if !f.Err && !f.RefreshResult.IsZero() {
		return f.RefreshResult, nil
	}
	return f.result(resource, tenant)
}

func (f *AccessTokens) result(resource, tenant string) (token.AccessToken, error) {
	if f.Err {
		return token.AccessToken{}, errors.New("error")
	}
	if !f.Result.IsZero() {
		return f.Result, nil
	}
	return token.AccessToken{
		AccessToken: "fakeToken",
		Resource:    resource,
		Tenant:      tenant,
		ExpiresOn:   time.Now().Add(time.Hour),
	}, nil
}
