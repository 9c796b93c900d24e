// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package aad

import (
	"context"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/batch-explorer-auth/apps/internal/oauth/fake"
	"github.com/Azure/batch-explorer-auth/apps/token"
	"github.com/kylelemons/godebug/pretty"
)

func TestScopeToResource(t *testing.T) {
	tests := []struct {
		scope string
		want  string
		err   bool
	}{
		{scope: "https://management.azure.com/.default", want: "https://management.azure.com/"},
		{scope: "https://management.azure.com//.default", want: "https://management.azure.com/"},
		{scope: "https://vault.azure.net/.default", want: "https://vault.azure.net/"},
		{scope: "https://vault.azure.net/user_impersonation", err: true},
		{scope: "/.default", err: true},
	}
	for _, test := range tests {
		got, err := scopeToResource(test.scope)
		switch {
		case err == nil && test.err:
			t.Errorf("TestScopeToResource(%s): got err == nil, want err != nil", test.scope)
		case err != nil && !test.err:
			t.Errorf("TestScopeToResource(%s): got err == %s, want err == nil", test.scope, err)
		case got != test.want:
			t.Errorf("TestScopeToResource(%s): got %q, want %q", test.scope, got, test.want)
		}
	}
}

func TestCredential(t *testing.T) {
	expires := time.Now().Add(time.Hour).Truncate(time.Second)

	tests := []struct {
		desc        string
		opts        policy.TokenRequestOptions
		wantRedeems []fake.Call
		err         bool
	}{
		{
			desc:        "Success: credential tenant",
			opts:        policy.TokenRequestOptions{Scopes: []string{"https://vault.azure.net/.default"}},
			wantRedeems: []fake.Call{{Resource: "https://vault.azure.net/", Tenant: tenant1, Secret: "somecode"}},
		},
		{
			desc:        "Success: request tenant wins",
			opts:        policy.TokenRequestOptions{Scopes: []string{"https://vault.azure.net/.default"}, TenantID: "tenant-2"},
			wantRedeems: []fake.Call{{Resource: "https://vault.azure.net/", Tenant: "tenant-2", Secret: "somecode"}},
		},
		{
			desc: "Error: two scopes",
			opts: policy.TokenRequestOptions{Scopes: []string{"https://vault.azure.net/.default", "https://management.azure.com/.default"}},
			err:  true,
		},
		{
			desc: "Error: no scope",
			opts: policy.TokenRequestOptions{},
			err:  true,
		},
	}

	for _, test := range tests {
		f := newFixture(t)
		f.tokens.Result = token.AccessToken{AccessToken: "vaultToken", ExpiresOn: expires}

		got, err := f.svc.Credential(tenant1).GetToken(context.Background(), test.opts)
		switch {
		case err == nil && test.err:
			t.Errorf("TestCredential(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestCredential(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}

		if got.Token != "vaultToken" || !got.ExpiresOn.Equal(expires) {
			t.Errorf("TestCredential(%s): got %+v", test.desc, got)
		}
		if diff := pretty.Compare(test.wantRedeems, f.tokens.Redeems); diff != "" {
			t.Errorf("TestCredential(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}
