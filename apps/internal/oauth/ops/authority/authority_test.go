// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package authority

import (
	"testing"
)

func TestAuthorizeURL(t *testing.T) {
	tests := []struct {
		desc string
		env  Environment
		p    AuthorizeParams
		want string
	}{
		{
			desc: "interactive",
			env:  AzurePublic,
			p: AuthorizeParams{
				Tenant:      "tenant-1",
				Resource:    "https://management.azure.com/",
				ClientID:    "abc",
				RedirectURI: "http://localhost",
			},
			want: "https://login.microsoftonline.com/tenant-1/oauth2/authorize?response_type=id_token+code" +
				"&scope=user_impersonation+openid&client_id=abc&redirect_uri=http%3A%2F%2Flocalhost" +
				"&resource=https://management.azure.com/",
		},
		{
			desc: "silent",
			env:  AzurePublic,
			p: AuthorizeParams{
				Tenant:      "common",
				Resource:    "https://management.azure.com/",
				ClientID:    "abc",
				RedirectURI: "urn:ietf:wg:oauth:2.0:oob",
				Silent:      true,
			},
			want: "https://login.microsoftonline.com/common/oauth2/authorize?response_type=id_token+code" +
				"&scope=user_impersonation+openid&client_id=abc&redirect_uri=urn%3Aietf%3Awg%3Aoauth%3A2.0%3Aoob" +
				"&resource=https://management.azure.com/&prompt=none",
		},
		{
			desc: "china",
			env:  AzureChina,
			p: AuthorizeParams{
				Tenant:      "tenant-1",
				Resource:    AzureChina.ARMURL,
				ClientID:    "abc",
				RedirectURI: "http://localhost",
			},
			want: "https://login.chinacloudapi.cn/tenant-1/oauth2/authorize?response_type=id_token+code" +
				"&scope=user_impersonation+openid&client_id=abc&redirect_uri=http%3A%2F%2Flocalhost" +
				"&resource=https://management.chinacloudapi.cn/",
		},
	}

	for _, test := range tests {
		if got := test.env.AuthorizeURL(test.p); got != test.want {
			t.Errorf("TestAuthorizeURL(%s):\ngot  %s\nwant %s", test.desc, got, test.want)
		}
	}
}

func TestEndpoints(t *testing.T) {
	if got, want := AzurePublic.TokenEndpoint("tenant-1"), "https://login.microsoftonline.com/tenant-1/oauth2/token"; got != want {
		t.Errorf("TestEndpoints(token): got %s, want %s", got, want)
	}
	want := "https://login.microsoftonline.com/common/oauth2/logout?post_logout_redirect_uri=http%3A%2F%2Flocalhost%2Flogout"
	if got := AzurePublic.LogoutURL("http://localhost/logout"); got != want {
		t.Errorf("TestEndpoints(logout): got %s, want %s", got, want)
	}
}

func TestEnvironment(t *testing.T) {
	tests := []struct {
		desc      string
		env       Environment
		untrusted bool
		err       bool
	}{
		{desc: "public", env: AzurePublic},
		{desc: "china", env: AzureChina},
		{desc: "usgov", env: AzureUSGov},
		{desc: "germany", env: AzureGermany},
		{desc: "untrusted host", env: Environment{Name: "x", AADURL: "https://login.example.com/", ARMURL: "a"}, untrusted: true},
		{desc: "Error: http", env: Environment{Name: "x", AADURL: "http://login.microsoftonline.com/", ARMURL: "a"}, err: true},
		{desc: "Error: no trailing slash", env: Environment{Name: "x", AADURL: "https://login.microsoftonline.com", ARMURL: "a"}, err: true},
		{desc: "Error: no ARM", env: Environment{Name: "x", AADURL: "https://login.microsoftonline.com/"}, err: true},
	}

	for _, test := range tests {
		err := test.env.Validate()
		switch {
		case err == nil && test.err:
			t.Errorf("TestEnvironment(%s): got err == nil, want err != nil", test.desc)
		case err != nil && !test.err:
			t.Errorf("TestEnvironment(%s): got err == %s, want err == nil", test.desc, err)
		case err == nil:
			if got := test.env.Trusted(); got == test.untrusted {
				t.Errorf("TestEnvironment(%s): Trusted() == %v, want %v", test.desc, got, !test.untrusted)
			}
		}
	}

	env, err := EnvironmentByName("azurechinacloud")
	if err != nil || env.AADURL != AzureChina.AADURL {
		t.Errorf("TestEnvironment(EnvironmentByName): got %v, %v", env, err)
	}
	if _, err := EnvironmentByName("mars"); err == nil {
		t.Errorf("TestEnvironment(EnvironmentByName unknown): got err == nil, want err != nil")
	}
}
