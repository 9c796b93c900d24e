// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package authority knows the AAD endpoints of each Azure cloud and builds the v1
// authorize, token and logout URLs used by the sign-in flow.
package authority

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// CommonTenant is the multi-tenant authority segment.
	CommonTenant = "common"

	authorizePath = "%s%s/oauth2/authorize"
	tokenPath     = "%s%s/oauth2/token"
	logoutPath    = "%s%s/oauth2/logout"
)

var aadTrustedHostList = map[string]bool{
	"login.windows.net":            true, // Microsoft Azure Worldwide - Used in validation scenarios where host is not this list
	"login.chinacloudapi.cn":       true, // Microsoft Azure China
	"login.microsoftonline.de":     true, // Microsoft Azure Blackforest
	"login-us.microsoftonline.com": true, // Microsoft Azure US Government - Legacy
	"login.microsoftonline.us":     true, // Microsoft Azure US Government
	"login.microsoftonline.com":    true, // Microsoft Azure Worldwide
}

// TrustedHost checks if an AAD host is trusted/valid.
func TrustedHost(host string) bool {
	return aadTrustedHostList[host]
}

// OAuthResponseBase is the error part of every response from the AAD endpoints.
type OAuthResponseBase struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	TraceID          string `json:"trace_id"`
}

// Environment describes one Azure cloud. All URLs end with a slash.
type Environment struct {
	Name     string
	AADURL   string
	ARMURL   string
	BatchURL string
	GraphURL string
}

var (
	AzurePublic = Environment{
		Name:     "AzureCloud",
		AADURL:   "https://login.microsoftonline.com/",
		ARMURL:   "https://management.azure.com/",
		BatchURL: "https://batch.core.windows.net/",
		GraphURL: "https://graph.windows.net/",
	}
	AzureChina = Environment{
		Name:     "AzureChinaCloud",
		AADURL:   "https://login.chinacloudapi.cn/",
		ARMURL:   "https://management.chinacloudapi.cn/",
		BatchURL: "https://batch.chinacloudapi.cn/",
		GraphURL: "https://graph.chinacloudapi.cn/",
	}
	AzureUSGov = Environment{
		Name:     "AzureUSGovernment",
		AADURL:   "https://login.microsoftonline.us/",
		ARMURL:   "https://management.usgovcloudapi.net/",
		BatchURL: "https://batch.core.usgovcloudapi.net/",
		GraphURL: "https://graph.windows.net/",
	}
	AzureGermany = Environment{
		Name:     "AzureGermanCloud",
		AADURL:   "https://login.microsoftonline.de/",
		ARMURL:   "https://management.microsoftazure.de/",
		BatchURL: "https://batch.cloudapi.de/",
		GraphURL: "https://graph.cloudapi.de/",
	}
)

var environments = []Environment{AzurePublic, AzureChina, AzureUSGov, AzureGermany}

// EnvironmentByName finds a known environment. Matching ignores case.
func EnvironmentByName(name string) (Environment, error) {
	for _, env := range environments {
		if strings.EqualFold(env.Name, name) {
			return env, nil
		}
	}
	return Environment{}, fmt.Errorf("unknown azure environment %q", name)
}

// Validate checks the environment has an https AAD URL and an ARM resource.
func (e Environment) Validate() error {
	u, err := url.Parse(e.AADURL)
	if err != nil {
		return fmt.Errorf("environment(%s) AADURL cannot be URL parsed: %w", e.Name, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("environment(%s) AADURL(%s) did not start with https://", e.Name, e.AADURL)
	}
	if !strings.HasSuffix(e.AADURL, "/") {
		return fmt.Errorf("environment(%s) AADURL(%s) must end with /", e.Name, e.AADURL)
	}
	if e.ARMURL == "" {
		return fmt.Errorf("environment(%s) has no ARMURL", e.Name)
	}
	return nil
}

// Trusted reports whether the AAD host of e is one of the known Azure authorities.
func (e Environment) Trusted() bool {
	u, err := url.Parse(e.AADURL)
	if err != nil {
		return false
	}
	return TrustedHost(u.Host)
}

// AuthorizeParams are the inputs of one authorize URL.
type AuthorizeParams struct {
	Tenant      string
	Resource    string
	ClientID    string
	RedirectURI string
	Silent      bool
}

// AuthorizeURL builds the v1 authorize URL. The query is assembled by hand because the
// identity provider and existing app registrations expect this exact layout.
func (e Environment) AuthorizeURL(p AuthorizeParams) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(authorizePath, e.AADURL, p.Tenant))
	sb.WriteString("?response_type=id_token+code")
	sb.WriteString("&scope=user_impersonation+openid")
	sb.WriteString("&client_id=" + p.ClientID)
	sb.WriteString("&redirect_uri=" + EncodeURIComponent(p.RedirectURI))
	sb.WriteString("&resource=" + p.Resource)
	if p.Silent {
		sb.WriteString("&prompt=none")
	}
	return sb.String()
}

// TokenEndpoint is where authorization codes and refresh tokens are redeemed for tenant.
func (e Environment) TokenEndpoint(tenant string) string {
	return fmt.Sprintf(tokenPath, e.AADURL, tenant)
}

// LogoutURL signs the user out of every tenant and sends the browser to redirectURI.
func (e Environment) LogoutURL(redirectURI string) string {
	return fmt.Sprintf(logoutPath, e.AADURL, CommonTenant) + "?post_logout_redirect_uri=" + EncodeURIComponent(redirectURI)
}

// EncodeURIComponent escapes s so that it can be placed in a query value, with spaces as %20.
func EncodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
