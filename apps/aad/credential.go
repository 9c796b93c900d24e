// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package aad

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

const defaultScopeSuffix = ".default"

// Credential lets Azure SDK clients get their tokens from a Service.
type Credential struct {
	svc    *Service
	tenant string
}

var _ azcore.TokenCredential = (*Credential)(nil)

// Credential returns an azcore.TokenCredential for tenant. A TenantID set in the token request
// takes precedence.
func (s *Service) Credential(tenant string) *Credential {
	return &Credential{svc: s, tenant: tenant}
}

// GetToken implements azcore.TokenCredential. The single scope must be a v1 resource with the
// "/.default" suffix, for example "https://vault.azure.net/.default".
func (c *Credential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) != 1 {
		return azcore.AccessToken{}, fmt.Errorf("GetToken() requires exactly one scope, got %d", len(opts.Scopes))
	}
	resource, err := scopeToResource(opts.Scopes[0])
	if err != nil {
		return azcore.AccessToken{}, err
	}
	tenant := c.tenant
	if opts.TenantID != "" {
		tenant = opts.TenantID
	}

	tok, err := c.svc.AccessTokenData(ctx, tenant, resource)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: tok.AccessToken, ExpiresOn: tok.ExpiresOn}, nil
}

// scopeToResource turns a "/.default" scope into the v1 resource, keeping the trailing slash
// the resource URLs of an Environment have. "https://management.azure.com//.default", the
// form used for resources that end with a slash, maps to the same resource.
func scopeToResource(scope string) (string, error) {
	if !strings.HasSuffix(scope, "/"+defaultScopeSuffix) {
		return "", fmt.Errorf("scope(%s) must end with /%s", scope, defaultScopeSuffix)
	}
	resource := strings.TrimSuffix(scope, defaultScopeSuffix)
	if strings.HasSuffix(resource, "//") {
		resource = resource[:len(resource)-1]
	}
	if resource == "/" {
		return "", fmt.Errorf("scope(%s) has no resource", scope)
	}
	return resource, nil
}
