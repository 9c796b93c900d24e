// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package aad

import "github.com/Azure/batch-explorer-auth/apps/internal/oauth/ops/authority"

// Environment describes the endpoints of one Azure cloud.
type Environment = authority.Environment

// The Azure clouds Batch Explorer can sign in to.
var (
	AzurePublic  = authority.AzurePublic
	AzureChina   = authority.AzureChina
	AzureUSGov   = authority.AzureUSGov
	AzureGermany = authority.AzureGermany
)

// EnvironmentByName finds a known environment such as "AzureCloud". Matching ignores case.
func EnvironmentByName(name string) (Environment, error) {
	return authority.EnvironmentByName(name)
}
