// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/Azure/batch-explorer-auth/apps/aad"
	customErrors "github.com/Azure/batch-explorer-auth/apps/errors"
	"github.com/spf13/cobra"
)

// run executes the command line args and reports a failure on stderr. It returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := &globalFlags{}
	root := newRootCmd(flags)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", errorText(err, flags.debug))
		return 1
	}
	return 0
}

// errorText includes the HTTP request and response behind err when debug is set.
func errorText(err error, debug bool) string {
	if debug {
		return customErrors.Verbose(err)
	}
	return err.Error()
}

func newRootCmd(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "batchauth",
		Short:         "Sign in to Azure Active Directory the way Batch Explorer does.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.Bind(root.PersistentFlags())

	root.AddCommand(
		newLoginCmd(flags),
		newTokenCmd(flags),
		newWhoamiCmd(flags),
		newLogoutCmd(flags),
		newSecretCmd(flags),
	)
	return root
}

// withService resolves the configuration and hands an initialized service to run.
func withService(flags *globalFlags, fn func(ctx context.Context, cfg config, svc *aad.Service, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.resolve(os.Getenv)
		if err != nil {
			return err
		}
		svc, err := newService(cfg)
		if err != nil {
			return err
		}
		if err := svc.Init(cmd.Context()); err != nil {
			return err
		}
		return fn(cmd.Context(), cfg, svc, cmd.OutOrStdout())
	}
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep a token to Azure Resource Manager.",
		Args:  cobra.NoArgs,
		RunE: withService(flags, func(ctx context.Context, cfg config, svc *aad.Service, out io.Writer) error {
			res, err := svc.AcquireToken(ctx, cfg.tenant, cfg.environment.ARMURL)
			if err != nil {
				return err
			}
			user, ok := svc.CurrentUser()
			if res.User != nil {
				user, ok = *res.User, true
			}
			if !ok {
				fmt.Fprintln(out, "Signed in.")
				return nil
			}
			fmt.Fprintf(out, "Signed in as %s (tenant %s).\n", user.Username(), user.TID)
			return nil
		}),
	}
}

type tokenOutput struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType,omitempty"`
	ExpiresOn   time.Time `json:"expiresOn"`
	Tenant      string    `json:"tenant"`
	Resource    string    `json:"resource"`
}

func newTokenCmd(flags *globalFlags) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token for a resource as JSON.",
		Args:  cobra.NoArgs,
		RunE: withService(flags, func(ctx context.Context, cfg config, svc *aad.Service, out io.Writer) error {
			if resource == "" {
				resource = cfg.environment.ARMURL
			}
			tok, err := svc.AccessTokenData(ctx, cfg.tenant, resource)
			if err != nil {
				return err
			}
			return writeJSON(out, tokenOutput{
				AccessToken: tok.AccessToken,
				TokenType:   tok.TokenType,
				ExpiresOn:   tok.ExpiresOn,
				Tenant:      cfg.tenant,
				Resource:    resource,
			})
		}),
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Resource to get a token for. Defaults to Azure Resource Manager.")
	return cmd
}

type cachedToken struct {
	Tenant   string `json:"tenant"`
	Resource string `json:"resource"`
}

type whoamiOutput struct {
	User   aad.User      `json:"user"`
	Tokens []cachedToken `json:"tokens"`
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed in user and the cached tokens as JSON.",
		Args:  cobra.NoArgs,
		RunE: withService(flags, func(ctx context.Context, cfg config, svc *aad.Service, out io.Writer) error {
			user, ok := svc.CurrentUser()
			if !ok {
				return errors.New("not signed in, run batchauth login")
			}
			o := whoamiOutput{User: user, Tokens: []cachedToken{}}
			for _, k := range svc.CachedTokens() {
				o.Tokens = append(o.Tokens, cachedToken{Tenant: k.Tenant, Resource: k.Resource})
			}
			return writeJSON(out, o)
		}),
	}
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed in user and every token, or only the token to --resource.",
		Args:  cobra.NoArgs,
		RunE: withService(flags, func(ctx context.Context, cfg config, svc *aad.Service, out io.Writer) error {
			if resource != "" {
				if err := svc.Forget(ctx, cfg.tenant, resource); err != nil {
					return err
				}
				fmt.Fprintf(out, "Forgot the token to %s in tenant %s.\n", resource, cfg.tenant)
				return nil
			}
			if err := svc.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "Signed out. To end the browser session as well, open:\n%s\n", svc.LogoutURL())
			return nil
		}),
	}
	cmd.Flags().StringVar(&resource, "resource", "", "Only forget the token to this resource in --tenant")
	return cmd
}

func newSecretCmd(flags *globalFlags) *cobra.Command {
	var vault, name, version string
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Print a Key Vault secret using the signed in user's token.",
		Args:  cobra.NoArgs,
		RunE: withService(flags, func(ctx context.Context, cfg config, svc *aad.Service, out io.Writer) error {
			client, err := azsecrets.NewClient(vaultURL(vault), svc.Credential(cfg.tenant), nil)
			if err != nil {
				return fmt.Errorf("creating key vault client: %w", err)
			}
			resp, err := client.GetSecret(ctx, name, version, nil)
			if err != nil {
				var httpErr *azcore.ResponseError
				if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
					return fmt.Errorf("secret %s not found in %s", name, vault)
				}
				return fmt.Errorf("getting key vault secret: %w", err)
			}
			value, err := secretValue(name, resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		}),
	}
	cmd.Flags().StringVar(&vault, "vault", "", "Vault name or URL")
	cmd.Flags().StringVar(&name, "name", "", "Secret name")
	cmd.Flags().StringVar(&version, "version", "", "Secret version. Defaults to the latest.")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func secretValue(name string, resp azsecrets.GetSecretResponse) (string, error) {
	if resp.Value == nil {
		return "", fmt.Errorf("secret %s has no value", name)
	}
	return *resp.Value, nil
}

// vaultURL accepts either a vault name or its URL.
func vaultURL(vault string) string {
	if strings.Contains(strings.ToLower(vault), "https://") {
		return vault
	}
	return fmt.Sprintf("https://%s.vault.azure.net", vault)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
