// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command batchauth signs in to Azure Active Directory the way Batch Explorer does and prints
// tokens, the signed in user or Key Vault secrets.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
