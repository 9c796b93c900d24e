// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package errors holds the error types returned by the authentication packages.
Callers should use errors.As() to find the concrete type when they need the
structured payload (for example the AAD error code of an AuthorizeError).
*/
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	var v verboser
	if errors.As(err, &v) {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req *http.Request
	// Resp contains response body
	Resp *http.Response
	Err  error
}

// Error implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a versbose error message with the request or response.
func (e CallErr) Verbose() string {
	if e.Resp != nil {
		resp := *e.Resp
		resp.Request = nil // This brings in a bunch of TLS crap we don't need
		resp.TLS = nil     // Same
		e.Resp = &resp
	}
	return fmt.Sprintf("%s:\nRequest:\n%s\nResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}

// AuthorizeError is the failure payload of one authorization round trip. It is returned when
// the identity provider redirects with an error, when a silent attempt has no session to use
// or when the authorization window goes away before redirecting.
type AuthorizeError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *AuthorizeError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization failed: %s", e.Code)
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// RedeemError is returned when an authorization code could not be exchanged for a token.
type RedeemError struct {
	Tenant   string
	Resource string
	Err      error
}

func (e *RedeemError) Error() string {
	return fmt.Sprintf("redeeming authorization code for tenant(%s) resource(%s): %s", e.Tenant, e.Resource, e.Err)
}

func (e *RedeemError) Unwrap() error {
	return e.Err
}

// RefreshError is returned when a refresh token could not be exchanged for a new token.
type RefreshError struct {
	Tenant   string
	Resource string
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing token for tenant(%s) resource(%s): %s", e.Tenant, e.Resource, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when an id token is malformed or lacks the claims needed to
// build a user.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid id token: %s", e.Reason)
	}
	return fmt.Sprintf("invalid id token: %s: %s", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StorageError is returned when persisted data could not be read, written or understood.
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s(%s): %s", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
