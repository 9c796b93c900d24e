// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache allows applications to plug in external storage for the token cache so that
tokens survive a restart of the application.

The data stored and extracted will represent the entire cache. This data is considered
opaque and there are no guarantees to implementers on the format being passed.
*/
package cache

import "context"

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache, overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// ExportReplace is used to export or replace what is in the cache.
// Implementors should honor Context cancellations and return a context.Canceled or
// context.DeadlineExceeded in those cases.
type ExportReplace interface {
	// Replace replaces the cache with what is in external storage.
	// key is the suggested key which can be used for partioning the cache.
	// Finding nothing stored under key is not an error.
	Replace(ctx context.Context, cache Unmarshaler, key string) error
	// Export writes the binary representation of the cache (cache.Marshal()) to
	// external storage. This is considered opaque.
	Export(ctx context.Context, cache Marshaler, key string) error
}

// Noop is an ExportReplace that keeps nothing. The cache then lives for the lifetime of the process.
type Noop struct{}

func (Noop) Replace(context.Context, Unmarshaler, string) error { return nil }
func (Noop) Export(context.Context, Marshaler, string) error    { return nil }
