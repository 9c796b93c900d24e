// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package storage persists small string values, such as the signed in user and the serialized
token cache, between runs of the application.
*/
package storage

import (
	"context"
	"sync"

	"github.com/Azure/batch-explorer-auth/apps/cache"
)

// Storage is a key-value store. Reading a key that was never set is not an error: ok is false.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Memory is a Storage that lives as long as the process. The zero value is ready to use.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]string{}
	}
	m.items[key] = value
	return nil
}

func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// CacheAccessor adapts a Storage to cache.ExportReplace so a token cache can be persisted
// under a single key.
type CacheAccessor struct {
	Storage Storage
}

var _ cache.ExportReplace = CacheAccessor{}

// Replace implements cache.ExportReplace.
func (a CacheAccessor) Replace(ctx context.Context, c cache.Unmarshaler, key string) error {
	val, ok, err := a.Storage.GetItem(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	// Replace the cache contents with the value retrieved.
	return c.Unmarshal([]byte(val))
}

// Export implements cache.ExportReplace.
func (a CacheAccessor) Export(ctx context.Context, c cache.Marshaler, key string) error {
	val, err := c.Marshal()
	if err != nil {
		return err
	}
	return a.Storage.SetItem(ctx, key, string(val))
}
