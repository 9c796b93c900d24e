// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package token

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const keySeparator = "|"

// Key identifies one cache entry.
type Key struct {
	Tenant   string
	Resource string
}

func (k Key) String() string {
	return k.Tenant + keySeparator + k.Resource
}

// Cache maps (tenant, resource) to the most recent AccessToken for that pair.
// Lookups match both parts exactly. Entries are only replaced, never expired:
// deciding what to do with an expiring token is left to the caller.
// Cache implements cache.Serializer.
type Cache struct {
	mu     sync.RWMutex
	tokens map[Key]AccessToken
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{tokens: map[Key]AccessToken{}}
}

// Store inserts token for (tenant, resource), overwriting any previous entry.
func (c *Cache) Store(tenant, resource string, token AccessToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[Key{Tenant: tenant, Resource: resource}] = token
}

// Get returns the token stored for (tenant, resource).
func (c *Cache) Get(tenant, resource string) (AccessToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[Key{Tenant: tenant, Resource: resource}]
	return t, ok
}

// Remove deletes the entry for (tenant, resource), if any.
func (c *Cache) Remove(tenant, resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, Key{Tenant: tenant, Resource: resource})
}

// Clear removes all tokens from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = map[Key]AccessToken{}
}

// Len is the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}

// Keys returns the cached keys sorted by tenant, then resource.
func (c *Cache) Keys() []Key {
	c.mu.RLock()
	keys := make([]Key, 0, len(c.tokens))
	for k := range c.tokens {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Marshal implements cache.Marshaler.
func (c *Cache) Marshal() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := make(map[string]AccessToken, len(c.tokens))
	for k, v := range c.tokens {
		m[k.String()] = v
	}
	return json.Marshal(m)
}

// Unmarshal implements cache.Unmarshaler. The cache content is replaced by b.
func (c *Cache) Unmarshal(b []byte) error {
	m := map[string]AccessToken{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("token cache could not be decoded: %w", err)
	}

	tokens := make(map[Key]AccessToken, len(m))
	for k, v := range m {
		tenant, resource, ok := strings.Cut(k, keySeparator)
		if !ok {
			return fmt.Errorf("token cache key(%s) is malformed", k)
		}
		tokens[Key{Tenant: tenant, Resource: resource}] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	return nil
}
