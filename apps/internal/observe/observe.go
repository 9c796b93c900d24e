// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package observe provides a value that subscribers can watch. Subscribers only ever see the
// latest value: a slow reader skips intermediate values instead of blocking the writer.
package observe

import (
	"slices"
	"sync"
)

// Value holds a T and broadcasts every change to its subscribers.
type Value[T any] struct {
	mu          sync.Mutex
	v           T
	subscribers []chan T
}

// New creates a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{v: initial}
}

// Get returns the current value.
func (o *Value[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.v
}

// Set stores v and notifies subscribers.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.v = v
	for _, ch := range o.subscribers {
		publish(ch, v)
	}
}

// Subscribe returns a channel that immediately receives the current value and then every
// later one. cancel stops delivery and closes the channel.
func (o *Value[T]) Subscribe() (ch <-chan T, cancel func()) {
	c := make(chan T, 1)

	o.mu.Lock()
	c <- o.v
	o.subscribers = append(o.subscribers, c)
	o.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			i := slices.Index(o.subscribers, c)
			if i >= 0 {
				o.subscribers = slices.Delete(o.subscribers, i, i+1)
			}
			close(c)
		})
	}
}

// publish replaces whatever the subscriber has not read yet with v. Must be called with the
// lock held, which makes the drain and the send atomic with respect to other writers.
func publish[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
