// Package fetch memoizes lazily triggered out-of-band reads, such as a
// metadata box located after the media data or a trailing random-access
// index. Each key is fetched at most once at a time; concurrent callers
// share the in-flight result and later callers get the resolved value.
package fetch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Key identifies a fetch by source and byte range. End is inclusive and -1
// for open-ended ranges.
type Key struct {
	Source string
	Start  int64
	End    int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d:%d]", k.Source, k.Start, k.End)
}

// State is the lifecycle of a key.
type State int

const (
	// NotStarted means no fetch was made for the key.
	NotStarted State = iota
	// InFlight means a fetch for the key is running.
	InFlight
	// Resolved means the key holds a stored result.
	Resolved
)

func (s State) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Resolved:
		return "resolved"
	}
	return "not-started"
}

// Cache memoizes fetch results of type T. The zero value is ready to use.
type Cache[T any] struct {
	group singleflight.Group

	mu       sync.Mutex
	resolved map[Key]T
	inflight map[Key]int
}

// Do returns the value for key, calling fn only when no call for key is in
// flight and none has succeeded before. Failed calls are not memoized.
//
// fn runs with a context detached from the first caller's cancellation so a
// caller giving up does not fail the others; every caller still returns
// early with its own ctx error.
func (c *Cache[T]) Do(ctx context.Context, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	c.mu.Lock()
	if c.inflight == nil {
		c.inflight = make(map[Key]int)
	}
	c.inflight[key]++
	c.mu.Unlock()

	ch := c.group.DoChan(key.String(), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.Store(key, v)
		return v, nil
	})

	defer func() {
		c.mu.Lock()
		if c.inflight[key]--; c.inflight[key] <= 0 {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()

	var zero T
	select {
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		v, _ := r.Val.(T)
		return v, nil
	}
}

// Get returns the resolved value for key.
func (c *Cache[T]) Get(key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.resolved[key]
	return v, ok
}

// Store records v as the resolved value for key, e.g. when replaying hints.
func (c *Cache[T]) Store(key Key, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = make(map[Key]T)
	}
	c.resolved[key] = v
}

// State reports the lifecycle state of key.
func (c *Cache[T]) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resolved[key]; ok {
		return Resolved
	}
	if c.inflight[key] > 0 {
		return InFlight
	}
	return NotStarted
}

// Keys returns every resolved key.
func (c *Cache[T]) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.resolved))
	for k := range c.resolved {
		keys = append(keys, k)
	}
	return keys
}
