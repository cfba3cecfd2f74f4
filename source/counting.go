package source

import (
	"context"
	"sync"
)

// Counting wraps a Reader and records every range it was asked for.
type Counting struct {
	Reader Reader

	mu     sync.Mutex
	ranges []Range
}

var _ Reader = (*Counting)(nil)

func (c *Counting) Read(ctx context.Context, src string, r *Range) (*Response, error) {
	rec := Range{End: -1}
	if r != nil {
		rec = *r
	}
	c.mu.Lock()
	c.ranges = append(c.ranges, rec)
	c.mu.Unlock()
	return c.Reader.Read(ctx, src, r)
}

// Reads returns the number of Read calls so far.
func (c *Counting) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ranges)
}

// Ranges returns a copy of the requested ranges in call order.
func (c *Counting) Ranges() []Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Range(nil), c.ranges...)
}
