// Package source defines the reader contract the parser consumes and a few
// adapters for files, in-memory buffers and HTTP servers with range support.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrRangeUnsupported is returned by readers asked for a range they cannot serve.
var ErrRangeUnsupported = errors.New("source: range requests not supported")

// Range selects bytes [Start, End] of a source. End is inclusive; -1 means
// to the end of the source. A nil *Range reads from the start.
type Range struct {
	Start int64
	End   int64
}

// From returns an open-ended range starting at start.
func From(start int64) *Range { return &Range{Start: start, End: -1} }

// Between returns the inclusive range [start, end].
func Between(start, end int64) *Range { return &Range{Start: start, End: end} }

func (r *Range) String() string {
	if r == nil {
		return "bytes=0-"
	}
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Bounds resolves r against a source of the given length and returns the
// start offset and the number of bytes to read.
func (r *Range) Bounds(length int64) (start, n int64, err error) {
	if r == nil {
		return 0, length, nil
	}
	end := r.End
	if end < 0 || end >= length {
		end = length - 1
	}
	if r.Start < 0 || r.Start > length {
		return 0, 0, fmt.Errorf("source: range %s outside length %d", r, length)
	}
	return r.Start, end - r.Start + 1, nil
}

// Response is the result of one read.
type Response struct {
	// Body streams the requested bytes. The caller closes it.
	Body io.ReadCloser
	// ContentLength is the total length of the source, not of Body.
	ContentLength int64
	// SupportsRange reports whether later reads may start anywhere.
	SupportsRange bool
}

// Reader opens byte streams of a named source. Implementations make no
// ordering guarantee beyond one call: each Response streams its range in order.
type Reader interface {
	Read(ctx context.Context, src string, r *Range) (*Response, error)
}

// ctxBody makes a body honour context cancellation on every Read.
type ctxBody struct {
	ctx context.Context
	io.Reader
	io.Closer
}

func (b ctxBody) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, context.Cause(b.ctx)
	}
	return b.Reader.Read(p)
}
