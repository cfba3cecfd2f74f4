package source

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/jeffallen/seekinghttp"
)

// HTTP reads sources over HTTP with range requests. src is a URL.
type HTTP struct {
	// BufferSize sets the read-ahead of each body; 0 selects 64 KiB.
	BufferSize int
}

var _ Reader = HTTP{}

// Read issues range requests against src through a ReaderAt so the whole
// requested range is never buffered at once.
func (h HTTP) Read(ctx context.Context, src string, r *Range) (*Response, error) {
	res := seekinghttp.New(src)
	size, err := res.Size()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.New("source: empty response")
	}
	start, n, err := r.Bounds(size)
	if err != nil {
		return nil, err
	}
	bs := h.BufferSize
	if bs <= 0 {
		bs = 64 << 10
	}
	body := bufio.NewReaderSize(io.NewSectionReader(res, start, n), bs)
	return &Response{
		Body:          ctxBody{ctx: ctx, Reader: body, Closer: io.NopCloser(nil)},
		ContentLength: size,
		SupportsRange: true,
	}, nil
}
