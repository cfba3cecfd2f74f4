package source

import (
	"context"
	"fmt"
	"io"
	"os"
)

// File reads sources from the local filesystem. src is a path.
type File struct{}

var _ Reader = File{}

// Read opens src and positions it at the start of r.
func (File) Read(ctx context.Context, src string, r *Range) (*Response, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	start, n, err := r.Bounds(fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", src, err)
	}
	return &Response{
		Body:          ctxBody{ctx: ctx, Reader: io.LimitReader(f, n), Closer: f},
		ContentLength: fi.Size(),
		SupportsRange: true,
	}, nil
}

// Bytes serves one in-memory buffer regardless of src.
type Bytes struct {
	Data []byte
	// DisableRange makes the source behave like a plain stream: reads that
	// do not start at offset 0 fail with ErrRangeUnsupported.
	DisableRange bool
}

var _ Reader = (*Bytes)(nil)

// Read returns a body over the requested part of Data.
func (b *Bytes) Read(ctx context.Context, _ string, r *Range) (*Response, error) {
	length := int64(len(b.Data))
	start, n, err := r.Bounds(length)
	if err != nil {
		return nil, err
	}
	if b.DisableRange && start != 0 {
		return nil, ErrRangeUnsupported
	}
	sr := io.NewSectionReader(byteReaderAt(b.Data), start, n)
	return &Response{
		Body:          ctxBody{ctx: ctx, Reader: sr, Closer: io.NopCloser(nil)},
		ContentLength: length,
		SupportsRange: !b.DisableRange,
	}, nil
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
