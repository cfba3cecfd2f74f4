package source

import (
	"context"
	"errors"
	"io"
)

// readThrough is the largest forward gap crossed by reading instead of
// opening a new range.
const readThrough = 64 << 10

// ReadSeeker exposes one source as an io.ReadSeekCloser, opening a new range
// only when a seek cannot be served from the current body.
type ReadSeeker struct {
	ctx  context.Context
	r    Reader
	src  string
	size int64

	pos      int64
	body     io.ReadCloser
	bodyPos  int64
	noRanges bool
}

var _ io.ReadSeekCloser = (*ReadSeeker)(nil)

// NewReadSeeker returns a ReadSeeker over src. The first read determines
// the source size.
func NewReadSeeker(ctx context.Context, r Reader, src string) *ReadSeeker {
	return &ReadSeeker{ctx: ctx, r: r, src: src, size: -1}
}

// Size returns the source length, opening the source if needed.
func (s *ReadSeeker) Size() (int64, error) {
	if s.size < 0 {
		if err := s.open(0); err != nil {
			return 0, err
		}
	}
	return s.size, nil
}

func (s *ReadSeeker) open(at int64) error {
	s.closeBody()
	rng := From(at)
	if s.noRanges || at == 0 {
		rng = nil
	}
	resp, err := s.r.Read(s.ctx, s.src, rng)
	if err != nil {
		return err
	}
	s.body, s.bodyPos, s.size = resp.Body, 0, resp.ContentLength
	if rng != nil {
		s.bodyPos = at
	}
	s.noRanges = !resp.SupportsRange
	return nil
}

func (s *ReadSeeker) closeBody() {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
}

func (s *ReadSeeker) sync() error {
	if s.body != nil && s.pos == s.bodyPos {
		return nil
	}
	if s.body != nil && s.pos > s.bodyPos && (s.noRanges || s.pos-s.bodyPos <= readThrough) {
		return s.skip(s.pos - s.bodyPos)
	}
	if !s.noRanges {
		err := s.open(s.pos)
		if !errors.Is(err, ErrRangeUnsupported) {
			return err
		}
		s.noRanges = true
	}
	if err := s.open(0); err != nil {
		return err
	}
	return s.skip(s.pos)
}

func (s *ReadSeeker) skip(n int64) error {
	m, err := io.CopyN(io.Discard, s.body, n)
	s.bodyPos += m
	if err != nil {
		return err
	}
	return nil
}

func (s *ReadSeeker) Read(p []byte) (int, error) {
	if s.size >= 0 && s.pos >= s.size {
		return 0, io.EOF
	}
	if err := s.sync(); err != nil {
		return 0, err
	}
	n, err := s.body.Read(p)
	s.pos += int64(n)
	s.bodyPos += int64(n)
	return n, err
}

func (s *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += s.pos
	case io.SeekEnd:
		size, err := s.Size()
		if err != nil {
			return 0, err
		}
		offset += size
	default:
		return 0, errors.New("source: invalid whence")
	}
	if offset < 0 {
		return 0, errors.New("source: negative position")
	}
	s.pos = offset
	return offset, nil
}

func (s *ReadSeeker) Close() error {
	s.closeBody()
	return nil
}
