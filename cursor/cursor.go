// Package cursor implements a growable byte window over a forward-moving
// stream. Bytes are appended as they arrive from the transport, read with
// typed accessors, and discarded once the parser no longer needs them.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DefaultSlack is the number of consumed bytes retained before a non-forced
// Discard frees them.
const DefaultSlack = 3_000_000

var (
	// ErrNeedMoreData is matched by every *NeedMoreDataError.
	ErrNeedMoreData = errors.New("cursor: need more data")
	// ErrDiscarded is returned when reading or rolling back behind the
	// discarded offset. Those bytes need a fresh read from the source.
	ErrDiscarded = errors.New("cursor: data already discarded")
	// ErrOutsideWindow is returned by SkipTo for offsets past the retained bytes.
	ErrOutsideWindow = errors.New("cursor: offset outside retained window")
	// ErrBitMode is returned for byte reads in bit mode and bit reads outside it.
	ErrBitMode = errors.New("cursor: wrong read mode")
)

// NeedMoreDataError reports that a read at Offset is short by Need bytes.
type NeedMoreDataError struct {
	Offset int64
	Need   int
}

func (e *NeedMoreDataError) Error() string {
	return fmt.Sprintf("cursor: need %d more bytes at offset %d", e.Need, e.Offset)
}

// Is makes errors.Is(err, ErrNeedMoreData) hold.
func (e *NeedMoreDataError) Is(target error) bool {
	return target == ErrNeedMoreData
}

// NeedMore extracts the missing byte count from err.
func NeedMore(err error) (int, bool) {
	var e *NeedMoreDataError
	if errors.As(err, &e) {
		return e.Need, true
	}
	return 0, false
}

// Cursor is a window of stream bytes starting at DiscardedOffset.
// The zero value is not usable; create one with New.
//
// Slices returned by Bytes and Peek alias the window and stay valid after
// later appends and discards, but must not be modified.
type Cursor struct {
	buf   []byte
	base  int64 // absolute offset of buf[0]
	pos   int64 // absolute read offset
	order binary.ByteOrder

	bitMode bool
	bit     int // bits consumed from the byte at pos-1, 8 when none pending

	sink func([]byte)

	// Slack is the minimum number of freeable bytes for a non-forced Discard.
	Slack int64
}

// New returns an empty big-endian cursor positioned at offset.
func New(offset int64) *Cursor {
	return &Cursor{
		base:  offset,
		pos:   offset,
		order: binary.BigEndian,
		bit:   8,
		Slack: DefaultSlack,
	}
}

// SetByteOrder selects the byte order for multi-byte reads.
func (c *Cursor) SetByteOrder(o binary.ByteOrder) { c.order = o }

// SetSink registers fn to receive every block of bytes freed by Discard.
func (c *Cursor) SetSink(fn func([]byte)) { c.sink = fn }

// Append grows the window with p. The bytes are copied.
func (c *Cursor) Append(p []byte) {
	c.buf = append(c.buf, p...)
}

// Offset returns the absolute read position.
func (c *Cursor) Offset() int64 { return c.pos }

// DiscardedOffset returns the absolute offset of the first retained byte.
func (c *Cursor) DiscardedOffset() int64 { return c.base }

// End returns the absolute offset just past the last retained byte.
func (c *Cursor) End() int64 { return c.base + int64(len(c.buf)) }

// Available returns the number of unread bytes in the window.
func (c *Cursor) Available() int {
	return int(c.End() - c.pos)
}

// Has reports whether n unread bytes are buffered.
func (c *Cursor) Has(n int) bool { return c.Available() >= n }

// Need returns nil when n bytes can be read at the current offset and a
// *NeedMoreDataError naming the shortfall otherwise.
func (c *Cursor) Need(n int) error {
	if c.pos < c.base {
		return ErrDiscarded
	}
	if avail := c.Available(); avail < n {
		return &NeedMoreDataError{Offset: c.pos, Need: n - avail}
	}
	return nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if c.bitMode {
		return nil, ErrBitMode
	}
	if err := c.Need(n); err != nil {
		return nil, err
	}
	i := int(c.pos - c.base)
	c.pos += int64(n)
	return c.buf[i : i+n : i+n], nil
}

// Peek returns the next n bytes without consuming them.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.Need(n); err != nil {
		return nil, err
	}
	i := int(c.pos - c.base)
	return c.buf[i : i+n : i+n], nil
}

// Bytes consumes and returns the next n bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) { return c.take(n) }

// Skip consumes n buffered bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.take(n)
	return err
}

// SkipTo moves the read position anywhere inside the retained window.
func (c *Cursor) SkipTo(offset int64) error {
	if c.bitMode {
		return ErrBitMode
	}
	if offset < c.base {
		return fmt.Errorf("skip to %d (window starts at %d): %w", offset, c.base, ErrDiscarded)
	}
	if offset > c.End() {
		return fmt.Errorf("skip to %d (window ends at %d): %w", offset, c.End(), ErrOutsideWindow)
	}
	c.pos = offset
	return nil
}

// Reset drops every retained byte and restarts the window at offset.
func (c *Cursor) Reset(offset int64) {
	c.buf = nil
	c.base = offset
	c.pos = offset
	c.bitMode = false
	c.bit = 8
}

// Discard frees consumed bytes. Unless force is set, nothing happens until at
// least Slack bytes are freeable. It returns the number of bytes freed.
func (c *Cursor) Discard(force bool) int {
	keep := c.pos
	if c.bitMode && c.bit < 8 {
		keep-- // partially read byte
	}
	n := keep - c.base
	if n <= 0 {
		return 0
	}
	if !force && n < c.Slack {
		return 0
	}
	if c.sink != nil {
		c.sink(c.buf[:n:n])
	}
	rest := make([]byte, int64(len(c.buf))-n)
	copy(rest, c.buf[n:])
	c.buf = rest
	c.base = keep
	return int(n)
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 16-bit unsigned integer.
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

// Uint24 reads a 24-bit unsigned integer.
func (c *Cursor) Uint24() (uint32, error) {
	b, err := c.take(3)
	if err != nil {
		return 0, err
	}
	if c.order == binary.LittleEndian {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// Uint32 reads a 32-bit unsigned integer.
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

// Uint64 reads a 64-bit unsigned integer.
func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}

// Int8 reads a signed byte.
func (c *Cursor) Int8() (int8, error) {
	v, err := c.Uint8()
	return int8(v), err
}

// Int16 reads a 16-bit signed integer.
func (c *Cursor) Int16() (int16, error) {
	v, err := c.Uint16()
	return int16(v), err
}

// Int32 reads a 32-bit signed integer.
func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}

// Int64 reads a 64-bit signed integer.
func (c *Cursor) Int64() (int64, error) {
	v, err := c.Uint64()
	return int64(v), err
}

// Float32 reads an IEEE 754 single.
func (c *Cursor) Float32() (float32, error) {
	v, err := c.Uint32()
	return math.Float32frombits(v), err
}

// Float64 reads an IEEE 754 double.
func (c *Cursor) Float64() (float64, error) {
	v, err := c.Uint64()
	return math.Float64frombits(v), err
}

// CString reads a NUL-terminated string and consumes the terminator.
func (c *Cursor) CString() (string, error) {
	return c.until(0)
}

// Line reads up to and including the next '\n'. The returned line has the
// newline and any trailing '\r' removed.
func (c *Cursor) Line() (string, error) {
	s, err := c.until('\n')
	if err != nil {
		return "", err
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s, nil
}

func (c *Cursor) until(delim byte) (string, error) {
	if c.bitMode {
		return "", ErrBitMode
	}
	if c.pos < c.base {
		return "", ErrDiscarded
	}
	rest := c.buf[c.pos-c.base:]
	for i, b := range rest {
		if b == delim {
			c.pos += int64(i + 1)
			return string(rest[:i]), nil
		}
	}
	return "", &NeedMoreDataError{Offset: c.pos, Need: 1}
}
