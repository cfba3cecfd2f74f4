package bmff

import (
	"fmt"

	"github.com/tetsuo/mediaparse/cursor"
)

// Header is a decoded box header.
type Header struct {
	Type       BoxType
	Offset     int64 // absolute offset of the first header byte
	Size       int64 // total size including the header
	HeaderSize int
}

// End returns the offset just past the box.
func (h Header) End() int64 { return h.Offset + h.Size }

// DataOffset returns the offset of the first byte after the header.
func (h Header) DataOffset() int64 { return h.Offset + int64(h.HeaderSize) }

// DataSize returns the size of the box data (excluding the header).
func (h Header) DataSize() int64 { return h.Size - int64(h.HeaderSize) }

func (h Header) String() string {
	return fmt.Sprintf("%s@%d+%d", h.Type, h.Offset, h.Size)
}

// ReadHeader decodes the box header at the cursor and consumes it. budget is
// the number of bytes left in the enclosing box or source, or -1 when
// unknown. A size of 0 extends the box to the end of the budget.
//
// When the header is not fully buffered ReadHeader returns a
// *cursor.NeedMoreDataError and leaves the cursor unchanged.
func ReadHeader(c *cursor.Cursor, budget int64) (Header, error) {
	off := c.Offset()
	hdr, err := c.Peek(8)
	if err != nil {
		return Header{}, err
	}
	h := Header{Offset: off, Size: int64(be.Uint32(hdr[:4])), HeaderSize: 8}
	copy(h.Type[:], hdr[4:8])

	switch h.Size {
	case 1:
		ext, err := c.Peek(16)
		if err != nil {
			return Header{}, err
		}
		u := be.Uint64(ext[8:16])
		if u > 1<<62 {
			return Header{}, corrupt(h.Type, off, ErrBoxSize)
		}
		h.Size = int64(u)
		h.HeaderSize = 16
	case 0:
		if budget < 0 {
			return Header{}, corrupt(h.Type, off, fmt.Errorf("%w: size 0 with unknown extent", ErrBoxSize))
		}
		h.Size = budget
	}
	if h.Size < int64(h.HeaderSize) {
		return Header{}, corrupt(h.Type, off, fmt.Errorf("%w: %d", ErrBoxSize, h.Size))
	}
	if budget >= 0 && h.Size > budget {
		return Header{}, corrupt(h.Type, off, fmt.Errorf("%w: size %d, %d bytes left", ErrOverrun, h.Size, budget))
	}
	if err := c.Skip(h.HeaderSize); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ParseBox decodes the complete box at the cursor, recursing into known
// containers, and leaves the cursor at the box end. When the box is not fully
// buffered it returns a *cursor.NeedMoreDataError naming the missing byte
// count and rolls the cursor back to the box start.
func ParseBox(c *cursor.Cursor, budget int64) (*Box, []byte, error) {
	cp := c.Checkpoint()
	h, err := ReadHeader(c, budget)
	if err != nil {
		return nil, nil, err
	}
	if avail := int64(c.Available()); avail < h.DataSize() {
		if err := cp.Rollback(); err != nil {
			return nil, nil, err
		}
		return nil, nil, &cursor.NeedMoreDataError{Offset: h.Offset, Need: int(h.DataSize() - avail)}
	}
	if err := cp.Rollback(); err != nil {
		return nil, nil, err
	}
	raw, err := c.Bytes(int(h.Size))
	if err != nil {
		return nil, nil, err
	}
	b, err := DecodeBox(raw, h.Offset)
	if err != nil {
		return nil, nil, err
	}
	return b, raw, nil
}
