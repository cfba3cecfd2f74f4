package bmff

import (
	"fmt"
	"io"
)

// Scanner reads top-level box headers from an io.ReadSeeker without
// loading box contents into memory. It is used for out-of-band lookups,
// such as finding a moov stored after the media data, where only the
// wanted box is read.
//
// Typical usage:
//
//	sc := bmff.NewScanner(rs, mdatEnd)
//	for sc.Next() {
//	    h := sc.Header()
//	    if h.Type == bmff.TypeMoov {
//	        raw := make([]byte, h.Size)
//	        sc.ReadBox(raw)
//	    }
//	}
//	if err := sc.Err(); err != nil { ... }
type Scanner struct {
	rs     io.ReadSeeker
	hdr    [16]byte // reusable header buffer
	header Header
	err    error
	pos    int64 // current position in stream
	seeked bool
}

// NewScanner creates a Scanner that reads box headers from rs, starting
// at offset.
func NewScanner(rs io.ReadSeeker, offset int64) Scanner {
	return Scanner{rs: rs, pos: offset}
}

// Next advances to the next top-level box. Returns false when there
// are no more boxes or an error occurs. Check Err() after the loop.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.seeked {
		if _, err := s.rs.Seek(s.pos, io.SeekStart); err != nil {
			s.err = err
			return false
		}
		s.seeked = true
	}

	// Read the minimum 8-byte header
	_, err := io.ReadFull(s.rs, s.hdr[:8])
	if err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			s.err = err
		}
		return false
	}

	boxStart := s.pos
	size := int64(be.Uint32(s.hdr[:4]))
	var t BoxType
	copy(t[:], s.hdr[4:8])

	headerSize := 8

	if size == 1 {
		// Extended 64-bit size
		_, err = io.ReadFull(s.rs, s.hdr[8:16])
		if err != nil {
			s.err = err
			return false
		}
		size = int64(be.Uint64(s.hdr[8:16]))
		headerSize = 16
	}

	if size == 0 {
		// Box extends to end of file; determine remaining size
		cur, err := s.rs.Seek(0, io.SeekCurrent)
		if err != nil {
			s.err = err
			return false
		}
		end, err := s.rs.Seek(0, io.SeekEnd)
		if err != nil {
			s.err = err
			return false
		}
		size = end - boxStart
		// Seek back to where we were
		if _, err := s.rs.Seek(cur, io.SeekStart); err != nil {
			s.err = err
			return false
		}
	}

	if size < int64(headerSize) {
		s.err = corrupt(t, boxStart, fmt.Errorf("%w: %d", ErrBoxSize, size))
		return false
	}

	s.header = Header{
		Type:       t,
		Size:       size,
		Offset:     boxStart,
		HeaderSize: headerSize,
	}

	// Skip past this box's data to position for the next call
	dataSize := size - int64(headerSize)
	if dataSize > 0 {
		if _, err := s.rs.Seek(dataSize, io.SeekCurrent); err != nil {
			s.err = err
			return false
		}
	}
	s.pos = boxStart + size

	return true
}

// Header returns the current box header. Only valid after Next returns true.
func (s *Scanner) Header() Header {
	return s.header
}

// Err returns the first non-EOF error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.err
}

// ReadBox reads the current box's full data (including header) into buf.
// buf must be exactly Size bytes.
func (s *Scanner) ReadBox(buf []byte) error {
	saved := s.pos

	if _, err := s.rs.Seek(s.header.Offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(s.rs, buf); err != nil {
		return err
	}

	if _, err := s.rs.Seek(saved, io.SeekStart); err != nil {
		return err
	}
	return nil
}

// FindBox scans top-level boxes from offset and returns the first box of
// type t with its raw bytes. found is false when the stream ends first.
func FindBox(rs io.ReadSeeker, offset int64, t BoxType) (h Header, raw []byte, found bool, err error) {
	sc := NewScanner(rs, offset)
	for sc.Next() {
		h = sc.Header()
		if h.Type != t {
			continue
		}
		raw = make([]byte, h.Size)
		if err := sc.ReadBox(raw); err != nil {
			return h, nil, false, err
		}
		return h, raw, true, nil
	}
	return Header{}, nil, false, sc.Err()
}
