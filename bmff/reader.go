package bmff

import "fmt"

// maxDepth limits the reader nesting stack.
const maxDepth = 16

// readerFrame stores parent state when entering a container box.
type readerFrame struct {
	end    int // parent's iteration end boundary
	boxEnd int // position to resume after exiting this container
}

// Reader walks the boxes of a fully buffered byte range. Unlike a scan over
// a stream it validates every declared size against the enclosing box and
// reports leftover bytes at the end of a container through Err.
type Reader struct {
	buf  []byte
	base int64 // absolute offset of buf[0]
	pos  int   // next position to parse from
	end  int   // iteration end boundary
	err  error

	// Current box state
	boxType   BoxType
	boxSize   uint64
	boxStart  int
	boxEnd    int
	dataStart int

	// Full box fields
	version uint8
	flags   uint32

	// Nesting stack
	stack [maxDepth]readerFrame
	depth int
}

// NewReader creates a Reader for the given buffer, which starts at absolute
// offset base in the source.
func NewReader(buf []byte, base int64) Reader {
	return Reader{
		buf:  buf,
		base: base,
		end:  len(buf),
	}
}

func (r *Reader) fail(err error) bool {
	if r.err == nil {
		r.err = corrupt(r.boxType, r.base+int64(r.pos), err)
	}
	return false
}

// Next advances to the next sibling box. It returns false at the end of the
// current container or on error; check Err afterwards.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	// Skip past current box
	if r.boxEnd > r.pos {
		r.pos = r.boxEnd
	}

	left := r.end - r.pos
	if left == 0 {
		return false
	}
	if left < 8 {
		r.boxType = BoxType{}
		return r.fail(fmt.Errorf("%w: %d bytes", ErrRemainder, left))
	}

	r.boxStart = r.pos
	size := uint64(be.Uint32(r.buf[r.pos:]))
	copy(r.boxType[:], r.buf[r.pos+4:r.pos+8])
	ptr := r.pos + 8

	// Extended size
	if size == 1 {
		if left < 16 {
			return r.fail(ErrTruncated)
		}
		size = be.Uint64(r.buf[ptr:])
		ptr += 8
	}

	// Size 0 means box extends to end of data
	if size == 0 {
		size = uint64(left)
	}
	if size < uint64(ptr-r.pos) {
		return r.fail(fmt.Errorf("%w: %d", ErrBoxSize, size))
	}
	if size > uint64(left) {
		return r.fail(fmt.Errorf("%w: size %d, %d bytes left", ErrOverrun, size, left))
	}

	r.boxSize = size
	r.boxEnd = r.boxStart + int(size)

	// Parse full box header if applicable
	if r.isFull(ptr) {
		if r.boxEnd-ptr < 4 {
			return r.fail(ErrTruncated)
		}
		vf := be.Uint32(r.buf[ptr:])
		r.version = uint8(vf >> 24)
		r.flags = vf & 0x00ffffff
		ptr += 4
	} else {
		r.version = 0
		r.flags = 0
	}

	r.dataStart = ptr
	return true
}

// isFull reports whether the current box carries version and flags. A
// QuickTime meta box omits them and starts directly with its hdlr child.
func (r *Reader) isFull(ptr int) bool {
	if r.boxType == TypeMeta {
		return !(r.boxEnd-ptr >= 8 && BoxType(r.buf[ptr+4:ptr+8]) == TypeHdlr)
	}
	return IsFullBox(r.boxType)
}

// Err returns the first structural error met while walking.
func (r *Reader) Err() error { return r.err }

// Type returns the current box's type.
func (r *Reader) Type() BoxType { return r.boxType }

// Size returns the current box's total size including header.
func (r *Reader) Size() uint64 { return r.boxSize }

// Version returns the version field for full boxes.
func (r *Reader) Version() uint8 { return r.version }

// Flags returns the flags field for full boxes.
func (r *Reader) Flags() uint32 { return r.flags }

// Offset returns the absolute offset of the current box's start.
func (r *Reader) Offset() int64 { return r.base + int64(r.boxStart) }

// HeaderSize returns the size of the current box's header in bytes,
// including version and flags for full boxes.
func (r *Reader) HeaderSize() int { return r.dataStart - r.boxStart }

// Data returns the current box's data (after all headers).
// Note that, the returned slice points into the original buffer.
func (r *Reader) Data() []byte {
	return r.buf[r.dataStart:r.boxEnd]
}

// RawBox returns the entire current box including headers.
// Note that, the returned slice points into the original buffer.
func (r *Reader) RawBox() []byte {
	return r.buf[r.boxStart:r.boxEnd]
}

// Depth returns the current nesting depth (0 at top level).
func (r *Reader) Depth() int { return r.depth }

// Enter descends into the current container box to iterate its children.
// After Enter, call Next to advance to the first child box.
// Call Exit when done to return to the parent level.
//
// For boxes like stsd that have an entry count before child boxes,
// call Skip(4) after Enter to skip past the count field.
func (r *Reader) Enter() {
	if r.depth == maxDepth {
		r.fail(ErrTooDeep)
		return
	}
	r.stack[r.depth] = readerFrame{
		end:    r.end,
		boxEnd: r.boxEnd,
	}
	r.depth++
	r.end = r.boxEnd
	r.pos = r.dataStart
	r.boxEnd = r.dataStart // prevent Next from skipping
}

// Exit returns to the parent container level.
// After Exit, the next call to Next will advance to the next sibling.
func (r *Reader) Exit() {
	if r.depth == 0 {
		return
	}
	r.depth--
	f := r.stack[r.depth]
	r.end = f.end
	r.pos = f.boxEnd
	r.boxEnd = f.boxEnd
}

// Skip advances the data position by n bytes within the current container.
// Use after Enter to skip fixed-size headers before child boxes.
func (r *Reader) Skip(n int) {
	if r.pos+n > r.end {
		r.fail(fmt.Errorf("%w: skip %d", ErrOverrun, n))
		return
	}
	r.pos += n
	r.boxEnd = r.pos
}

// Remaining returns the number of bytes left in the current container after
// the current box.
func (r *Reader) Remaining() int { return r.end - max(r.pos, r.boxEnd) }
