package bmff

import "fmt"

// Box is a decoded box. Containers have Children; leaf boxes have a
// Payload. Sample entries have both.
type Box struct {
	Type       BoxType
	Offset     int64
	Size       int64
	HeaderSize int
	Version    uint8
	Flags      uint32
	Children   []*Box
	Payload    Payload
}

// End returns the offset just past the box.
func (b *Box) End() int64 { return b.Offset + b.Size }

// Child returns the first child of type t, or nil.
func (b *Box) Child(t BoxType) *Box {
	for _, c := range b.Children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildList returns every child of type t.
func (b *Box) ChildList(t BoxType) []*Box {
	var out []*Box
	for _, c := range b.Children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Find follows path through first matching children and returns the box
// at its end, or nil.
func (b *Box) Find(path ...BoxType) *Box {
	cur := b
	for _, t := range path {
		if cur = cur.Child(t); cur == nil {
			return nil
		}
	}
	return cur
}

// Walk calls fn for b and every descendant in depth-first order. fn
// returns false to skip a box's children.
func (b *Box) Walk(fn func(box *Box, depth int) bool) {
	b.walk(fn, 0)
}

func (b *Box) walk(fn func(*Box, int) bool, depth int) {
	if !fn(b, depth) {
		return
	}
	for _, c := range b.Children {
		c.walk(fn, depth+1)
	}
}

func (b *Box) String() string {
	return fmt.Sprintf("%s@%d+%d", b.Type, b.Offset, b.Size)
}

// payloadOf returns the payload of the first child of type t as P.
func payloadOf[P Payload](b *Box, t BoxType) (P, bool) {
	var zero P
	if b == nil {
		return zero, false
	}
	c := b.Child(t)
	if c == nil {
		return zero, false
	}
	p, ok := c.Payload.(P)
	return p, ok
}

// DecodeBox decodes the single box in raw, which starts at absolute offset
// in the source. Children of known containers are decoded recursively and
// must fill their parent exactly.
func DecodeBox(raw []byte, offset int64) (*Box, error) {
	r := NewReader(raw, offset)
	if !r.Next() {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return nil, corrupt(BoxType{}, offset, ErrTruncated)
	}
	b, err := decodeCurrent(&r, BoxType{})
	if err != nil {
		return nil, err
	}
	if r.Next() {
		return nil, corrupt(r.Type(), r.Offset(), fmt.Errorf("%w: trailing box", ErrRemainder))
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeCurrent(r *Reader, parent BoxType) (*Box, error) {
	b := &Box{
		Type:       r.Type(),
		Offset:     r.Offset(),
		Size:       int64(r.Size()),
		HeaderSize: r.HeaderSize(),
		Version:    r.Version(),
		Flags:      r.Flags(),
	}
	switch {
	case b.Type == TypeStsd:
		data := r.Data()
		if len(data) < 4 {
			return nil, corrupt(b.Type, b.Offset, ErrTruncated)
		}
		b.Payload = &Stsd{EntryCount: be.Uint32(data)}
		return b, decodeChildren(r, b, 4, false)

	case parent == TypeStsd:
		e, err := readSampleEntry(b.Type, r.Data())
		if err != nil {
			return nil, corrupt(b.Type, b.Offset, err)
		}
		b.Payload = e
		if e.childOffset < 0 {
			return b, nil
		}
		if err := decodeChildren(r, b, e.childOffset, true); err != nil {
			return nil, err
		}
		e.resolve(b)
		return b, nil

	case IsContainerBox(b.Type):
		lenient := b.Type == TypeUdta || b.Type == TypeMeta || b.Type == TypeWave
		return b, decodeChildren(r, b, 0, lenient)
	}

	p, err := decodePayload(b.Type, b.Version, b.Flags, r.Data())
	if err != nil {
		return nil, corrupt(b.Type, b.Offset, err)
	}
	b.Payload = p
	return b, nil
}

// decodeChildren decodes the children of the current box, which start skip
// bytes into its data. A lenient container ignores fewer than 8 trailing
// bytes, as written by some QuickTime muxers.
func decodeChildren(r *Reader, b *Box, skip int, lenient bool) error {
	r.Enter()
	if skip > 0 {
		r.Skip(skip)
	}
	for {
		if lenient && r.Err() == nil && r.Remaining() < 8 {
			break
		}
		if !r.Next() {
			break
		}
		c, err := decodeCurrent(r, b.Type)
		if err != nil {
			return err
		}
		b.Children = append(b.Children, c)
	}
	r.Exit()
	return r.Err()
}
