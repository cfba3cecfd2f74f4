package cursor

import "fmt"

// EnterBitMode switches the cursor to MSB-first bit reads. Whole bytes are
// consumed from the window as bits are read.
func (c *Cursor) EnterBitMode() error {
	if c.bitMode {
		return ErrBitMode
	}
	c.bitMode = true
	c.bit = 8
	return nil
}

// ExitBitMode returns to byte reads. Unread bits of a partially read byte
// are dropped.
func (c *Cursor) ExitBitMode() {
	c.bitMode = false
	c.bit = 8
}

// ReadBits reads n bits, 0 <= n <= 64. A short read consumes nothing.
func (c *Cursor) ReadBits(n int) (uint64, error) {
	if !c.bitMode {
		return 0, ErrBitMode
	}
	if n < 0 || n > 64 {
		return 0, fmt.Errorf("cursor: cannot read %d bits", n)
	}
	if pending := 8 - c.bit; n > pending {
		if err := c.Need((n - pending + 7) / 8); err != nil {
			return 0, err
		}
	}
	var v uint64
	for n > 0 {
		if c.bit == 8 {
			c.pos++
			c.bit = 0
		}
		b := c.buf[c.pos-1-c.base]
		take := min(8-c.bit, n)
		shift := 8 - c.bit - take
		v = v<<take | uint64(b>>shift)&(1<<take-1)
		c.bit += take
		n -= take
	}
	return v, nil
}

// ReadBit reads a single bit as a bool.
func (c *Cursor) ReadBit() (bool, error) {
	v, err := c.ReadBits(1)
	return v == 1, err
}
