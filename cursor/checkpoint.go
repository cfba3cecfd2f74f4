package cursor

import "fmt"

// Checkpoint is a saved read position.
type Checkpoint struct {
	c       *Cursor
	pos     int64
	bitMode bool
	bit     int
}

// Checkpoint captures the current read position.
func (c *Cursor) Checkpoint() Checkpoint {
	return Checkpoint{c: c, pos: c.pos, bitMode: c.bitMode, bit: c.bit}
}

// Offset returns the absolute offset the checkpoint restores.
func (cp Checkpoint) Offset() int64 { return cp.pos }

// Rollback restores the cursor to the checkpoint. It fails with ErrDiscarded
// when the bytes behind the checkpoint have been freed since.
func (cp Checkpoint) Rollback() error {
	if cp.pos < cp.c.base {
		return fmt.Errorf("rollback to %d (window starts at %d): %w", cp.pos, cp.c.base, ErrDiscarded)
	}
	cp.c.pos = cp.pos
	cp.c.bitMode = cp.bitMode
	cp.c.bit = cp.bit
	return nil
}
