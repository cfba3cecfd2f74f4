package bmff

import (
	"errors"
	"fmt"

	"github.com/tetsuo/mediaparse/media"
)

var (
	// ErrBoxSize is returned for a declared size smaller than its header.
	ErrBoxSize = errors.New("bmff: invalid box size")
	// ErrOverrun is returned when a box extends past its parent or the source.
	ErrOverrun = errors.New("bmff: box overruns its parent")
	// ErrRemainder is returned when a container's children leave bytes over.
	ErrRemainder = errors.New("bmff: trailing bytes in container")
	// ErrTruncated is returned for a payload shorter than its fields require.
	ErrTruncated = errors.New("bmff: truncated box payload")
	// ErrTooDeep is returned for boxes nested deeper than the walker supports.
	ErrTooDeep = errors.New("bmff: boxes nested too deep")
	// ErrMissingTable is returned when a track lacks a mandatory sample table.
	ErrMissingTable = errors.New("bmff: missing sample table")
	// ErrNoMoov is returned when the source has no moov box.
	ErrNoMoov = errors.New("bmff: moov box not found")
	// ErrForwardSeek is returned for a forward seek while every sample is still required.
	ErrForwardSeek = errors.New("bmff: forward seek while every sample is required")
)

// ParseError reports a structural error at a box. It matches
// media.ErrCorrupt.
type ParseError struct {
	Box    BoxType
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bmff: %s at offset %d: %v", e.Box, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, media.ErrCorrupt) hold.
func (e *ParseError) Is(target error) bool { return target == media.ErrCorrupt }

func corrupt(t BoxType, offset int64, err error) error {
	return &ParseError{Box: t, Offset: offset, Err: err}
}
