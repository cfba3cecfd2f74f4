package media

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tetsuo/mediaparse/cursor"
	"github.com/tetsuo/mediaparse/section"
	"github.com/tetsuo/mediaparse/source"
)

// SampleFunc receives one sample and its payload. The payload aliases the
// parser's buffer and is only valid during the call.
type SampleFunc func(s Sample, data []byte) error

// Host is the parse session as seen by a demuxer. The demuxer reads from the
// host cursor and reports results through it; it never reads from the
// transport directly except through Reader for out-of-band fetches.
type Host interface {
	Cursor() *cursor.Cursor
	Sections() *section.Tracker
	Source() string
	Reader() source.Reader
	ContentLength() int64
	SupportsRange() bool
	Logger() *slog.Logger

	// Set resolves field f to v. Later calls for the same field are ignored.
	// v has the type documented on the field constant.
	Set(f Field, v any)
	// Wants reports whether f was requested and is not resolved yet.
	Wants(f Field) bool
	// NeedsSamples reports whether any sample payload must be visited.
	NeedsSamples() bool
	// NeedsAllSamples reports whether an outstanding field needs every
	// sample of every track. Forward seeks are refused while it holds.
	NeedsAllSamples() bool
	// RegisterTrack announces t and returns its sample callback, nil when
	// nobody consumes its samples.
	RegisterTrack(t *Track) (SampleFunc, error)
	// JumpSpread is the progress spread, in seconds, tolerated between
	// tracks before the demuxer plans a jump.
	JumpSpread() float64
}

// Demuxer parses one container format, one step at a time.
type Demuxer interface {
	// Step parses from the host cursor and reports what the loop should do.
	Step(ctx context.Context) (Action, error)
	// Seek resolves the target time t in seconds using structure parsed so
	// far. A DoSeek result also repositions the demuxer's sample state.
	Seek(ctx context.Context, t float64) (SeekResolution, error)
	// Stalled reports that the demuxer is waiting on something other than
	// the cursor, so steps without progress are expected.
	Stalled() bool
	// Snapshot captures the structure parsed so far for replay into a
	// later session.
	Snapshot() (json.RawMessage, error)
}

// Format describes a container format a demuxer handles.
type Format struct {
	// Name is reported as the container field.
	Name string
	// Match reports whether head, the first bytes of the source, starts a
	// file of this format. head may be shorter than MagicLen for tiny files.
	Match func(head []byte) bool
	// New creates a demuxer bound to h. state is a Snapshot from an earlier
	// session on the same source, or nil.
	New func(h Host, state json.RawMessage) (Demuxer, error)
}

// MagicLen is the number of leading bytes used for format detection.
const MagicLen = 16
