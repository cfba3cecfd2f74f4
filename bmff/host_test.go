package bmff

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/cursor"
	"github.com/tetsuo/mediaparse/media"
	"github.com/tetsuo/mediaparse/section"
	"github.com/tetsuo/mediaparse/source"
)

// testHost is an in-memory parse session. It feeds data to the cursor in
// chunks and records everything the demuxer reports.
type testHost struct {
	data   []byte
	c      *cursor.Cursor
	secs   section.Tracker
	reader source.Reader
	ranged bool

	wanted  media.Field
	fields  map[media.Field]any
	samples bool // deliver sample payloads
	all     bool // every sample is required
	spread  float64

	tracks  []*media.Track
	visited []media.Sample
	payload map[int64][]byte
}

func newTestHost(data []byte) *testHost {
	return &testHost{
		data:    data,
		c:       cursor.New(0),
		reader:  &source.Bytes{Data: data},
		ranged:  true,
		wanted:  media.MetadataFields,
		fields:  make(map[media.Field]any),
		spread:  8,
		payload: make(map[int64][]byte),
	}
}

func (h *testHost) Cursor() *cursor.Cursor     { return h.c }
func (h *testHost) Sections() *section.Tracker { return &h.secs }
func (h *testHost) Source() string             { return "memory" }
func (h *testHost) Reader() source.Reader      { return h.reader }
func (h *testHost) ContentLength() int64       { return int64(len(h.data)) }
func (h *testHost) SupportsRange() bool        { return h.ranged }
func (h *testHost) Logger() *slog.Logger       { return slog.New(slog.DiscardHandler) }
func (h *testHost) JumpSpread() float64        { return h.spread }
func (h *testHost) NeedsSamples() bool         { return h.samples }
func (h *testHost) NeedsAllSamples() bool      { return h.all }

func (h *testHost) Set(f media.Field, v any) {
	if _, ok := h.fields[f]; !ok {
		h.fields[f] = v
	}
}

func (h *testHost) Wants(f media.Field) bool {
	_, done := h.fields[f]
	return h.wanted.Has(f) && !done
}

func (h *testHost) RegisterTrack(t *media.Track) (media.SampleFunc, error) {
	h.tracks = append(h.tracks, t)
	if !h.samples {
		return nil, nil
	}
	return func(s media.Sample, data []byte) error {
		h.visited = append(h.visited, s)
		h.payload[s.Offset] = append([]byte(nil), data...)
		return nil
	}, nil
}

// feed appends at least n more bytes, or reports false at the end of data.
func (h *testHost) feed(n int) bool {
	end := h.c.End()
	if end >= int64(len(h.data)) {
		return false
	}
	h.c.Append(h.data[end:min(end+int64(n), int64(len(h.data)))])
	return true
}

func (h *testHost) skipTo(off int64) {
	if off >= h.c.DiscardedOffset() && off <= h.c.End() {
		if err := h.c.SkipTo(off); err == nil {
			return
		}
	}
	h.c.Reset(off)
}

// step runs one demuxer step and applies its action. It reports false once
// the demuxer is done.
func (h *testHost) step(t *testing.T, d *Demuxer, chunk int) bool {
	t.Helper()
	a, err := d.Step(context.Background())
	require.NoError(t, err)
	switch a.Op {
	case media.OpDone:
		return false
	case media.OpNeedMoreData:
		require.True(t, h.feed(max(a.Need, chunk)), "need %d bytes past the end", a.Need)
	case media.OpSkip:
		h.skipTo(a.To)
	}
	return true
}

// drive steps d until it is done.
func (h *testHost) drive(t *testing.T, d *Demuxer, chunk int) {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		if !h.step(t, d, chunk) {
			return
		}
	}
	t.Fatal("demuxer made no progress")
}

func newDemuxer(t *testing.T, h *testHost) *Demuxer {
	t.Helper()
	d, err := NewDemuxer(h, nil)
	require.NoError(t, err)
	return d
}
