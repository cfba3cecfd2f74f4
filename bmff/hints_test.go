package bmff

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/internal/mp4test"
	"github.com/tetsuo/mediaparse/media"
	"github.com/tetsuo/mediaparse/source"
)

// snapshotOf parses data to the end and returns the demuxer state along
// with the host it ran on.
func snapshotOf(t *testing.T, data []byte) (json.RawMessage, *testHost) {
	t.Helper()
	h := newTestHost(data)
	d := newDemuxer(t, h)
	h.drive(t, d, 4096)
	snap, err := d.Snapshot()
	require.NoError(t, err)
	return snap, h
}

// replayHost returns a host on data that already knows the media sections
// of prev, counting every out-of-band read.
func replayHost(data []byte, prev *testHost) (*testHost, *source.Counting) {
	h := newTestHost(data)
	counting := &source.Counting{Reader: &source.Bytes{Data: data}}
	h.reader = counting
	for _, s := range prev.secs.Sections() {
		h.secs.Add(s)
	}
	return h, counting
}

func TestHints_FragmentedReplay(t *testing.T) {
	t.Parallel()
	f := mp4test.Fragmented([]mp4test.Track{
		mp4test.VideoTrack(1, 90, 30, 30),
		mp4test.AudioTrack(2, 130),
	}, mp4test.FragmentedOptions{PerFragment: 30, Mfra: true})
	snap, h1 := snapshotOf(t, f.Data)

	h2, counting := replayHost(f.Data, h1)
	d, err := NewDemuxer(h2, snap)
	require.NoError(t, err)

	require.NotNil(t, d.moov)
	require.NotNil(t, d.mfra)
	assert.True(t, d.hints.MfraChecked)
	require.Len(t, d.fragments, len(f.Moofs))
	for i, frag := range d.fragments {
		assert.Equal(t, f.Moofs[i], frag.Offset)
		assert.True(t, frag.Complete, "fragment %d", i)
	}
	assert.Len(t, h2.fields[media.FieldTracks], 2)
	assert.Equal(t, true, h2.fields[media.FieldIsFragmented])

	res, err := d.Seek(context.Background(), 2.5)
	require.NoError(t, err)
	assert.Equal(t, media.DoSeek, res.Kind)
	assert.Equal(t, f.Offsets[1][60], res.Byte)
	assert.Zero(t, counting.Reads())

	again, err := d.Snapshot()
	require.NoError(t, err)
	assert.JSONEq(t, string(snap), string(again))
}

func TestHints_StepsSkipKnownBoxes(t *testing.T) {
	t.Parallel()
	f := mp4test.Fragmented([]mp4test.Track{
		mp4test.VideoTrack(1, 90, 30, 30),
		mp4test.AudioTrack(2, 130),
	}, mp4test.FragmentedOptions{PerFragment: 30, Mfra: true})
	snap, h1 := snapshotOf(t, f.Data)

	h2, counting := replayHost(f.Data, h1)
	h2.samples = true
	d, err := NewDemuxer(h2, snap)
	require.NoError(t, err)
	h2.drive(t, d, 2048)

	assertVisitedAll(t, h2, f)
	assert.Len(t, d.fragments, len(f.Moofs))
	assert.Zero(t, counting.Reads())
}

func TestHints_MoovAfterMdatNeedsNoScan(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{MoovLast: true})
	snap, h1 := snapshotOf(t, f.Data)

	h2, counting := replayHost(f.Data, h1)
	h2.samples = true
	d, err := NewDemuxer(h2, snap)
	require.NoError(t, err)
	require.NotNil(t, d.moov)
	assert.Equal(t, "avc1.64001f", h2.fields[media.FieldVideoCodec])

	h2.drive(t, d, 4096)
	assertVisitedAll(t, h2, f)
	assert.Zero(t, counting.Reads())
	assert.Empty(t, d.moovFetch.Keys())
}

func TestHints_Unreadable(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{})
	h := newTestHost(f.Data)
	d, err := NewDemuxer(h, json.RawMessage(`{"moov":`))
	require.NoError(t, err)
	assert.Nil(t, d.moov)

	h.drive(t, d, 4096)
	assert.Equal(t, "avc1.64001f", h.fields[media.FieldVideoCodec])
}

func TestHints_CorruptBoxIsIgnored(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{})
	state, err := json.Marshal(Hints{Moov: &RawBox{Offset: f.Moov, Data: []byte{0, 0, 0, 4}}})
	require.NoError(t, err)

	h := newTestHost(f.Data)
	d, err := NewDemuxer(h, state)
	require.NoError(t, err)
	assert.Nil(t, d.moov)
	h.drive(t, d, 4096)
	assert.NotNil(t, d.moov)
}
