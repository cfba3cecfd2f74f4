package bmff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/internal/mp4test"
	"github.com/tetsuo/mediaparse/media"
	"github.com/tetsuo/mediaparse/source"
)

func avFixture(opts mp4test.StaticOptions) mp4test.File {
	return mp4test.Static([]mp4test.Track{
		mp4test.VideoTrack(1, 90, 30, 30),
		mp4test.AudioTrack(2, 130),
	}, opts)
}

// assertVisitedAll checks that every sample of f was delivered once, in
// file order per track, with its payload.
func assertVisitedAll(t *testing.T, h *testHost, f mp4test.File) {
	t.Helper()
	seen := make(map[int64]int)
	last := make(map[uint32]int64)
	for _, s := range h.visited {
		seen[s.Offset]++
		if prev, ok := last[s.TrackID]; ok {
			assert.Greater(t, s.Offset, prev, "track %d out of order", s.TrackID)
		}
		last[s.TrackID] = s.Offset
	}
	total := 0
	for id, offsets := range f.Offsets {
		total += len(offsets)
		for i, off := range offsets {
			assert.Equal(t, 1, seen[off], "track %d sample %d", id, i)
			want := mp4test.Payload(id, i, uint32(len(h.payload[off])))
			assert.Equal(t, want, h.payload[off], "track %d sample %d payload", id, i)
		}
	}
	assert.Len(t, h.visited, total)
}

func TestMatch(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{})
	assert.True(t, Match(f.Data[:16]))
	assert.True(t, Match([]byte{0, 0, 0, 8, 'm', 'o', 'o', 'f'}))
	assert.False(t, Match([]byte{0x1a, 0x45, 0xdf, 0xa3, 0, 0, 0, 0}))
	assert.False(t, Match([]byte{0, 0, 0}))
}

func TestDemuxer_StaticMetadata(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{})
	h := newTestHost(f.Data)
	h.drive(t, newDemuxer(t, h), 4096)

	assert.Equal(t, "mp4", h.fields[media.FieldContainer])
	assert.Len(t, h.fields[media.FieldTracks], 2)
	assert.Equal(t, "avc1.64001f", h.fields[media.FieldVideoCodec])
	assert.Equal(t, "mp4a.40.2", h.fields[media.FieldAudioCodec])
	assert.Equal(t, &media.Dimensions{Width: 1280, Height: 720}, h.fields[media.FieldDimensions])
	assert.Equal(t, 0, h.fields[media.FieldRotation])
	assert.InDelta(t, 30.0, h.fields[media.FieldFps], 1e-9)
	assert.Equal(t, 44100, h.fields[media.FieldSampleRate])
	assert.Equal(t, 2, h.fields[media.FieldNumberOfAudioChannels])
	assert.Equal(t, "en", h.fields[media.FieldLanguage])
	assert.Equal(t, false, h.fields[media.FieldIsFragmented])
	assert.InDelta(t, 3.018, h.fields[media.FieldDurationInSeconds], 1e-3)

	kf, ok := h.fields[media.FieldKeyframes].([]media.Keyframe)
	require.True(t, ok)
	require.Len(t, kf, 3)
	for i, k := range kf {
		assert.InDelta(t, float64(i), k.PresentationTime, 1e-9)
		assert.Equal(t, f.Offsets[1][i*30], k.Offset)
		assert.Equal(t, int64(2000), k.Size)
	}

	require.Equal(t, 1, h.secs.Len())
	assert.Equal(t, f.Mdat+8, h.secs.Sections()[0].Start)
	assert.Empty(t, h.visited)
}

func TestDemuxer_StaticWithoutDeclaredDuration(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{NoDuration: true})
	h := newTestHost(f.Data)
	h.drive(t, newDemuxer(t, h), 4096)

	assert.InDelta(t, 3.018, h.fields[media.FieldDurationInSeconds], 1e-3)
	assert.InDelta(t, 30.0, h.fields[media.FieldFps], 1e-9)
}

func TestDemuxer_QuickTimeContainer(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{Brand: "qt  "})
	h := newTestHost(f.Data)
	h.drive(t, newDemuxer(t, h), 4096)
	assert.Equal(t, "mov", h.fields[media.FieldContainer])
}

func TestDemuxer_StaticSamples(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{})
	h := newTestHost(f.Data)
	h.samples = true
	h.drive(t, newDemuxer(t, h), 1000)
	assertVisitedAll(t, h, f)
}

func TestDemuxer_MoovAfterMdatWithRanges(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{MoovLast: true})
	h := newTestHost(f.Data)
	counting := &source.Counting{Reader: &source.Bytes{Data: f.Data}}
	h.reader = counting
	h.samples = true

	d := newDemuxer(t, h)
	h.drive(t, d, 4096)

	assertVisitedAll(t, h, f)
	assert.Equal(t, "avc1.64001f", h.fields[media.FieldVideoCodec])
	assert.Len(t, d.moovFetch.Keys(), 1, "one out-of-band moov scan")
	assert.Positive(t, counting.Reads())
	for _, r := range counting.Ranges() {
		assert.GreaterOrEqual(t, r.Start, f.Moov, "scan starts after the media data")
	}
}

func TestDemuxer_MoovAfterMdatWithoutRanges(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{MoovLast: true})
	h := newTestHost(f.Data)
	counting := &source.Counting{Reader: &source.Bytes{Data: f.Data, DisableRange: true}}
	h.reader = counting
	h.ranged = false
	h.samples = true

	h.drive(t, newDemuxer(t, h), 4096)

	assertVisitedAll(t, h, f)
	assert.Zero(t, counting.Reads())
}

func TestDemuxer_MoovAfterMdatMetadataOnly(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{MoovLast: true})
	h := newTestHost(f.Data)
	h.ranged = false
	h.drive(t, newDemuxer(t, h), 4096)

	assert.Len(t, h.fields[media.FieldTracks], 2)
	assert.InDelta(t, 30.0, h.fields[media.FieldFps], 1e-9)
	assert.Empty(t, h.visited)
}

func TestDemuxer_JumpsKeepTracksClose(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{Layout: mp4test.Sequential})
	h := newTestHost(f.Data)
	h.samples = true
	h.spread = 1
	h.drive(t, newDemuxer(t, h), 4096)

	assertVisitedAll(t, h, f)
	firstAudio, lateVideo := -1, -1
	for i, s := range h.visited {
		if s.TrackID == 2 && firstAudio < 0 {
			firstAudio = i
		}
		if s.TrackID == 1 && s.Time() > 2 && lateVideo < 0 {
			lateVideo = i
		}
	}
	require.GreaterOrEqual(t, firstAudio, 0)
	require.GreaterOrEqual(t, lateVideo, 0)
	assert.Less(t, firstAudio, lateVideo, "audio visited before video ran ahead")
}

func TestDemuxer_FileOrderWhenEverySampleIsNeeded(t *testing.T) {
	t.Parallel()
	f := avFixture(mp4test.StaticOptions{Layout: mp4test.Sequential})
	h := newTestHost(f.Data)
	h.samples = true
	h.all = true
	h.spread = 1
	h.drive(t, newDemuxer(t, h), 4096)

	assertVisitedAll(t, h, f)
	for i := 1; i < len(h.visited); i++ {
		assert.Less(t, h.visited[i-1].Offset, h.visited[i].Offset)
	}
}

func TestDemuxer_Fragmented(t *testing.T) {
	t.Parallel()
	f := mp4test.Fragmented([]mp4test.Track{
		mp4test.VideoTrack(1, 90, 30, 30),
		mp4test.AudioTrack(2, 130),
	}, mp4test.FragmentedOptions{PerFragment: 30})
	h := newTestHost(f.Data)
	h.samples = true
	d := newDemuxer(t, h)
	h.drive(t, d, 2048)

	assert.Equal(t, true, h.fields[media.FieldIsFragmented])
	assert.Nil(t, h.fields[media.FieldKeyframes])
	assert.InDelta(t, 30.0, h.fields[media.FieldFps], 1e-9)
	assert.InDelta(t, 3.018, h.fields[media.FieldDurationInSeconds], 1e-3)
	assertVisitedAll(t, h, f)

	require.Len(t, d.fragments, len(f.Moofs))
	for i, frag := range d.fragments {
		assert.Equal(t, f.Moofs[i], frag.Offset)
		assert.True(t, frag.Complete, "fragment %d", i)
		list, ok := d.Samples(1, frag.Offset)
		if i < 3 {
			require.True(t, ok)
			assert.Len(t, list, 30)
		}
	}
}

// visitedOffsets returns the offsets of the delivered samples of track id,
// in delivery order.
func visitedOffsets(h *testHost, id uint32) []int64 {
	var out []int64
	for _, s := range h.visited {
		if s.TrackID == id {
			out = append(out, s.Offset)
		}
	}
	return out
}

// withEmptySamples returns the fixture tracks with some zero-size samples,
// which share their offset with the sample stored after them.
func withEmptySamples() []mp4test.Track {
	video := mp4test.VideoTrack(1, 90, 30, 30)
	video.Samples[5].Size = 0
	video.Samples[6].Size = 0
	video.Samples[40].Size = 0
	audio := mp4test.AudioTrack(2, 130)
	audio.Samples[0].Size = 0
	audio.Samples[77].Size = 0
	return []mp4test.Track{video, audio}
}

func TestDemuxer_EmptySamples(t *testing.T) {
	t.Parallel()
	tracks := withEmptySamples()
	tests := []struct {
		name   string
		file   mp4test.File
		spread float64
	}{
		{"interleaved", mp4test.Static(tracks, mp4test.StaticOptions{}), 8},
		{"sequential", mp4test.Static(tracks, mp4test.StaticOptions{Layout: mp4test.Sequential}), 8},
		{"sequential with jumps", mp4test.Static(tracks, mp4test.StaticOptions{Layout: mp4test.Sequential}), 1},
		{"fragmented", mp4test.Fragmented(tracks, mp4test.FragmentedOptions{PerFragment: 30}), 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestHost(tt.file.Data)
			h.samples = true
			h.spread = tt.spread
			h.drive(t, newDemuxer(t, h), 1000)

			total := 0
			for _, tr := range tracks {
				total += len(tr.Samples)
				assert.Equal(t, tt.file.Offsets[tr.ID], visitedOffsets(h, tr.ID), "track %d", tr.ID)
			}
			assert.Len(t, h.visited, total)
		})
	}
}

func TestDemuxer_NoMoov(t *testing.T) {
	t.Parallel()
	var w mp4test.Writer
	w.Ftyp("isom")
	w.Box("mdat", make([]byte, 64))

	for _, ranged := range []bool{true, false} {
		h := newTestHost(w.Bytes())
		h.ranged = ranged
		d := newDemuxer(t, h)
		var err error
		for i := 0; i < 100 && err == nil; i++ {
			var a media.Action
			a, err = d.Step(context.Background())
			switch a.Op {
			case media.OpNeedMoreData:
				h.feed(a.Need)
			case media.OpSkip:
				h.skipTo(a.To)
			}
		}
		assert.ErrorIs(t, err, ErrNoMoov, "ranged=%v", ranged)
		assert.ErrorIs(t, err, media.ErrCorrupt, "ranged=%v", ranged)
	}
}
