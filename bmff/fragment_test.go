package bmff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/internal/mp4test"
)

type stubDefaults struct {
	trex       map[uint32]*Trex
	timescales map[uint32]uint32
	next       map[uint32]uint64
}

func (s stubDefaults) Trex(id uint32) *Trex       { return s.trex[id] }
func (s stubDefaults) Timescale(id uint32) uint32 { return s.timescales[id] }

func (s stubDefaults) BaseDecodeTime(id uint32, _ int64) (uint64, bool) {
	t, ok := s.next[id]
	return t, ok
}

// decodeAt decodes the top-level box starting at off in data.
func decodeAt(t *testing.T, data []byte, off int64) *Box {
	t.Helper()
	size := int64(be.Uint32(data[off:]))
	b, err := DecodeBox(data[off:off+size], off)
	require.NoError(t, err)
	return b
}

func TestNewFragment_DefaultBaseIsMoof(t *testing.T) {
	t.Parallel()
	video := mp4test.VideoTrack(1, 60, 30, 30)
	audio := mp4test.AudioTrack(2, 86)
	f := mp4test.Fragmented([]mp4test.Track{video, audio}, mp4test.FragmentedOptions{PerFragment: 30})
	require.Len(t, f.Moofs, 3)

	d := stubDefaults{timescales: map[uint32]uint32{1: 30000, 2: 44100}}
	frag, err := NewFragment(decodeAt(t, f.Data, f.Moofs[1]), d)
	require.NoError(t, err)

	assert.Equal(t, f.Moofs[1], frag.Offset)
	require.Len(t, frag.Samples[1], 30)
	require.Len(t, frag.Samples[2], 30)
	for i, s := range frag.Samples[1] {
		assert.Equal(t, f.Offsets[1][30+i], s.Offset, "video sample %d", i)
		assert.Equal(t, int64((30+i)*1000), s.DecodingTimestamp)
		assert.Equal(t, i == 0, s.IsKeyframe)
	}
	for i, s := range frag.Samples[2] {
		assert.Equal(t, f.Offsets[2][30+i], s.Offset, "audio sample %d", i)
	}

	start, end, ok := frag.TimeRange(1)
	require.True(t, ok)
	assert.InDelta(t, 1.0, start, 1e-9)
	assert.InDelta(t, 2.0, end, 1e-9)

	next, ok := frag.NextDecodeTime(1)
	require.True(t, ok)
	assert.Equal(t, uint64(60000), next)

	all := frag.AllSamples()
	assert.Len(t, all, 60)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Offset, all[i].Offset)
	}
}

func TestNewFragment_Defaults(t *testing.T) {
	t.Parallel()
	// A traf relying on trex for size and duration, without tfdt.
	var w mp4test.Writer
	w.StartBox("moof")
	w.Mfhd(1)
	w.StartBox("traf")
	w.StartFullBox("tfhd", 0, TfhdDefaultSampleFlagsPresent)
	w.U32(7)
	w.U32(mp4test.NonSync)
	w.EndBox()
	w.StartFullBox("trun", 0, TrunDataOffsetPresent|TrunFirstSampleFlagsPresent)
	w.U32(3)   // sample count
	w.U32(100) // data offset
	w.U32(0)   // first sample flags: sync
	w.EndBox()
	w.EndBox()
	w.EndBox()
	moof, err := DecodeBox(w.Bytes(), 5000)
	require.NoError(t, err)

	d := stubDefaults{
		trex:       map[uint32]*Trex{7: {TrackID: 7, DefaultSampleDuration: 512, DefaultSampleSize: 40}},
		timescales: map[uint32]uint32{7: 1024},
		next:       map[uint32]uint64{7: 2048},
	}
	frag, err := NewFragment(moof, d)
	require.NoError(t, err)
	samples := frag.Samples[7]
	require.Len(t, samples, 3)
	assert.Equal(t, []int64{5100, 5140, 5180}, []int64{samples[0].Offset, samples[1].Offset, samples[2].Offset})
	assert.Equal(t, []int64{2048, 2560, 3072}, []int64{
		samples[0].DecodingTimestamp, samples[1].DecodingTimestamp, samples[2].DecodingTimestamp,
	})
	assert.Equal(t, []bool{true, false, false}, []bool{samples[0].IsKeyframe, samples[1].IsKeyframe, samples[2].IsKeyframe})
	assert.Equal(t, int64(40), samples[0].Size)
}

func TestNewFragment_WithoutBaseDecodeTime(t *testing.T) {
	t.Parallel()
	f := mp4test.Fragmented([]mp4test.Track{mp4test.VideoTrack(1, 20, 30, 10)},
		mp4test.FragmentedOptions{PerFragment: 10, NoTfdt: true})
	moof := decodeAt(t, f.Data, f.Moofs[1])

	d := stubDefaults{timescales: map[uint32]uint32{1: 30000}, next: map[uint32]uint64{1: 10000}}
	frag, err := NewFragment(moof, d)
	require.NoError(t, err)
	assert.Empty(t, frag.Unanchored)
	assert.Equal(t, int64(10000), frag.Samples[1][0].DecodingTimestamp)
	start, _, ok := frag.TimeRange(1)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3, start, 1e-9)

	frag, err = NewFragment(moof, stubDefaults{timescales: d.timescales})
	require.NoError(t, err)
	assert.True(t, frag.Unanchored[1])
	assert.Zero(t, frag.Samples[1][0].DecodingTimestamp)
	_, _, ok = frag.TimeRange(1)
	assert.False(t, ok)
}

func TestNewFragment_UnknownTrack(t *testing.T) {
	t.Parallel()
	f := mp4test.Fragmented([]mp4test.Track{mp4test.VideoTrack(1, 10, 30, 10)}, mp4test.FragmentedOptions{PerFragment: 10})
	_, err := NewFragment(decodeAt(t, f.Data, f.Moofs[0]), stubDefaults{})
	assert.Error(t, err)
}
