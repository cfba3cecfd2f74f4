package bmff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/internal/mp4test"
	"github.com/tetsuo/mediaparse/media"
)

// stbl writes the sample table children of a test track.
type stbl func(w *mp4test.Writer)

func decodeTrak(t *testing.T, tables stbl) *Box {
	t.Helper()
	var w mp4test.Writer
	w.StartBox("trak")
	w.Tkhd(1, 0, 0, 0, 0)
	w.StartBox("mdia")
	w.Mdhd(1000, 0, "")
	w.Hdlr("vide", "")
	w.StartBox("minf")
	w.StartBox("stbl")
	tables(&w)
	w.EndBox()
	w.EndBox()
	w.EndBox()
	w.EndBox()
	b, err := DecodeBox(w.Bytes(), 0)
	require.NoError(t, err)
	return b
}

func TestSampleTable_ChunkRuns(t *testing.T) {
	t.Parallel()
	trak := decodeTrak(t, func(w *mp4test.Writer) {
		w.Pairs("stts", 0, [][2]uint32{{3, 100}})
		w.Stsc([][2]uint32{{1, 2}, {3, 1}})
		w.Stsz(10, 3, nil)
		w.Stco([]uint32{100, 300, 500})
	})

	samples, err := SampleTable(trak)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	var offsets []int64
	for _, s := range samples {
		offsets = append(offsets, s.Offset)
		assert.Equal(t, int64(10), s.Size)
		assert.True(t, s.IsKeyframe, "no stss means every sample is sync")
	}
	assert.Equal(t, []int64{100, 110, 300}, offsets)
	assert.Equal(t, []int{0, 0, 1}, []int{samples[0].ChunkIndex, samples[1].ChunkIndex, samples[2].ChunkIndex})
	assert.Equal(t, int64(200), samples[2].DecodingTimestamp)
}

func TestSampleTable_Timestamps(t *testing.T) {
	t.Parallel()
	trak := decodeTrak(t, func(w *mp4test.Writer) {
		w.Pairs("stts", 0, [][2]uint32{{2, 100}, {2, 50}})
		w.Pairs("ctts", 0, [][2]uint32{{1, 200}, {3, 0}})
		w.U32List("stss", []uint32{1, 3})
		w.Stsc([][2]uint32{{1, 4}})
		w.Stsz(0, 4, []uint32{5, 6, 7, 8})
		w.Stco([]uint32{1000})
	})

	samples, err := SampleTable(trak)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, []int64{0, 100, 200, 250}, []int64{
		samples[0].DecodingTimestamp, samples[1].DecodingTimestamp,
		samples[2].DecodingTimestamp, samples[3].DecodingTimestamp,
	})
	assert.Equal(t, int64(200), samples[0].PresentationTimestamp)
	assert.Equal(t, int64(100), samples[1].PresentationTimestamp)
	assert.Equal(t, []bool{true, false, true, false}, []bool{
		samples[0].IsKeyframe, samples[1].IsKeyframe, samples[2].IsKeyframe, samples[3].IsKeyframe,
	})
	assert.Equal(t, []int64{1000, 1005, 1011, 1018}, []int64{
		samples[0].Offset, samples[1].Offset, samples[2].Offset, samples[3].Offset,
	})
	for _, s := range samples {
		assert.Equal(t, uint32(1000), s.Timescale)
		assert.Equal(t, uint32(1), s.TrackID)
	}
}

func TestSampleTable_DecodeTimesNeverDecrease(t *testing.T) {
	t.Parallel()
	f := mp4test.Static([]mp4test.Track{mp4test.VideoTrack(1, 90, 30, 15)}, mp4test.StaticOptions{})
	moov, err := DecodeBox(f.Data[f.Moov:f.Mdat], f.Moov)
	require.NoError(t, err)
	trak := moov.Child(TypeTrak)

	first, err := SampleTable(trak)
	require.NoError(t, err)
	second, err := SampleTable(trak)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 90)
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i].DecodingTimestamp, first[i-1].DecodingTimestamp)
		assert.Equal(t, f.Offsets[1][i], first[i].Offset)
	}
}

func TestSampleTable_MissingTables(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		tables stbl
	}{
		{"stsz", func(w *mp4test.Writer) {
			w.Pairs("stts", 0, [][2]uint32{{1, 1}})
			w.Stsc([][2]uint32{{1, 1}})
			w.Stco([]uint32{0})
		}},
		{"stts", func(w *mp4test.Writer) {
			w.Stsc([][2]uint32{{1, 1}})
			w.Stsz(1, 1, nil)
			w.Stco([]uint32{0})
		}},
		{"stsc", func(w *mp4test.Writer) {
			w.Pairs("stts", 0, [][2]uint32{{1, 1}})
			w.Stsz(1, 1, nil)
			w.Stco([]uint32{0})
		}},
		{"stco", func(w *mp4test.Writer) {
			w.Pairs("stts", 0, [][2]uint32{{1, 1}})
			w.Stsc([][2]uint32{{1, 1}})
			w.Stsz(1, 1, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := SampleTable(decodeTrak(t, tt.tables))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingTable)
			assert.ErrorIs(t, err, media.ErrCorrupt)
		})
	}
}

func TestSampleTable_TooFewChunks(t *testing.T) {
	t.Parallel()
	trak := decodeTrak(t, func(w *mp4test.Writer) {
		w.Pairs("stts", 0, [][2]uint32{{4, 1}})
		w.Stsc([][2]uint32{{1, 1}})
		w.Stsz(1, 4, nil)
		w.Stco([]uint32{0, 10})
	})
	_, err := SampleTable(trak)
	assert.ErrorIs(t, err, media.ErrCorrupt)
}
