package bmff

import (
	"bytes"
	"testing"

	"github.com/abema/go-mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/mediaparse/internal/mp4test"
)

// Box layouts and sample tables are cross-checked against go-mp4.

var expanded = map[string]bool{
	"moov": true, "trak": true, "mdia": true, "minf": true, "stbl": true,
	"edts": true, "dinf": true, "mvex": true, "moof": true, "traf": true, "mfra": true,
}

type boxPos struct {
	Type   string
	Offset int64
	Size   int64
}

func referenceLayout(t *testing.T, data []byte) []boxPos {
	t.Helper()
	var out []boxPos
	_, err := mp4.ReadBoxStructure(bytes.NewReader(data), func(h *mp4.ReadHandle) (any, error) {
		typ := h.BoxInfo.Type.String()
		out = append(out, boxPos{typ, int64(h.BoxInfo.Offset), int64(h.BoxInfo.Size)})
		if expanded[typ] {
			return h.Expand()
		}
		return nil, nil
	})
	require.NoError(t, err)
	return out
}

func layout(t *testing.T, data []byte) []boxPos {
	t.Helper()
	var out []boxPos
	r := NewReader(data, 0)
	for r.Next() {
		b, err := DecodeBox(r.RawBox(), r.Offset())
		require.NoError(t, err)
		b.Walk(func(box *Box, _ int) bool {
			out = append(out, boxPos{box.Type.String(), box.Offset, box.Size})
			return expanded[box.Type.String()]
		})
	}
	require.NoError(t, r.Err())
	return out
}

func TestCompat_BoxLayout(t *testing.T) {
	t.Parallel()
	video := mp4test.VideoTrack(1, 60, 30, 15)
	video.MediaTime = 1000
	tests := []struct {
		name string
		data []byte
	}{
		{"static", mp4test.Static([]mp4test.Track{video, mp4test.AudioTrack(2, 90)}, mp4test.StaticOptions{}).Data},
		{"moov last", mp4test.Static([]mp4test.Track{video}, mp4test.StaticOptions{MoovLast: true}).Data},
		{"fragmented", mp4test.Fragmented([]mp4test.Track{video, mp4test.AudioTrack(2, 90)},
			mp4test.FragmentedOptions{PerFragment: 20, Mfra: true, Sidx: true}).Data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, referenceLayout(t, tt.data), layout(t, tt.data))
		})
	}
}

func TestCompat_SampleTables(t *testing.T) {
	t.Parallel()
	f := mp4test.Static([]mp4test.Track{
		mp4test.VideoTrack(1, 90, 30, 30),
		mp4test.AudioTrack(2, 130),
	}, mp4test.StaticOptions{})

	info, err := mp4.Probe(bytes.NewReader(f.Data))
	require.NoError(t, err)
	require.Len(t, info.Tracks, 2)

	moov, err := DecodeBox(f.Data[f.Moov:f.Mdat], f.Moov)
	require.NoError(t, err)
	traks := moov.ChildList(TypeTrak)
	require.Len(t, traks, 2)

	for i, ref := range info.Tracks {
		track, err := NewTrack(traks[i])
		require.NoError(t, err)
		assert.Equal(t, ref.TrackID, track.ID)
		assert.Equal(t, ref.Timescale, track.Timescale)
		assert.Equal(t, ref.Duration, track.Duration)

		samples, err := SampleTable(traks[i])
		require.NoError(t, err)
		require.Len(t, samples, len(ref.Samples), "track %d", ref.TrackID)
		var dts int64
		for j, s := range samples {
			assert.Equal(t, int64(ref.Samples[j].Size), s.Size)
			assert.Equal(t, int64(ref.Samples[j].TimeDelta), s.Duration)
			assert.Equal(t, dts, s.DecodingTimestamp)
			assert.Equal(t, dts+ref.Samples[j].CompositionTimeOffset, s.PresentationTimestamp)
			dts += s.Duration
		}

		j := 0
		for ci, chunk := range ref.Chunks {
			require.Less(t, j, len(samples))
			assert.Equal(t, int64(chunk.DataOffset), samples[j].Offset, "track %d chunk %d", ref.TrackID, ci)
			assert.Equal(t, ci, samples[j].ChunkIndex)
			j += int(chunk.SamplesPerChunk)
		}
		assert.Equal(t, len(samples), j)
	}
}
