package jump

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tetsuo/mediaparse/media"
)

// run lays out samples of one track at consecutive offsets starting at
// offset, one per given second.
func run(track uint32, offset int64, seconds ...int64) []media.Sample {
	out := make([]media.Sample, len(seconds))
	for i, sec := range seconds {
		out[i] = media.Sample{
			TrackID:               track,
			Offset:                offset + int64(i),
			Size:                  1,
			DecodingTimestamp:     sec,
			PresentationTimestamp: sec,
			Duration:              1,
			Timescale:             1,
		}
	}
	return out
}

func concat(runs ...[]media.Sample) []media.Sample {
	var out []media.Sample
	for _, r := range runs {
		out = append(out, r...)
	}
	return out
}

func TestPlan_InterleavedNeedsNoMarks(t *testing.T) {
	t.Parallel()
	var samples []media.Sample
	for i := int64(0); i < 20; i++ {
		samples = append(samples, run(uint32(1+i%2), i, i/2)...)
	}
	assert.Empty(t, Plan(samples, DefaultSpread, 20))
}

func TestPlan_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Plan(nil, DefaultSpread, 0))
}

func TestPlan_JumpsBetweenLongRuns(t *testing.T) {
	t.Parallel()
	samples := concat(
		run(1, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		run(2, 10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
	)
	marks := Plan(samples, 3, 20)
	assert.Equal(t, []Mark{
		{AfterSample: 4, JumpTo: 10, AfterSampleOffset: 4, JumpToOffset: 10},
		{AfterSample: 18, JumpTo: 5, AfterSampleOffset: 18, JumpToOffset: 5},
		{AfterSample: 9, JumpTo: 19, AfterSampleOffset: 9, JumpToOffset: 19},
	}, marks)
}

func TestPlan_TrailingMark(t *testing.T) {
	t.Parallel()
	samples := concat(
		run(1, 0, 0, 4, 8, 12),
		run(2, 4, 0, 1, 2, 3),
	)
	marks := Plan(samples, 3, 100)
	assert.Equal(t, []Mark{
		{AfterSample: 1, JumpTo: 4, AfterSampleOffset: 1, JumpToOffset: 4},
		{AfterSample: 7, JumpTo: 2, AfterSampleOffset: 7, JumpToOffset: 2},
		{AfterSample: 3, JumpTo: 8, AfterSampleOffset: 3, JumpToOffset: 100},
	}, marks)
}

// walk follows marks from the first sample and returns the positions of
// the samples in visiting order.
func walk(samples []media.Sample, marks []Mark) []int {
	idx := NewIndex(marks)
	var visited []int
	for i := 0; i < len(samples) && len(visited) <= len(samples); {
		visited = append(visited, i)
		if m, ok := idx.After(i); ok {
			i = m.JumpTo
			continue
		}
		i++
	}
	return visited
}

// assertVisitsOnceInTrackOrder checks that order visits every sample once
// and the samples of each track in file order.
func assertVisitsOnceInTrackOrder(t *testing.T, samples []media.Sample, order []int) {
	t.Helper()
	assert.Len(t, order, len(samples))
	seen := make(map[int]bool)
	last := make(map[uint32]int)
	for _, i := range order {
		assert.False(t, seen[i], "sample %d visited twice", i)
		seen[i] = true
		id := samples[i].TrackID
		if prev, ok := last[id]; ok {
			assert.Greater(t, i, prev, "track %d out of order", id)
		}
		last[id] = i
	}
}

func TestPlan_VisitsEverySampleOnceInTrackOrder(t *testing.T) {
	t.Parallel()
	samples := concat(
		run(1, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
		run(2, 12, 0, 1, 2),
		run(1, 15, 12, 13),
		run(2, 17, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13),
	)
	marks := Plan(samples, 2, 28)
	assertVisitsOnceInTrackOrder(t, samples, walk(samples, marks))
}

func TestPlan_SamplesSharingAnOffset(t *testing.T) {
	t.Parallel()
	samples := concat(
		run(1, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		run(2, 10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
	)
	// Empty samples start where the sample after them starts.
	for _, i := range []int{3, 12, 13} {
		samples[i].Size = 0
		samples[i].Offset = samples[i+1].Offset
	}
	marks := Plan(samples, 3, 20)
	for _, m := range marks {
		assert.Equal(t, samples[m.AfterSample].Offset, m.AfterSampleOffset)
		if m.JumpTo < len(samples) {
			assert.Equal(t, samples[m.JumpTo].Offset, m.JumpToOffset)
		}
	}
	assertVisitsOnceInTrackOrder(t, samples, walk(samples, marks))
}

func TestPlan_Deterministic(t *testing.T) {
	t.Parallel()
	samples := concat(run(1, 0, 0, 5, 10, 15), run(2, 4, 0, 5, 10, 15))
	assert.Equal(t, Plan(samples, 4, 8), Plan(samples, 4, 8))
}

func TestSortByOffset(t *testing.T) {
	t.Parallel()
	samples := concat(run(2, 10, 0), run(1, 0, 0))
	SortByOffset(samples)
	assert.Equal(t, int64(0), samples[0].Offset)
	assert.Equal(t, int64(10), samples[1].Offset)

	shared := concat(run(1, 5, 0), run(2, 5, 0), run(3, 5, 0))
	shared[1].Size = 0
	shared[2].Size = 0
	SortByOffset(shared)
	assert.Equal(t, []uint32{2, 3, 1}, []uint32{shared[0].TrackID, shared[1].TrackID, shared[2].TrackID})
}
