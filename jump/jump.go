// Package jump plans the order in which interleaved samples are visited so
// that tracks progress through time at a similar pace even when the file
// stores long runs of one track.
package jump

import (
	"math"
	"sort"

	"github.com/tetsuo/mediaparse/media"
)

// DefaultSpread is the largest time difference, in seconds, tolerated
// between the most and least advanced tracks before a jump is planned.
const DefaultSpread = 8.0

// Mark instructs the reader to continue at JumpToOffset once the sample
// starting at AfterSampleOffset has been consumed. AfterSample and JumpTo
// are the positions of both samples in the planned list, which tell apart
// samples stored at the same offset; JumpTo is the list length for a jump
// to the end.
type Mark struct {
	AfterSample       int
	JumpTo            int
	AfterSampleOffset int64
	JumpToOffset      int64
}

// Plan visits samples, which must be sorted by offset, in file order and
// emits a Mark whenever the next sample to visit is not the one that follows
// in the file. A jump back to the lagging track is planned as soon as the
// progress spread exceeds spread seconds. Samples of one track are always
// visited in file order. When the last visited sample is not the last one in
// the file, a final Mark points at end.
func Plan(samples []media.Sample, spread float64, end int64) []Mark {
	n := len(samples)
	if n == 0 {
		return nil
	}
	if spread <= 0 {
		spread = DefaultSpread
	}

	// Per-track queues of sample indices, ascending.
	queues := make(map[uint32][]int)
	var order []uint32
	for i, s := range samples {
		if _, ok := queues[s.TrackID]; !ok {
			order = append(order, s.TrackID)
		}
		queues[s.TrackID] = append(queues[s.TrackID], i)
	}
	head := make(map[uint32]int, len(queues))
	progress := make(map[uint32]float64, len(queues))
	visited := make([]bool, n)

	var marks []Mark
	i, next := 0, 0 // next: lowest index not yet visited
	for count := 0; ; {
		s := samples[i]
		visited[i] = true
		count++
		head[s.TrackID]++
		progress[s.TrackID] = s.Time()
		for next < n && visited[next] {
			next++
		}
		if count == n {
			if i != n-1 {
				marks = append(marks, Mark{AfterSample: i, JumpTo: n, AfterSampleOffset: s.Offset, JumpToOffset: end})
			}
			return marks
		}

		target := i + 1
		for target < n && visited[target] {
			target++
		}
		if target < n {
			// Samples of one track are visited in file order.
			id := samples[target].TrackID
			target = queues[id][head[id]]
		}
		if lag, ok := lagging(order, queues, head, progress, spread); ok {
			target = queues[lag][head[lag]]
		}
		if target >= n {
			target = next
		}
		if target != i+1 {
			marks = append(marks, Mark{AfterSample: i, JumpTo: target, AfterSampleOffset: s.Offset, JumpToOffset: samples[target].Offset})
		}
		i = target
	}
}

// lagging returns the least advanced track among those with unvisited
// samples when the progress spread between them exceeds spread.
func lagging(order []uint32, queues map[uint32][]int, head map[uint32]int, progress map[uint32]float64, spread float64) (uint32, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	var lag uint32
	active := 0
	for _, id := range order {
		if head[id] >= len(queues[id]) {
			continue
		}
		active++
		p := progress[id]
		if p < lo {
			lo, lag = p, id
		}
		if p > hi {
			hi = p
		}
	}
	if active < 2 || hi-lo <= spread {
		return 0, false
	}
	return lag, true
}

// Index maps sample positions to marks for lookup during parsing.
type Index map[int]Mark

// NewIndex builds an Index from marks.
func NewIndex(marks []Mark) Index {
	idx := make(Index, len(marks))
	for _, m := range marks {
		idx[m.AfterSample] = m
	}
	return idx
}

// After returns the jump planned after the sample at position i.
func (idx Index) After(i int) (Mark, bool) {
	m, ok := idx[i]
	return m, ok
}

// SortByOffset sorts samples by offset. At equal offsets empty samples come
// first, since they end where the other sample starts; the relative order is
// kept otherwise.
func SortByOffset(samples []media.Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i], samples[j]
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return a.Size == 0 && b.Size != 0
	})
}
