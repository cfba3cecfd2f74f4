package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Classify(t *testing.T) {
	t.Parallel()
	var tr Tracker
	assert.Equal(t, NoneDefined, tr.Classify(0))

	assert.True(t, tr.Add(Section{Start: 1000, Size: 4000}))
	assert.Equal(t, InSection, tr.Classify(1000))
	assert.Equal(t, InSection, tr.Classify(4999))
	assert.Equal(t, OutsideSection, tr.Classify(5000))
	assert.Equal(t, OutsideSection, tr.Classify(6000))
	assert.Equal(t, OutsideSection, tr.Classify(999))
}

func TestTracker_ContainedIsNoop(t *testing.T) {
	t.Parallel()
	var tr Tracker
	assert.True(t, tr.Add(Section{Start: 0, Size: 100}))
	assert.False(t, tr.Add(Section{Start: 50, Size: 30}))
	assert.Equal(t, []Section{{Start: 0, Size: 100}}, tr.Sections())
}

func TestTracker_Add(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		adds  []Section
		want  []Section
		added []bool
	}{
		{
			name:  "disjoint kept sorted",
			adds:  []Section{{Start: 500, Size: 10}, {Start: 0, Size: 10}, {Start: 100, Size: 10}},
			want:  []Section{{Start: 0, Size: 10}, {Start: 100, Size: 10}, {Start: 500, Size: 10}},
			added: []bool{true, true, true},
		},
		{
			name:  "partial overlap rejected",
			adds:  []Section{{Start: 0, Size: 100}, {Start: 90, Size: 20}},
			want:  []Section{{Start: 0, Size: 100}},
			added: []bool{true, false},
		},
		{
			name:  "superset replaces contained",
			adds:  []Section{{Start: 10, Size: 10}, {Start: 40, Size: 10}, {Start: 0, Size: 100}},
			want:  []Section{{Start: 0, Size: 100}},
			added: []bool{true, true, true},
		},
		{
			name:  "superset that partially overlaps another is rejected",
			adds:  []Section{{Start: 10, Size: 10}, {Start: 90, Size: 20}, {Start: 0, Size: 100}},
			want:  []Section{{Start: 10, Size: 10}, {Start: 90, Size: 20}},
			added: []bool{true, true, false},
		},
		{
			name:  "adjacent sections do not overlap",
			adds:  []Section{{Start: 0, Size: 10}, {Start: 10, Size: 10}},
			want:  []Section{{Start: 0, Size: 10}, {Start: 10, Size: 10}},
			added: []bool{true, true},
		},
		{
			name:  "empty ignored",
			adds:  []Section{{Start: 0, Size: 0}},
			want:  []Section{},
			added: []bool{false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var tr Tracker
			for i, s := range tt.adds {
				assert.Equal(t, tt.added[i], tr.Add(s), "add %v", s)
			}
			got := tr.Sections()
			if got == nil {
				got = []Section{}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTracker_FindAndNextStart(t *testing.T) {
	t.Parallel()
	var tr Tracker
	tr.Add(Section{Start: 100, Size: 50})
	tr.Add(Section{Start: 300, Size: 50})

	s, ok := tr.Find(120)
	assert.True(t, ok)
	assert.Equal(t, int64(100), s.Start)

	_, ok = tr.Find(200)
	assert.False(t, ok)

	next, ok := tr.NextStart(120)
	assert.True(t, ok)
	assert.Equal(t, int64(300), next)

	_, ok = tr.NextStart(300)
	assert.False(t, ok)
}
