// Package section tracks the byte ranges of a media file that hold raw
// sample payload, as opposed to container metadata.
package section

import (
	"fmt"
	"sort"
)

// Section is the half-open byte range [Start, Start+Size).
type Section struct {
	Start int64 `json:"start"`
	Size  int64 `json:"size"`
}

// End returns the offset just past the section.
func (s Section) End() int64 { return s.Start + s.Size }

// Contains reports whether offset lies inside the section.
func (s Section) Contains(offset int64) bool {
	return offset >= s.Start && offset < s.End()
}

func (s Section) covers(o Section) bool {
	return s.Start <= o.Start && o.End() <= s.End()
}

func (s Section) overlaps(o Section) bool {
	return s.Start < o.End() && o.Start < s.End()
}

func (s Section) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End())
}

// Class is the result of Classify.
type Class int

const (
	// NoneDefined means no media section is known yet.
	NoneDefined Class = iota
	// InSection means the offset lies inside a known section.
	InSection
	// OutsideSection means sections are known but none holds the offset.
	OutsideSection
)

func (c Class) String() string {
	switch c {
	case InSection:
		return "in-section"
	case OutsideSection:
		return "outside-section"
	}
	return "none-defined"
}

// Tracker holds disjoint sections sorted by start offset.
// The zero value is an empty tracker.
type Tracker struct {
	sections []Section
}

// Add registers s. It is a no-op, returning false, when s lies inside an
// existing section or partially overlaps one. Existing sections wholly
// inside s are replaced by it.
func (t *Tracker) Add(s Section) bool {
	if s.Size <= 0 {
		return false
	}
	for _, e := range t.sections {
		if e.covers(s) {
			return false
		}
		if e.overlaps(s) && !s.covers(e) {
			return false
		}
	}
	kept := t.sections[:0]
	for _, e := range t.sections {
		if !s.covers(e) {
			kept = append(kept, e)
		}
	}
	i := sort.Search(len(kept), func(i int) bool { return kept[i].Start > s.Start })
	kept = append(kept, Section{})
	copy(kept[i+1:], kept[i:])
	kept[i] = s
	t.sections = kept
	return true
}

// Classify reports where offset falls relative to the known sections.
func (t *Tracker) Classify(offset int64) Class {
	if len(t.sections) == 0 {
		return NoneDefined
	}
	if _, ok := t.Find(offset); ok {
		return InSection
	}
	return OutsideSection
}

// Find returns the section containing offset.
func (t *Tracker) Find(offset int64) (Section, bool) {
	i := sort.Search(len(t.sections), func(i int) bool { return t.sections[i].End() > offset })
	if i < len(t.sections) && t.sections[i].Contains(offset) {
		return t.sections[i], true
	}
	return Section{}, false
}

// NextStart returns the start of the first section beginning after offset.
func (t *Tracker) NextStart(offset int64) (int64, bool) {
	i := sort.Search(len(t.sections), func(i int) bool { return t.sections[i].Start > offset })
	if i < len(t.sections) {
		return t.sections[i].Start, true
	}
	return 0, false
}

// Sections returns a copy of the tracked sections in offset order.
func (t *Tracker) Sections() []Section {
	return append([]Section(nil), t.sections...)
}

// Len returns the number of tracked sections.
func (t *Tracker) Len() int { return len(t.sections) }
