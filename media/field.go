package media

import (
	"math/bits"
	"strings"
)

// Field is a set of output fields. Each scalar field is resolved at most once
// per session.
type Field uint32

// The comment on each field names the type of its value.
const (
	FieldContainer             Field = 1 << iota // string
	FieldSize                                    // int64
	FieldTracks                                  // []*Track
	FieldVideoCodec                              // string, "" without video
	FieldAudioCodec                              // string, "" without audio
	FieldDimensions                              // *Dimensions, nil without video
	FieldRotation                                // int
	FieldDurationInSeconds                       // float64
	FieldFps                                     // float64, 0 when unknown
	FieldSampleRate                              // int
	FieldNumberOfAudioChannels                   // int
	FieldKeyframes                               // []Keyframe, nil when unknown
	FieldIsFragmented                            // bool
	FieldLanguage                                // string
	FieldSlowNumberOfFrames                      // int
	FieldSlowKeyframes                           // []Keyframe
	FieldSlowDurationInSeconds                   // float64

	fieldEnd
)

// SlowFields are only known once every sample has been seen.
const SlowFields = FieldSlowNumberOfFrames | FieldSlowKeyframes | FieldSlowDurationInSeconds

// AllFields is every field including the slow ones.
const AllFields = fieldEnd - 1

// MetadataFields is every field derivable from container metadata alone.
const MetadataFields = AllFields &^ SlowFields

var fieldNames = [...]string{
	"container",
	"size",
	"tracks",
	"videoCodec",
	"audioCodec",
	"dimensions",
	"rotation",
	"durationInSeconds",
	"fps",
	"sampleRate",
	"numberOfAudioChannels",
	"keyframes",
	"isFragmented",
	"language",
	"slowNumberOfFrames",
	"slowKeyframes",
	"slowDurationInSeconds",
}

// Has reports whether every field in o is in f.
func (f Field) Has(o Field) bool { return f&o == o }

// Each calls fn for every single field in f, in declaration order.
func (f Field) Each(fn func(Field)) {
	for f != 0 {
		b := f & -f
		fn(b)
		f &^= b
	}
}

// Len returns the number of fields in f.
func (f Field) Len() int { return bits.OnesCount32(uint32(f)) }

func (f Field) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	f.Each(func(b Field) {
		i := bits.TrailingZeros32(uint32(b))
		if i < len(fieldNames) {
			names = append(names, fieldNames[i])
		} else {
			names = append(names, "?")
		}
	})
	return strings.Join(names, "|")
}

// ParseField returns the field with the given name.
func ParseField(name string) (Field, bool) {
	for i, n := range fieldNames {
		if strings.EqualFold(n, name) {
			return 1 << i, true
		}
	}
	return 0, false
}
