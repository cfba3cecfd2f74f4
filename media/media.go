// Package media holds the data model shared by the parse loop and the
// container demuxers: tracks, samples, output fields, step actions and the
// contract a demuxer implements.
package media

import "fmt"

// Kind classifies a track.
type Kind int

const (
	// Other is a track that is neither video nor audio.
	Other Kind = iota
	// Video is a visual track.
	Video
	// Audio is a sound track.
	Audio
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	}
	return "other"
}

// Color is the colour description of a video track.
type Color struct {
	Primaries uint16 `json:"primaries"`
	Transfer  uint16 `json:"transfer"`
	Matrix    uint16 `json:"matrix"`
	FullRange bool   `json:"fullRange"`
}

// PixelAspect is a pixel aspect ratio.
type PixelAspect struct {
	H uint32 `json:"h"`
	V uint32 `json:"v"`
}

// Track is a declared track. It is created once and not modified afterwards.
type Track struct {
	ID   uint32
	Kind Kind
	// Format is the four-character sample entry type.
	Format string
	// Codec is an RFC 6381 codec string such as "avc1.64001f" or "mp4a.40.2".
	Codec string
	// CodecData is the decoder configuration record, if any.
	CodecData []byte
	Timescale uint32
	// Duration is in Timescale units; 0 when unknown.
	Duration uint64
	Language string

	// Video.
	Width, Height           int
	CodedWidth, CodedHeight int
	Rotation                int
	Color                   *Color
	PixelAspect             *PixelAspect

	// Audio.
	SampleRate int
	Channels   int

	// EditMediaTime is the media time at which presentation starts, taken
	// from the first non-empty edit.
	EditMediaTime int64
}

func (t *Track) String() string {
	return fmt.Sprintf("track %d (%s %s)", t.ID, t.Kind, t.Codec)
}

// Sample describes one coded sample. Timestamps are in Timescale units.
type Sample struct {
	TrackID               uint32
	Offset                int64
	Size                  int64
	DecodingTimestamp     int64
	PresentationTimestamp int64
	Duration              int64
	Timescale             uint32
	IsKeyframe            bool
	ChunkIndex            int
}

// End returns the offset just past the sample.
func (s Sample) End() int64 { return s.Offset + s.Size }

// Time returns the presentation time in seconds.
func (s Sample) Time() float64 { return s.seconds(s.PresentationTimestamp) }

// DecodingTime returns the decoding time in seconds.
func (s Sample) DecodingTime() float64 { return s.seconds(s.DecodingTimestamp) }

// DurationSeconds returns the duration in seconds.
func (s Sample) DurationSeconds() float64 { return s.seconds(s.Duration) }

func (s Sample) seconds(v int64) float64 {
	if s.Timescale == 0 {
		return 0
	}
	return float64(v) / float64(s.Timescale)
}

// Keyframe is a random access point.
type Keyframe struct {
	TrackID          uint32  `json:"trackId"`
	PresentationTime float64 `json:"presentationTime"`
	DecodingTime     float64 `json:"decodingTime"`
	Offset           int64   `json:"offset"`
	Size             int64   `json:"size"`
}

// KeyframeOf converts s to a Keyframe.
func KeyframeOf(s Sample) Keyframe {
	return Keyframe{
		TrackID:          s.TrackID,
		PresentationTime: s.Time(),
		DecodingTime:     s.DecodingTime(),
		Offset:           s.Offset,
		Size:             s.Size,
	}
}

// Dimensions is a display size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
