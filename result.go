package mediaparse

import (
	"github.com/tetsuo/mediaparse/media"
)

// Result holds the fields a session resolved. Fields outside Resolved keep
// their zero values.
type Result struct {
	Container             string            `json:"container,omitempty"`
	Size                  int64             `json:"size,omitempty"`
	Tracks                []*media.Track    `json:"tracks,omitempty"`
	VideoCodec            string            `json:"videoCodec,omitempty"`
	AudioCodec            string            `json:"audioCodec,omitempty"`
	Dimensions            *media.Dimensions `json:"dimensions,omitempty"`
	Rotation              int               `json:"rotation"`
	DurationInSeconds     float64           `json:"durationInSeconds,omitempty"`
	Fps                   float64           `json:"fps,omitempty"`
	SampleRate            int               `json:"sampleRate,omitempty"`
	NumberOfAudioChannels int               `json:"numberOfAudioChannels,omitempty"`
	Keyframes             []media.Keyframe  `json:"keyframes,omitempty"`
	IsFragmented          bool              `json:"isFragmented"`
	Language              string            `json:"language,omitempty"`

	SlowNumberOfFrames    int              `json:"slowNumberOfFrames,omitempty"`
	SlowKeyframes         []media.Keyframe `json:"slowKeyframes,omitempty"`
	SlowDurationInSeconds float64          `json:"slowDurationInSeconds,omitempty"`

	// Resolved is the set of fields that were computed.
	Resolved media.Field `json:"-"`
	// Hints captures the session for replay.
	Hints *Hints `json:"-"`
	// Err is the error that ended the session early when Options.OnError
	// chose StopWithPartialResult.
	Err error `json:"-"`
}

// set stores v for f. It reports false when f was already resolved.
func (r *Result) set(f media.Field, v any) bool {
	if r.Resolved.Has(f) {
		return false
	}
	switch f {
	case media.FieldContainer:
		r.Container = v.(string)
	case media.FieldSize:
		r.Size = v.(int64)
	case media.FieldTracks:
		r.Tracks = v.([]*media.Track)
	case media.FieldVideoCodec:
		r.VideoCodec = v.(string)
	case media.FieldAudioCodec:
		r.AudioCodec = v.(string)
	case media.FieldDimensions:
		r.Dimensions = v.(*media.Dimensions)
	case media.FieldRotation:
		r.Rotation = v.(int)
	case media.FieldDurationInSeconds:
		r.DurationInSeconds = v.(float64)
	case media.FieldFps:
		r.Fps = v.(float64)
	case media.FieldSampleRate:
		r.SampleRate = v.(int)
	case media.FieldNumberOfAudioChannels:
		r.NumberOfAudioChannels = v.(int)
	case media.FieldKeyframes:
		r.Keyframes = v.([]media.Keyframe)
	case media.FieldIsFragmented:
		r.IsFragmented = v.(bool)
	case media.FieldLanguage:
		r.Language = v.(string)
	case media.FieldSlowNumberOfFrames:
		r.SlowNumberOfFrames = v.(int)
	case media.FieldSlowKeyframes:
		r.SlowKeyframes = v.([]media.Keyframe)
	case media.FieldSlowDurationInSeconds:
		r.SlowDurationInSeconds = v.(float64)
	default:
		return false
	}
	r.Resolved |= f
	return true
}

// slowStats accumulates the fields that need every sample.
type slowStats struct {
	video     uint32 // first video track, 0 if none
	frames    int
	keyframes []media.Keyframe
	end       float64
	last      map[uint32]int64 // highest offset counted per track
}

func (s *slowStats) add(sample media.Sample) {
	if s.last == nil {
		s.last = make(map[uint32]int64)
	}
	if prev, ok := s.last[sample.TrackID]; ok && sample.Offset <= prev {
		return
	}
	s.last[sample.TrackID] = sample.Offset
	s.end = max(s.end, sample.Time()+sample.DurationSeconds())
	if sample.TrackID != s.video {
		return
	}
	s.frames++
	if sample.IsKeyframe {
		s.keyframes = append(s.keyframes, media.KeyframeOf(sample))
	}
}
