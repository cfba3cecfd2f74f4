package bmff

import (
	"fmt"

	"github.com/tetsuo/mediaparse/media"
)

// Handler types.
var (
	HandlerVideo = BoxType{'v', 'i', 'd', 'e'}
	HandlerAudio = BoxType{'s', 'o', 'u', 'n'}
)

// NewTrack builds the track declared by trak. The first sample entry
// describes the codec.
func NewTrack(trak *Box) (*media.Track, error) {
	tkhd, ok := payloadOf[*Tkhd](trak, TypeTkhd)
	if !ok {
		return nil, corrupt(TypeTrak, trak.Offset, fmt.Errorf("%w: tkhd", ErrMissingTable))
	}
	mdia := trak.Child(TypeMdia)
	mdhd, ok := payloadOf[*Mdhd](mdia, TypeMdhd)
	if !ok {
		return nil, corrupt(TypeTrak, trak.Offset, fmt.Errorf("%w: mdhd", ErrMissingTable))
	}

	t := &media.Track{
		ID:        tkhd.TrackID,
		Timescale: mdhd.Timescale,
		Duration:  mdhd.Duration,
		Language:  Language(mdhd.Language),
		Rotation:  tkhd.Rotation(),
	}
	if hdlr, ok := payloadOf[*Hdlr](mdia, TypeHdlr); ok {
		switch hdlr.HandlerType {
		case HandlerVideo:
			t.Kind = media.Video
		case HandlerAudio:
			t.Kind = media.Audio
		}
	}

	if e := sampleEntry(trak); e != nil {
		t.Format = e.Format.String()
		t.Codec = e.Codec
		t.CodecData = e.Config
		t.CodedWidth, t.CodedHeight = e.CodedWidth, e.CodedHeight
		t.SampleRate, t.Channels = e.SampleRate, e.Channels
		if c := e.Color; c != nil && c.ICC == nil {
			t.Color = &media.Color{Primaries: c.Primaries, Transfer: c.Transfer, Matrix: c.Matrix, FullRange: c.FullRange}
		}
		if p := e.PixelAspect; p != nil {
			t.PixelAspect = &media.PixelAspect{H: p.HSpacing, V: p.VSpacing}
		}
	}

	if t.Kind == media.Video {
		t.Width, t.Height = int(tkhd.Width>>16), int(tkhd.Height>>16)
		if t.Width == 0 || t.Height == 0 {
			t.Width, t.Height = t.CodedWidth, t.CodedHeight
		}
	}

	if elst, ok := payloadOf[*Elst](trak.Child(TypeEdts), TypeElst); ok {
		for _, e := range elst.Entries {
			if e.MediaTime != -1 {
				t.EditMediaTime = e.MediaTime
				break
			}
		}
	}
	return t, nil
}

// sampleEntry returns the first sample entry of trak, or nil.
func sampleEntry(trak *Box) *SampleEntry {
	stsd := trak.Find(TypeMdia, TypeMinf, TypeStbl, TypeStsd)
	if stsd == nil || len(stsd.Children) == 0 {
		return nil
	}
	e, _ := stsd.Children[0].Payload.(*SampleEntry)
	return e
}

// DisplaySize returns the size t is presented at, with width and height
// swapped for quarter-turn rotations.
func DisplaySize(t *media.Track) media.Dimensions {
	if t.Rotation == 90 || t.Rotation == 270 {
		return media.Dimensions{Width: t.Height, Height: t.Width}
	}
	return media.Dimensions{Width: t.Width, Height: t.Height}
}
