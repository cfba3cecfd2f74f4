package bmff

import (
	"context"
	"fmt"

	"github.com/tetsuo/mediaparse/media"
)

// Seek resolves the target time t, in seconds, against the structure parsed
// so far. The primary track is the first video track, else the first audio
// track. A DoSeek result disables jump planning for the rest of the session.
func (d *Demuxer) Seek(ctx context.Context, t float64) (media.SeekResolution, error) {
	res, err := d.resolveSeek(ctx, t)
	if err != nil {
		return media.SeekResolution{}, err
	}
	switch res.Kind {
	case media.DoSeek, media.IntermediarySeek:
		if res.Byte > d.h.Cursor().Offset() && d.h.NeedsAllSamples() {
			return media.SeekResolution{}, fmt.Errorf("%w to %d: %w", ErrForwardSeek, res.Byte, media.ErrUsage)
		}
	}
	if res.Kind == media.DoSeek {
		d.seeked = true
		for _, p := range d.plans {
			p.jumps = nil
			p.resume = -1
		}
	}
	d.log.Debug("seek", "time", t, "resolution", res)
	return res, nil
}

func (d *Demuxer) resolveSeek(ctx context.Context, t float64) (media.SeekResolution, error) {
	if d.moov == nil {
		return media.SeekResolution{Kind: media.MustWait}, nil
	}
	ts := d.first(media.Video)
	if ts == nil {
		ts = d.first(media.Audio)
	}
	if ts == nil {
		return media.SeekResolution{Kind: media.Invalid}, nil
	}

	if !d.fragmented {
		list, err := d.table(ts)
		if err != nil {
			return media.SeekResolution{}, err
		}
		k, ok := KeyframeBefore(list, t)
		if !ok {
			return media.SeekResolution{Kind: media.Invalid}, nil
		}
		return d.landOn(k), nil
	}
	return d.resolveFragmented(ctx, ts.track.ID, t)
}

// landOn seeks to s once its bytes lie in an observed media section.
func (d *Demuxer) landOn(s media.Sample) media.SeekResolution {
	if _, ok := d.h.Sections().Find(s.Offset); !ok {
		return media.SeekResolution{Kind: media.MustWait, Time: s.Time()}
	}
	return media.SeekResolution{Kind: media.DoSeek, Byte: s.Offset, Time: s.Time()}
}

func (d *Demuxer) resolveFragmented(ctx context.Context, id uint32, t float64) (media.SeekResolution, error) {
	var known []media.Sample
	var cover *Fragment
	for _, f := range d.fragments {
		start, end, ok := f.TimeRange(id)
		if !ok {
			continue
		}
		known = append(known, f.Samples[id]...)
		if t >= start && t < end {
			cover = f
		}
	}
	if cover != nil {
		if k, ok := KeyframeBefore(known, t); ok {
			return d.landOn(k), nil
		}
	}

	if err := d.loadMfra(ctx); err != nil {
		return media.SeekResolution{}, err
	}
	if p, ok := PointBefore(d.points(), id, t); ok {
		f := d.fragmentAt(p.Offset)
		switch {
		case f == nil:
			return media.SeekResolution{Kind: media.IntermediarySeek, Byte: p.Offset, Time: p.Time}, nil
		case f.Complete:
			return media.SeekResolution{Kind: media.IntermediarySeek, Byte: f.End(), Time: p.Time}, nil
		}
	}

	// Without an index, continue after the last fragment whose media data
	// has been seen.
	if n := len(d.fragments); n > 0 {
		last := d.fragments[n-1]
		if _, end, ok := last.TimeRange(id); ok && t >= end && last.DataEnd > 0 {
			return media.SeekResolution{Kind: media.IntermediarySeek, Byte: last.End(), Time: end}, nil
		}
	}
	return media.SeekResolution{Kind: media.MustWait}, nil
}

// KeyframeBefore returns the keyframe with the latest presentation time at
// or before t, the lowest offset winning ties. When t precedes every
// keyframe the earliest keyframe is returned.
func KeyframeBefore(samples []media.Sample, t float64) (media.Sample, bool) {
	var best, earliest media.Sample
	found, seen := false, false
	for _, s := range samples {
		if !s.IsKeyframe {
			continue
		}
		st := s.Time()
		if !seen || st < earliest.Time() || (st == earliest.Time() && s.Offset < earliest.Offset) {
			earliest, seen = s, true
		}
		if st > t {
			continue
		}
		if !found || st > best.Time() || (st == best.Time() && s.Offset < best.Offset) {
			best, found = s, true
		}
	}
	if found {
		return best, true
	}
	return earliest, seen
}
