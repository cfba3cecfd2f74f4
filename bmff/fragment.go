package bmff

import (
	"fmt"
	"sort"

	"github.com/tetsuo/mediaparse/media"
)

// Fragment is a parsed movie fragment and the samples it describes.
type Fragment struct {
	// Offset and Size locate the moof box.
	Offset int64
	Size   int64
	// Samples per track, in decode order.
	Samples map[uint32][]media.Sample
	// Complete is set once the fragment's extent is confirmed by a
	// following top-level box, a random access entry or the end of the
	// source.
	Complete bool
	// DataEnd is the end of the mdat that follows the moof, or 0 when it
	// has not been seen.
	DataEnd int64
	// Unanchored holds the tracks whose decode times could not be placed on
	// the track timeline. Their samples start at zero.
	Unanchored map[uint32]bool
}

// End returns the offset just past the fragment's media data, or past the
// moof when its mdat has not been seen.
func (f *Fragment) End() int64 {
	if f.DataEnd > 0 {
		return f.DataEnd
	}
	return f.Offset + f.Size
}

// TimeRange returns the presentation span of track id in seconds. It reports
// false when f has no samples of id or their times are unanchored.
func (f *Fragment) TimeRange(id uint32) (start, end float64, ok bool) {
	samples := f.Samples[id]
	if len(samples) == 0 || f.Unanchored[id] {
		return 0, 0, false
	}
	start, end = samples[0].Time(), samples[0].Time()
	for _, s := range samples {
		start = min(start, s.Time())
		end = max(end, s.Time()+s.DurationSeconds())
	}
	return start, end, true
}

// Defaults provides the per-track values a fragment falls back to.
type Defaults interface {
	// Trex returns the track extends defaults for id, or nil.
	Trex(id uint32) *Trex
	// Timescale returns the media timescale of track id, 0 when the track
	// is unknown.
	Timescale(id uint32) uint32
	// BaseDecodeTime returns the decode time of the first sample of track
	// id in the moof at offset moof, for a traf without tfdt. It reports
	// false when that time cannot be established.
	BaseDecodeTime(id uint32, moof int64) (uint64, bool)
}

// NewFragment resolves the samples of moof. Sample offsets follow the
// base-data-offset rules of tfhd and the data offsets of each trun.
func NewFragment(moof *Box, d Defaults) (*Fragment, error) {
	f := &Fragment{Offset: moof.Offset, Size: moof.Size, Samples: make(map[uint32][]media.Sample)}
	prevEnd := moof.Offset
	for ti, traf := range moof.ChildList(TypeTraf) {
		tfhd, ok := payloadOf[*Tfhd](traf, TypeTfhd)
		if !ok {
			return nil, corrupt(TypeTraf, traf.Offset, fmt.Errorf("%w: tfhd", ErrMissingTable))
		}
		timescale := d.Timescale(tfhd.TrackID)
		if timescale == 0 {
			return nil, corrupt(TypeTfhd, traf.Offset, fmt.Errorf("unknown track %d", tfhd.TrackID))
		}
		trex := d.Trex(tfhd.TrackID)
		if trex == nil {
			trex = &Trex{}
		}

		var base int64
		switch {
		case tfhd.Has(TfhdBaseDataOffsetPresent):
			base = int64(tfhd.BaseDataOffset)
		case tfhd.Has(TfhdDefaultBaseIsMoof), ti == 0:
			base = moof.Offset
		default:
			base = prevEnd
		}

		var dts uint64
		anchored := true
		if tfdt, ok := payloadOf[*Tfdt](traf, TypeTfdt); ok {
			dts = tfdt.BaseMediaDecodeTime
		} else if next, ok := f.NextDecodeTime(tfhd.TrackID); ok {
			// A later traf of the same track continues the earlier one.
			dts, anchored = next, !f.Unanchored[tfhd.TrackID]
		} else {
			dts, anchored = d.BaseDecodeTime(tfhd.TrackID, moof.Offset)
		}
		if !anchored {
			if f.Unanchored == nil {
				f.Unanchored = make(map[uint32]bool)
			}
			f.Unanchored[tfhd.TrackID] = true
		}

		off := base
		samples := f.Samples[tfhd.TrackID]
		for ri, rb := range traf.ChildList(TypeTrun) {
			trun, ok := rb.Payload.(*Trun)
			if !ok {
				continue
			}
			if trun.Has(TrunDataOffsetPresent) {
				off = base + int64(trun.DataOffset)
			}
			for i, e := range trun.Entries {
				duration := e.Duration
				if !trun.Has(TrunSampleDurationPresent) {
					duration = pick(tfhd.Has(TfhdDefaultSampleDurationPresent), tfhd.DefaultSampleDuration, trex.DefaultSampleDuration)
				}
				size := e.Size
				if !trun.Has(TrunSampleSizePresent) {
					size = pick(tfhd.Has(TfhdDefaultSampleSizePresent), tfhd.DefaultSampleSize, trex.DefaultSampleSize)
				}
				var flags uint32
				switch {
				case i == 0 && trun.Has(TrunFirstSampleFlagsPresent):
					flags = trun.FirstSampleFlags
				case trun.Has(TrunSampleFlagsPresent):
					flags = e.Flags
				default:
					flags = pick(tfhd.Has(TfhdDefaultSampleFlagsPresent), tfhd.DefaultSampleFlags, trex.DefaultSampleFlags)
				}
				var cto int64
				if trun.Has(TrunSampleCompositionTimeOffsetPresent) {
					cto = int64(e.CompositionTimeOffset)
				}
				samples = append(samples, media.Sample{
					TrackID:               tfhd.TrackID,
					Offset:                off,
					Size:                  int64(size),
					DecodingTimestamp:     int64(dts),
					PresentationTimestamp: int64(dts) + cto,
					Duration:              int64(duration),
					Timescale:             timescale,
					IsKeyframe:            flags&SampleIsNonSync == 0,
					ChunkIndex:            ri,
				})
				off += int64(size)
				dts += uint64(duration)
			}
		}
		f.Samples[tfhd.TrackID] = samples
		prevEnd = off
	}
	return f, nil
}

func pick(ok bool, v, fallback uint32) uint32 {
	if ok {
		return v
	}
	return fallback
}

// NextDecodeTime returns the decode time following the last sample of
// track id in f, and false when f has no samples of id.
func (f *Fragment) NextDecodeTime(id uint32) (uint64, bool) {
	samples := f.Samples[id]
	if len(samples) == 0 {
		return 0, false
	}
	last := samples[len(samples)-1]
	return uint64(last.DecodingTimestamp + last.Duration), true
}

// AllSamples returns the samples of every track sorted by offset.
func (f *Fragment) AllSamples() []media.Sample {
	var out []media.Sample
	ids := make([]uint32, 0, len(f.Samples))
	for id := range f.Samples {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, f.Samples[id]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
