package bmff

import (
	"fmt"

	"github.com/tetsuo/mediaparse/media"
)

// SampleTable expands the sample tables of trak into one Sample per coded
// sample, in decode order. stsz (or stz2), stts, stsc and stco (or co64)
// are required.
func SampleTable(trak *Box) ([]media.Sample, error) {
	tkhd, _ := payloadOf[*Tkhd](trak, TypeTkhd)
	mdhd, _ := payloadOf[*Mdhd](trak.Child(TypeMdia), TypeMdhd)
	stbl := trak.Find(TypeMdia, TypeMinf, TypeStbl)
	if tkhd == nil || mdhd == nil || stbl == nil {
		return nil, corrupt(TypeTrak, trak.Offset, fmt.Errorf("%w: stbl", ErrMissingTable))
	}
	missing := func(name string) error {
		return corrupt(TypeStbl, stbl.Offset, fmt.Errorf("%w: %s", ErrMissingTable, name))
	}

	stsz, ok := payloadOf[*Stsz](stbl, TypeStsz)
	if !ok {
		if stsz, ok = payloadOf[*Stsz](stbl, TypeStz2); !ok {
			return nil, missing("stsz")
		}
	}
	stts, ok := payloadOf[*Stts](stbl, TypeStts)
	if !ok {
		return nil, missing("stts")
	}
	stsc, ok := payloadOf[*Stsc](stbl, TypeStsc)
	if !ok {
		return nil, missing("stsc")
	}
	co, ok := payloadOf[*ChunkOffsets](stbl, TypeCo64)
	if !ok {
		if co, ok = payloadOf[*ChunkOffsets](stbl, TypeStco); !ok {
			return nil, missing("stco")
		}
	}
	ctts, _ := payloadOf[*Ctts](stbl, TypeCtts)
	stss, _ := payloadOf[*Stss](stbl, TypeStss)

	n := int(stsz.SampleCount)
	if stsz.SampleSize == 0 && len(stsz.Sizes) < n {
		n = len(stsz.Sizes)
	}
	var sync []bool
	if stss != nil {
		sync = make([]bool, n)
		for _, num := range stss.SampleNumbers {
			if num >= 1 && int(num) <= n {
				sync[num-1] = true
			}
		}
	}

	samples := make([]media.Sample, 0, n)

	// Time iterators
	var dts int64
	sttsIdx, sttsLeft := 0, uint32(0)
	if len(stts.Entries) > 0 {
		sttsLeft = stts.Entries[0].Count
	}
	cttsIdx, cttsLeft := 0, uint32(0)
	if ctts != nil && len(ctts.Entries) > 0 {
		cttsLeft = ctts.Entries[0].Count
	}
	var duration uint32

	for i, e := range stsc.Entries {
		if e.FirstChunk == 0 || int(e.FirstChunk) > len(co.Offsets) {
			return nil, corrupt(TypeStsc, stbl.Offset, fmt.Errorf("first chunk %d of %d", e.FirstChunk, len(co.Offsets)))
		}
		last := uint32(len(co.Offsets))
		if i+1 < len(stsc.Entries) {
			next := stsc.Entries[i+1].FirstChunk
			if next <= e.FirstChunk {
				return nil, corrupt(TypeStsc, stbl.Offset, fmt.Errorf("chunk runs out of order at entry %d", i+1))
			}
			last = min(next-1, last)
		}
		for chunk := e.FirstChunk; chunk <= last && len(samples) < n; chunk++ {
			off := int64(co.Offsets[chunk-1])
			for k := uint32(0); k < e.SamplesPerChunk && len(samples) < n; k++ {
				idx := len(samples)
				size := int64(stsz.Size(idx))

				for sttsLeft == 0 && sttsIdx+1 < len(stts.Entries) {
					sttsIdx++
					sttsLeft = stts.Entries[sttsIdx].Count
				}
				if sttsLeft > 0 {
					duration = stts.Entries[sttsIdx].Duration
					sttsLeft--
				}

				var cto int64
				if ctts != nil {
					for cttsLeft == 0 && cttsIdx+1 < len(ctts.Entries) {
						cttsIdx++
						cttsLeft = ctts.Entries[cttsIdx].Count
					}
					if cttsLeft > 0 {
						cto = int64(ctts.Entries[cttsIdx].Offset)
						cttsLeft--
					}
				}

				samples = append(samples, media.Sample{
					TrackID:               tkhd.TrackID,
					Offset:                off,
					Size:                  size,
					DecodingTimestamp:     dts,
					PresentationTimestamp: dts + cto,
					Duration:              int64(duration),
					Timescale:             mdhd.Timescale,
					IsKeyframe:            sync == nil || sync[idx],
					ChunkIndex:            int(chunk - 1),
				})
				off += size
				dts += int64(duration)
			}
		}
	}
	if len(samples) < n {
		return nil, corrupt(TypeStsc, stbl.Offset, fmt.Errorf("chunks hold %d of %d samples", len(samples), n))
	}
	return samples, nil
}
