package bmff

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

const uint32Max = math.MaxUint32

// Trun flags.
const (
	TrunDataOffsetPresent                  = 0x000001
	TrunFirstSampleFlagsPresent            = 0x000004
	TrunSampleDurationPresent              = 0x000100
	TrunSampleSizePresent                  = 0x000200
	TrunSampleFlagsPresent                 = 0x000400
	TrunSampleCompositionTimeOffsetPresent = 0x000800
)

// Tfhd flags.
const (
	TfhdBaseDataOffsetPresent         = 0x000001
	TfhdSampleDescriptionIndexPresent = 0x000002
	TfhdDefaultSampleDurationPresent  = 0x000008
	TfhdDefaultSampleSizePresent      = 0x000010
	TfhdDefaultSampleFlagsPresent     = 0x000020
	TfhdDurationIsEmpty               = 0x010000
	TfhdDefaultBaseIsMoof             = 0x020000
)

// SampleIsNonSync is the sample_is_non_sync_sample bit of sample flags.
const SampleIsNonSync = 0x00010000

// SttsEntry is a time-to-sample entry.
type SttsEntry struct {
	Count    uint32
	Duration uint32
}

// CttsEntry is a composition offset entry. Version 0 offsets are stored
// unsigned but encoders write negative values there too, so both versions
// are read as signed.
type CttsEntry struct {
	Count  uint32
	Offset int32
}

// StscEntry is a sample-to-chunk entry.
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionId uint32
}

// ElstEntry is an edit list entry.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// TrunEntry is a track run sample entry.
type TrunEntry struct {
	Duration              uint32
	Size                  uint32
	Flags                 uint32
	CompositionTimeOffset int32
}

// table decodes a run of count fixed-size records starting at data[start:].
// The slice holds what was decoded before the data ran out, alongside
// ErrTruncated.
func table[E any](data []byte, start int, count uint32, stride int, decode func([]byte) E) ([]E, error) {
	out := make([]E, 0, capHint(count, data[min(start, len(data)):], stride))
	for p := start; uint32(len(out)) < count; p += stride {
		if p+stride > len(data) {
			return out, ErrTruncated
		}
		out = append(out, decode(data[p:p+stride]))
	}
	return out, nil
}

// countedTable decodes a table preceded by a 32-bit entry count.
func countedTable[E any](data []byte, stride int, decode func([]byte) E) ([]E, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	return table(data, 4, be.Uint32(data), stride, decode)
}

func readU32(b []byte) uint32 { return be.Uint32(b) }

func readStts(b []byte) SttsEntry {
	return SttsEntry{Count: be.Uint32(b), Duration: be.Uint32(b[4:])}
}

func readCtts(b []byte) CttsEntry {
	return CttsEntry{Count: be.Uint32(b), Offset: int32(be.Uint32(b[4:]))}
}

func readStsc(b []byte) StscEntry {
	return StscEntry{
		FirstChunk:          be.Uint32(b),
		SamplesPerChunk:     be.Uint32(b[4:]),
		SampleDescriptionId: be.Uint32(b[8:]),
	}
}

func readElst(version uint8, data []byte) ([]ElstEntry, error) {
	if version == 1 {
		return countedTable(data, 20, func(b []byte) ElstEntry {
			return ElstEntry{
				SegmentDuration: be.Uint64(b),
				MediaTime:       int64(be.Uint64(b[8:])),
				MediaRateInt:    int16(be.Uint16(b[16:])),
				MediaRateFrac:   int16(be.Uint16(b[18:])),
			}
		})
	}
	return countedTable(data, 12, func(b []byte) ElstEntry {
		return ElstEntry{
			SegmentDuration: uint64(be.Uint32(b)),
			MediaTime:       int64(int32(be.Uint32(b[4:]))),
			MediaRateInt:    int16(be.Uint16(b[8:])),
			MediaRateFrac:   int16(be.Uint16(b[10:])),
		}
	})
}

func readStsz(data []byte) (*Stsz, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	p := &Stsz{SampleSize: be.Uint32(data), SampleCount: be.Uint32(data[4:])}
	if p.SampleSize != 0 {
		return p, nil
	}
	var err error
	p.Sizes, err = table(data, 8, p.SampleCount, 4, readU32)
	return p, err
}

// readStz2 expands compact sample sizes. Field sizes other than 4, 8 and
// 16 bits are rejected.
func readStz2(data []byte) (*Stsz, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	field := int(data[3])
	p := &Stsz{SampleCount: be.Uint32(data[4:])}
	switch field {
	case 4:
		n := int(p.SampleCount)
		if 8+(n+1)/2 > len(data) {
			n = (len(data) - 8) * 2
		}
		p.Sizes = make([]uint32, n)
		for i := range p.Sizes {
			b := data[8+i/2]
			if i%2 == 0 {
				p.Sizes[i] = uint32(b >> 4)
			} else {
				p.Sizes[i] = uint32(b & 0x0f)
			}
		}
		if uint32(n) < p.SampleCount {
			return p, ErrTruncated
		}
		return p, nil
	case 8:
		var err error
		p.Sizes, err = table(data, 8, p.SampleCount, 1, func(b []byte) uint32 { return uint32(b[0]) })
		return p, err
	case 16:
		var err error
		p.Sizes, err = table(data, 8, p.SampleCount, 2, func(b []byte) uint32 { return uint32(be.Uint16(b)) })
		return p, err
	}
	p.SampleCount = 0
	return p, ErrTruncated
}

// readTrun decodes a track run. Per-sample fields are present according to
// flags; absent ones stay zero for the caller to default from tfhd/trex.
func readTrun(flags uint32, data []byte) (*Trun, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	t := &Trun{Flags: flags}
	count := be.Uint32(data)
	p := 4
	if t.Has(TrunDataOffsetPresent) {
		if p+4 > len(data) {
			return nil, ErrTruncated
		}
		t.DataOffset = int32(be.Uint32(data[p:]))
		p += 4
	}
	if t.Has(TrunFirstSampleFlagsPresent) {
		if p+4 > len(data) {
			return nil, ErrTruncated
		}
		t.FirstSampleFlags = be.Uint32(data[p:])
		p += 4
	}

	var fields []uint32
	for _, f := range []uint32{
		TrunSampleDurationPresent,
		TrunSampleSizePresent,
		TrunSampleFlagsPresent,
		TrunSampleCompositionTimeOffsetPresent,
	} {
		if t.Has(f) {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		// Every sample takes the defaults; nothing is stored per entry.
		if count > maxEmptyTrun {
			return nil, ErrTruncated
		}
		t.Entries = make([]TrunEntry, count)
		return t, nil
	}

	var err error
	t.Entries, err = table(data, p, count, 4*len(fields), func(b []byte) TrunEntry {
		var e TrunEntry
		for i, f := range fields {
			v := be.Uint32(b[4*i:])
			switch f {
			case TrunSampleDurationPresent:
				e.Duration = v
			case TrunSampleSizePresent:
				e.Size = v
			case TrunSampleFlagsPresent:
				e.Flags = v
			case TrunSampleCompositionTimeOffsetPresent:
				e.CompositionTimeOffset = int32(v)
			}
		}
		return e
	})
	return t, err
}

// maxEmptyTrun bounds the entries allocated for a trun that stores no
// per-sample fields, since its size does not limit its count.
const maxEmptyTrun = 1 << 20

// capHint bounds a preallocation by what the data can actually hold.
func capHint(count uint32, data []byte, stride int) int {
	return min(int(count), len(data)/max(stride, 1))
}
