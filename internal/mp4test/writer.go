// Package mp4test writes ISO-BMFF byte fixtures for tests. Box types are
// plain strings so the package stays independent of the parser under test.
package mp4test

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

// Writer encodes ISO-BMFF boxes into a growing byte buffer.
type Writer struct {
	buf   []byte
	stack []int
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Write appends raw bytes. Implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// U8 appends a single byte.
func (w *Writer) U8(v byte) { w.buf = append(w.buf, v) }

// U16 appends a big-endian uint16.
func (w *Writer) U16(v uint16) { w.buf = be.AppendUint16(w.buf, v) }

// U32 appends a big-endian uint32.
func (w *Writer) U32(v uint32) { w.buf = be.AppendUint32(w.buf, v) }

// U64 appends a big-endian uint64.
func (w *Writer) U64(v uint64) { w.buf = be.AppendUint64(w.buf, v) }

// Zeros appends n zero bytes.
func (w *Writer) Zeros(n int) { w.buf = append(w.buf, make([]byte, n)...) }

// Tag appends a four-character code.
func (w *Writer) Tag(t string) {
	var b [4]byte
	copy(b[:], t)
	w.buf = append(w.buf, b[:]...)
}

// StartBox begins a new box. Write content, then call EndBox.
func (w *Writer) StartBox(t string) {
	w.stack = append(w.stack, len(w.buf))
	w.U32(0) // placeholder size
	w.Tag(t)
}

// StartFullBox begins a new full box with version and flags.
func (w *Writer) StartFullBox(t string, version uint8, flags uint32) {
	w.StartBox(t)
	w.U32(uint32(version)<<24 | flags&0x00ffffff)
}

// EndBox finishes the current box by backpatching its size.
func (w *Writer) EndBox() {
	n := len(w.stack) - 1
	start := w.stack[n]
	w.stack = w.stack[:n]
	be.PutUint32(w.buf[start:], uint32(len(w.buf)-start))
}

// Box writes a complete box with the given body.
func (w *Writer) Box(t string, body []byte) {
	w.StartBox(t)
	w.buf = append(w.buf, body...)
	w.EndBox()
}

// Ftyp writes a complete ftyp box.
func (w *Writer) Ftyp(brand string, compat ...string) {
	w.StartBox("ftyp")
	w.Tag(brand)
	w.U32(0x200)
	for _, c := range compat {
		w.Tag(c)
	}
	w.EndBox()
}

// Mvhd writes a complete mvhd box.
func (w *Writer) Mvhd(timescale uint32, duration uint64, nextTrackID uint32) {
	if duration > math.MaxUint32 {
		w.StartFullBox("mvhd", 1, 0)
		w.U64(0) // creation time
		w.U64(0) // modification time
		w.U32(timescale)
		w.U64(duration)
	} else {
		w.StartFullBox("mvhd", 0, 0)
		w.U32(0) // creation time
		w.U32(0) // modification time
		w.U32(timescale)
		w.U32(uint32(duration))
	}
	w.U32(0x00010000) // rate 1.0
	w.U16(0x0100)     // volume 1.0
	w.Zeros(10)       // reserved
	w.matrix(0)
	w.Zeros(24) // predefined
	w.U32(nextTrackID)
	w.EndBox()
}

// matrix writes a transformation matrix rotating by deg degrees clockwise.
func (w *Writer) matrix(deg int) {
	const one = 0x00010000
	a, b, c, d := int32(one), int32(0), int32(0), int32(one)
	switch deg {
	case 90:
		a, b, c, d = 0, one, -one, 0
	case 180:
		a, d = -one, -one
	case 270:
		a, b, c, d = 0, -one, one, 0
	}
	for _, v := range []int32{a, b, 0, c, d, 0, 0, 0, 0x40000000} {
		w.U32(uint32(v))
	}
}

// Tkhd writes a complete tkhd box. width and height are in pixels.
func (w *Writer) Tkhd(trackID uint32, duration uint64, width, height uint16, rotation int) {
	w.StartFullBox("tkhd", 0, 3)
	w.U32(0) // creation time
	w.U32(0) // modification time
	w.U32(trackID)
	w.U32(0) // reserved
	w.U32(uint32(duration))
	w.Zeros(8) // reserved
	w.U16(0)   // layer
	w.U16(0)   // alternate group
	w.U16(0)   // volume
	w.U16(0)   // reserved
	w.matrix(rotation)
	w.U32(uint32(width) << 16)
	w.U32(uint32(height) << 16)
	w.EndBox()
}

// Mdhd writes a complete mdhd box. language is a three-letter ISO-639-2
// code, "" for und.
func (w *Writer) Mdhd(timescale uint32, duration uint64, language string) {
	w.StartFullBox("mdhd", 0, 0)
	w.U32(0) // creation time
	w.U32(0) // modification time
	w.U32(timescale)
	w.U32(uint32(duration))
	w.U16(PackLanguage(language))
	w.U16(0) // quality
	w.EndBox()
}

// PackLanguage packs a three-letter code the way mdhd stores it.
func PackLanguage(code string) uint16 {
	if len(code) != 3 {
		code = "und"
	}
	var v uint16
	for i := 0; i < 3; i++ {
		v = v<<5 | uint16(code[i]-0x60)&0x1f
	}
	return v
}

// Hdlr writes a complete hdlr box.
func (w *Writer) Hdlr(handlerType, name string) {
	w.StartFullBox("hdlr", 0, 0)
	w.U32(0) // predefined
	w.Tag(handlerType)
	w.Zeros(12) // reserved
	w.buf = append(w.buf, name...)
	w.U8(0) // null terminator
	w.EndBox()
}

// VisualSampleEntry writes the 78-byte visual sample entry header.
// The caller must start the box (e.g. avc1) and end it after writing children.
func (w *Writer) VisualSampleEntry(width, height uint16) {
	w.Zeros(6)   // reserved
	w.U16(1)     // data reference index
	w.Zeros(16)  // predefined + reserved
	w.U16(width) // width
	w.U16(height)
	w.U32(0x00480000) // hresolution 72 dpi
	w.U32(0x00480000) // vresolution 72 dpi
	w.Zeros(4)        // reserved
	w.U16(1)          // frame count
	w.Zeros(32)       // compressor name
	w.U16(0x18)       // depth
	w.U16(0xffff)     // predefined = -1
}

// AudioSampleEntry writes the 28-byte audio sample entry header.
// The caller must start the box (e.g. mp4a) and end it after writing children.
func (w *Writer) AudioSampleEntry(channels uint16, sampleRate uint32) {
	w.Zeros(6)      // reserved
	w.U16(1)        // data reference index
	w.Zeros(8)      // reserved
	w.U16(channels) // channel count
	w.U16(16)       // sample size
	w.Zeros(4)      // predefined + reserved
	w.U32(sampleRate << 16)
}

// Stsz writes a complete stsz box.
func (w *Writer) Stsz(sampleSize uint32, count uint32, sizes []uint32) {
	w.StartFullBox("stsz", 0, 0)
	w.U32(sampleSize)
	w.U32(count)
	if sampleSize == 0 {
		for _, s := range sizes {
			w.U32(s)
		}
	}
	w.EndBox()
}

// Stco writes a complete stco box.
func (w *Writer) Stco(offsets []uint32) {
	w.StartFullBox("stco", 0, 0)
	w.U32(uint32(len(offsets)))
	for _, o := range offsets {
		w.U32(o)
	}
	w.EndBox()
}

// U32List writes a full box holding a counted list of uint32 values, the
// layout of stss and stco.
func (w *Writer) U32List(t string, values []uint32) {
	w.StartFullBox(t, 0, 0)
	w.U32(uint32(len(values)))
	for _, v := range values {
		w.U32(v)
	}
	w.EndBox()
}

// Pairs writes a full box holding a counted list of uint32 pairs, the
// layout of stts and ctts.
func (w *Writer) Pairs(t string, version uint8, pairs [][2]uint32) {
	w.StartFullBox(t, version, 0)
	w.U32(uint32(len(pairs)))
	for _, p := range pairs {
		w.U32(p[0])
		w.U32(p[1])
	}
	w.EndBox()
}

// Stsc writes a complete stsc box from (first chunk, samples per chunk)
// pairs.
func (w *Writer) Stsc(entries [][2]uint32) {
	w.StartFullBox("stsc", 0, 0)
	w.U32(uint32(len(entries)))
	for _, e := range entries {
		w.U32(e[0])
		w.U32(e[1])
		w.U32(1) // sample description index
	}
	w.EndBox()
}

// Elst writes a version 0 elst box with (segment duration, media time)
// entries.
func (w *Writer) Elst(entries [][2]int64) {
	w.StartFullBox("elst", 0, 0)
	w.U32(uint32(len(entries)))
	for _, e := range entries {
		w.U32(uint32(e[0]))
		w.U32(uint32(int32(e[1])))
		w.U16(1) // media rate integer
		w.U16(0) // media rate fraction
	}
	w.EndBox()
}

// Mehd writes a complete mehd box.
func (w *Writer) Mehd(fragmentDuration uint64) {
	w.StartFullBox("mehd", 0, 0)
	w.U32(uint32(fragmentDuration))
	w.EndBox()
}

// Trex writes a complete trex box.
func (w *Writer) Trex(trackID, defDuration, defSize, defFlags uint32) {
	w.StartFullBox("trex", 0, 0)
	w.U32(trackID)
	w.U32(1) // sample description index
	w.U32(defDuration)
	w.U32(defSize)
	w.U32(defFlags)
	w.EndBox()
}

// Mfhd writes a complete mfhd box.
func (w *Writer) Mfhd(sequenceNumber uint32) {
	w.StartFullBox("mfhd", 0, 0)
	w.U32(sequenceNumber)
	w.EndBox()
}

// Tfhd writes a tfhd box with default-base-is-moof set.
func (w *Writer) Tfhd(trackID uint32) {
	w.StartFullBox("tfhd", 0, 0x020000)
	w.U32(trackID)
	w.EndBox()
}

// Tfdt writes a version 1 tfdt box.
func (w *Writer) Tfdt(baseMediaDecodeTime uint64) {
	w.StartFullBox("tfdt", 1, 0)
	w.U64(baseMediaDecodeTime)
	w.EndBox()
}

// Trun flags written by Trun.
const (
	TrunDataOffset  = 0x000001
	TrunDuration    = 0x000100
	TrunSize        = 0x000200
	TrunFlags       = 0x000400
	TrunCompOffsets = 0x000800
)

// NonSync is the sample_is_non_sync_sample flag.
const NonSync = 0x00010000

// Trun writes a version 1 trun box carrying duration, size, flags and
// composition offset for every sample.
func (w *Writer) Trun(dataOffset int32, samples []Sample) {
	w.StartFullBox("trun", 1, TrunDataOffset|TrunDuration|TrunSize|TrunFlags|TrunCompOffsets)
	w.U32(uint32(len(samples)))
	w.U32(uint32(dataOffset))
	for _, s := range samples {
		w.U32(s.Duration)
		w.U32(s.Size)
		if s.Sync {
			w.U32(0x02000000)
		} else {
			w.U32(0x01000000 | NonSync)
		}
		w.U32(uint32(s.CTO))
	}
	w.EndBox()
}

// TfraEntry is one random access entry.
type TfraEntry struct {
	Time       uint64
	MoofOffset uint64
}

// Tfra writes a version 1 tfra box with one-byte traf, trun and sample
// numbers.
func (w *Writer) Tfra(trackID uint32, entries []TfraEntry) {
	w.StartFullBox("tfra", 1, 0)
	w.U32(trackID)
	w.U32(0) // length sizes: all one byte
	w.U32(uint32(len(entries)))
	for _, e := range entries {
		w.U64(e.Time)
		w.U64(e.MoofOffset)
		w.U8(1)
		w.U8(1)
		w.U8(1)
	}
	w.EndBox()
}

// Mfro writes a complete mfro box.
func (w *Writer) Mfro(mfraSize uint32) {
	w.StartFullBox("mfro", 0, 0)
	w.U32(mfraSize)
	w.EndBox()
}

// SidxEntry represents one reference in a sidx box.
type SidxEntry struct {
	ReferencedSize uint32 // size in bytes of the referenced material
	SubsegDuration uint32 // duration in timescale units
}

// Sidx writes a version 1 segment index box.
func (w *Writer) Sidx(trackID, timescale uint32, earliestPTS, firstOffset uint64, entries []SidxEntry) {
	w.StartFullBox("sidx", 1, 0)
	w.U32(trackID) // reference_ID
	w.U32(timescale)
	w.U64(earliestPTS) // earliest_presentation_time
	w.U64(firstOffset) // first_offset
	w.U16(0)           // reserved
	w.U16(uint16(len(entries)))
	for _, e := range entries {
		w.U32(e.ReferencedSize & 0x7fffffff)
		w.U32(e.SubsegDuration)
		w.U32(0x90000000) // starts with SAP, type 1
	}
	w.EndBox()
}
