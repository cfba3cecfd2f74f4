package mp4test

import "sort"

// Sample is one coded sample of a fixture track.
type Sample struct {
	Size     uint32
	Duration uint32
	CTO      int32
	Sync     bool
}

// Track describes a fixture track.
type Track struct {
	ID        uint32
	Handler   string // "vide" or "soun"
	Timescale uint32
	Language  string
	Rotation  int

	// Format is the sample entry type, e.g. "avc1" or "mp4a".
	Format     string
	ConfigType string
	Config     []byte

	Width, Height uint16
	Channels      uint16
	SampleRate    uint32

	Samples []Sample
	// ChunkSize is the number of samples per chunk; 0 means one.
	ChunkSize int
	// MediaTime is written as a single edit list entry when non-zero.
	MediaTime int64
}

// Duration returns the sum of the sample durations.
func (t Track) Duration() uint64 {
	var d uint64
	for _, s := range t.Samples {
		d += uint64(s.Duration)
	}
	return d
}

// SPS720p is an H.264 High profile sequence parameter set for 1280x720.
var SPS720p = []byte{
	0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
	0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
	0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
	0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
}

// AvcC returns an AVC decoder configuration record holding sps and a
// minimal PPS.
func AvcC(sps []byte) []byte {
	pps := []byte{0x68, 0xeb, 0xe3, 0xcb}
	var w Writer
	w.U8(1)
	w.U8(sps[1])
	w.U8(sps[2])
	w.U8(sps[3])
	w.U8(0xff) // 4-byte NAL lengths
	w.U8(0xe1) // one SPS
	w.U16(uint16(len(sps)))
	w.Write(sps)
	w.U8(1) // one PPS
	w.U16(uint16(len(pps)))
	w.Write(pps)
	return w.Bytes()
}

// Esds returns an esds body (after version and flags) describing an MPEG-4
// audio stream with the given AudioSpecificConfig.
func Esds(asc []byte) []byte {
	var w Writer
	w.U8(0x03) // ES_Descriptor
	w.U8(byte(3 + 2 + 13 + 2 + len(asc) + 3))
	w.U16(1) // ES_ID
	w.U8(0)  // flags
	w.U8(0x04)
	w.U8(byte(13 + 2 + len(asc)))
	w.U8(0x40)    // object type: MPEG-4 audio
	w.U8(0x15)    // stream type audio
	w.Zeros(3)    // buffer size
	w.U32(128000) // max bitrate
	w.U32(128000) // avg bitrate
	w.U8(0x05)    // DecoderSpecificInfo
	w.U8(byte(len(asc)))
	w.Write(asc)
	w.U8(0x06) // SLConfigDescriptor
	w.U8(1)
	w.U8(2)
	return w.Bytes()
}

// ASCLC44100Stereo is an AAC-LC AudioSpecificConfig for 44.1 kHz stereo.
var ASCLC44100Stereo = []byte{0x12, 0x10}

// VideoTrack returns an avc1 track of n samples of 1/fps seconds each with
// a keyframe every gop samples.
func VideoTrack(id uint32, n, fps, gop int) Track {
	t := Track{
		ID:         id,
		Handler:    "vide",
		Timescale:  uint32(fps * 1000),
		Format:     "avc1",
		ConfigType: "avcC",
		Config:     AvcC(SPS720p),
		Width:      1280,
		Height:     720,
	}
	for i := 0; i < n; i++ {
		size := uint32(300 + i%7*10)
		if i%gop == 0 {
			size = 2000
		}
		t.Samples = append(t.Samples, Sample{Size: size, Duration: 1000, Sync: i%gop == 0})
	}
	return t
}

// AudioTrack returns an AAC track of n frames of 1024 samples at 44.1 kHz.
func AudioTrack(id uint32, n int) Track {
	t := Track{
		ID:         id,
		Handler:    "soun",
		Timescale:  44100,
		Language:   "eng",
		Format:     "mp4a",
		ConfigType: "esds",
		Config:     Esds(ASCLC44100Stereo),
		Channels:   2,
		SampleRate: 44100,
	}
	for i := 0; i < n; i++ {
		t.Samples = append(t.Samples, Sample{Size: uint32(180 + i%5), Duration: 1024, Sync: true})
	}
	return t
}

// Payload returns the deterministic bytes of sample i of track id.
func Payload(id uint32, i int, size uint32) []byte {
	b := make([]byte, size)
	for k := range b {
		b[k] = byte(int(id)*31 + i + k)
	}
	return b
}

// Layout orders the chunks of a static file inside its mdat.
type Layout int

const (
	// Interleaved alternates chunks of every track by decode time.
	Interleaved Layout = iota
	// Sequential stores every chunk of one track before the next track.
	Sequential
)

// StaticOptions controls Static.
type StaticOptions struct {
	Layout Layout
	// MoovLast stores the moov after the mdat.
	MoovLast bool
	// Brand is the ftyp major brand; "isom" when empty.
	Brand string
	// NoDuration writes zero movie, track and media durations.
	NoDuration bool
}

// File is a built fixture.
type File struct {
	Data []byte
	// Offsets holds the absolute offset of every sample, per track.
	Offsets map[uint32][]int64
	// Moov and Mdat locate those boxes; Mdat is the box start.
	Moov, Mdat int64
	// Moofs lists every moof offset of a fragmented file.
	Moofs []int64
	// Mfra is the mfra offset, 0 when absent.
	Mfra int64
}

type chunk struct {
	track int
	first int // first sample index
	count int
	time  float64
}

// Static builds a non-fragmented file holding tracks.
func Static(tracks []Track, opts StaticOptions) File {
	var chunks []chunk
	for ti, t := range tracks {
		per := max(t.ChunkSize, 1)
		var dts uint64
		for i := 0; i < len(t.Samples); i += per {
			c := chunk{track: ti, first: i, count: min(per, len(t.Samples)-i), time: float64(dts) / float64(t.Timescale)}
			for k := i; k < i+c.count; k++ {
				dts += uint64(t.Samples[k].Duration)
			}
			chunks = append(chunks, c)
		}
	}
	if opts.Layout == Interleaved {
		sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].time < chunks[j].time })
	}

	var head Writer
	brand := opts.Brand
	if brand == "" {
		brand = "isom"
	}
	head.Ftyp(brand, "isom", "iso2", "mp41")

	var payloadSize int
	for _, t := range tracks {
		for _, s := range t.Samples {
			payloadSize += int(s.Size)
		}
	}

	// The moov size does not depend on the chunk offsets it stores.
	moovSize := len(staticMoov(tracks, make([][]uint32, len(tracks)), !opts.NoDuration))
	f := File{Offsets: make(map[uint32][]int64)}
	var dataStart int64
	if opts.MoovLast {
		f.Mdat = int64(head.Len())
		dataStart = f.Mdat + 8
		f.Moov = dataStart + int64(payloadSize)
	} else {
		f.Moov = int64(head.Len())
		f.Mdat = f.Moov + int64(moovSize)
		dataStart = f.Mdat + 8
	}

	chunkOffsets := make([][]uint32, len(tracks))
	var mdat Writer
	mdat.StartBox("mdat")
	for _, c := range chunks {
		t := tracks[c.track]
		off := dataStart + int64(mdat.Len()-8)
		chunkOffsets[c.track] = append(chunkOffsets[c.track], uint32(off))
		for k := c.first; k < c.first+c.count; k++ {
			f.Offsets[t.ID] = append(f.Offsets[t.ID], dataStart+int64(mdat.Len()-8))
			mdat.Write(Payload(t.ID, k, t.Samples[k].Size))
		}
	}
	mdat.EndBox()
	for _, list := range f.Offsets {
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	}

	moov := staticMoov(tracks, chunkOffsets, !opts.NoDuration)
	out := append([]byte(nil), head.Bytes()...)
	if opts.MoovLast {
		out = append(out, mdat.Bytes()...)
		out = append(out, moov...)
	} else {
		out = append(out, moov...)
		out = append(out, mdat.Bytes()...)
	}
	f.Data = out
	return f
}

func staticMoov(tracks []Track, chunkOffsets [][]uint32, declared bool) []byte {
	var w Writer
	w.StartBox("moov")
	var duration uint64
	if declared {
		duration = movieDuration(tracks)
	}
	w.Mvhd(1000, duration, uint32(len(tracks)+1))
	for ti, t := range tracks {
		w.StartBox("trak")
		w.trackHeader(t, declared)
		w.StartBox("stbl")
		w.stsd(t)

		var pairs [][2]uint32
		var ctts [][2]uint32
		var sizes, sync []uint32
		hasCTO := false
		for i, s := range t.Samples {
			if n := len(pairs); n > 0 && pairs[n-1][1] == s.Duration {
				pairs[n-1][0]++
			} else {
				pairs = append(pairs, [2]uint32{1, s.Duration})
			}
			ctts = append(ctts, [2]uint32{1, uint32(s.CTO)})
			hasCTO = hasCTO || s.CTO != 0
			sizes = append(sizes, s.Size)
			if s.Sync {
				sync = append(sync, uint32(i+1))
			}
		}
		w.Pairs("stts", 0, pairs)
		if hasCTO {
			w.Pairs("ctts", 0, ctts)
		}
		if len(sync) < len(t.Samples) {
			w.U32List("stss", sync)
		}

		per := max(t.ChunkSize, 1)
		stsc := [][2]uint32{{1, uint32(per)}}
		if rem := len(t.Samples) % per; rem != 0 && len(t.Samples) > per {
			stsc = append(stsc, [2]uint32{uint32(len(t.Samples)/per + 1), uint32(rem)})
		} else if rem != 0 {
			stsc = [][2]uint32{{1, uint32(rem)}}
		}
		w.Stsc(stsc)
		w.Stsz(0, uint32(len(sizes)), sizes)
		offsets := chunkOffsets[ti]
		if offsets == nil {
			offsets = make([]uint32, (len(t.Samples)+per-1)/per)
		}
		w.Stco(offsets)
		w.EndBox() // stbl
		w.EndBox() // minf
		w.EndBox() // mdia
		w.EndBox() // trak
	}
	w.EndBox()
	return w.Bytes()
}

func movieDuration(tracks []Track) uint64 {
	var d uint64
	for _, t := range tracks {
		if t.Timescale > 0 {
			d = max(d, t.Duration()*1000/uint64(t.Timescale))
		}
	}
	return d
}

// trackHeader writes tkhd, edts and mdia up to an open minf box. Without
// declared the tkhd and mdhd durations are zero.
func (w *Writer) trackHeader(t Track, declared bool) {
	var duration uint64
	if declared {
		duration = t.Duration()
	}
	w.Tkhd(t.ID, duration*1000/uint64(max(t.Timescale, 1)), t.Width, t.Height, t.Rotation)
	if t.MediaTime != 0 {
		w.StartBox("edts")
		w.Elst([][2]int64{{int64(t.Duration()), t.MediaTime}})
		w.EndBox()
	}
	w.StartBox("mdia")
	w.Mdhd(t.Timescale, duration, t.Language)
	w.Hdlr(t.Handler, "fixture")
	w.StartBox("minf")
	w.StartBox("dinf")
	w.StartFullBox("dref", 0, 0)
	w.U32(1)
	w.StartFullBox("url ", 0, 1)
	w.EndBox()
	w.EndBox()
	w.EndBox()
}

func (w *Writer) stsd(t Track) {
	w.StartFullBox("stsd", 0, 0)
	w.U32(1)
	w.StartBox(t.Format)
	if t.Handler == "soun" {
		w.AudioSampleEntry(t.Channels, t.SampleRate)
	} else {
		w.VisualSampleEntry(t.Width, t.Height)
	}
	if t.ConfigType == "esds" {
		w.StartFullBox("esds", 0, 0)
		w.Write(t.Config)
		w.EndBox()
	} else if t.ConfigType != "" {
		w.Box(t.ConfigType, t.Config)
	}
	w.EndBox()
	w.EndBox()
}

// FragmentedOptions controls Fragmented.
type FragmentedOptions struct {
	// PerFragment is the number of samples of each track per fragment.
	PerFragment int
	// Mfra appends a movie fragment random access index.
	Mfra bool
	// Sidx writes a segment index after the moov, one reference per
	// fragment of the first track.
	Sidx bool
	// NoTfdt leaves out the base media decode time of every traf.
	NoTfdt bool
}

// Fragmented builds a fragmented file: an init segment followed by one
// moof and mdat per fragment, optionally ending with an mfra.
func Fragmented(tracks []Track, opts FragmentedOptions) File {
	per := max(opts.PerFragment, 1)
	var w Writer
	w.Ftyp("iso6", "iso6", "dash")
	f := File{Offsets: make(map[uint32][]int64)}

	f.Moov = int64(w.Len())
	w.StartBox("moov")
	w.Mvhd(1000, 0, uint32(len(tracks)+1))
	for _, t := range tracks {
		w.StartBox("trak")
		w.trackHeader(Track{ID: t.ID, Handler: t.Handler, Timescale: t.Timescale, Language: t.Language, Rotation: t.Rotation, Width: t.Width, Height: t.Height}, true)
		w.StartBox("stbl")
		w.stsd(t)
		w.Pairs("stts", 0, nil)
		w.Stsc(nil)
		w.Stsz(0, 0, nil)
		w.Stco(nil)
		w.EndBox() // stbl
		w.EndBox() // minf
		w.EndBox() // mdia
		w.EndBox() // trak
	}
	w.StartBox("mvex")
	w.Mehd(movieDuration(tracks))
	for _, t := range tracks {
		w.Trex(t.ID, 0, 0, 0)
	}
	w.EndBox()
	w.EndBox()

	n := 0
	for _, t := range tracks {
		n = max(n, (len(t.Samples)+per-1)/per)
	}

	type fragment struct {
		dts []uint64 // per track
	}
	frags := make([]fragment, n)
	dts := make([]uint64, len(tracks))
	for i := range frags {
		frags[i].dts = append([]uint64(nil), dts...)
		for ti, t := range tracks {
			for _, s := range window(t.Samples, i, per) {
				dts[ti] += uint64(s.Duration)
			}
		}
	}

	// Fragment sizes do not depend on where they start.
	sizes := make([]int, n)
	for i := range frags {
		sizes[i] = len(buildFragment(tracks, i, per, frags[i].dts, !opts.NoTfdt, 0, nil))
	}
	var sidxLen int
	if opts.Sidx {
		var tmp Writer
		tmp.Sidx(tracks[0].ID, tracks[0].Timescale, 0, 0, make([]SidxEntry, n))
		sidxLen = tmp.Len()
	}

	pos := int64(w.Len() + sidxLen)
	tfra := make([][]TfraEntry, len(tracks))
	if opts.Sidx {
		entries := make([]SidxEntry, n)
		for i := range entries {
			var dur uint64
			for _, s := range window(tracks[0].Samples, i, per) {
				dur += uint64(s.Duration)
			}
			entries[i] = SidxEntry{ReferencedSize: uint32(sizes[i]), SubsegDuration: uint32(dur)}
		}
		w.Sidx(tracks[0].ID, tracks[0].Timescale, 0, 0, entries)
	}
	for i := range frags {
		f.Moofs = append(f.Moofs, pos)
		for ti, t := range tracks {
			if len(window(t.Samples, i, per)) > 0 {
				tfra[ti] = append(tfra[ti], TfraEntry{Time: frags[i].dts[ti], MoofOffset: uint64(pos)})
			}
		}
		w.Write(buildFragment(tracks, i, per, frags[i].dts, !opts.NoTfdt, pos, f.Offsets))
		pos += int64(sizes[i])
	}

	if opts.Mfra {
		f.Mfra = int64(w.Len())
		start := w.Len()
		w.StartBox("mfra")
		for ti, t := range tracks {
			w.Tfra(t.ID, tfra[ti])
		}
		var mfro Writer
		mfro.Mfro(0)
		w.Mfro(uint32(w.Len() - start + mfro.Len()))
		w.EndBox()
	}
	f.Data = w.Bytes()
	return f
}

func window(samples []Sample, i, per int) []Sample {
	lo := i * per
	if lo >= len(samples) {
		return nil
	}
	return samples[lo:min(lo+per, len(samples))]
}

// buildFragment returns moof and mdat for fragment i starting at pos.
// When offsets is non-nil the absolute sample offsets are recorded in it.
func buildFragment(tracks []Track, i, per int, dts []uint64, tfdt bool, pos int64, offsets map[uint32][]int64) []byte {
	moof := func(dataOffsets []int32) []byte {
		var w Writer
		w.StartBox("moof")
		w.Mfhd(uint32(i + 1))
		for ti, t := range tracks {
			samples := window(t.Samples, i, per)
			if len(samples) == 0 {
				continue
			}
			w.StartBox("traf")
			w.Tfhd(t.ID)
			if tfdt {
				w.Tfdt(dts[ti])
			}
			w.Trun(dataOffsets[ti], samples)
			w.EndBox()
		}
		w.EndBox()
		return w.Bytes()
	}

	moofLen := len(moof(make([]int32, len(tracks))))
	dataOffsets := make([]int32, len(tracks))
	var mdat Writer
	mdat.StartBox("mdat")
	for ti, t := range tracks {
		samples := window(t.Samples, i, per)
		dataOffsets[ti] = int32(moofLen + mdat.Len())
		for k, s := range samples {
			if offsets != nil {
				offsets[t.ID] = append(offsets[t.ID], pos+int64(moofLen+mdat.Len()))
			}
			mdat.Write(Payload(t.ID, i*per+k, s.Size))
		}
	}
	mdat.EndBox()
	return append(moof(dataOffsets), mdat.Bytes()...)
}
