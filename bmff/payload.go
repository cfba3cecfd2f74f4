package bmff

import "bytes"

// Payload is the decoded body of a leaf box. The concrete type depends on
// the box type; boxes without a decoder carry *Opaque.
type Payload interface {
	isPayload()
}

// Opaque is the raw body of a box without a decoder.
type Opaque struct {
	Data []byte
}

// FtypInfo holds parsed fields from an ftyp or styp box.
type FtypInfo struct {
	MajorBrand   BoxType
	MinorVersion uint32
	Compatible   []BoxType
}

// Mvhd is the movie header.
type Mvhd struct {
	Timescale   uint32
	Duration    uint64
	NextTrackID uint32
}

// Tkhd is the track header.
type Tkhd struct {
	TrackID  uint32
	Duration uint64
	Matrix   [9]int32
	Width    uint32 // 16.16 fixed point
	Height   uint32 // 16.16 fixed point
}

// Mdhd is the media header.
type Mdhd struct {
	Timescale uint32
	Duration  uint64
	Language  uint16 // packed ISO-639-2/T
}

// Hdlr is the handler reference.
type Hdlr struct {
	HandlerType BoxType
	Name        string
}

// Elst is an edit list.
type Elst struct {
	Entries []ElstEntry
}

// Stsd is the sample description header. The entries are the box's children.
type Stsd struct {
	EntryCount uint32
}

// Stts is the decoding time-to-sample table.
type Stts struct {
	Entries []SttsEntry
}

// Ctts is the composition offset table.
type Ctts struct {
	Entries []CttsEntry
}

// Stsc is the sample-to-chunk table.
type Stsc struct {
	Entries []StscEntry
}

// Stsz is a sample size table, decoded from stsz or stz2. Sizes is empty
// when every sample has SampleSize bytes.
type Stsz struct {
	SampleSize  uint32
	SampleCount uint32
	Sizes       []uint32
}

// Size returns the size of sample i (0-based).
func (s *Stsz) Size(i int) uint32 {
	if s.SampleSize != 0 {
		return s.SampleSize
	}
	return s.Sizes[i]
}

// ChunkOffsets is a chunk offset table, decoded from stco or co64.
type ChunkOffsets struct {
	Offsets []uint64
}

// Stss lists the 1-based numbers of sync samples.
type Stss struct {
	SampleNumbers []uint32
}

// Mehd is the movie extends header.
type Mehd struct {
	FragmentDuration uint64
}

// Trex holds per-track fragment defaults.
type Trex struct {
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// Mfhd is the movie fragment header.
type Mfhd struct {
	SequenceNumber uint32
}

// Tfhd is the track fragment header. Fields not flagged present are zero.
type Tfhd struct {
	Flags                  uint32
	TrackID                uint32
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     uint32
}

// Has reports whether flag is set.
func (t *Tfhd) Has(flag uint32) bool { return t.Flags&flag != 0 }

// Tfdt is the track fragment decode time.
type Tfdt struct {
	BaseMediaDecodeTime uint64
}

// Trun is a track fragment run.
type Trun struct {
	Flags            uint32
	DataOffset       int32
	FirstSampleFlags uint32
	Entries          []TrunEntry
}

// Has reports whether flag is set.
func (t *Trun) Has(flag uint32) bool { return t.Flags&flag != 0 }

// TfraEntry locates one random access sample.
type TfraEntry struct {
	Time         uint64
	MoofOffset   uint64
	TrafNumber   uint32
	TrunNumber   uint32
	SampleNumber uint32
}

// Tfra is a track fragment random access table.
type Tfra struct {
	TrackID uint32
	Entries []TfraEntry
}

// Mfro holds the size of the enclosing mfra box.
type Mfro struct {
	Size uint32
}

// SidxReference is one entry of a segment index.
type SidxReference struct {
	ReferenceType      bool // true when referencing another sidx
	ReferencedSize     uint32
	SubsegmentDuration uint32
	StartsWithSAP      bool
	SAPType            uint8
	SAPDeltaTime       uint32
}

// Sidx is a segment index.
type Sidx struct {
	ReferenceID              uint32
	Timescale                uint32
	EarliestPresentationTime uint64
	FirstOffset              uint64
	References               []SidxReference
}

// Colr is a colour information box.
type Colr struct {
	ColourType BoxType
	Primaries  uint16
	Transfer   uint16
	Matrix     uint16
	FullRange  bool
	ICC        []byte
}

// Pasp is a pixel aspect ratio box.
type Pasp struct {
	HSpacing uint32
	VSpacing uint32
}

// Btrt is an MPEG-4 bit rate box.
type Btrt struct {
	BufferSizeDB uint32
	MaxBitrate   uint32
	AvgBitrate   uint32
}

// Frma names the original format of a protected sample entry.
type Frma struct {
	DataFormat BoxType
}

func (*Opaque) isPayload()       {}
func (*FtypInfo) isPayload()     {}
func (*Mvhd) isPayload()         {}
func (*Tkhd) isPayload()         {}
func (*Mdhd) isPayload()         {}
func (*Hdlr) isPayload()         {}
func (*Elst) isPayload()         {}
func (*Stsd) isPayload()         {}
func (*SampleEntry) isPayload()  {}
func (*Stts) isPayload()         {}
func (*Ctts) isPayload()         {}
func (*Stsc) isPayload()         {}
func (*Stsz) isPayload()         {}
func (*ChunkOffsets) isPayload() {}
func (*Stss) isPayload()         {}
func (*Mehd) isPayload()         {}
func (*Trex) isPayload()         {}
func (*Mfhd) isPayload()         {}
func (*Tfhd) isPayload()         {}
func (*Tfdt) isPayload()         {}
func (*Trun) isPayload()         {}
func (*Tfra) isPayload()         {}
func (*Mfro) isPayload()         {}
func (*Sidx) isPayload()         {}
func (*Colr) isPayload()         {}
func (*Pasp) isPayload()         {}
func (*Btrt) isPayload()         {}
func (*Frma) isPayload()         {}

// decodePayload decodes the data of a leaf box. data excludes the header,
// including version and flags for full boxes.
func decodePayload(t BoxType, version uint8, flags uint32, data []byte) (Payload, error) {
	switch t {
	case TypeFtyp, TypeStyp:
		return readFtyp(data)
	case TypeMvhd:
		return readMvhd(version, data)
	case TypeTkhd:
		return readTkhd(version, data)
	case TypeMdhd:
		return readMdhd(version, data)
	case TypeHdlr:
		return readHdlr(data)
	case TypeElst:
		entries, err := readElst(version, data)
		return &Elst{Entries: entries}, err
	case TypeStts:
		entries, err := countedTable(data, 8, readStts)
		return &Stts{Entries: entries}, err
	case TypeCtts:
		entries, err := countedTable(data, 8, readCtts)
		return &Ctts{Entries: entries}, err
	case TypeStsc:
		entries, err := countedTable(data, 12, readStsc)
		return &Stsc{Entries: entries}, err
	case TypeStsz:
		return readStsz(data)
	case TypeStz2:
		return readStz2(data)
	case TypeStco:
		offsets, err := countedTable(data, 4, func(b []byte) uint64 { return uint64(be.Uint32(b)) })
		return &ChunkOffsets{Offsets: offsets}, err
	case TypeCo64:
		offsets, err := countedTable(data, 8, be.Uint64)
		return &ChunkOffsets{Offsets: offsets}, err
	case TypeStss:
		numbers, err := countedTable(data, 4, readU32)
		return &Stss{SampleNumbers: numbers}, err
	case TypeMehd:
		if version == 1 {
			if len(data) < 8 {
				return nil, ErrTruncated
			}
			return &Mehd{FragmentDuration: be.Uint64(data)}, nil
		}
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		return &Mehd{FragmentDuration: uint64(be.Uint32(data))}, nil
	case TypeTrex:
		if len(data) < 20 {
			return nil, ErrTruncated
		}
		return &Trex{
			TrackID:                       be.Uint32(data[0:4]),
			DefaultSampleDescriptionIndex: be.Uint32(data[4:8]),
			DefaultSampleDuration:         be.Uint32(data[8:12]),
			DefaultSampleSize:             be.Uint32(data[12:16]),
			DefaultSampleFlags:            be.Uint32(data[16:20]),
		}, nil
	case TypeMfhd:
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		return &Mfhd{SequenceNumber: be.Uint32(data)}, nil
	case TypeTfhd:
		return readTfhd(flags, data)
	case TypeTfdt:
		if version == 1 {
			if len(data) < 8 {
				return nil, ErrTruncated
			}
			return &Tfdt{BaseMediaDecodeTime: be.Uint64(data)}, nil
		}
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		return &Tfdt{BaseMediaDecodeTime: uint64(be.Uint32(data))}, nil
	case TypeTrun:
		return readTrun(flags, data)
	case TypeTfra:
		return readTfra(version, data)
	case TypeMfro:
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		return &Mfro{Size: be.Uint32(data)}, nil
	case TypeSidx:
		return readSidx(version, data)
	case TypeColr:
		return readColr(data)
	case TypePasp:
		if len(data) < 8 {
			return nil, ErrTruncated
		}
		return &Pasp{HSpacing: be.Uint32(data[0:4]), VSpacing: be.Uint32(data[4:8])}, nil
	case TypeBtrt:
		if len(data) < 12 {
			return nil, ErrTruncated
		}
		return &Btrt{
			BufferSizeDB: be.Uint32(data[0:4]),
			MaxBitrate:   be.Uint32(data[4:8]),
			AvgBitrate:   be.Uint32(data[8:12]),
		}, nil
	case TypeFrma:
		if len(data) < 4 {
			return nil, ErrTruncated
		}
		return &Frma{DataFormat: BoxType(data[0:4])}, nil
	}
	return &Opaque{Data: bytes.Clone(data)}, nil
}

// readFtyp parses an ftyp box.
func readFtyp(data []byte) (*FtypInfo, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	f := &FtypInfo{
		MajorBrand:   BoxType(data[0:4]),
		MinorVersion: be.Uint32(data[4:8]),
	}
	for i := 8; i+4 <= len(data); i += 4 {
		f.Compatible = append(f.Compatible, BoxType(data[i:i+4]))
	}
	return f, nil
}

// readMvhd extracts key fields from an mvhd box.
func readMvhd(version uint8, data []byte) (*Mvhd, error) {
	m := &Mvhd{}
	if version == 1 {
		// v1: ctime(8)+mtime(8)+timescale(4)+duration(8)+rate(4)+volume(2)+reserved(10)+matrix(36)+predefined(24)+nextTrackId(4) = 108
		if len(data) < 108 {
			return nil, ErrTruncated
		}
		m.Timescale = be.Uint32(data[16:20])
		m.Duration = be.Uint64(data[20:28])
		m.NextTrackID = be.Uint32(data[104:108])
	} else {
		// v0: ctime(4)+mtime(4)+timescale(4)+duration(4)+rate(4)+volume(2)+reserved(10)+matrix(36)+predefined(24)+nextTrackId(4) = 96
		if len(data) < 96 {
			return nil, ErrTruncated
		}
		m.Timescale = be.Uint32(data[8:12])
		m.Duration = uint64(be.Uint32(data[12:16]))
		if m.Duration == uint32Max {
			m.Duration = 0
		}
		m.NextTrackID = be.Uint32(data[92:96])
	}
	return m, nil
}

// readTkhd extracts key fields from a tkhd box.
func readTkhd(version uint8, data []byte) (*Tkhd, error) {
	t := &Tkhd{}
	var matrix int
	if version == 1 {
		// v1: ctime(8)+mtime(8)+trackId(4)+reserved(4)+duration(8)
		if len(data) < 92 {
			return nil, ErrTruncated
		}
		t.TrackID = be.Uint32(data[16:20])
		t.Duration = be.Uint64(data[24:32])
		// +reserved(8)+layer(2)+altGroup(2)+volume(2)+reserved(2)+matrix(36)+width(4)+height(4)
		matrix = 48
		t.Width = be.Uint32(data[84:88])
		t.Height = be.Uint32(data[88:92])
	} else {
		// v0: ctime(4)+mtime(4)+trackId(4)+reserved(4)+duration(4)
		if len(data) < 80 {
			return nil, ErrTruncated
		}
		t.TrackID = be.Uint32(data[8:12])
		t.Duration = uint64(be.Uint32(data[16:20]))
		matrix = 36
		t.Width = be.Uint32(data[72:76])
		t.Height = be.Uint32(data[76:80])
	}
	for i := range t.Matrix {
		t.Matrix[i] = int32(be.Uint32(data[matrix+4*i:]))
	}
	return t, nil
}

// Rotation returns the clockwise display rotation in degrees encoded in
// the transformation matrix, one of 0, 90, 180 and 270.
func (t *Tkhd) Rotation() int {
	a, b, c, d := t.Matrix[0], t.Matrix[1], t.Matrix[3], t.Matrix[4]
	const one = 0x00010000
	switch {
	case a == 0 && b == one && c == -one && d == 0:
		return 90
	case a == -one && b == 0 && c == 0 && d == -one:
		return 180
	case a == 0 && b == -one && c == one && d == 0:
		return 270
	}
	return 0
}

// readMdhd extracts key fields from an mdhd box.
func readMdhd(version uint8, data []byte) (*Mdhd, error) {
	m := &Mdhd{}
	if version == 1 {
		// v1: ctime(8)+mtime(8)+timescale(4)+duration(8)+lang(2)+quality(2)
		if len(data) < 30 {
			return nil, ErrTruncated
		}
		m.Timescale = be.Uint32(data[16:20])
		m.Duration = be.Uint64(data[20:28])
		m.Language = be.Uint16(data[28:30])
	} else {
		// v0: ctime(4)+mtime(4)+timescale(4)+duration(4)+lang(2)+quality(2)
		if len(data) < 18 {
			return nil, ErrTruncated
		}
		m.Timescale = be.Uint32(data[8:12])
		m.Duration = uint64(be.Uint32(data[12:16]))
		if m.Duration == uint32Max {
			m.Duration = 0
		}
		m.Language = be.Uint16(data[16:18])
	}
	return m, nil
}

// readHdlr extracts the handler type and name from an hdlr box.
func readHdlr(data []byte) (*Hdlr, error) {
	if len(data) < 8 {
		return nil, ErrTruncated
	}
	h := &Hdlr{HandlerType: BoxType(data[4:8])}
	if len(data) > 20 {
		name := data[20:]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		h.Name = string(name)
	}
	return h, nil
}

func readTfhd(flags uint32, data []byte) (*Tfhd, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	t := &Tfhd{Flags: flags, TrackID: be.Uint32(data)}
	p := 4
	field := func(n int) ([]byte, error) {
		if p+n > len(data) {
			return nil, ErrTruncated
		}
		b := data[p : p+n]
		p += n
		return b, nil
	}
	if flags&TfhdBaseDataOffsetPresent != 0 {
		b, err := field(8)
		if err != nil {
			return nil, err
		}
		t.BaseDataOffset = be.Uint64(b)
	}
	for _, f := range []struct {
		flag uint32
		dst  *uint32
	}{
		{TfhdSampleDescriptionIndexPresent, &t.SampleDescriptionIndex},
		{TfhdDefaultSampleDurationPresent, &t.DefaultSampleDuration},
		{TfhdDefaultSampleSizePresent, &t.DefaultSampleSize},
		{TfhdDefaultSampleFlagsPresent, &t.DefaultSampleFlags},
	} {
		if flags&f.flag == 0 {
			continue
		}
		b, err := field(4)
		if err != nil {
			return nil, err
		}
		*f.dst = be.Uint32(b)
	}
	return t, nil
}

func readTfra(version uint8, data []byte) (*Tfra, error) {
	if len(data) < 12 {
		return nil, ErrTruncated
	}
	t := &Tfra{TrackID: be.Uint32(data[0:4])}
	lens := be.Uint32(data[4:8])
	trafLen := int(lens>>4&3) + 1
	trunLen := int(lens>>2&3) + 1
	sampleLen := int(lens&3) + 1
	count := be.Uint32(data[8:12])

	timeLen := 4
	if version == 1 {
		timeLen = 8
	}
	stride := 2*timeLen + trafLen + trunLen + sampleLen
	p := 12
	t.Entries = make([]TfraEntry, 0, capHint(count, data[p:], stride))
	for range count {
		if p+stride > len(data) {
			return nil, ErrTruncated
		}
		var e TfraEntry
		if version == 1 {
			e.Time = be.Uint64(data[p:])
			e.MoofOffset = be.Uint64(data[p+8:])
		} else {
			e.Time = uint64(be.Uint32(data[p:]))
			e.MoofOffset = uint64(be.Uint32(data[p+4:]))
		}
		p += 2 * timeLen
		e.TrafNumber = readUintN(data[p:], trafLen)
		p += trafLen
		e.TrunNumber = readUintN(data[p:], trunLen)
		p += trunLen
		e.SampleNumber = readUintN(data[p:], sampleLen)
		p += sampleLen
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}

// readUintN reads an n-byte big-endian unsigned integer, n in 1..4.
func readUintN(b []byte, n int) uint32 {
	var v uint32
	for i := range n {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func readSidx(version uint8, data []byte) (*Sidx, error) {
	s := &Sidx{}
	p := 8
	if len(data) < p {
		return nil, ErrTruncated
	}
	s.ReferenceID = be.Uint32(data[0:4])
	s.Timescale = be.Uint32(data[4:8])
	if version == 0 {
		if len(data) < p+8 {
			return nil, ErrTruncated
		}
		s.EarliestPresentationTime = uint64(be.Uint32(data[p:]))
		s.FirstOffset = uint64(be.Uint32(data[p+4:]))
		p += 8
	} else {
		if len(data) < p+16 {
			return nil, ErrTruncated
		}
		s.EarliestPresentationTime = be.Uint64(data[p:])
		s.FirstOffset = be.Uint64(data[p+8:])
		p += 16
	}
	if len(data) < p+4 {
		return nil, ErrTruncated
	}
	count := int(be.Uint16(data[p+2:]))
	p += 4
	if len(data) < p+12*count {
		return nil, ErrTruncated
	}
	s.References = make([]SidxReference, count)
	for i := range s.References {
		a := be.Uint32(data[p:])
		c := be.Uint32(data[p+8:])
		s.References[i] = SidxReference{
			ReferenceType:      a&0x80000000 != 0,
			ReferencedSize:     a & 0x7fffffff,
			SubsegmentDuration: be.Uint32(data[p+4:]),
			StartsWithSAP:      c&0x80000000 != 0,
			SAPType:            uint8(c >> 28 & 7),
			SAPDeltaTime:       c & 0x0fffffff,
		}
		p += 12
	}
	return s, nil
}

func readColr(data []byte) (*Colr, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	c := &Colr{ColourType: BoxType(data[0:4])}
	switch c.ColourType {
	case BoxType{'n', 'c', 'l', 'x'}, BoxType{'n', 'c', 'l', 'c'}:
		if len(data) < 10 {
			return nil, ErrTruncated
		}
		c.Primaries = be.Uint16(data[4:6])
		c.Transfer = be.Uint16(data[6:8])
		c.Matrix = be.Uint16(data[8:10])
		if c.ColourType[3] == 'x' {
			if len(data) < 11 {
				return nil, ErrTruncated
			}
			c.FullRange = data[10]&0x80 != 0
		}
	case BoxType{'r', 'I', 'C', 'C'}, BoxType{'p', 'r', 'o', 'f'}:
		c.ICC = bytes.Clone(data[4:])
	}
	return c, nil
}
