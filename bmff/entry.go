package bmff

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// VisualSampleEntry holds the fixed fields of a visual sample entry.
type VisualSampleEntry struct {
	Width          uint16
	Height         uint16
	HResolution    uint32 // 16.16 fixed point
	VResolution    uint32 // 16.16 fixed point
	FrameCount     uint16
	CompressorName string
	Depth          uint16
}

// AudioSampleEntry holds the fixed fields of an audio sample entry,
// including the QuickTime version 1 and 2 extensions.
type AudioSampleEntry struct {
	Version      uint16
	ChannelCount uint32
	SampleSize   uint16
	SampleRate   float64
}

// SampleEntry is a decoded stsd entry. Unknown formats keep only Format
// and their raw body in Data.
type SampleEntry struct {
	Format             BoxType
	DataReferenceIndex uint16
	Visual             *VisualSampleEntry
	Audio              *AudioSampleEntry
	Data               []byte

	// OriginalFormat is the format before encryption; it equals Format for
	// clear entries.
	OriginalFormat BoxType
	// ConfigType is the type of the decoder configuration box, e.g. avcC.
	ConfigType BoxType
	Config     []byte
	Codec      string

	Color       *Colr
	PixelAspect *Pasp
	Bitrate     *Btrt

	// Values read from the decoder configuration. Zero when unknown.
	CodedWidth  int
	CodedHeight int
	SampleRate  int
	Channels    int

	childOffset int
}

func readSampleEntry(t BoxType, data []byte) (*SampleEntry, error) {
	e := &SampleEntry{Format: t, OriginalFormat: t, childOffset: -1}
	switch {
	case isVisualEntry(t):
		if len(data) < 78 {
			return nil, ErrTruncated
		}
		nameLen := min(int(data[42]), 31)
		e.DataReferenceIndex = be.Uint16(data[6:8])
		e.Visual = &VisualSampleEntry{
			Width:          be.Uint16(data[24:26]),
			Height:         be.Uint16(data[26:28]),
			HResolution:    be.Uint32(data[28:32]),
			VResolution:    be.Uint32(data[32:36]),
			FrameCount:     be.Uint16(data[40:42]),
			CompressorName: strings.TrimRight(string(data[43:43+nameLen]), "\x00"),
			Depth:          be.Uint16(data[74:76]),
		}
		e.childOffset = 78

	case isAudioEntry(t):
		if len(data) < 28 {
			return nil, ErrTruncated
		}
		e.DataReferenceIndex = be.Uint16(data[6:8])
		a := &AudioSampleEntry{
			Version:      be.Uint16(data[8:10]),
			ChannelCount: uint32(be.Uint16(data[16:18])),
			SampleSize:   be.Uint16(data[18:20]),
			SampleRate:   float64(be.Uint32(data[24:28]) >> 16),
		}
		e.childOffset = 28
		switch a.Version {
		case 1:
			if len(data) < 44 {
				return nil, ErrTruncated
			}
			e.childOffset = 44
		case 2:
			if len(data) < 64 {
				return nil, ErrTruncated
			}
			a.SampleRate = math.Float64frombits(be.Uint64(data[32:40]))
			a.ChannelCount = be.Uint32(data[40:44])
			e.childOffset = 64
		}
		e.Audio = a

	default:
		e.Data = bytes.Clone(data)
		e.Codec = strings.TrimSpace(t.String())
	}
	return e, nil
}

// resolve reads the entry's child boxes and derives the codec string.
func (e *SampleEntry) resolve(b *Box) {
	for _, c := range b.Children {
		e.resolveChild(c)
	}
	if w := b.Child(TypeWave); w != nil {
		for _, c := range w.Children {
			if e.Config == nil {
				e.resolveChild(c)
			}
		}
	}
	e.Codec = codecString(e.OriginalFormat, e.ConfigType, e.Config)
	e.readConfig()
}

func (e *SampleEntry) resolveChild(c *Box) {
	switch c.Type {
	case TypeAvcC, TypeHvcC, TypeAv1C, TypeVpcC, TypeEsds, TypeDOps, TypeDfLa, TypeDac3, TypeDec3:
		if e.Config != nil {
			return
		}
		if p, ok := c.Payload.(*Opaque); ok {
			e.ConfigType = c.Type
			e.Config = p.Data
		}
	case TypeColr:
		if p, ok := c.Payload.(*Colr); ok && e.Color == nil {
			e.Color = p
		}
	case TypePasp:
		e.PixelAspect, _ = c.Payload.(*Pasp)
	case TypeBtrt:
		e.Bitrate, _ = c.Payload.(*Btrt)
	case TypeSinf:
		if f, ok := payloadOf[*Frma](c, TypeFrma); ok {
			e.OriginalFormat = f.DataFormat
		}
	}
}

// readConfig fills the coded size, sample rate and channel count from the
// decoder configuration.
func (e *SampleEntry) readConfig() {
	switch e.ConfigType {
	case TypeAvcC:
		if sps := avcSPS(e.Config); sps != nil {
			var s h264.SPS
			if s.Unmarshal(sps) == nil {
				e.CodedWidth, e.CodedHeight = s.Width(), s.Height()
			}
		}
	case TypeHvcC:
		if sps := hevcSPS(e.Config); sps != nil {
			var s h265.SPS
			if s.Unmarshal(sps) == nil {
				e.CodedWidth, e.CodedHeight = s.Width(), s.Height()
			}
		}
	case TypeEsds:
		if d, ok := ReadEsds(e.Config); ok && d.ObjectType == 0x40 && len(d.DecoderConfig) > 0 {
			var asc mpeg4audio.AudioSpecificConfig
			if asc.Unmarshal(d.DecoderConfig) == nil {
				e.SampleRate = asc.SampleRate
			}
		}
	case TypeDOps:
		if len(e.Config) >= 8 {
			e.Channels = int(e.Config[1])
			// Opus always decodes at 48 kHz; the stored rate is informational.
			e.SampleRate = 48000
		}
	}
	if e.Visual != nil && e.CodedWidth == 0 {
		e.CodedWidth, e.CodedHeight = int(e.Visual.Width), int(e.Visual.Height)
	}
	if e.Audio != nil {
		if e.SampleRate == 0 {
			e.SampleRate = int(e.Audio.SampleRate)
		}
		if e.Channels == 0 {
			e.Channels = int(e.Audio.ChannelCount)
		}
	}
}

// avcSPS returns the first SPS NAL unit of an avcC record.
func avcSPS(data []byte) []byte {
	if len(data) < 8 {
		return nil
	}
	n := int(data[5] & 0x1f)
	ptr := 6
	if n == 0 || ptr+2 > len(data) {
		return nil
	}
	size := int(be.Uint16(data[ptr:]))
	ptr += 2
	if ptr+size > len(data) {
		return nil
	}
	return data[ptr : ptr+size]
}

// hevcSPS returns the first SPS NAL unit of an hvcC record.
func hevcSPS(data []byte) []byte {
	if len(data) < 23 {
		return nil
	}
	arrays := int(data[22])
	ptr := 23
	for range arrays {
		if ptr+3 > len(data) {
			return nil
		}
		naluType := data[ptr] & 0x3f
		count := int(be.Uint16(data[ptr+1:]))
		ptr += 3
		for range count {
			if ptr+2 > len(data) {
				return nil
			}
			size := int(be.Uint16(data[ptr:]))
			ptr += 2
			if ptr+size > len(data) {
				return nil
			}
			if naluType == 33 {
				return data[ptr : ptr+size]
			}
			ptr += size
		}
	}
	return nil
}

var simpleCodecs = map[BoxType]string{
	TypeOpus:             "opus",
	TypeFlac:             "flac",
	TypeAc3:              "ac-3",
	TypeEc3:              "ec-3",
	TypeMp3:              "mp3",
	TypeVp08:             "vp8",
	{'i', 'p', 'c', 'm'}: "pcm-s16",
	{'l', 'p', 'c', 'm'}: "pcm-s16",
	{'t', 'w', 'o', 's'}: "pcm-s16",
	{'s', 'o', 'w', 't'}: "pcm-s16",
	{'r', 'a', 'w', ' '}: "pcm-u8",
	{'i', 'n', '2', '4'}: "pcm-s24",
	{'i', 'n', '3', '2'}: "pcm-s32",
	{'f', 'l', '3', '2'}: "pcm-f32",
	{'f', 'l', '6', '4'}: "pcm-f64",
	{'a', 'l', 'a', 'w'}: "alaw",
	{'u', 'l', 'a', 'w'}: "ulaw",
	{'j', 'p', 'e', 'g'}: "mjpeg",
	{'m', 'j', 'p', 'a'}: "mjpeg",
	{'a', 'p', 'c', 'h'}: "prores",
	{'a', 'p', 'c', 'n'}: "prores",
	{'a', 'p', 'c', 's'}: "prores",
	{'a', 'p', 'c', 'o'}: "prores",
	{'a', 'p', '4', 'h'}: "prores",
	{'s', 'a', 'm', 'r'}: "samr",
	{'s', '2', '6', '3'}: "h263",
	{'d', 'v', 'h', '1'}: "dvh1",
	{'d', 'v', 'h', 'e'}: "dvhe",
}

// codecString returns the RFC 6381 codec string for format, using the
// decoder configuration where the string depends on it.
func codecString(format, configType BoxType, config []byte) string {
	switch format {
	case TypeAvc1, TypeAvc3:
		if configType == TypeAvcC {
			if p := avcProfile(config); p != "" {
				return format.String() + "." + p
			}
		}
	case TypeHvc1, TypeHev1:
		if configType == TypeHvcC {
			if p := hevcProfile(config); p != "" {
				return format.String() + "." + p
			}
		}
	case TypeAv01:
		if configType == TypeAv1C {
			if s := av1Codec(config); s != "" {
				return s
			}
		}
	case TypeVp09:
		if configType == TypeVpcC {
			if s := vp9Codec(config); s != "" {
				return s
			}
		}
	case TypeMp4a, TypeMp4v:
		if configType == TypeEsds {
			if d, ok := ReadEsds(config); ok {
				switch d.ObjectType {
				case 0x69, 0x6b:
					return "mp3"
				}
				if c := d.Codec(); c != "" {
					return format.String() + "." + c
				}
			}
		}
	}
	if s, ok := simpleCodecs[format]; ok {
		return s
	}
	return strings.TrimSpace(format.String())
}

// avcProfile extracts the codec profile string from avcC box data.
// Returns a string like "64001f" for use in MIME type codec parameters.
func avcProfile(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	var buf [6]byte
	buf[0] = hexDigit(data[1] >> 4)
	buf[1] = hexDigit(data[1] & 0x0f)
	buf[2] = hexDigit(data[2] >> 4)
	buf[3] = hexDigit(data[2] & 0x0f)
	buf[4] = hexDigit(data[3] >> 4)
	buf[5] = hexDigit(data[3] & 0x0f)
	return string(buf[:])
}

// hevcProfile builds the hvc1 suffix, like "1.6.L93.B0", from an hvcC
// record.
func hevcProfile(data []byte) string {
	if len(data) < 13 {
		return ""
	}
	var sb strings.Builder
	switch data[1] >> 6 {
	case 1:
		sb.WriteByte('A')
	case 2:
		sb.WriteByte('B')
	case 3:
		sb.WriteByte('C')
	}
	sb.WriteString(strconv.Itoa(int(data[1] & 0x1f)))
	sb.WriteByte('.')

	// Compatibility flags in reverse bit order.
	compat := be.Uint32(data[2:6])
	var rev uint32
	for i := 0; i < 32; i++ {
		rev = rev<<1 | compat&1
		compat >>= 1
	}
	sb.WriteString(strings.ToUpper(strconv.FormatUint(uint64(rev), 16)))
	sb.WriteByte('.')

	if data[1]&0x20 != 0 {
		sb.WriteByte('H')
	} else {
		sb.WriteByte('L')
	}
	sb.WriteString(strconv.Itoa(int(data[12])))

	// Constraint bytes, trailing zero bytes omitted.
	constraints := data[6:12]
	last := len(constraints)
	for last > 0 && constraints[last-1] == 0 {
		last--
	}
	for _, c := range constraints[:last] {
		sb.WriteByte('.')
		sb.WriteString(strings.ToUpper(hexByte(c)))
	}
	return sb.String()
}

// av1Codec builds "av01.P.LLT.DD" from an av1C record.
func av1Codec(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	profile := data[1] >> 5
	level := data[1] & 0x1f
	tier := "M"
	if data[2]&0x80 != 0 {
		tier = "H"
	}
	depth := 8
	if data[2]&0x40 != 0 {
		depth = 10
		if profile == 2 && data[2]&0x20 != 0 {
			depth = 12
		}
	}
	return fmt.Sprintf("av01.%d.%02d%s.%02d", profile, level, tier, depth)
}

// vp9Codec builds "vp09.PP.LL.DD" from a vpcC record.
func vp9Codec(data []byte) string {
	if len(data) < 3 {
		return ""
	}
	return fmt.Sprintf("vp09.%02d.%02d.%02d", data[0], data[1], data[2]>>4)
}
