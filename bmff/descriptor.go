package bmff

import "strconv"

// Esds holds the fields of an esds descriptor chain the parser needs.
type Esds struct {
	// ObjectType is the MPEG-4 Object Type Indication (0x40 for AAC).
	ObjectType byte
	// DecoderConfig is the DecoderSpecificInfo, e.g. an AAC
	// AudioSpecificConfig.
	DecoderConfig []byte
}

// Codec returns the MIME codec suffix, like "40.2" for AAC-LC.
func (e Esds) Codec() string {
	if e.ObjectType == 0 {
		return ""
	}
	otiStr := hexByte(e.ObjectType)
	if len(e.DecoderConfig) == 0 {
		return otiStr
	}
	// Audio object type from the first 5 bits; 31 escapes to 6 more bits.
	aot := int(e.DecoderConfig[0] >> 3)
	if aot == 31 && len(e.DecoderConfig) >= 2 {
		aot = 32 + int(e.DecoderConfig[0]&0x07)<<3 | int(e.DecoderConfig[1]>>5)
	}
	if aot == 0 {
		return otiStr
	}
	return otiStr + "." + strconv.Itoa(aot)
}

// ReadEsds parses the MPEG-4 descriptor chain of an esds box to find the
// OTI (Object Type Indication) and the decoder specific info. ok is false
// when the chain does not start with an ES descriptor.
func ReadEsds(data []byte) (e Esds, ok bool) {
	if len(data) < 2 {
		return e, false
	}

	// Expect ESDescriptor (tag 0x03)
	ptr, end := 0, len(data)
	if data[ptr] != 0x03 {
		return e, false
	}
	ptr++

	_, ptr = readDescriptorLength(data, ptr, end)
	if ptr < 0 || ptr+3 > end {
		return e, false
	}

	// ES_ID (2 bytes) + stream dependency flags (1 byte)
	flags := data[ptr+2]
	ptr += 3

	// Skip optional fields based on flags
	if flags&0x80 != 0 { // streamDependenceFlag
		ptr += 2
	}
	if flags&0x40 != 0 { // URL_Flag
		if ptr >= end {
			return e, false
		}
		urlLen := int(data[ptr])
		ptr += 1 + urlLen
	}
	if flags&0x20 != 0 { // OCRstreamFlag
		ptr += 2
	}

	if ptr >= end {
		return e, false
	}

	// Expect DecoderConfigDescriptor (tag 0x04)
	if data[ptr] != 0x04 {
		return e, false
	}
	ptr++
	_, ptr = readDescriptorLength(data, ptr, end)
	if ptr < 0 || ptr+13 > end {
		return e, false
	}
	e.ObjectType = data[ptr]

	// Skip to DecoderSpecificInfo: OTI(1)+streamType(1)+bufferSizeDB(3)+maxBitrate(4)+avgBitrate(4) = 13
	ptr += 13

	if ptr >= end || data[ptr] != 0x05 {
		return e, true
	}
	ptr++
	n, ptr := readDescriptorLength(data, ptr, end)
	if ptr < 0 || ptr+n > end {
		return e, true
	}
	e.DecoderConfig = data[ptr : ptr+n : ptr+n]
	return e, true
}

// hexByte formats a byte as a lowercase hex string without leading zeros beyond one digit.
func hexByte(b byte) string {
	if b < 16 {
		return string(hexDigit(b))
	}
	var buf [2]byte
	buf[0] = hexDigit(b >> 4)
	buf[1] = hexDigit(b & 0x0f)
	return string(buf[:])
}

// readDescriptorLength reads the variable-length descriptor length field.
// Returns the length and the new position, or -1 on error.
func readDescriptorLength(data []byte, ptr, end int) (int, int) {
	n := 0
	for i := 0; ptr < end && i < 4; i++ {
		b := data[ptr]
		ptr++
		n = n<<7 | int(b&0x7f)
		if b&0x80 == 0 {
			return n, ptr
		}
	}
	return 0, -1
}

const hexChars = "0123456789abcdef"

// hexDigit returns the lowercase hex character for a 4-bit nibble.
func hexDigit(b byte) byte {
	return hexChars[b&0x0f]
}
