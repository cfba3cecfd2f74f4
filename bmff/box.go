// Package bmff decodes ISO Base Media File Format (ISOBMFF) structure from a
// growing byte window: box headers, the metadata tree, sample tables and
// movie fragments, and resolves seeks against what has been parsed so far.
package bmff

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// Known box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeStyp = BoxType{'s', 't', 'y', 'p'} // Segment type box (used in fragmented MP4)
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvhd = BoxType{'m', 'v', 'h', 'd'}
	TypeTrak = BoxType{'t', 'r', 'a', 'k'}
	TypeTkhd = BoxType{'t', 'k', 'h', 'd'}
	TypeTref = BoxType{'t', 'r', 'e', 'f'}
	TypeTrgr = BoxType{'t', 'r', 'g', 'r'}
	TypeEdts = BoxType{'e', 'd', 't', 's'}
	TypeElst = BoxType{'e', 'l', 's', 't'}
	TypeMdia = BoxType{'m', 'd', 'i', 'a'}
	TypeMdhd = BoxType{'m', 'd', 'h', 'd'}
	TypeHdlr = BoxType{'h', 'd', 'l', 'r'}
	TypeMinf = BoxType{'m', 'i', 'n', 'f'}
	TypeVmhd = BoxType{'v', 'm', 'h', 'd'}
	TypeSmhd = BoxType{'s', 'm', 'h', 'd'}
	TypeDinf = BoxType{'d', 'i', 'n', 'f'}
	TypeDref = BoxType{'d', 'r', 'e', 'f'}
	TypeStbl = BoxType{'s', 't', 'b', 'l'}
	TypeStsd = BoxType{'s', 't', 's', 'd'}
	TypeStts = BoxType{'s', 't', 't', 's'}
	TypeCtts = BoxType{'c', 't', 't', 's'}
	TypeStsc = BoxType{'s', 't', 's', 'c'}
	TypeStsz = BoxType{'s', 't', 's', 'z'}
	TypeStz2 = BoxType{'s', 't', 'z', '2'}
	TypeStco = BoxType{'s', 't', 'c', 'o'}
	TypeCo64 = BoxType{'c', 'o', '6', '4'}
	TypeStss = BoxType{'s', 't', 's', 's'}
	TypeSdtp = BoxType{'s', 'd', 't', 'p'}
	TypeSbgp = BoxType{'s', 'b', 'g', 'p'}
	TypeSgpd = BoxType{'s', 'g', 'p', 'd'}
	// Fragment movie boxes
	TypeMvex = BoxType{'m', 'v', 'e', 'x'}
	TypeMehd = BoxType{'m', 'e', 'h', 'd'}
	TypeTrex = BoxType{'t', 'r', 'e', 'x'}
	TypeMoof = BoxType{'m', 'o', 'o', 'f'}
	TypeMfhd = BoxType{'m', 'f', 'h', 'd'}
	TypeTraf = BoxType{'t', 'r', 'a', 'f'}
	TypeTfhd = BoxType{'t', 'f', 'h', 'd'}
	TypeTfdt = BoxType{'t', 'f', 'd', 't'}
	TypeTrun = BoxType{'t', 'r', 'u', 'n'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'} // Segment index box
	TypeEmsg = BoxType{'e', 'm', 's', 'g'} // Event message box
	// Random access boxes
	TypeMfra = BoxType{'m', 'f', 'r', 'a'}
	TypeTfra = BoxType{'t', 'f', 'r', 'a'}
	TypeMfro = BoxType{'m', 'f', 'r', 'o'}
	// Metadata boxes
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeUdta = BoxType{'u', 'd', 't', 'a'}
	// Data boxes
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
	TypeWide = BoxType{'w', 'i', 'd', 'e'}
	TypeUUID = BoxType{'u', 'u', 'i', 'd'}
	// Protection boxes
	TypeSinf = BoxType{'s', 'i', 'n', 'f'}
	TypeFrma = BoxType{'f', 'r', 'm', 'a'}
	// Sample entry boxes
	TypeAvc1 = BoxType{'a', 'v', 'c', '1'}
	TypeAvc3 = BoxType{'a', 'v', 'c', '3'}
	TypeHvc1 = BoxType{'h', 'v', 'c', '1'}
	TypeHev1 = BoxType{'h', 'e', 'v', '1'}
	TypeAv01 = BoxType{'a', 'v', '0', '1'}
	TypeVp08 = BoxType{'v', 'p', '0', '8'}
	TypeVp09 = BoxType{'v', 'p', '0', '9'}
	TypeMp4v = BoxType{'m', 'p', '4', 'v'}
	TypeEncv = BoxType{'e', 'n', 'c', 'v'}
	TypeMp4a = BoxType{'m', 'p', '4', 'a'}
	TypeOpus = BoxType{'O', 'p', 'u', 's'}
	TypeFlac = BoxType{'f', 'L', 'a', 'C'}
	TypeAc3  = BoxType{'a', 'c', '-', '3'}
	TypeEc3  = BoxType{'e', 'c', '-', '3'}
	TypeMp3  = BoxType{'.', 'm', 'p', '3'}
	TypeEnca = BoxType{'e', 'n', 'c', 'a'}
	// Decoder configuration and side boxes
	TypeAvcC = BoxType{'a', 'v', 'c', 'C'}
	TypeHvcC = BoxType{'h', 'v', 'c', 'C'}
	TypeAv1C = BoxType{'a', 'v', '1', 'C'}
	TypeVpcC = BoxType{'v', 'p', 'c', 'C'}
	TypeEsds = BoxType{'e', 's', 'd', 's'}
	TypeDOps = BoxType{'d', 'O', 'p', 's'}
	TypeDfLa = BoxType{'d', 'f', 'L', 'a'}
	TypeDac3 = BoxType{'d', 'a', 'c', '3'}
	TypeDec3 = BoxType{'d', 'e', 'c', '3'}
	TypeColr = BoxType{'c', 'o', 'l', 'r'}
	TypeBtrt = BoxType{'b', 't', 'r', 't'} // MPEG-4 Bit rate box
	TypePasp = BoxType{'p', 'a', 's', 'p'} // Pixel aspect ratio box
	TypeWave = BoxType{'w', 'a', 'v', 'e'} // QuickTime sound decompression parameters
)

// IsFullBox returns true if the box type has version and flags fields.
func IsFullBox(t BoxType) bool {
	switch t {
	case TypeMvhd, TypeTkhd, TypeMdhd, TypeHdlr,
		TypeVmhd, TypeSmhd, TypeDref, TypeStsd,
		TypeStts, TypeCtts, TypeStsc, TypeStsz, TypeStz2,
		TypeStco, TypeCo64, TypeStss, TypeElst,
		TypeEsds, TypeMehd, TypeTrex,
		TypeMfhd, TypeTfhd, TypeTfdt, TypeTrun,
		TypeSbgp, TypeSgpd, TypeSdtp, TypeSidx, TypeEmsg,
		TypeTfra, TypeMfro, TypeVpcC, TypeDfLa:
		return true
	}
	return false
}

// IsContainerBox returns true if the box type is a container that holds child boxes.
func IsContainerBox(t BoxType) bool {
	switch t {
	case TypeMoov, TypeTrak, TypeEdts, TypeMdia,
		TypeMinf, TypeDinf, TypeStbl, TypeUdta,
		TypeMeta, TypeMvex, TypeMoof, TypeTraf,
		TypeTref, TypeTrgr, TypeMfra, TypeSinf, TypeWave:
		return true
	}
	return false
}

// IsTopLevel reports whether t is commonly found at file level. It is used
// to recognise a box boundary when scanning.
func IsTopLevel(t BoxType) bool {
	switch t {
	case TypeFtyp, TypeStyp, TypeMoov, TypeMoof, TypeMdat, TypeMfra,
		TypeFree, TypeSkip, TypeWide, TypeUUID, TypeSidx, TypeEmsg, TypeMeta, TypeUdta:
		return true
	}
	return false
}

func isVisualEntry(t BoxType) bool {
	switch t {
	case TypeAvc1, TypeAvc3, TypeHvc1, TypeHev1, TypeAv01, TypeVp08, TypeVp09, TypeMp4v, TypeEncv,
		BoxType{'d', 'v', 'h', '1'}, BoxType{'d', 'v', 'h', 'e'},
		BoxType{'j', 'p', 'e', 'g'}, BoxType{'m', 'j', 'p', 'a'},
		BoxType{'a', 'p', 'c', 'h'}, BoxType{'a', 'p', 'c', 'n'}, BoxType{'a', 'p', 'c', 's'},
		BoxType{'a', 'p', 'c', 'o'}, BoxType{'a', 'p', '4', 'h'}, BoxType{'s', '2', '6', '3'}:
		return true
	}
	return false
}

func isAudioEntry(t BoxType) bool {
	switch t {
	case TypeMp4a, TypeOpus, TypeFlac, TypeAc3, TypeEc3, TypeMp3, TypeEnca,
		BoxType{'i', 'p', 'c', 'm'}, BoxType{'l', 'p', 'c', 'm'}, BoxType{'t', 'w', 'o', 's'},
		BoxType{'s', 'o', 'w', 't'}, BoxType{'i', 'n', '2', '4'}, BoxType{'i', 'n', '3', '2'},
		BoxType{'f', 'l', '3', '2'}, BoxType{'f', 'l', '6', '4'}, BoxType{'r', 'a', 'w', ' '},
		BoxType{'a', 'l', 'a', 'w'}, BoxType{'u', 'l', 'a', 'w'}, BoxType{'s', 'a', 'm', 'r'}:
		return true
	}
	return false
}
