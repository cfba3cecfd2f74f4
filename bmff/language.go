package bmff

import "golang.org/x/text/language"

// undetermined is the packed form of "und".
const undetermined = 0x55c4

// Language unpacks an mdhd language code to a BCP 47 tag such as "en".
// It returns "" for "und" and for codes that are not letters.
func Language(packed uint16) string {
	if packed == undetermined || packed == 0 || packed == 0x7fff {
		return ""
	}
	var code [3]byte
	for i := range code {
		c := byte(packed>>(10-5*i)&0x1f) + 0x60
		if c < 'a' || c > 'z' {
			return ""
		}
		code[i] = c
	}
	base, err := language.ParseBase(string(code[:]))
	if err != nil {
		return string(code[:])
	}
	return base.String()
}
