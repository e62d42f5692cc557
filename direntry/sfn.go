// Short-file-name encode/decode (spec §4.7.1). Legal SFN characters are
// transcoded through the OEM code page a real FAT implementation stores
// them in (CP437 in the common case), grounded on soypat/fat's reliance
// on golang.org/x/text for exactly this, via golang.org/x/text's
// charmap.CodePage437 (SPEC_FULL.md §2).
package direntry

import (
	"strings"

	"golang.org/x/text/encoding/charmap"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// sfnIllegal is the set of ASCII punctuation forbidden in an 8.3 name
// component (spec §4.7.1): `"*+,./:;<=>?[\]|`.
const sfnIllegal = "\"*+,./:;<=>?[\\]|"

func isSFNLegal(b byte) bool {
	if b < 0x21 || b > 0x7E {
		return false
	}
	return !strings.ContainsRune(sfnIllegal, rune(b))
}

// EncodeSFN encodes name (already uppercased, split into base and
// extension by the caller) into the 11-byte space-padded SFN slot,
// transcoding through CP437 first. Every transcoded byte must then lie in
// 0x21..0x7E and outside sfnIllegal, so non-ASCII names are rejected with
// ErrNameInvalid.
func EncodeSFN(base, ext string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	encBase, err := charmap.CodePage437.NewEncoder().String(base)
	if err != nil {
		return out, fatfserrors.ErrNameInvalid.WrapError(err)
	}
	encExt, err := charmap.CodePage437.NewEncoder().String(ext)
	if err != nil {
		return out, fatfserrors.ErrNameInvalid.WrapError(err)
	}

	if len(encBase) > 8 || len(encExt) > 3 {
		return out, fatfserrors.ErrNameTooLong
	}
	for i := 0; i < len(encBase); i++ {
		if !isSFNLegal(encBase[i]) {
			return out, fatfserrors.ErrNameInvalid
		}
	}
	for i := 0; i < len(encExt); i++ {
		if !isSFNLegal(encExt[i]) {
			return out, fatfserrors.ErrNameInvalid
		}
	}

	copy(out[0:8], encBase)
	copy(out[8:11], encExt)
	return out, nil
}

// DecodeSFN reconstructs the dotted display name from an 11-byte SFN
// slot, transcoding CP437 bytes back to UTF-8.
func DecodeSFN(raw [11]byte) (string, error) {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")

	// 0x05 in the first byte stands in for a real 0xE5 (the erased-slot
	// marker) when that's genuinely the first character of the name.
	if len(base) > 0 && base[0] == slotErasedReal {
		base = string([]byte{slotErased}) + base[1:]
	}

	decBase, err := charmap.CodePage437.NewDecoder().String(base)
	if err != nil {
		return "", fatfserrors.ErrEntryCorrupt.WrapError(err)
	}
	decExt, err := charmap.CodePage437.NewDecoder().String(ext)
	if err != nil {
		return "", fatfserrors.ErrEntryCorrupt.WrapError(err)
	}

	if decExt == "" {
		return decBase, nil
	}
	return decBase + "." + decExt, nil
}

// splitBaseExt uppercases a dotted display name and splits it at its last
// dot into a base/ext pair. Neither part is truncated or stripped here;
// uniqueShortName does that for the numeric-tail scheme (spec §4.7.4).
func splitBaseExt(name string) (base, ext string) {
	upper := strings.ToUpper(name)
	idx := strings.LastIndex(upper, ".")
	if idx < 0 {
		return upper, ""
	}
	return upper[:idx], upper[idx+1:]
}

// stripIllegal removes characters EncodeSFN would reject, for the
// numeric-tail uniqueness scheme (spec §4.7.4 "strip illegal
// characters").
func stripIllegal(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if isSFNLegal(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
