// Long-file-name encode/decode (spec §4.7.2). The teacher has no LFN
// support at all (file_systems/fat/dirent.go carries a
// "// TODO (dargueta): Implement LFN support." and stops at SFN), so this
// is built fresh, following the UCS-2-fragment-chain layout spec.md
// documents and soypat/fat's approach of using stdlib unicode/utf16
// directly rather than a hand-rolled surrogate codec (its own
// internal/utf16x is unreachable as an external import — see DESIGN.md).
package direntry

import (
	"strings"
	"unicode/utf16"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

const lfnCharsPerEntry = 13

// isLFNLegal extends the SFN legal set with the characters an LFN
// fragment may additionally carry (spec §4.7.2): `.`, space,
// `+,;=[]`, and anything >= 0x80 (any non-ASCII code unit).
func isLFNLegal(r rune) bool {
	if r >= 0x80 {
		return true
	}
	if r == '.' || r == ' ' {
		return true
	}
	if strings.ContainsRune("+,;=[]", r) {
		return true
	}
	return isSFNLegal(byte(r)) && r < 0x80
}

// ValidateLFNName checks every rune of name against the LFN legal set and
// the 255 UCS-2-code-unit length limit (spec §4.7.2).
func ValidateLFNName(name string) error {
	units := utf16.Encode([]rune(name))
	if len(units) == 0 {
		return fatfserrors.ErrNameInvalid
	}
	if len(units) > 255 {
		return fatfserrors.ErrNameTooLong
	}
	for _, r := range name {
		if !isLFNLegal(r) {
			return fatfserrors.ErrNameInvalid
		}
	}
	return nil
}

// ShortNameChecksum computes the checksum of an 11-byte SFN, stored in
// every LFN fragment entry so a reader can detect an SFN/LFN mismatch
// (spec §4.7.2 "a checksum of the associated SFN").
func ShortNameChecksum(sfn [11]byte) uint8 {
	var sum uint8
	for _, b := range sfn {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}

// EncodeLFN splits name into a chain of 32-byte LFN fragment entries,
// ordinal 1..N with the top bit set on the last (first-written, highest-
// ordinal) entry, each carrying 13 UCS-2 code units split 5/6/2 across
// its name fields (spec §4.7.2). The chain is returned in on-disk
// storage order: the fragment with the last-used ordinal comes first,
// immediately preceding the terminating SFN entry, matching how a real
// FAT directory stores it.
func EncodeLFN(name string, sfn [11]byte) ([][]byte, error) {
	if err := ValidateLFNName(name); err != nil {
		return nil, err
	}

	units := utf16.Encode([]rune(name))
	checksum := ShortNameChecksum(sfn)

	numEntries := (len(units) + lfnCharsPerEntry - 1) / lfnCharsPerEntry
	entries := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		ordinal := uint8(i + 1)
		start := i * lfnCharsPerEntry
		end := start + lfnCharsPerEntry
		chunk := make([]uint16, lfnCharsPerEntry)
		for j := range chunk {
			chunk[j] = 0xFFFF // padding
		}
		for j := start; j < end && j < len(units); j++ {
			chunk[j-start] = units[j]
		}
		if end >= len(units) {
			// Null-terminate the chunk right after the real characters.
			termIdx := len(units) - start
			if termIdx >= 0 && termIdx < lfnCharsPerEntry {
				chunk[termIdx] = 0x0000
			}
		}

		slot := make([]byte, EntrySize)
		if i == numEntries-1 {
			ordinal |= 0x40
		}
		slot[0] = ordinal
		putUTF16(slot[1:11], chunk[0:5])
		slot[11] = AttrLongName
		slot[12] = 0x00
		slot[13] = checksum
		putUTF16(slot[14:26], chunk[5:11])
		slot[26] = 0x00
		slot[27] = 0x00
		putUTF16(slot[28:32], chunk[11:13])

		// Store in reverse ordinal order (highest ordinal, i.e. most
		// recently appended chunk, stored first on disk).
		entries[numEntries-1-i] = slot
	}
	return entries, nil
}

func putUTF16(dst []byte, units []uint16) {
	for i, u := range units {
		dst[i*2] = byte(u)
		dst[i*2+1] = byte(u >> 8)
	}
}

func getUTF16(src []byte) []uint16 {
	units := make([]uint16, len(src)/2)
	for i := range units {
		units[i] = uint16(src[i*2]) | uint16(src[i*2+1])<<8
	}
	return units
}

// DecodeLFN reassembles a name from a chain of LFN fragment slots given
// in on-disk storage order (highest ordinal first), validating that the
// checksum each fragment carries matches sfn.
func DecodeLFN(fragments [][]byte, sfn [11]byte) (string, error) {
	if len(fragments) == 0 {
		return "", fatfserrors.ErrEntryCorrupt
	}
	expected := ShortNameChecksum(sfn)

	ordered := make([][]byte, len(fragments))
	for _, f := range fragments {
		ordinal := f[0] &^ 0x40
		if f[13] != expected {
			return "", fatfserrors.ErrEntryChecksumMismatch
		}
		idx := int(ordinal) - 1
		if idx < 0 || idx >= len(fragments) {
			return "", fatfserrors.ErrEntryCorrupt.WithMessage("LFN ordinal out of range")
		}
		ordered[idx] = f
	}

	var units []uint16
	for _, f := range ordered {
		if f == nil {
			return "", fatfserrors.ErrEntryCorrupt.WithMessage("LFN chain missing a fragment")
		}
		chunk := make([]uint16, 0, lfnCharsPerEntry)
		chunk = append(chunk, getUTF16(f[1:11])...)
		chunk = append(chunk, getUTF16(f[14:26])...)
		chunk = append(chunk, getUTF16(f[28:32])...)
		for _, u := range chunk {
			if u == 0x0000 {
				goto done
			}
			units = append(units, u)
		}
	}
done:
	return string(utf16.Decode(units)), nil
}
