// Directory search/insert/delete (spec §4.7.3-4.7.5). Operates against
// the Slots abstraction rather than a concrete cluster chain, so it can
// run against both a fixed-size FAT12/16 root directory and a normal
// cluster-chained directory; package sys supplies the concrete
// implementation over volume-level reads/writes.
package direntry

import (
	"strconv"
	"strings"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// Slots is a directory's sequence of fixed-size 32-byte records, indexed
// 0..Count()-1. Grow appends room for at least n more slots and returns
// ErrEntryRootDir if the directory cannot grow (spec §3.2, §4.7.4, and
// SPEC_FULL.md §3's FAT12/16 root-directory special case).
type Slots interface {
	Count() int
	Read(index int) []byte
	Write(index int, data []byte)
	Grow(n int) error
}

// Lookup performs the spec §4.7.3 search: iterates slots, skipping
// erased and LFN-fragment slots except to reconstruct a long name,
// stopping at a free (0x00) slot. Returns the matching entry or
// ErrEntryNotFound.
func Lookup(s Slots, name string) (Info, error) {
	var lfnFragments [][]byte

	for i := 0; i < s.Count(); i++ {
		slot := s.Read(i)
		raw := DecodeRaw(slot)

		if raw.IsFree() {
			break
		}
		if raw.IsErased() {
			lfnFragments = nil
			continue
		}
		if raw.IsLongName() {
			lfnFragments = append(lfnFragments, slot)
			continue
		}
		if raw.IsVolumeID() {
			lfnFragments = nil
			continue
		}

		displayName, err := resolveName(raw, lfnFragments)
		start := i - len(lfnFragments) // first LFN slot, or the SFN itself
		lfnFragments = nil
		if err != nil {
			continue // corrupt chain: skip, don't fail the whole lookup
		}

		if strings.EqualFold(displayName, name) {
			return rawToInfo(raw, displayName, ChainPosition{
				Start: Position{Sector: 0, OffsetInSector: uint16(start)},
				End:   Position{Sector: 0, OffsetInSector: uint16(i)},
			}), nil
		}
	}
	return Info{}, fatfserrors.ErrEntryNotFound
}

func resolveName(raw Raw, lfnFragments [][]byte) (string, error) {
	if len(lfnFragments) == 0 {
		return DecodeSFN(raw.Name)
	}
	return DecodeLFN(lfnFragments, raw.Name)
}

// Entry is one decoded directory member, returned by Enumerate (spec
// §4.8 dir_read: "never emit LFN fragment records or erased slots").
type Entry struct {
	Info Info
}

// Enumerate walks every live entry in order, reconstructing long names
// and skipping LFN fragments, erased slots, and the volume-label entry.
func Enumerate(s Slots) ([]Entry, error) {
	var out []Entry
	var lfnFragments [][]byte

	for i := 0; i < s.Count(); i++ {
		slot := s.Read(i)
		raw := DecodeRaw(slot)

		if raw.IsFree() {
			break
		}
		if raw.IsErased() {
			lfnFragments = nil
			continue
		}
		if raw.IsLongName() {
			lfnFragments = append(lfnFragments, slot)
			continue
		}
		if raw.IsVolumeID() {
			lfnFragments = nil
			continue
		}

		name, err := resolveName(raw, lfnFragments)
		chainLen := len(lfnFragments) + 1
		lfnFragments = nil
		if err != nil {
			name, _ = DecodeSFN(raw.Name)
		}

		out = append(out, Entry{Info: rawToInfo(raw, name, ChainPosition{
			Start: Position{OffsetInSector: uint16(i - chainLen + 1)},
			End:   Position{OffsetInSector: uint16(i)},
		})})
	}
	return out, nil
}

// findFreeRun locates a contiguous run of n free-or-erased slots,
// scanning from the start (spec §4.7.4 "Allocate a run of contiguous free
// slots").
func findFreeRun(s Slots, n int) (int, bool) {
	run := 0
	start := 0
	for i := 0; i < s.Count(); i++ {
		raw := DecodeRaw(s.Read(i))
		if raw.IsFree() || raw.IsErased() {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				return start, true
			}
			if raw.IsFree() {
				// Everything past a free slot is also free; one more
				// check confirms we can keep growing this run to n.
				continue
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

// uniqueShortName implements the numeric-tail scheme of spec §4.7.4:
// strip illegal characters, uppercase, truncate to six characters, append
// ~N for the smallest N >= 1 giving a name existing() reports as unused.
func uniqueShortName(name string, existing func(base, ext string) bool) (base, ext string) {
	rawBase, rawExt := splitBaseExt(name)
	cleanBase := stripIllegal(rawBase)
	cleanExt := stripIllegal(rawExt)
	if len(cleanExt) > 3 {
		cleanExt = cleanExt[:3]
	}

	if len(cleanBase) <= 8 && !existing(cleanBase, cleanExt) {
		return cleanBase, cleanExt
	}

	truncated := cleanBase
	if len(truncated) > 6 {
		truncated = truncated[:6]
	}
	for n := 1; n < 1000000; n++ {
		tail := "~" + strconv.Itoa(n)
		candidate := truncated
		if len(candidate)+len(tail) > 8 {
			candidate = candidate[:8-len(tail)]
		}
		candidate += tail
		if !existing(candidate, cleanExt) {
			return candidate, cleanExt
		}
	}
	return truncated + "~1", cleanExt
}

// Insert allocates slots for name (an LFN chain plus terminating SFN; the
// LFN chain is left out only when name is all upper case, contains no '~'
// and has no character stripIllegal drops, and since '.' is one of those,
// any name with an extension gets an LFN chain), growing the
// directory by one cluster via Grow if no run is found, and writes the
// new entry (spec §4.7.4).
func Insert(s Slots, name string, attr uint8, firstCluster uint32, size uint32, timestamp Raw) (Info, error) {
	existing := func(base, ext string) bool {
		candidate, _ := EncodeSFN(base, ext)
		for i := 0; i < s.Count(); i++ {
			raw := DecodeRaw(s.Read(i))
			if raw.IsFree() {
				break
			}
			if !raw.IsErased() && !raw.IsLongName() && raw.Name == candidate {
				return true
			}
		}
		return false
	}

	base, ext := uniqueShortName(name, existing)
	sfn, err := EncodeSFN(base, ext)
	if err != nil {
		return Info{}, err
	}

	needsLFN := name != strings.ToUpper(name) || stripIllegal(name) != name || strings.Contains(name, "~")
	var fragments [][]byte
	if needsLFN {
		fragments, err = EncodeLFN(name, sfn)
		if err != nil {
			return Info{}, err
		}
	}

	total := len(fragments) + 1
	start, ok := findFreeRun(s, total)
	if !ok {
		if err := s.Grow(total); err != nil {
			return Info{}, err
		}
		start, ok = findFreeRun(s, total)
		if !ok {
			return Info{}, fatfserrors.ErrDeviceFull.WithMessage("directory has no room even after growth")
		}
	}

	for i, frag := range fragments {
		s.Write(start+i, frag)
	}

	entry := timestamp
	entry.Name = sfn
	entry.Attr = attr
	entry.FileSize = size
	entry.SetFirstCluster(firstCluster)
	sfnIndex := start + len(fragments)
	s.Write(sfnIndex, entry.Encode())

	return rawToInfo(entry, name, ChainPosition{
		Start: Position{OffsetInSector: uint16(start)},
		End:   Position{OffsetInSector: uint16(sfnIndex)},
	}), nil
}

// Delete marks every slot in [pos.Start, pos.End] with 0xE5 (spec
// §4.7.5). Refuses to delete the root directory's implicit "." entries
// isn't this package's concern; callers resolve that before calling.
func Delete(s Slots, pos ChainPosition) error {
	start := int(pos.Start.OffsetInSector)
	end := int(pos.End.OffsetInSector)
	for i := start; i <= end; i++ {
		raw := DecodeRaw(s.Read(i))
		raw.Name[0] = slotErased
		s.Write(i, raw.Encode())
	}
	return nil
}
