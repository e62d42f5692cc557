// Package direntry implements C7: directory-entry encode/decode, SFN/LFN
// name handling, and directory search/insert/delete.
//
// Grounded on the teacher's file_systems/fat/dirent.go (RawDirent layout,
// attribute flag constants, DateFromInt/TimestampFromParts FAT-timestamp
// conversion, AttrFlagsToFileMode) — the timestamp math and attribute
// bits are carried over essentially unchanged since FAT's on-disk
// timestamp packing hasn't changed across variants; this package adds
// the LFN chain support the teacher explicitly left a TODO for.
package direntry

import (
	"encoding/binary"
	"time"
)

// Attribute flags (spec §3.1 "Directory entry").
const (
	AttrReadOnly  uint8 = 0x01
	AttrHidden    uint8 = 0x02
	AttrSystem    uint8 = 0x04
	AttrVolumeID  uint8 = 0x08
	AttrDirectory uint8 = 0x10
	AttrArchive   uint8 = 0x20

	// AttrLongName is the attribute mask an LFN entry sets (spec §3.1 "A
	// long-name entry has attribute mask {RO, hidden, system, volume-id}
	// all set").
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

const EntrySize = 32

const (
	slotFree       = 0x00
	slotErased     = 0xE5
	slotErasedReal = 0x05 // 0xE5 as a *name* first byte is stored as 0x05
)

// fatEpoch is 1980-01-01 00:00:00, the earliest representable FAT date.
var fatEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Raw is the on-disk 32-byte directory entry record (spec §3.1, §6.1).
type Raw struct {
	Name            [11]byte
	Attr            uint8
	NTRes           uint8
	CrtTimeTenth    uint8
	CrtTime         uint16
	CrtDate         uint16
	LstAccDate      uint16
	FstClusHi       uint16
	WrtTime         uint16
	WrtDate         uint16
	FstClusLo       uint16
	FileSize        uint32
}

// DecodeRaw parses a 32-byte slot into a Raw record.
func DecodeRaw(slot []byte) Raw {
	var r Raw
	copy(r.Name[:], slot[0:11])
	r.Attr = slot[11]
	r.NTRes = slot[12]
	r.CrtTimeTenth = slot[13]
	r.CrtTime = binary.LittleEndian.Uint16(slot[14:16])
	r.CrtDate = binary.LittleEndian.Uint16(slot[16:18])
	r.LstAccDate = binary.LittleEndian.Uint16(slot[18:20])
	r.FstClusHi = binary.LittleEndian.Uint16(slot[20:22])
	r.WrtTime = binary.LittleEndian.Uint16(slot[22:24])
	r.WrtDate = binary.LittleEndian.Uint16(slot[24:26])
	r.FstClusLo = binary.LittleEndian.Uint16(slot[26:28])
	r.FileSize = binary.LittleEndian.Uint32(slot[28:32])
	return r
}

// Encode writes r into a fresh 32-byte slot.
func (r Raw) Encode() []byte {
	slot := make([]byte, EntrySize)
	copy(slot[0:11], r.Name[:])
	slot[11] = r.Attr
	slot[12] = r.NTRes
	slot[13] = r.CrtTimeTenth
	binary.LittleEndian.PutUint16(slot[14:16], r.CrtTime)
	binary.LittleEndian.PutUint16(slot[16:18], r.CrtDate)
	binary.LittleEndian.PutUint16(slot[18:20], r.LstAccDate)
	binary.LittleEndian.PutUint16(slot[20:22], r.FstClusHi)
	binary.LittleEndian.PutUint16(slot[22:24], r.WrtTime)
	binary.LittleEndian.PutUint16(slot[24:26], r.WrtDate)
	binary.LittleEndian.PutUint16(slot[26:28], r.FstClusLo)
	binary.LittleEndian.PutUint32(slot[28:32], r.FileSize)
	return slot
}

func (r Raw) IsFree() bool    { return r.Name[0] == slotFree }
func (r Raw) IsErased() bool  { return r.Name[0] == slotErased }
func (r Raw) IsLongName() bool { return r.Attr == AttrLongName }
func (r Raw) IsDirectory() bool { return r.Attr&AttrDirectory != 0 }
func (r Raw) IsVolumeID() bool  { return r.Attr&AttrVolumeID != 0 && r.Attr != AttrLongName }
func (r Raw) IsReadOnly() bool  { return r.Attr&AttrReadOnly != 0 }

func (r Raw) FirstCluster() uint32 {
	return uint32(r.FstClusHi)<<16 | uint32(r.FstClusLo)
}

func (r *Raw) SetFirstCluster(c uint32) {
	r.FstClusHi = uint16(c >> 16)
	r.FstClusLo = uint16(c)
}

// DateToInt packs t into the FAT date format: year-1980 (7 bits) | month
// (4 bits) | day (5 bits) (spec §6.5).
func DateToInt(t time.Time) uint16 {
	if t.Before(fatEpoch) {
		t = fatEpoch
	}
	return uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-1980)<<9
}

// TimeToInt packs t into the FAT time format: hour (5) | minute (6) |
// second/2 (5).
func TimeToInt(t time.Time) uint16 {
	return uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
}

// DateFromInt converts a FAT date field into a time.Time, grounded on the
// teacher's DateFromInt.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts converts a FAT date+time pair into a time.Time,
// grounded on the teacher's TimestampFromParts.
func TimestampFromParts(datePart, timePart uint16) time.Time {
	d := DateFromInt(datePart)
	seconds := int(timePart&0x001f) * 2
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, 0, time.UTC)
}

// Position identifies a single 32-byte slot (spec §3.1 "Directory
// position").
type Position struct {
	Sector       uint32
	OffsetInSector uint16
}

// ChainPosition covers an LFN chain plus its terminating SFN (spec §3.1
// "An LFN-using entry has a start and end position").
type ChainPosition struct {
	Start Position
	End   Position
}

// Info is the resolved, user-friendly view of a directory entry: the
// reconstructed name, decoded timestamps, and the raw SFN record.
type Info struct {
	Name         string
	Attr         uint8
	FirstCluster uint32
	Size         uint32
	CreatedAt    time.Time
	ModifiedAt   time.Time
	AccessedAt   time.Time
	Position     ChainPosition
}

func rawToInfo(r Raw, name string, pos ChainPosition) Info {
	return Info{
		Name:         name,
		Attr:         r.Attr,
		FirstCluster: r.FirstCluster(),
		Size:         r.FileSize,
		CreatedAt:    TimestampFromParts(r.CrtDate, r.CrtTime),
		ModifiedAt:   TimestampFromParts(r.WrtDate, r.WrtTime),
		AccessedAt:   DateFromInt(r.LstAccDate),
		Position:     pos,
	}
}
