// Package partition implements C3: parsing and writing MBR-style
// partition tables at LBA 0 of a device.
//
// Grounded on the teacher's file_systems/fat/common.go (binary.Read over
// a fixed-layout struct for on-disk geometry), and enriched with the
// partition-type byte table from soypat/fat's internal/mbr package, which
// this module's Write path uses to pick a FAT-appropriate type code.
package partition

import (
	"bytes"
	"encoding/binary"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

const (
	mbrSize          = 512
	partitionTableOffset = 446
	partitionEntrySize   = 16
	signatureOffset      = 510
)

// Type codes for the partition types this module writes, mirroring
// soypat/fat/internal/mbr.PartitionType and the original uC/FS format
// path's type-selection table (SPEC_FULL.md §3).
const (
	TypeFAT12      = 0x01
	TypeFAT16Small = 0x04
	TypeFAT16      = 0x06
	TypeFAT32      = 0x0B
	TypeFAT32LBA   = 0x0C
)

// Entry is a single partition table record (spec §3.1 "Partition entry").
type Entry struct {
	StartSector uint32
	SizeSectors uint32
	TypeCode    byte
}

type rawEntry struct {
	BootFlag byte
	StartCHS [3]byte
	Type     byte
	EndCHS   [3]byte
	StartLBA uint32
	SizeLBA  uint32
}

// Table holds the four primary partition records read from a sector 0
// image, and whether a valid MBR signature was present at all.
type Table struct {
	HasSignature bool
	Entries      [4]Entry
}

// Parse reads a 512-byte LBA-0 sector and extracts its partition table
// (spec §4.3). If the MBR signature is absent, HasSignature is false and
// every entry is zero; callers should treat partition index 0 as "entire
// device" in that case.
func Parse(sector []byte) (*Table, error) {
	if len(sector) < mbrSize {
		return nil, fatfserrors.ErrPartitionTableInvalid.WithMessage("sector shorter than 512 bytes")
	}

	t := &Table{}
	if sector[signatureOffset] == 0x55 && sector[signatureOffset+1] == 0xAA {
		t.HasSignature = true
	} else {
		return t, nil
	}

	for i := 0; i < 4; i++ {
		off := partitionTableOffset + i*partitionEntrySize
		var raw rawEntry
		r := bytes.NewReader(sector[off : off+partitionEntrySize])
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fatfserrors.ErrPartitionTableInvalid.WrapError(err)
		}
		t.Entries[i] = Entry{
			StartSector: raw.StartLBA,
			SizeSectors: raw.SizeLBA,
			TypeCode:    raw.Type,
		}
	}
	return t, nil
}

// Get returns the entry for 1-based partition index n (spec §4.3 "for
// partition index n in 1..=4, returns entry n-1"). Index 0 means "entire
// device" and is handled by the caller (volume.Open), not here.
func (t *Table) Get(n int) (Entry, error) {
	if n < 1 || n > 4 {
		return Entry{}, fatfserrors.ErrPartitionNotFound
	}
	e := t.Entries[n-1]
	if e.SizeSectors == 0 {
		return Entry{}, fatfserrors.ErrPartitionNotFound
	}
	return e, nil
}

// Write emplaces a single partition with typeCode, starting at LBA 1 (just
// after the MBR sector itself) and spanning totalSectors-1 sectors, into a
// fresh 512-byte MBR sector (spec §4.3 "Write path
// (format) emplaces a single partition spanning the full device with a
// FAT-appropriate type code").
func Write(totalSectors uint32, typeCode byte) []byte {
	sector := make([]byte, mbrSize)

	raw := rawEntry{
		BootFlag: 0x00,
		Type:     typeCode,
		StartLBA: 1,
		SizeLBA:  totalSectors - 1,
	}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, raw)
	copy(sector[partitionTableOffset:partitionTableOffset+partitionEntrySize], buf.Bytes())

	sector[signatureOffset] = 0x55
	sector[signatureOffset+1] = 0xAA
	return sector
}

// TypeForFATVariant picks the partition type byte for a FAT variant and
// sector count, following the original format path's selection table
// (SPEC_FULL.md §3): FAT12 is always 0x01; FAT16 is 0x04 below ~32MB and
// 0x06 above; FAT32 is 0x0B, or 0x0C when LBA addressing is required.
func TypeForFATVariant(fatType int, totalSectors uint32, sectorSize uint32) byte {
	switch fatType {
	case 12:
		return TypeFAT12
	case 16:
		sizeBytes := uint64(totalSectors) * uint64(sectorSize)
		if sizeBytes < 32*1024*1024 {
			return TypeFAT16Small
		}
		return TypeFAT16
	case 32:
		if totalSectors > 0x00FFFFFF {
			return TypeFAT32LBA
		}
		return TypeFAT32
	default:
		return TypeFAT32LBA
	}
}
