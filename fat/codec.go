// FAT-entry codecs: one per variant, differing only in packing (spec
// §4.6.1). Marker constants cross-checked against ostafen-digler's
// internal/disk/fat.go ATTR_*/FAT12_BAD/FAT12_EOC/... table.
package fat

import (
	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// ClusterNumber is a raw FAT entry value: a cluster number, or one of the
// bad/eof/free markers.
type ClusterNumber uint32

const (
	fat12Bad  ClusterNumber = 0xFF7
	fat12EOF  ClusterNumber = 0xFF8
	fat12Free ClusterNumber = 0x000

	fat16Bad  ClusterNumber = 0xFFF7
	fat16EOF  ClusterNumber = 0xFFF8
	fat16Free ClusterNumber = 0x0000

	fat32Bad  ClusterNumber = 0x0FFFFFF7
	fat32EOF  ClusterNumber = 0x0FFFFFF8
	fat32Free ClusterNumber = 0x00000000
)

// Codec reads and writes FAT entries for a single variant.
type Codec interface {
	BadMarker() ClusterNumber
	EOFMarker() ClusterNumber
	FreeMarker() ClusterNumber
	IsEOF(v ClusterNumber) bool

	// ReadEntry decodes the entry for cluster from buf, a view over the
	// one or two sectors containing it starting at the FAT's first sector.
	// sectorSize is needed to compute byte offsets.
	ReadEntry(fatSectors []byte, sectorSize int, cluster uint32) (ClusterNumber, error)

	// WriteEntry encodes value into the entry for cluster within
	// fatSectors, preserving FAT32's reserved upper 4 bits.
	WriteEntry(fatSectors []byte, sectorSize int, cluster uint32, value ClusterNumber) error

	// EntrySectorSpan reports which sector offsets (relative to the FAT's
	// first sector) the given cluster's entry touches, so callers can
	// fetch exactly the sectors needed (FAT12 entries may straddle two).
	EntrySectorSpan(sectorSize int, cluster uint32) (first int, count int)
}

// CodecFor returns the Codec for a variant.
func CodecFor(v Variant) Codec {
	switch v {
	case FAT12:
		return fat12Codec{}
	case FAT16:
		return fat16Codec{}
	default:
		return fat32Codec{}
	}
}

// --- FAT12: 12 bits packed, two entries per 3 bytes ---------------------

type fat12Codec struct{}

func (fat12Codec) BadMarker() ClusterNumber  { return fat12Bad }
func (fat12Codec) EOFMarker() ClusterNumber  { return fat12EOF }
func (fat12Codec) FreeMarker() ClusterNumber { return fat12Free }
func (fat12Codec) IsEOF(v ClusterNumber) bool { return v >= fat12EOF }

func (fat12Codec) EntrySectorSpan(sectorSize int, cluster uint32) (int, int) {
	byteOffset := int(cluster) + int(cluster)/2
	first := byteOffset / sectorSize
	last := (byteOffset + 1) / sectorSize
	return first, last - first + 1
}

func (fat12Codec) ReadEntry(fatSectors []byte, sectorSize int, cluster uint32) (ClusterNumber, error) {
	byteOffset := int(cluster) + int(cluster)/2
	if byteOffset+1 >= len(fatSectors) {
		return 0, fatfserrors.ErrFatClusterInvalid
	}
	packed := uint16(fatSectors[byteOffset]) | uint16(fatSectors[byteOffset+1])<<8
	if cluster&1 == 0 {
		return ClusterNumber(packed & 0x0FFF), nil
	}
	return ClusterNumber(packed >> 4), nil
}

func (fat12Codec) WriteEntry(fatSectors []byte, sectorSize int, cluster uint32, value ClusterNumber) error {
	byteOffset := int(cluster) + int(cluster)/2
	if byteOffset+1 >= len(fatSectors) {
		return fatfserrors.ErrFatClusterInvalid
	}
	existing := uint16(fatSectors[byteOffset]) | uint16(fatSectors[byteOffset+1])<<8
	var packed uint16
	if cluster&1 == 0 {
		packed = (existing & 0xF000) | (uint16(value) & 0x0FFF)
	} else {
		packed = (existing & 0x000F) | (uint16(value)&0x0FFF)<<4
	}
	fatSectors[byteOffset] = byte(packed)
	fatSectors[byteOffset+1] = byte(packed >> 8)
	return nil
}

// --- FAT16: 16 bits little-endian ---------------------------------------

type fat16Codec struct{}

func (fat16Codec) BadMarker() ClusterNumber  { return fat16Bad }
func (fat16Codec) EOFMarker() ClusterNumber  { return fat16EOF }
func (fat16Codec) FreeMarker() ClusterNumber { return fat16Free }
func (fat16Codec) IsEOF(v ClusterNumber) bool { return v >= fat16EOF }

func (fat16Codec) EntrySectorSpan(sectorSize int, cluster uint32) (int, int) {
	byteOffset := int(cluster) * 2
	return byteOffset / sectorSize, 1
}

func (fat16Codec) ReadEntry(fatSectors []byte, sectorSize int, cluster uint32) (ClusterNumber, error) {
	off := int(cluster) * 2
	if off+2 > len(fatSectors) {
		return 0, fatfserrors.ErrFatClusterInvalid
	}
	return ClusterNumber(uint16(fatSectors[off]) | uint16(fatSectors[off+1])<<8), nil
}

func (fat16Codec) WriteEntry(fatSectors []byte, sectorSize int, cluster uint32, value ClusterNumber) error {
	off := int(cluster) * 2
	if off+2 > len(fatSectors) {
		return fatfserrors.ErrFatClusterInvalid
	}
	fatSectors[off] = byte(value)
	fatSectors[off+1] = byte(value >> 8)
	return nil
}

// --- FAT32: 28 bits in a 32-bit little-endian word, upper 4 reserved ----

type fat32Codec struct{}

func (fat32Codec) BadMarker() ClusterNumber  { return fat32Bad }
func (fat32Codec) EOFMarker() ClusterNumber  { return fat32EOF }
func (fat32Codec) FreeMarker() ClusterNumber { return fat32Free }
func (fat32Codec) IsEOF(v ClusterNumber) bool { return v&0x0FFFFFFF >= fat32EOF }

func (fat32Codec) EntrySectorSpan(sectorSize int, cluster uint32) (int, int) {
	byteOffset := int(cluster) * 4
	return byteOffset / sectorSize, 1
}

func (fat32Codec) ReadEntry(fatSectors []byte, sectorSize int, cluster uint32) (ClusterNumber, error) {
	off := int(cluster) * 4
	if off+4 > len(fatSectors) {
		return 0, fatfserrors.ErrFatClusterInvalid
	}
	raw := uint32(fatSectors[off]) | uint32(fatSectors[off+1])<<8 |
		uint32(fatSectors[off+2])<<16 | uint32(fatSectors[off+3])<<24
	return ClusterNumber(raw & 0x0FFFFFFF), nil
}

// WriteEntry preserves the upper four reserved bits of the existing entry
// (spec §4.6.1 "FAT32 writes must preserve the upper four reserved bits").
func (fat32Codec) WriteEntry(fatSectors []byte, sectorSize int, cluster uint32, value ClusterNumber) error {
	off := int(cluster) * 4
	if off+4 > len(fatSectors) {
		return fatfserrors.ErrFatClusterInvalid
	}
	existing := uint32(fatSectors[off]) | uint32(fatSectors[off+1])<<8 |
		uint32(fatSectors[off+2])<<16 | uint32(fatSectors[off+3])<<24
	raw := (existing & 0xF0000000) | (uint32(value) & 0x0FFFFFFF)
	fatSectors[off] = byte(raw)
	fatSectors[off+1] = byte(raw >> 8)
	fatSectors[off+2] = byte(raw >> 16)
	fatSectors[off+3] = byte(raw >> 24)
	return nil
}
