package fat

import (
	"encoding/binary"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

const (
	fsInfoLeadSig   uint32 = 0x41615252
	fsInfoStructSig uint32 = 0x61417272
	fsInfoTrailSig  uint32 = 0xAA550000
)

// FSInfo is the FAT32-only sector of allocation hints (spec §3.1 "FSINFO
// sector"; GLOSSARY "FSINFO"). Per SPEC_FULL.md §3 ("FSINFO free-count
// hint staleness"), FreeClusterCount is a hint, never authoritative:
// volume.Query does not read it and takes its free count from the
// allocator's bitmap instead.
type FSInfo struct {
	FreeClusterCount uint32
	NextFreeCluster  uint32
}

// DecodeFSInfo parses a sector-sized FSINFO image.
func DecodeFSInfo(sector []byte) (*FSInfo, error) {
	if len(sector) < 512 {
		return nil, fatfserrors.ErrEntryCorrupt.WithMessage("FSINFO sector too short")
	}
	if binary.LittleEndian.Uint32(sector[0:4]) != fsInfoLeadSig ||
		binary.LittleEndian.Uint32(sector[484:488]) != fsInfoStructSig ||
		binary.LittleEndian.Uint32(sector[508:512]) != fsInfoTrailSig {
		return nil, fatfserrors.ErrEntryCorrupt.WithMessage("FSINFO signatures invalid")
	}
	return &FSInfo{
		FreeClusterCount: binary.LittleEndian.Uint32(sector[488:492]),
		NextFreeCluster:  binary.LittleEndian.Uint32(sector[492:496]),
	}, nil
}

// EncodeFSInfo writes fi into a fresh sector-sized FSINFO image.
func EncodeFSInfo(fi *FSInfo, sectorSize int) []byte {
	sector := make([]byte, sectorSize)
	binary.LittleEndian.PutUint32(sector[0:4], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(sector[484:488], fsInfoStructSig)
	binary.LittleEndian.PutUint32(sector[488:492], fi.FreeClusterCount)
	binary.LittleEndian.PutUint32(sector[492:496], fi.NextFreeCluster)
	binary.LittleEndian.PutUint32(sector[508:512], fsInfoTrailSig)
	return sector
}
