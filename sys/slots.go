// Package sys implements C8: the syscall layer mapping volume-level
// file/dir operations onto the FAT core (package fat) and directory-entry
// primitives (package direntry).
//
// Grounded on the teacher's file_systems/fat/driverbase.go (FATDriver
// methods bridging cluster-chain primitives to POSIX-shaped operations),
// generalized from dargueta-disko's ObjectHandle-returning API to the
// explicit handle-ID/error-return shape spec §4.8 describes.
package sys

import (
	"github.com/go-ucfat/fatfs/cache"
	"github.com/go-ucfat/fatfs/direntry"
	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/fat"
	"github.com/go-ucfat/fatfs/volume"
)

// clusterChainSlots implements direntry.Slots over a directory's backing
// storage: the fixed-size FAT12/16 root directory when firstCluster == 0,
// or an ordinary growable cluster chain otherwise.
type clusterChainSlots struct {
	vol          *volume.Volume
	firstCluster uint32
	rootStart    uint32
	rootSectors  uint32

	sectors      []uint32
	slotData     [][]byte // one entry per 32-byte slot
	sectorOfSlot []uint32
	loaded       bool
}

func newRootSlots(vol *volume.Volume, rootStart, rootSectors uint32) *clusterChainSlots {
	return &clusterChainSlots{vol: vol, rootStart: rootStart, rootSectors: rootSectors}
}

func newChainSlots(vol *volume.Volume, firstCluster uint32) *clusterChainSlots {
	return &clusterChainSlots{vol: vol, firstCluster: firstCluster}
}

// FirstCluster returns the cluster this directory's chain starts at, or 0
// for the FAT12/16 fixed-region root directory (which isn't cluster-
// addressed at all). Lets callers outside this package (package fatfs's
// path resolver) recover identity for a Slots value without reaching into
// unexported fields.
func (s *clusterChainSlots) FirstCluster() uint32 { return s.firstCluster }

// readFATEntry reads one FAT entry through the volume's cache, following
// the same byte-offset convention as volume's internal table adapter:
// codec offsets are relative to the FAT's own start.
func readFATEntry(vol *volume.Volume, cluster uint32) (fat.ClusterNumber, error) {
	md := vol.Metadata()
	codec := fat.CodecFor(md.Variant)
	first, count := codec.EntrySectorSpan(int(md.BytesPerSector), cluster)
	total := first + count
	buf := make([]byte, total*int(md.BytesPerSector))
	if err := vol.Read(buf, md.ReservedSectorCount, uint32(total), cache.Management); err != nil {
		return 0, err
	}
	return codec.ReadEntry(buf, int(md.BytesPerSector), cluster)
}

// clusterSectors enumerates every sector backing the directory, walking
// the cluster chain for a chain-backed directory.
func (s *clusterChainSlots) clusterSectors() ([]uint32, error) {
	md := s.vol.Metadata()
	if s.firstCluster == 0 {
		sectors := make([]uint32, s.rootSectors)
		for i := range sectors {
			sectors[i] = s.rootStart + uint32(i)
		}
		return sectors, nil
	}

	var sectors []uint32
	codec := fat.CodecFor(md.Variant)
	cur := s.firstCluster
	for {
		base := md.SectorOfCluster(cur)
		for i := uint32(0); i < md.ClusterSizeSectors; i++ {
			sectors = append(sectors, base+i)
		}
		entry, err := readFATEntry(s.vol, cur)
		if err != nil {
			return nil, err
		}
		if codec.IsEOF(entry) {
			break
		}
		cur = uint32(entry)
	}
	return sectors, nil
}

func (s *clusterChainSlots) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	sectors, err := s.clusterSectors()
	if err != nil {
		return err
	}
	md := s.vol.Metadata()
	perSector := int(md.BytesPerSector) / direntry.EntrySize

	s.sectors = sectors
	s.slotData = make([][]byte, 0, len(sectors)*perSector)
	s.sectorOfSlot = make([]uint32, 0, len(sectors)*perSector)
	for _, sec := range sectors {
		buf := make([]byte, md.BytesPerSector)
		if err := s.vol.Read(buf, sec, 1, cache.Directory); err != nil {
			return err
		}
		for i := 0; i < perSector; i++ {
			s.slotData = append(s.slotData, buf[i*direntry.EntrySize:(i+1)*direntry.EntrySize])
			s.sectorOfSlot = append(s.sectorOfSlot, sec)
		}
	}
	s.loaded = true
	return nil
}

func (s *clusterChainSlots) Count() int {
	_ = s.ensureLoaded()
	return len(s.slotData)
}

func (s *clusterChainSlots) Read(index int) []byte {
	_ = s.ensureLoaded()
	return s.slotData[index]
}

func (s *clusterChainSlots) Write(index int, data []byte) {
	_ = s.ensureLoaded()
	copy(s.slotData[index], data)

	md := s.vol.Metadata()
	perSector := int(md.BytesPerSector) / direntry.EntrySize
	offsetInSector := index % perSector
	sec := s.sectorOfSlot[index]

	buf := make([]byte, md.BytesPerSector)
	_ = s.vol.Read(buf, sec, 1, cache.Directory)
	copy(buf[offsetInSector*direntry.EntrySize:(offsetInSector+1)*direntry.EntrySize], data)
	_ = s.vol.Write(buf, sec, 1, cache.Directory)
}

// Grow extends a chain-backed directory by enough clusters to hold n more
// slots (spec §4.7.4); the fixed-size FAT12/16 root cannot grow
// (SPEC_FULL.md §3).
func (s *clusterChainSlots) Grow(n int) error {
	if s.firstCluster == 0 {
		return fatfserrors.ErrEntryRootDir
	}

	md := s.vol.Metadata()
	slotsPerCluster := int(md.ClusterSizeSectors*md.BytesPerSector) / direntry.EntrySize
	clustersNeeded := (n + slotsPerCluster - 1) / slotsPerCluster
	if clustersNeeded < 1 {
		clustersNeeded = 1
	}

	if _, err := s.vol.Allocator().ChainAlloc(s.firstCluster, clustersNeeded); err != nil {
		return err
	}

	s.loaded = false
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	zero := make([]byte, md.BytesPerSector)
	newSectorCount := clustersNeeded * int(md.ClusterSizeSectors)
	for _, sec := range s.sectors[len(s.sectors)-newSectorCount:] {
		if err := s.vol.Write(zero, sec, 1, cache.Directory); err != nil {
			return err
		}
	}
	s.loaded = false
	return s.ensureLoaded()
}
