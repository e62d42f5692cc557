// Format (spec §4.6.3): computes geometry from a requested cluster size,
// reserved sector count, number of FATs, and root directory size, then
// writes boot sector, FSINFO, FATs, and root directory.
//
// Geometry validation accumulates every problem found (not just the
// first) via github.com/hashicorp/go-multierror, the same dependency the
// teacher's go.mod carries but never exercises (SPEC_FULL.md §1/§2) —
// here it finally gets a concrete caller.
package fat

import (
	"github.com/hashicorp/go-multierror"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// Sink is the collaborator Format writes sectors through; package volume
// supplies the concrete implementation.
type Sink interface {
	SectorSize() uint32
	TotalSectors() uint32
	WriteSector(lba uint32, data []byte) error
}

// FormatConfig is the requested geometry for a fresh volume (spec §4.6.3).
type FormatConfig struct {
	Variant             Variant
	ClusterSizeSectors  uint32
	ReservedSectorCount uint32
	NumFATs             uint32 // default 2
	RootEntryCount      uint32 // FAT12/16 only
	VolumeLabel         [11]byte
	VolumeID            uint32
}

func validateFormatConfig(cfg FormatConfig, sectorSize uint32, totalSectors uint32) error {
	var errs *multierror.Error

	if cfg.ClusterSizeSectors == 0 || cfg.ClusterSizeSectors&(cfg.ClusterSizeSectors-1) != 0 {
		errs = multierror.Append(errs, fatfserrors.ErrEntryCorrupt.WithMessage("cluster size must be a power of two"))
	}
	if cfg.NumFATs == 0 {
		errs = multierror.Append(errs, fatfserrors.ErrEntryCorrupt.WithMessage("number of FATs must be at least 1"))
	}
	if cfg.ReservedSectorCount == 0 {
		errs = multierror.Append(errs, fatfserrors.ErrEntryCorrupt.WithMessage("reserved sector count must be at least 1"))
	}
	if cfg.Variant != FAT32 && cfg.RootEntryCount == 0 {
		errs = multierror.Append(errs, fatfserrors.ErrEntryCorrupt.WithMessage("root entry count must be nonzero for FAT12/16"))
	}
	if sectorSize < 512 || sectorSize > 4096 || sectorSize&(sectorSize-1) != 0 {
		errs = multierror.Append(errs, fatfserrors.ErrDeviceInvalidSectorSize)
	}
	if totalSectors == 0 {
		errs = multierror.Append(errs, fatfserrors.ErrDeviceInvalidSize)
	}

	if errs != nil {
		return fatfserrors.ErrEntryCorrupt.WrapError(errs)
	}
	return nil
}

// computeGeometry iteratively solves for fatSizeSectors, since the FAT
// area's own size depends on the cluster count it is sized to describe.
// A handful of iterations converge because fatSizeSectors only grows
// monotonically with totalClusters and vice versa is bounded.
func computeGeometry(cfg FormatConfig, sectorSize uint32, totalSectors uint32) (dataRegionStart, totalClusters, fatSizeSectors, rootDirSectors uint32) {
	if cfg.Variant != FAT32 {
		rootDirSectors = (cfg.RootEntryCount*32 + sectorSize - 1) / sectorSize
	}

	entryBits := uint32(16)
	switch cfg.Variant {
	case FAT12:
		entryBits = 12
	case FAT32:
		entryBits = 32
	}

	fatSizeSectors = 1
	for i := 0; i < 8; i++ {
		used := cfg.ReservedSectorCount + cfg.NumFATs*fatSizeSectors + rootDirSectors
		if used >= totalSectors {
			totalClusters = 0
		} else {
			totalClusters = (totalSectors - used) / cfg.ClusterSizeSectors
		}
		needed := (totalClusters*entryBits + 7) / 8
		newFatSize := (needed + sectorSize - 1) / sectorSize
		if newFatSize == 0 {
			newFatSize = 1
		}
		if newFatSize == fatSizeSectors {
			break
		}
		fatSizeSectors = newFatSize
	}

	dataRegionStart = cfg.ReservedSectorCount + cfg.NumFATs*fatSizeSectors + rootDirSectors
	return
}

// Format computes geometry, writes the boot sector (and FAT32 backup at
// LBA 6), FSINFO, zeroed FAT and root-directory areas, and the reserved
// FAT entries 0/1, returning the resulting Metadata (spec §4.6.3).
func Format(sink Sink, cfg FormatConfig) (*Metadata, error) {
	sectorSize := sink.SectorSize()
	totalSectors := sink.TotalSectors()

	if cfg.NumFATs == 0 {
		cfg.NumFATs = 2
	}

	if err := validateFormatConfig(cfg, sectorSize, totalSectors); err != nil {
		return nil, err
	}

	dataRegionStart, totalClusters, fatSizeSectors, rootDirSectors := computeGeometry(cfg, sectorSize, totalSectors)

	md := &Metadata{
		Variant:             cfg.Variant,
		BytesPerSector:      sectorSize,
		SectorsPerCluster:   cfg.ClusterSizeSectors,
		ReservedSectorCount: cfg.ReservedSectorCount,
		FATSizeSectors:      fatSizeSectors,
		NumberOfFATs:        cfg.NumFATs,
		RootDirSectors:      rootDirSectors,
		DataRegionStart:     dataRegionStart,
		ClusterSizeSectors:  cfg.ClusterSizeSectors,
		ClusterSizeLog2:     log2(cfg.ClusterSizeSectors),
		MaxClusterNumber:    totalClusters + 1,
		NextClusterHint:     2,
		VolumeLabel:         cfg.VolumeLabel,
		VolumeID:            cfg.VolumeID,
		TotalSectors:        totalSectors,
	}
	if cfg.Variant == FAT32 {
		md.RootClusterNumber = 2
		md.FSInfoSector = 1
		md.BackupBootSector = 6
	}

	if err := md.ValidateGeometry(totalSectors); err != nil {
		return nil, err
	}

	bootSector := EncodeBPB(md, int(sectorSize))
	if err := sink.WriteSector(0, bootSector); err != nil {
		return nil, err
	}
	if cfg.Variant == FAT32 {
		if err := sink.WriteSector(md.BackupBootSector, bootSector); err != nil {
			return nil, err
		}
		fsInfo := EncodeFSInfo(&FSInfo{FreeClusterCount: totalClusters - 1, NextFreeCluster: 3}, int(sectorSize))
		if err := sink.WriteSector(md.FSInfoSector, fsInfo); err != nil {
			return nil, err
		}
	}

	zeroSector := make([]byte, sectorSize)
	for fatCopy := uint32(0); fatCopy < cfg.NumFATs; fatCopy++ {
		fatStart := cfg.ReservedSectorCount + fatCopy*fatSizeSectors
		for s := uint32(0); s < fatSizeSectors; s++ {
			if err := sink.WriteSector(fatStart+s, zeroSector); err != nil {
				return nil, err
			}
		}
	}

	rootStart := cfg.ReservedSectorCount + cfg.NumFATs*fatSizeSectors
	if cfg.Variant == FAT32 {
		for s := uint32(0); s < cfg.ClusterSizeSectors; s++ {
			if err := sink.WriteSector(md.SectorOfCluster(2)+s, zeroSector); err != nil {
				return nil, err
			}
		}
	} else {
		for s := uint32(0); s < rootDirSectors; s++ {
			if err := sink.WriteSector(rootStart+s, zeroSector); err != nil {
				return nil, err
			}
		}
	}

	codec := CodecFor(cfg.Variant)
	const mediaByte = 0xF8
	entry0 := ClusterNumber(uint32(codec.FreeMarker())&0xFFFFFF00 | mediaByte)
	entry1 := codec.EOFMarker()
	if cfg.Variant == FAT32 {
		entry1 = ClusterNumber(uint32(entry1) | 0x08000000)
	}

	for fatCopy := uint32(0); fatCopy < cfg.NumFATs; fatCopy++ {
		fatStart := cfg.ReservedSectorCount + fatCopy*fatSizeSectors
		fatBuf := make([]byte, fatSizeSectors*sectorSize)
		if err := codec.WriteEntry(fatBuf, int(sectorSize), 0, entry0); err != nil {
			return nil, err
		}
		if err := codec.WriteEntry(fatBuf, int(sectorSize), 1, entry1); err != nil {
			return nil, err
		}
		if cfg.Variant == FAT32 {
			if err := codec.WriteEntry(fatBuf, int(sectorSize), 2, codec.EOFMarker()); err != nil {
				return nil, err
			}
		}
		for s := uint32(0); s < fatSizeSectors; s++ {
			if err := sink.WriteSector(fatStart+s, fatBuf[s*sectorSize:(s+1)*sectorSize]); err != nil {
				return nil, err
			}
		}
	}

	return md, nil
}
