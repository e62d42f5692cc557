// Package volume implements C5: the serialization point that composes
// cache and device, maps logical volume sectors through a partition
// table, and refreshes on media change.
//
// Grounded on the teacher's file_systems/fat/driverbase.go (FATDriver
// wrapping a boot sector + raw sector reads) and drivers/common's device
// abstraction, generalized from a single-purpose FAT driver into the
// explicit mount/format/query/refresh state machine of spec §3.1/§3.3/§4.5,
// with the cache seam SPEC_FULL.md §3 calls for: writes during eviction
// go through the volume's own write path rather than straight to the
// device, so a future write-back policy change stays confined to one seam.
package volume

import (
	"sync"

	"github.com/go-ucfat/fatfs/cache"
	"github.com/go-ucfat/fatfs/device"
	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/fat"
	"github.com/go-ucfat/fatfs/partition"
)

// State is a volume's mount lifecycle state (spec §3.1 "Volume").
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StatePresent
	StateMounted
	StateClosing
)

// AccessMode mirrors the root package's fatfs.AccessMode without
// importing it (fatfs imports volume, not the reverse).
type AccessMode int

const (
	AccessReadOnly AccessMode = iota
	AccessReadWrite
)

// Volume is a named, mounted (or mountable) FAT filesystem (spec §3.1).
type Volume struct {
	mu sync.Mutex

	name            string
	dev             *device.Device
	partitionStart  uint32
	partitionSize   uint32
	sectorSize      uint32
	state           State
	accessMode      AccessMode
	refreshGenSnap  uint64
	volumeIDCounter uint32

	metadata *fat.Metadata
	alloc    *fat.Allocator
	cache    *cache.Cache

	openFiles int
	openDirs  int
	refCount  int
}

// deviceCacheAdapter adapts *device.Device to cache.Device, pinning the
// caller's refresh-generation snapshot.
type deviceCacheAdapter struct {
	v *Volume
}

func (a deviceCacheAdapter) Read(dest []byte, start uint32, count uint32) error {
	return a.v.dev.Read(dest, a.v.partitionStart+start, count, a.v.refreshGenSnap)
}
func (a deviceCacheAdapter) Write(src []byte, start uint32, count uint32) error {
	return a.v.dev.Write(src, a.v.partitionStart+start, count, a.v.refreshGenSnap)
}

// VolumeID satisfies bufpool.VolumeRef.
func (v *Volume) VolumeID() uint32 { return v.volumeIDCounter }

// Name returns the volume's unique name.
func (v *Volume) Name() string { return v.name }

// Metadata exposes the mounted volume's FAT metadata.
func (v *Volume) Metadata() *fat.Metadata { return v.metadata }

// Generation returns the volume's refresh-generation snapshot (spec §3.2
// "handle's refresh_generation snapshot").
func (v *Volume) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refreshGenSnap
}

// Open finds the device, locates the partition, decodes the BPB, and
// populates metadata (spec §4.5 open()).
func Open(name string, dev *device.Device, partitionIndex int, mode AccessMode, cacheMode cache.Mode, shares cache.PoolShares, bufferSectors int) (*Volume, error) {
	v := &Volume{name: name, dev: dev, state: StateOpening, accessMode: mode}

	sectorSize := dev.SectorSize()
	totalSectors := dev.SectorCount()

	mbrSector := make([]byte, sectorSize)
	if err := dev.Read(mbrSector, 0, 1, dev.Generation()); err != nil {
		return nil, err
	}
	table, err := partition.Parse(mbrSector)
	if err != nil {
		return nil, err
	}

	if partitionIndex == 0 {
		v.partitionStart = 0
		v.partitionSize = totalSectors
	} else {
		entry, perr := table.Get(partitionIndex)
		if perr != nil {
			return nil, perr
		}
		v.partitionStart = entry.StartSector
		v.partitionSize = entry.SizeSectors
	}

	v.refreshGenSnap = dev.Generation()
	v.sectorSize = sectorSize

	bootSector := make([]byte, sectorSize)
	if err := dev.Read(bootSector, v.partitionStart, 1, v.refreshGenSnap); err != nil {
		return nil, err
	}
	md, err := fat.DecodeBPB(bootSector)
	if err != nil {
		return nil, err
	}
	if err := md.ValidateGeometry(v.partitionSize); err != nil {
		return nil, err
	}
	v.metadata = md

	alloc, err := fat.NewAllocator(&fatTableAdapter{v: v}, md.NextClusterHint)
	if err != nil {
		return nil, err
	}
	v.alloc = alloc

	c, err := cache.New(deviceCacheAdapter{v: v}, cacheMode, int(sectorSize), bufferSectors, shares)
	if err != nil {
		return nil, err
	}
	v.cache = c

	dev.AddRef()
	v.refCount = 1
	v.state = StateMounted
	return v, nil
}

// fatTableAdapter adapts a Volume's cache-backed sector I/O to
// fat.Table, read/writing FAT entries through the cache's management pool.
type fatTableAdapter struct{ v *Volume }

func (a *fatTableAdapter) Variant() fat.Variant  { return a.v.metadata.Variant }
func (a *fatTableAdapter) MaxCluster() uint32    { return a.v.metadata.MaxClusterNumber }

// fatEntrySectors reads the sectors of the primary FAT covering
// [0, first+count) from the FAT's own start, so codec byte offsets (which
// are computed relative to the FAT's start, not to any sub-range) index
// correctly into the returned buffer. Cheap in practice since the cache
// keeps FAT sectors resident across calls.
func (a *fatTableAdapter) fatEntrySectors(first, count int) (fatStart uint32, buf []byte, err error) {
	md := a.v.metadata
	sectorSize := int(md.BytesPerSector)
	totalSectors := first + count
	buf = make([]byte, totalSectors*sectorSize)
	if err = a.v.cache.Read(buf, md.ReservedSectorCount, uint32(totalSectors), cache.Management); err != nil {
		return 0, nil, err
	}
	return md.ReservedSectorCount, buf, nil
}

func (a *fatTableAdapter) ReadEntry(cluster uint32) (fat.ClusterNumber, error) {
	md := a.v.metadata
	codec := fat.CodecFor(md.Variant)
	first, count := codec.EntrySectorSpan(int(md.BytesPerSector), cluster)
	_, buf, err := a.fatEntrySectors(first, count)
	if err != nil {
		return 0, err
	}
	return codec.ReadEntry(buf, int(md.BytesPerSector), cluster)
}

func (a *fatTableAdapter) WriteEntry(cluster uint32, value fat.ClusterNumber) error {
	md := a.v.metadata
	codec := fat.CodecFor(md.Variant)
	first, count := codec.EntrySectorSpan(int(md.BytesPerSector), cluster)
	fatStart, buf, err := a.fatEntrySectors(first, count)
	if err != nil {
		return err
	}
	if err := codec.WriteEntry(buf, int(md.BytesPerSector), cluster, value); err != nil {
		return err
	}
	// Mirror the write across every FAT copy (spec §4.6.3 "number of
	// FATs").
	for fc := uint32(0); fc < md.NumberOfFATs; fc++ {
		if err := a.v.cache.Write(buf, fatStart+fc*md.FATSizeSectors, uint32(len(buf))/md.BytesPerSector, cache.Management); err != nil {
			return err
		}
	}
	return nil
}

// Allocator exposes the volume's cluster allocator to higher layers.
func (v *Volume) Allocator() *fat.Allocator { return v.alloc }

// Read validates against partition bounds, checks refresh generation,
// then delegates to the cache (spec §4.5 read()).
func (v *Volume) Read(dest []byte, start uint32, count uint32, t cache.SectorType) error {
	if err := v.checkBounds(start, count); err != nil {
		return err
	}
	return v.cache.Read(dest, start, count, t)
}

// Write validates against partition bounds, checks refresh generation,
// then delegates to the cache (spec §4.5 write()).
func (v *Volume) Write(src []byte, start uint32, count uint32, t cache.SectorType) error {
	if err := v.checkBounds(start, count); err != nil {
		return err
	}
	return v.cache.Write(src, start, count, t)
}

func (v *Volume) checkBounds(start uint32, count uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateMounted {
		return fatfserrors.ErrVolumeNotMounted
	}
	if v.dev.Generation() != v.refreshGenSnap {
		return fatfserrors.ErrDeviceChanged
	}
	if uint64(start)+uint64(count) > uint64(v.partitionSize) {
		return fatfserrors.ErrVolumeInvalidSector
	}
	return nil
}

// sinkAdapter adapts Volume to fat.Sink for Format.
type sinkAdapter struct{ v *Volume }

func (s sinkAdapter) SectorSize() uint32   { return s.v.sectorSize }
func (s sinkAdapter) TotalSectors() uint32 { return s.v.partitionSize }
func (s sinkAdapter) WriteSector(lba uint32, data []byte) error {
	return s.v.dev.Write(data, s.v.partitionStart+lba, 1, s.v.refreshGenSnap)
}

// Format requires no open handles, invalidates the cache, writes BPB,
// FATs, and root directory, and remounts (spec §4.5 format()).
func (v *Volume) Format(cfg fat.FormatConfig) error {
	v.mu.Lock()
	if v.openFiles > 0 {
		v.mu.Unlock()
		return fatfserrors.ErrVolumeFilesOpen
	}
	if v.openDirs > 0 {
		v.mu.Unlock()
		return fatfserrors.ErrVolumeDirsOpen
	}
	v.mu.Unlock()

	v.dev.AccessLock()
	defer v.dev.AccessUnlock()

	md, err := fat.Format(sinkAdapter{v: v}, cfg)
	if err != nil {
		return err
	}

	v.cache.Invalidate()
	v.metadata = md

	alloc, err := fat.NewAllocator(&fatTableAdapter{v: v}, md.NextClusterHint)
	if err != nil {
		return err
	}
	v.alloc = alloc

	v.mu.Lock()
	v.state = StateMounted
	v.mu.Unlock()
	return nil
}

// LabelGet returns the volume label held in the volume's metadata (decoded
// from the boot sector at mount, or last set by LabelSet) with trailing
// spaces removed. The root directory's volume-id entry is not read.
func (v *Volume) LabelGet() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 11
	for n > 0 && v.metadata.VolumeLabel[n-1] == ' ' {
		n--
	}
	return string(v.metadata.VolumeLabel[:n])
}

// forbiddenLabelChars lists the characters spec §6.2 forbids in a volume
// label: `"&*+,-./:;<=>?[]\`.
const forbiddenLabelChars = "\"&*+,-./:;<=>?[]\\"

// LabelSet validates a new volume label of at most 11 bytes (spec §4.5
// label_set(), §6.2) and stores it, space-padded, in the volume's
// in-memory metadata. Neither the boot sector nor the root directory's
// volume-id entry is rewritten.
func (v *Volume) LabelSet(label string) error {
	if len(label) > 11 {
		return fatfserrors.ErrVolumeLabelTooLong
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c < 0x20 || c > 0x7E {
			return fatfserrors.ErrVolumeLabelInvalid
		}
		for j := 0; j < len(forbiddenLabelChars); j++ {
			if c == forbiddenLabelChars[j] {
				return fatfserrors.ErrVolumeLabelInvalid
			}
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	copy(raw[:], label)
	v.metadata.VolumeLabel = raw
	return nil
}

// QueryResult is the snapshot spec §4.5 query() returns.
type QueryResult struct {
	State       State
	SizeSectors uint32
	FreeSectors uint32
	UsedSectors uint32
	BadSectors  uint32
}

// Query reports volume state and space usage. The free count always comes
// from the allocator's in-memory bitmap (built by scanning the FAT at mount
// and kept current by chain operations); fast is not consulted and the
// FSINFO hint is never read.
func (v *Volume) Query(fast bool) QueryResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	freeClusters := v.alloc.FreeCount()
	freeSectors := uint32(freeClusters) * v.metadata.ClusterSizeSectors
	usedSectors := v.partitionSize - freeSectors

	return QueryResult{
		State:       v.state,
		SizeSectors: v.partitionSize,
		FreeSectors: freeSectors,
		UsedSectors: usedSectors,
	}
}

// Refresh remounts if the device's generation differs from the volume's
// snapshot and no handles are open; otherwise returns ErrDeviceChanged
// without remounting (spec §4.5 refresh()).
func (v *Volume) Refresh() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	current := v.dev.Generation()
	if current == v.refreshGenSnap {
		return false, nil
	}
	if v.openFiles > 0 || v.openDirs > 0 {
		return false, fatfserrors.ErrDeviceChanged
	}

	v.state = StateOpen
	v.refreshGenSnap = current
	v.cache.Invalidate()
	v.state = StateMounted
	return true, nil
}

// AddFileRef / RemoveFileRef / AddDirRef / RemoveDirRef track open-handle
// counts for Format's FilesOpen/DirsOpen checks (spec §4.9, §3.3).
func (v *Volume) AddFileRef() {
	v.mu.Lock()
	v.openFiles++
	v.mu.Unlock()
}
func (v *Volume) RemoveFileRef() {
	v.mu.Lock()
	v.openFiles--
	v.mu.Unlock()
}
func (v *Volume) AddDirRef() {
	v.mu.Lock()
	v.openDirs++
	v.mu.Unlock()
}
func (v *Volume) RemoveDirRef() {
	v.mu.Lock()
	v.openDirs--
	v.mu.Unlock()
}

// Flush writes every dirty cache buffer through to the device (spec
// §4.4 flush(), invoked on unmount).
func (v *Volume) Flush() error { return v.cache.Flush() }

// Close flushes and releases the volume's reference on its device.
func (v *Volume) Close() error {
	if err := v.Flush(); err != nil {
		return err
	}
	v.mu.Lock()
	v.state = StateClosing
	v.mu.Unlock()
	v.dev.RemoveRef()
	v.mu.Lock()
	v.state = StateClosed
	v.mu.Unlock()
	return nil
}
