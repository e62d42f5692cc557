package sys

import (
	"io"
	"sync"
	"time"

	"github.com/go-ucfat/fatfs/cache"
	"github.com/go-ucfat/fatfs/direntry"
	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/fat"
	"github.com/go-ucfat/fatfs/handle"
	"github.com/go-ucfat/fatfs/volume"
)

// OpenFlags mirrors the root package's flag bits without importing it
// (fatfs imports sys, not the reverse); see flags.go's OpenFlags.
type OpenFlags int

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenAppend
	OpenCreate
	OpenExcl
	OpenTruncate
)

func (f OpenFlags) CanRead() bool        { return f&OpenRead != 0 }
func (f OpenFlags) CanWrite() bool       { return f&OpenWrite != 0 }
func (f OpenFlags) IsAppend() bool       { return f&OpenAppend != 0 }
func (f OpenFlags) ShouldCreate() bool   { return f&OpenCreate != 0 }
func (f OpenFlags) IsExclusive() bool    { return f&OpenExcl != 0 }
func (f OpenFlags) ShouldTruncate() bool { return f&OpenTruncate != 0 }

// fileContext is the bookkeeping a FileHandle needs but doesn't carry
// itself: the volume it belongs to and the directory slots holding its
// entry, so writes can keep the entry's size/first-cluster fields current
// (spec §4.8 "writes through to the directory entry on close/truncate").
type fileContext struct {
	vol *volume.Volume
	dir direntry.Slots
}

// Files is the C8 file-handle table: a fixed-capacity handle.FileArena plus
// the per-handle context the arena's generic slots don't carry.
type Files struct {
	arena *handle.FileArena
	mu    sync.Mutex
	ctx   map[int]fileContext
}

// NewFiles builds a Files table with room for capacity concurrently open
// files (spec §4.9, §9 "Manual memory management").
func NewFiles(capacity int) *Files {
	return &Files{arena: handle.NewFileArena(capacity), ctx: make(map[int]fileContext)}
}

// RootSlots returns the Slots view of vol's root directory, whether it's
// the FAT12/16 fixed region or the FAT32 root cluster chain.
func RootSlots(vol *volume.Volume) direntry.Slots {
	md := vol.Metadata()
	if md.Variant == fat.FAT32 {
		return newChainSlots(vol, md.RootClusterNumber)
	}
	return newRootSlots(vol, md.DataRegionStart-md.RootDirSectors, md.RootDirSectors)
}

// DirSlots returns the Slots view of an ordinary (non-root) directory
// starting at firstCluster.
func DirSlots(vol *volume.Volume, firstCluster uint32) direntry.Slots {
	return newChainSlots(vol, firstCluster)
}

// Open resolves name within dir and returns a file handle (spec §4.8
// file_open).
func (f *Files) Open(vol *volume.Volume, dir direntry.Slots, name string, flags OpenFlags) (handle.ID, error) {
	info, lookupErr := direntry.Lookup(dir, name)
	exists := lookupErr == nil

	if exists && info.Attr&direntry.AttrDirectory != 0 {
		return handle.ID{}, fatfserrors.ErrEntryNotFile
	}
	if exists && flags.ShouldCreate() && flags.IsExclusive() {
		return handle.ID{}, fatfserrors.ErrEntryExists
	}
	if !exists && !flags.ShouldCreate() {
		return handle.ID{}, fatfserrors.ErrEntryNotFound
	}
	if exists && info.Attr&direntry.AttrReadOnly != 0 && flags.CanWrite() {
		return handle.ID{}, fatfserrors.ErrEntryReadOnly
	}

	now := time.Now()
	if !exists {
		var zero direntry.Raw
		zero.CrtDate = direntry.DateToInt(now)
		zero.CrtTime = direntry.TimeToInt(now)
		zero.WrtDate = zero.CrtDate
		zero.WrtTime = zero.CrtTime
		var err error
		info, err = direntry.Insert(dir, name, direntry.AttrArchive, 0, 0, zero)
		if err != nil {
			return handle.ID{}, err
		}
	} else if flags.ShouldTruncate() && flags.CanWrite() && info.FirstCluster != 0 {
		if err := vol.Allocator().ChainDel(info.FirstCluster, true); err != nil {
			return handle.ID{}, err
		}
		info.FirstCluster = 0
		info.Size = 0
		if err := writeBackSize(dir, info); err != nil {
			return handle.ID{}, err
		}
	}

	id, fh, err := f.arena.Alloc()
	if err != nil {
		return handle.ID{}, err
	}

	fh.VolumeID = vol.VolumeID()
	fh.EntryPosition = info.Position
	fh.FirstCluster = info.FirstCluster
	fh.Size = info.Size
	fh.Position = 0
	fh.CanRead = flags.CanRead()
	fh.CanWrite = flags.CanWrite()
	fh.Append = flags.IsAppend()
	fh.Created = !exists
	fh.Excl = flags.IsExclusive()
	fh.Truncate = flags.ShouldTruncate()
	fh.RefreshGeneration = vol.Generation()

	f.mu.Lock()
	f.ctx[id.Index()] = fileContext{vol: vol, dir: dir}
	f.mu.Unlock()

	vol.AddFileRef()
	return id, nil
}

// writeBackSize rewrites info's size/first-cluster fields into its SFN slot
// (spec §4.7 "directory entry size and first-cluster fields are kept
// current with the underlying chain").
func writeBackSize(dir direntry.Slots, info direntry.Info) error {
	idx := int(info.Position.End.OffsetInSector)
	raw := direntry.DecodeRaw(dir.Read(idx))
	raw.FileSize = info.Size
	raw.SetFirstCluster(info.FirstCluster)
	dir.Write(idx, raw.Encode())
	return nil
}

func (f *Files) lookup(id handle.ID) (*handle.FileHandle, fileContext, error) {
	fh, err := f.arena.Get(id)
	if err != nil {
		return nil, fileContext{}, err
	}
	f.mu.Lock()
	ctx, ok := f.ctx[id.Index()]
	f.mu.Unlock()
	if !ok {
		return nil, fileContext{}, fatfserrors.ErrFileHandleInvalid
	}
	return fh, ctx, nil
}

func bytesPerCluster(md *fat.Metadata) uint32 { return md.ClusterSizeSectors * md.BytesPerSector }

// clusterAt walks index clusters forward from first (spec §4.6.2
// chain_follow, specialized to byte-position addressing).
func clusterAt(vol *volume.Volume, first uint32, index uint32) (uint32, error) {
	md := vol.Metadata()
	codec := fat.CodecFor(md.Variant)
	cur := first
	for i := uint32(0); i < index; i++ {
		entry, err := readFATEntry(vol, cur)
		if err != nil {
			return 0, err
		}
		if codec.IsEOF(entry) {
			return 0, fatfserrors.ErrFatChainBroken
		}
		cur = uint32(entry)
	}
	return cur, nil
}

// Read copies up to len(buf) bytes starting at the handle's current
// position, advancing it (spec §4.8 file_read).
func (f *Files) Read(id handle.ID, buf []byte) (int, error) {
	fh, _, err := f.lookup(id)
	if err != nil {
		return 0, err
	}
	if !fh.CanRead {
		return 0, fatfserrors.ErrFileInvalidAccessMode
	}
	if fh.Position >= fh.Size {
		fh.EOF = true
		return 0, nil
	}

	vol, err := f.volumeOf(id)
	if err != nil {
		return 0, err
	}
	md := vol.Metadata()
	clusterBytes := bytesPerCluster(md)

	remaining := fh.Size - fh.Position
	toRead := uint32(len(buf))
	if toRead > remaining {
		toRead = remaining
	}

	var done uint32
	for done < toRead {
		pos := fh.Position + done
		clusterIdx := pos / clusterBytes
		offsetInCluster := pos % clusterBytes

		cluster, err := clusterAt(vol, fh.FirstCluster, clusterIdx)
		if err != nil {
			return int(done), err
		}
		sector := md.SectorOfCluster(cluster) + offsetInCluster/md.BytesPerSector
		offsetInSector := offsetInCluster % md.BytesPerSector

		sectorBuf := make([]byte, md.BytesPerSector)
		if err := vol.Read(sectorBuf, sector, 1, cache.File); err != nil {
			return int(done), err
		}

		chunk := md.BytesPerSector - offsetInSector
		if chunk > toRead-done {
			chunk = toRead - done
		}
		copy(buf[done:done+chunk], sectorBuf[offsetInSector:offsetInSector+chunk])
		done += chunk
	}

	fh.Position += done
	if fh.Position >= fh.Size {
		fh.EOF = true
	}
	return int(done), nil
}

// Write copies buf into the file starting at the handle's current position
// (or at EOF if opened in append mode), allocating new clusters as needed
// and updating the directory entry's size (spec §4.8 file_write).
func (f *Files) Write(id handle.ID, buf []byte) (int, error) {
	fh, ctx, err := f.lookup(id)
	if err != nil {
		return 0, err
	}
	if !fh.CanWrite {
		return 0, fatfserrors.ErrFileInvalidAccessMode
	}
	if fh.Append {
		fh.Position = fh.Size
	}

	vol := ctx.vol
	md := vol.Metadata()
	clusterBytes := bytesPerCluster(md)

	endPos := fh.Position + uint32(len(buf))
	if err := f.ensureCapacity(vol, fh, endPos); err != nil {
		return 0, err
	}

	var done uint32
	for done < uint32(len(buf)) {
		pos := fh.Position + done
		clusterIdx := pos / clusterBytes
		offsetInCluster := pos % clusterBytes

		cluster, err := clusterAt(vol, fh.FirstCluster, clusterIdx)
		if err != nil {
			return int(done), err
		}
		sector := md.SectorOfCluster(cluster) + offsetInCluster/md.BytesPerSector
		offsetInSector := offsetInCluster % md.BytesPerSector

		sectorBuf := make([]byte, md.BytesPerSector)
		if offsetInSector != 0 || uint32(len(buf))-done < md.BytesPerSector {
			if err := vol.Read(sectorBuf, sector, 1, cache.File); err != nil {
				return int(done), err
			}
		}

		chunk := md.BytesPerSector - offsetInSector
		if chunk > uint32(len(buf))-done {
			chunk = uint32(len(buf)) - done
		}
		copy(sectorBuf[offsetInSector:offsetInSector+chunk], buf[done:done+chunk])
		if err := vol.Write(sectorBuf, sector, 1, cache.File); err != nil {
			return int(done), err
		}
		done += chunk
	}

	fh.Position += done
	if fh.Position > fh.Size {
		fh.Size = fh.Position
		if err := writeBackSize(ctx.dir, direntry.Info{
			Position:     fh.EntryPosition,
			FirstCluster: fh.FirstCluster,
			Size:         fh.Size,
		}); err != nil {
			return int(done), err
		}
	}
	return int(done), nil
}

// ensureCapacity grows the file's cluster chain so it covers byte offset
// endPos, allocating a first cluster if the file was empty.
func (f *Files) ensureCapacity(vol *volume.Volume, fh *handle.FileHandle, endPos uint32) error {
	md := vol.Metadata()
	clusterBytes := bytesPerCluster(md)
	if endPos == 0 {
		return nil
	}
	clustersNeeded := (endPos + clusterBytes - 1) / clusterBytes

	if fh.FirstCluster == 0 {
		head, err := vol.Allocator().ChainAlloc(0, int(clustersNeeded))
		if err != nil {
			return err
		}
		fh.FirstCluster = head
		return nil
	}

	_, curLen, err := fat.ChainEndFind(volumeTableForReads(vol), fh.FirstCluster)
	if err != nil {
		return err
	}
	curClusters := uint32(curLen) + 1
	if curClusters >= clustersNeeded {
		return nil
	}
	_, err = vol.Allocator().ChainAlloc(fh.FirstCluster, int(clustersNeeded-curClusters))
	return err
}

// volumeTableForReads adapts a Volume to fat.Table for the read-only chain
// walks sys needs (ChainEndFind), without duplicating volume's unexported
// adapter.
type readOnlyTable struct{ vol *volume.Volume }

func volumeTableForReads(vol *volume.Volume) fat.Table { return readOnlyTable{vol: vol} }

func (t readOnlyTable) Variant() fat.Variant { return t.vol.Metadata().Variant }
func (t readOnlyTable) MaxCluster() uint32   { return t.vol.Metadata().MaxClusterNumber }
func (t readOnlyTable) ReadEntry(cluster uint32) (fat.ClusterNumber, error) {
	return readFATEntry(t.vol, cluster)
}
func (t readOnlyTable) WriteEntry(cluster uint32, value fat.ClusterNumber) error {
	return fatfserrors.ErrVolumeReadOnly.WithMessage("chain-end lookups must not write")
}

// Seek repositions the handle per whence (io.SeekStart/Current/End), per
// spec §4.8 file_pos_set. Seeking past the current size on a writable
// handle extends the file, zero-filling the gap and allocating whatever
// clusters that requires; the same seek on a read-only handle is rejected
// with ErrFileInvalidOffset instead (spec §8 boundary case).
func (f *Files) Seek(id handle.ID, offset int64, whence int) (int64, error) {
	fh, ctx, err := f.lookup(id)
	if err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(fh.Position)
	case io.SeekEnd:
		base = int64(fh.Size)
	default:
		return 0, fatfserrors.ErrFileInvalidOp
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, fatfserrors.ErrFileInvalidOp
	}
	if newPos > 0xFFFFFFFF {
		return 0, fatfserrors.ErrFileOverflow
	}

	if uint32(newPos) > fh.Size {
		if !fh.CanWrite {
			return 0, fatfserrors.ErrFileInvalidOffset
		}
		if err := f.extendWithZeros(ctx.vol, ctx.dir, fh, uint32(newPos)); err != nil {
			return 0, err
		}
	}

	fh.Position = uint32(newPos)
	fh.EOF = fh.Position >= fh.Size
	return newPos, nil
}

// extendWithZeros grows fh's backing chain to cover newSize, zero-filling
// every byte between the current size and newSize, and writes the new size
// back to the directory entry (spec §4.8, the writable-handle seek-past-EOF
// case: "pads with zeros").
func (f *Files) extendWithZeros(vol *volume.Volume, dir direntry.Slots, fh *handle.FileHandle, newSize uint32) error {
	if err := f.ensureCapacity(vol, fh, newSize); err != nil {
		return err
	}

	md := vol.Metadata()
	clusterBytes := bytesPerCluster(md)
	zero := make([]byte, md.BytesPerSector)

	pos := fh.Size
	for pos < newSize {
		clusterIdx := pos / clusterBytes
		offsetInCluster := pos % clusterBytes

		cluster, err := clusterAt(vol, fh.FirstCluster, clusterIdx)
		if err != nil {
			return err
		}
		sector := md.SectorOfCluster(cluster) + offsetInCluster/md.BytesPerSector
		offsetInSector := offsetInCluster % md.BytesPerSector

		chunk := md.BytesPerSector - offsetInSector
		if uint32(pos)+chunk > newSize {
			chunk = newSize - pos
		}

		sectorBuf := make([]byte, md.BytesPerSector)
		if offsetInSector != 0 || chunk < md.BytesPerSector {
			if err := vol.Read(sectorBuf, sector, 1, cache.File); err != nil {
				return err
			}
		}
		copy(sectorBuf[offsetInSector:offsetInSector+chunk], zero[:chunk])
		if err := vol.Write(sectorBuf, sector, 1, cache.File); err != nil {
			return err
		}
		pos += chunk
	}

	fh.Size = newSize
	return writeBackSize(dir, direntry.Info{
		Position:     fh.EntryPosition,
		FirstCluster: fh.FirstCluster,
		Size:         fh.Size,
	})
}

// Truncate grows or shrinks the file to newSize, freeing or allocating
// clusters as needed (spec §4.8 file_truncate).
func (f *Files) Truncate(id handle.ID, newSize uint32) error {
	fh, ctx, err := f.lookup(id)
	if err != nil {
		return err
	}
	if !fh.CanWrite {
		return fatfserrors.ErrFileInvalidAccessMode
	}
	vol := ctx.vol
	md := vol.Metadata()
	clusterBytes := bytesPerCluster(md)

	if newSize == 0 {
		if fh.FirstCluster != 0 {
			if err := vol.Allocator().ChainDel(fh.FirstCluster, true); err != nil {
				return err
			}
			fh.FirstCluster = 0
		}
	} else if newSize < fh.Size {
		keepClusters := (newSize + clusterBytes - 1) / clusterBytes
		cur, err := clusterAt(vol, fh.FirstCluster, keepClusters-1)
		if err != nil {
			return err
		}
		codec := fat.CodecFor(md.Variant)
		entry, err := readFATEntry(vol, cur)
		if err != nil {
			return err
		}
		if !codec.IsEOF(entry) {
			if err := vol.Allocator().ChainDel(uint32(entry), true); err != nil {
				return err
			}
		}
	} else if newSize > fh.Size {
		if err := f.ensureCapacity(vol, fh, newSize); err != nil {
			return err
		}
	}

	fh.Size = newSize
	if fh.Position > newSize {
		fh.Position = newSize
	}
	return writeBackSize(ctx.dir, direntry.Info{
		Position:     fh.EntryPosition,
		FirstCluster: fh.FirstCluster,
		Size:         fh.Size,
	})
}

func (f *Files) volumeOf(id handle.ID) (*volume.Volume, error) {
	f.mu.Lock()
	ctx, ok := f.ctx[id.Index()]
	f.mu.Unlock()
	if !ok {
		return nil, fatfserrors.ErrFileHandleInvalid
	}
	return ctx.vol, nil
}

// TryLock attempts to acquire the handle's advisory lock for owner without
// blocking (spec §4.9 try_lock).
func (f *Files) TryLock(id handle.ID, owner string) (bool, error) {
	fh, err := f.arena.Get(id)
	if err != nil {
		return false, err
	}
	return fh.Lock.TryLock(owner), nil
}

// Lock blocks until owner acquires the handle's advisory lock (spec §4.9
// lock).
func (f *Files) Lock(id handle.ID, owner string) error {
	fh, err := f.arena.Get(id)
	if err != nil {
		return err
	}
	fh.Lock.Lock(owner)
	return nil
}

// Unlock releases owner's hold on the handle's advisory lock (spec §4.9
// unlock).
func (f *Files) Unlock(id handle.ID, owner string) error {
	fh, err := f.arena.Get(id)
	if err != nil {
		return err
	}
	return fh.Lock.Unlock(owner)
}

// Close releases the handle back to the arena (spec §4.8, §4.9).
func (f *Files) Close(id handle.ID) error {
	_, ctx, err := f.lookup(id)
	if err != nil {
		return err
	}
	if err := f.arena.Free(id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.ctx, id.Index())
	f.mu.Unlock()
	ctx.vol.RemoveFileRef()
	return nil
}
