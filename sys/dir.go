package sys

import (
	"strings"
	"sync"
	"time"

	"github.com/go-ucfat/fatfs/direntry"
	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/handle"
	"github.com/go-ucfat/fatfs/volume"
)

// dirContext mirrors fileContext for directory handles: the backing slots
// and the volume they belong to.
type dirContext struct {
	vol     *volume.Volume
	slots   direntry.Slots
	entries []direntry.Entry
}

// Dirs is the C8 directory-handle table.
type Dirs struct {
	arena *handle.DirArena
	mu    sync.Mutex
	ctx   map[int]dirContext
}

// NewDirs builds a Dirs table with room for capacity concurrently open
// directories.
func NewDirs(capacity int) *Dirs {
	return &Dirs{arena: handle.NewDirArena(capacity), ctx: make(map[int]dirContext)}
}

// Open resolves name within dir (or opens dir itself when name == "") and
// snapshots its entries for enumeration (spec §4.8 dir_open).
func (d *Dirs) Open(vol *volume.Volume, dir direntry.Slots, name string) (handle.ID, error) {
	target := dir
	firstCluster := uint32(0)

	if name != "" {
		info, err := direntry.Lookup(dir, name)
		if err != nil {
			return handle.ID{}, err
		}
		if info.Attr&direntry.AttrDirectory == 0 {
			return handle.ID{}, fatfserrors.ErrEntryNotDir
		}
		firstCluster = info.FirstCluster
		target = DirSlots(vol, firstCluster)
	}

	entries, err := direntry.Enumerate(target)
	if err != nil {
		return handle.ID{}, err
	}

	id, dh, err := d.arena.Alloc()
	if err != nil {
		return handle.ID{}, err
	}

	dh.VolumeID = vol.VolumeID()
	dh.FirstCluster = firstCluster
	dh.IterationPosition = 0
	dh.State = handle.DirOpen
	dh.RefreshGeneration = vol.Generation()

	d.mu.Lock()
	d.ctx[id.Index()] = dirContext{vol: vol, slots: target, entries: entries}
	d.mu.Unlock()

	vol.AddDirRef()
	return id, nil
}

// Read returns the next directory entry, or (Entry{}, false, nil) at EOF
// (spec §4.8 dir_read).
func (d *Dirs) Read(id handle.ID) (direntry.Entry, bool, error) {
	dh, err := d.arena.Get(id)
	if err != nil {
		return direntry.Entry{}, false, err
	}
	if dh.State == handle.DirErr {
		return direntry.Entry{}, false, fatfserrors.ErrFileError
	}

	d.mu.Lock()
	ctx, ok := d.ctx[id.Index()]
	d.mu.Unlock()
	if !ok {
		return direntry.Entry{}, false, fatfserrors.ErrFileHandleInvalid
	}

	if dh.IterationPosition >= len(ctx.entries) {
		dh.State = handle.DirEOF
		return direntry.Entry{}, false, nil
	}
	entry := ctx.entries[dh.IterationPosition]
	dh.IterationPosition++
	return entry, true, nil
}

// Close releases the directory handle back to the arena.
func (d *Dirs) Close(id handle.ID) error {
	dh, err := d.arena.Get(id)
	if err != nil {
		return err
	}
	d.mu.Lock()
	ctx, ok := d.ctx[id.Index()]
	delete(d.ctx, id.Index())
	d.mu.Unlock()
	if !ok {
		return fatfserrors.ErrFileHandleInvalid
	}

	dh.State = handle.DirClosed
	if err := d.arena.Free(id); err != nil {
		return err
	}
	ctx.vol.RemoveDirRef()
	return nil
}

// MakeDir creates a new, empty subdirectory named name within dir,
// allocating one cluster and writing its "." and ".." entries (spec §4.7.4,
// §3.3 directory lifecycle).
func MakeDir(vol *volume.Volume, dir direntry.Slots, name string, parentFirstCluster uint32) (direntry.Info, error) {
	if _, err := direntry.Lookup(dir, name); err == nil {
		return direntry.Info{}, fatfserrors.ErrEntryExists
	}

	head, err := vol.Allocator().ChainAlloc(0, 1)
	if err != nil {
		return direntry.Info{}, err
	}

	now := time.Now()
	var ts direntry.Raw
	ts.CrtDate = direntry.DateToInt(now)
	ts.CrtTime = direntry.TimeToInt(now)
	ts.WrtDate = ts.CrtDate
	ts.WrtTime = ts.CrtTime

	info, err := direntry.Insert(dir, name, direntry.AttrDirectory, head, 0, ts)
	if err != nil {
		_ = vol.Allocator().ChainDel(head, true)
		return direntry.Info{}, err
	}

	child := DirSlots(vol, head)
	dotTarget := head
	if _, err := direntry.Insert(child, ".", direntry.AttrDirectory, dotTarget, 0, ts); err != nil {
		return direntry.Info{}, err
	}
	if _, err := direntry.Insert(child, "..", direntry.AttrDirectory, parentFirstCluster, 0, ts); err != nil {
		return direntry.Info{}, err
	}

	return info, nil
}

// RemoveDir deletes an empty subdirectory named name (spec §4.7.5,
// "refuses to remove a non-empty directory").
func RemoveDir(vol *volume.Volume, dir direntry.Slots, name string) error {
	info, err := direntry.Lookup(dir, name)
	if err != nil {
		return err
	}
	if info.Attr&direntry.AttrDirectory == 0 {
		return fatfserrors.ErrEntryNotDir
	}

	child := DirSlots(vol, info.FirstCluster)
	entries, err := direntry.Enumerate(child)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Info.Name != "." && e.Info.Name != ".." {
			return fatfserrors.ErrEntryNotEmpty
		}
	}

	if err := vol.Allocator().ChainDel(info.FirstCluster, true); err != nil {
		return err
	}
	return direntry.Delete(dir, info.Position)
}

// Remove deletes a file entry named name (spec §4.7.5).
func Remove(vol *volume.Volume, dir direntry.Slots, name string) error {
	info, err := direntry.Lookup(dir, name)
	if err != nil {
		return err
	}
	if info.Attr&direntry.AttrDirectory != 0 {
		return fatfserrors.ErrEntryNotFile
	}
	if info.Attr&direntry.AttrReadOnly != 0 {
		return fatfserrors.ErrEntryReadOnly
	}
	if info.FirstCluster != 0 {
		if err := vol.Allocator().ChainDel(info.FirstCluster, true); err != nil {
			return err
		}
	}
	return direntry.Delete(dir, info.Position)
}

// Rename renames an entry within dir. It does not move entries between
// directories, and its caller fatfs.Rename rejects cross-directory
// renames.
func Rename(vol *volume.Volume, dir direntry.Slots, oldName, newName string) error {
	if strings.EqualFold(oldName, newName) {
		return nil
	}
	info, err := direntry.Lookup(dir, oldName)
	if err != nil {
		return err
	}
	if _, err := direntry.Lookup(dir, newName); err == nil {
		return fatfserrors.ErrEntryExists
	}

	var ts direntry.Raw
	ts.CrtDate = direntry.DateToInt(info.CreatedAt)
	ts.CrtTime = direntry.TimeToInt(info.CreatedAt)
	ts.WrtDate = direntry.DateToInt(info.ModifiedAt)
	ts.WrtTime = direntry.TimeToInt(info.ModifiedAt)

	if _, err := direntry.Insert(dir, newName, info.Attr, info.FirstCluster, info.Size, ts); err != nil {
		return err
	}
	return direntry.Delete(dir, info.Position)
}
