// Package fatfs is the public entry point: an explicit Filesystem context
// constructed by New, holding every mounted device and volume, the shared
// handle tables, and the registry lock guarding all of it (spec §9 "model
// these as an explicit Filesystem context constructed at init... No
// implicit globals").
package fatfs

import (
	"fmt"
	"sync"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"

	"github.com/go-ucfat/fatfs/device"
	"github.com/go-ucfat/fatfs/direntry"
	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/handle"
	"github.com/go-ucfat/fatfs/internal/bufpool"
	"github.com/go-ucfat/fatfs/internal/diskimage"
	"github.com/go-ucfat/fatfs/journal"
	"github.com/go-ucfat/fatfs/pathutil"
	"github.com/go-ucfat/fatfs/phy"
	"github.com/go-ucfat/fatfs/sys"
	"github.com/go-ucfat/fatfs/volume"
)

// journalLogSectors sizes a mount's private journal log region: one
// header sector plus room for a handful of before-images, enough for the
// allocate-then-insert/delete-then-free sequences MakeDir/RemoveDir/
// Remove/Rename bracket with journal_enter/journal_exit.
const journalLogSectors = 5

// imageJournalDevice adapts a mount's private diskimage.Image (unit 0) to
// journal.Device.
type imageJournalDevice struct{ img *diskimage.Image }

func (d imageJournalDevice) Read(dest []byte, start uint32, count uint32) error {
	return d.img.Rd(0, dest, start, count)
}

func (d imageJournalDevice) Write(src []byte, start uint32, count uint32) error {
	return d.img.Wr(0, src, start, count)
}

// mountedVolume bundles a volume with the journal and device it was
// mounted through, so Unmount can tear both down.
type mountedVolume struct {
	vol *volume.Volume
	dev *device.Device
	jnl journal.Journal
}

// Filesystem is the top-level context every public operation hangs off
// of. Constructed once via New; never a package-level global (spec §9).
type Filesystem struct {
	cfg Config

	// registryLock is spec §5 lock 1, the outermost lock in the ordering
	// model: held briefly while allocating/freeing a volume, device, or
	// handle slot, or adjusting a reference count. Never held across
	// sector I/O.
	registryLock sync.Mutex
	volumes      map[string]*mountedVolume
	defaultVol   string

	pool *bufpool.Pool
	cwd  *pathutil.WorkingDir

	files *sys.Files
	dirs  *sys.Dirs
}

// New constructs a Filesystem context from cfg, sizing its handle tables
// and buffer pool up front (spec §9 "Manual memory management").
func New(cfg Config) *Filesystem {
	if cfg.BufferPoolSize <= 0 {
		cfg.BufferPoolSize = DefaultConfig().BufferPoolSize
	}
	return &Filesystem{
		cfg:     cfg,
		volumes: make(map[string]*mountedVolume),
		pool:    bufpool.New(cfg.BufferPoolSize, 4096, false),
		cwd:     pathutil.NewWorkingDir(),
		files:   sys.NewFiles(cfg.MaxOpenFiles),
		dirs:    sys.NewDirs(cfg.MaxOpenDirs),
	}
}

// Mount opens drv/unit as a device, mounts partitionIndex on it as a
// volume named name, and attaches a journal (a real write-ahead Log if
// CapJournal is set, a journal.NoOp otherwise). The first successful
// Mount becomes the default volume a volume-less path resolves against
// (spec §4.11 "a missing volume component resolves to the default
// (first-opened) volume").
func (fs *Filesystem) Mount(name string, drv phy.Driver, unit int, partitionIndex int, mode AccessMode) error {
	fs.registryLock.Lock()
	if _, exists := fs.volumes[name]; exists {
		fs.registryLock.Unlock()
		return fatfserrors.ErrVolumeAlreadyOpen
	}
	fs.registryLock.Unlock()

	dev, err := device.Open(name, drv, unit)
	if err != nil {
		log.PrintError(err)
		return err
	}

	volMode := volume.AccessReadOnly
	if mode.CanWrite() {
		volMode = volume.AccessReadWrite
	}
	vol, err := volume.Open(name, dev, partitionIndex, volMode, fs.cfg.CacheMode, fs.cfg.CachePoolShares, fs.cfg.BufferPoolSize)
	if err != nil {
		_ = dev.Close()
		log.PrintError(err)
		return err
	}

	// Journaling is backed by a private in-memory log region (package
	// diskimage), not the volume's own sectors: spec §4.10 only requires
	// the core to expose journal_enter/journal_exit/replay and explicitly
	// disclaims crash consistency ("the journal is a collaborator"), so
	// there's no on-disk layout reserved for it, and writing WAL records
	// into the volume's reserved sectors would overwrite the BPB/FSINFO
	// that live there instead.
	var jnl journal.Journal = journal.NoOp{}
	if fs.cfg.Capabilities.Has(CapJournal) {
		md := vol.Metadata()
		logDevice := diskimage.New(md.BytesPerSector, journalLogSectors)
		real, err := journal.Open(imageJournalDevice{logDevice}, fs.pool, vol, 0, journalLogSectors, md.BytesPerSector)
		if err != nil {
			_ = vol.Close()
			_ = dev.Close()
			log.PrintError(err)
			return err
		}
		jnl = real
	}

	fs.registryLock.Lock()
	defer fs.registryLock.Unlock()
	if _, exists := fs.volumes[name]; exists {
		return fatfserrors.ErrVolumeAlreadyOpen
	}
	fs.volumes[name] = &mountedVolume{vol: vol, dev: dev, jnl: jnl}
	if fs.defaultVol == "" {
		fs.defaultVol = name
	}
	return nil
}

// Unmount closes the volume and its underlying device. It does not check
// for open file or directory handles, and volume.Close does not refuse
// while handles are open either.
func (fs *Filesystem) Unmount(name string) error {
	fs.registryLock.Lock()
	mv, ok := fs.volumes[name]
	if !ok {
		fs.registryLock.Unlock()
		return fatfserrors.ErrVolumeNotOpen
	}
	delete(fs.volumes, name)
	if fs.defaultVol == name {
		fs.defaultVol = ""
	}
	fs.registryLock.Unlock()

	if err := mv.vol.Close(); err != nil {
		return err
	}
	return mv.dev.Close()
}

func (fs *Filesystem) mounted(name string) (*mountedVolume, error) {
	fs.registryLock.Lock()
	defer fs.registryLock.Unlock()
	if name == "" {
		name = fs.defaultVol
	}
	mv, ok := fs.volumes[name]
	if !ok {
		return nil, fatfserrors.ErrVolumeNotOpen
	}
	return mv, nil
}

func (fs *Filesystem) volume(name string) (*volume.Volume, error) {
	mv, err := fs.mounted(name)
	if err != nil {
		return nil, err
	}
	return mv.vol, nil
}

// navigate walks comps from vol's root, returning the Slots of the final
// directory named. An empty comps returns the root itself.
func navigate(vol *volume.Volume, comps []string) (direntry.Slots, error) {
	cur := sys.RootSlots(vol)
	for _, c := range comps {
		info, err := direntry.Lookup(cur, c)
		if err != nil {
			return nil, err
		}
		if info.Attr&direntry.AttrDirectory == 0 {
			return nil, fatfserrors.ErrEntryNotDir
		}
		cur = sys.DirSlots(vol, info.FirstCluster)
	}
	return cur, nil
}

// split resolves rawPath (spec §4.11 grammar) against the current working
// directory and returns the mounted volume plus the parent directory's
// Slots and the final component's bare name.
func (fs *Filesystem) split(rawPath string) (vol *volume.Volume, parent direntry.Slots, name string, err error) {
	p, err := fs.cwd.Resolve(rawPath)
	if err != nil {
		return nil, nil, "", err
	}
	if p.IsRoot() {
		return nil, nil, "", fatfserrors.ErrEntryRootDir
	}
	vol, err = fs.volume(p.Volume)
	if err != nil {
		return nil, nil, "", err
	}
	parent, err = navigate(vol, p.Components[:len(p.Components)-1])
	if err != nil {
		return nil, nil, "", err
	}
	return vol, parent, p.Components[len(p.Components)-1], nil
}

// splitMV is split, but also returns the mountedVolume so callers that
// mutate (MakeDir, RemoveDir, Remove, Rename) can bracket themselves with
// that volume's journal_enter/journal_exit (spec §4.10).
func (fs *Filesystem) splitMV(rawPath string) (mv *mountedVolume, parent direntry.Slots, name string, err error) {
	p, err := fs.cwd.Resolve(rawPath)
	if err != nil {
		return nil, nil, "", err
	}
	if p.IsRoot() {
		return nil, nil, "", fatfserrors.ErrEntryRootDir
	}
	mv, err = fs.mounted(p.Volume)
	if err != nil {
		return nil, nil, "", err
	}
	parent, err = navigate(mv.vol, p.Components[:len(p.Components)-1])
	if err != nil {
		return nil, nil, "", err
	}
	return mv, parent, p.Components[len(p.Components)-1], nil
}

// Open implements spec §4.8 file_open against a "vol:path/to/entry"
// string, e.g. open("/a.bin", ...) against the default volume once one is
// mounted (spec §8 scenario S1).
func (fs *Filesystem) Open(rawPath string, flags OpenFlags) (handle.ID, error) {
	vol, dir, name, err := fs.split(rawPath)
	if err != nil {
		return handle.ID{}, err
	}
	return fs.files.Open(vol, dir, name, sys.OpenFlags(flags))
}

func (fs *Filesystem) Read(id handle.ID, buf []byte) (int, error)  { return fs.files.Read(id, buf) }
func (fs *Filesystem) Write(id handle.ID, buf []byte) (int, error) { return fs.files.Write(id, buf) }
func (fs *Filesystem) Seek(id handle.ID, offset int64, whence int) (int64, error) {
	return fs.files.Seek(id, offset, whence)
}
func (fs *Filesystem) Truncate(id handle.ID, newSize uint32) error {
	return fs.files.Truncate(id, newSize)
}
func (fs *Filesystem) CloseFile(id handle.ID) error { return fs.files.Close(id) }
func (fs *Filesystem) TryLock(id handle.ID, owner string) (bool, error) {
	return fs.files.TryLock(id, owner)
}
func (fs *Filesystem) Lock(id handle.ID, owner string) error   { return fs.files.Lock(id, owner) }
func (fs *Filesystem) Unlock(id handle.ID, owner string) error { return fs.files.Unlock(id, owner) }

// OpenDir implements spec §4.8 dir_open against a path string.
func (fs *Filesystem) OpenDir(rawPath string) (handle.ID, error) {
	p, err := fs.cwd.Resolve(rawPath)
	if err != nil {
		return handle.ID{}, err
	}
	vol, err := fs.volume(p.Volume)
	if err != nil {
		return handle.ID{}, err
	}
	if p.IsRoot() {
		return fs.dirs.Open(vol, sys.RootSlots(vol), "")
	}
	parent, err := navigate(vol, p.Components[:len(p.Components)-1])
	if err != nil {
		return handle.ID{}, err
	}
	return fs.dirs.Open(vol, parent, p.Components[len(p.Components)-1])
}

func (fs *Filesystem) ReadDir(id handle.ID) (direntry.Entry, bool, error) { return fs.dirs.Read(id) }
func (fs *Filesystem) CloseDir(id handle.ID) error                       { return fs.dirs.Close(id) }

// MakeDir implements spec §4.7.4 against a path string. The allocate-then-
// insert sequence runs bracketed by the volume's journal (spec §4.10
// journal_enter/journal_exit). sys.MakeDir records no before-images, and
// each Mount starts a fresh in-memory log, so a later Mount has nothing
// of this sequence to replay.
func (fs *Filesystem) MakeDir(rawPath string) (direntry.Info, error) {
	mv, parent, name, err := fs.splitMV(rawPath)
	if err != nil {
		return direntry.Info{}, err
	}
	if err := mv.jnl.Enter(); err != nil {
		return direntry.Info{}, err
	}
	info, err := sys.MakeDir(mv.vol, parent, name, parentCluster(parent))
	if exitErr := mv.jnl.Exit(); err == nil {
		err = exitErr
	}
	return info, err
}

// parentCluster recovers the first cluster backing an already-resolved
// Slots view, for the ".." entry MakeDir writes into the new directory.
// The root directory's Slots never have a meaningful first cluster for
// FAT12/16 (it isn't cluster-addressed at all), so callers pass 0 there.
func parentCluster(s direntry.Slots) uint32 {
	if cl, ok := s.(interface{ FirstCluster() uint32 }); ok {
		return cl.FirstCluster()
	}
	return 0
}

func (fs *Filesystem) RemoveDir(rawPath string) error {
	mv, parent, name, err := fs.splitMV(rawPath)
	if err != nil {
		return err
	}
	if err := mv.jnl.Enter(); err != nil {
		return err
	}
	err = sys.RemoveDir(mv.vol, parent, name)
	if exitErr := mv.jnl.Exit(); err == nil {
		err = exitErr
	}
	return err
}

// Stat resolves rawPath and returns its directory-entry metadata without
// opening a handle.
func (fs *Filesystem) Stat(rawPath string) (FileStat, error) {
	_, parent, name, err := fs.split(rawPath)
	if err != nil {
		return FileStat{}, err
	}
	info, err := direntry.Lookup(parent, name)
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{
		Name:         name,
		Size:         info.Size,
		IsDir:        info.Attr&direntry.AttrDirectory != 0,
		ReadOnly:     info.Attr&direntry.AttrReadOnly != 0,
		FirstCluster: info.FirstCluster,
	}, nil
}

func (fs *Filesystem) Remove(rawPath string) error {
	mv, parent, name, err := fs.splitMV(rawPath)
	if err != nil {
		return err
	}
	if err := mv.jnl.Enter(); err != nil {
		return err
	}
	err = sys.Remove(mv.vol, parent, name)
	if exitErr := mv.jnl.Exit(); err == nil {
		err = exitErr
	}
	return err
}

// Rename renames an entry in place; both paths must name the same
// directory (cross-directory moves are out of scope, per SPEC_FULL.md
// §4.7).
func (fs *Filesystem) Rename(oldPath, newPath string) error {
	mv, oldDir, oldName, err := fs.splitMV(oldPath)
	if err != nil {
		return err
	}
	newMV, newDir, newName, err := fs.splitMV(newPath)
	if err != nil {
		return err
	}
	if mv != newMV || !sameDir(oldDir, newDir) {
		return fatfserrors.ErrFileInvalidOp.WithMessage("cross-directory rename not supported")
	}
	if err := mv.jnl.Enter(); err != nil {
		return err
	}
	err = sys.Rename(mv.vol, oldDir, oldName, newName)
	if exitErr := mv.jnl.Exit(); err == nil {
		err = exitErr
	}
	return err
}

func sameDir(a, b direntry.Slots) bool {
	ac, aok := a.(interface{ FirstCluster() uint32 })
	bc, bok := b.(interface{ FirstCluster() uint32 })
	if aok && bok {
		return ac.FirstCluster() == bc.FirstCluster()
	}
	return aok == bok
}

// Chdir sets the process-wide working directory (spec §4.11 "query and
// set per-process CWD").
func (fs *Filesystem) Chdir(rawPath string) error {
	p, err := fs.cwd.Resolve(rawPath)
	if err != nil {
		return err
	}
	return fs.cwd.Set(p)
}

// Getwd returns the process-wide working directory as a "vol:/a/b" string.
func (fs *Filesystem) Getwd() (string, error) {
	p, set := fs.cwd.Get()
	if !set {
		return "", fatfserrors.ErrPathNoWorkingDirectory
	}
	return fmt.Sprintf("%s:/%s", p.Volume, joinComponents(p.Components)), nil
}

func joinComponents(comps []string) string {
	out := ""
	for i, c := range comps {
		if i > 0 {
			out += "/"
		}
		out += c
	}
	return out
}

// Query reports a mounted volume's state and space usage as raw sector
// counts (spec §4.5 query()); QuerySummary renders them human-readably.
func (fs *Filesystem) Query(name string, fast bool) (volume.QueryResult, error) {
	vol, err := fs.volume(name)
	if err != nil {
		return volume.QueryResult{}, err
	}
	return vol.Query(fast), nil
}

// QuerySummary renders a QueryResult as a human-readable byte-count
// summary, e.g. "512.3 kB used, 1.0 MB free" (SPEC_FULL.md's FSStat
// human-readable reporting, using the same dustin/go-humanize the
// teacher's go.mod carried but never called).
func QuerySummary(q volume.QueryResult, bytesPerSector uint32) string {
	used := humanize.Bytes(uint64(q.UsedSectors) * uint64(bytesPerSector))
	free := humanize.Bytes(uint64(q.FreeSectors) * uint64(bytesPerSector))
	return fmt.Sprintf("%s used, %s free", used, free)
}
