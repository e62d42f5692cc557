// Package handle implements C9: fixed-size file and directory object
// pools, reference counting, the advisory file lock, and per-handle
// buffering.
//
// Grounded on spec §9 "Manual memory management" design note ("Target
// uses a fixed-capacity arena with free-list; handles are integer indices
// into the arena plus a generation counter to detect use-after-free") and
// the teacher's driver/file.go object-handle shape, generalized from a
// single handle type into parallel file/dir arenas.
package handle

import (
	"sync"

	"github.com/go-ucfat/fatfs/direntry"
	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// ID is an opaque handle: an arena index plus a generation counter, so a
// stale ID from a closed-and-reused slot is detected rather than
// silently aliasing a new handle (spec §9 "Manual memory management").
type ID struct {
	index      int
	generation uint32
}

// Valid reports whether id looks like a real handle (not the zero value).
func (id ID) Valid() bool { return id.generation != 0 }

// Index returns the arena slot id refers to, so callers that keep
// parallel side-tables (package sys's file/dir context maps) can key on it.
func (id ID) Index() int { return id.index }

// BufferState is a per-file handle's read/write buffer state (spec §4.9
// "Per-file buffer"). A read buffer and a write buffer never coexist.
type BufferState int

const (
	BufferNone BufferState = iota
	BufferEmpty
	BufferNonEmptyRead
	BufferNonEmptyWrite
)

// IOState is a file handle's in-flight operation state (spec §3.1 "I/O
// state").
type IOState int

const (
	IONone IOState = iota
	IOReading
	IOWriting
)

// FileHandle holds everything spec §3.1 "File handle" lists.
type FileHandle struct {
	generation uint32
	inUse      bool

	VolumeID       uint32
	EntryPosition  direntry.ChainPosition
	FirstCluster   uint32
	Position       uint32
	CurrentSector  uint32
	SectorOffset   uint16
	Size           uint32

	CanRead, CanWrite, Append, Created, Excl, Truncate, Cached bool
	EOF, Err                                                   bool
	IOState                                                    IOState

	BufState     BufferState
	BufStart     uint32
	BufMaxPos    uint32
	BufData      []byte

	RefreshGeneration uint64

	// Lock is the handle's advisory lock (spec §4.9); allocated once per
	// slot and reused across generations rather than recreated on every
	// Alloc, since an unlocked AdvisoryLock is indistinguishable from a
	// freshly allocated one.
	Lock *AdvisoryLock
}

// DirHandle holds everything spec §3.1 "Directory handle" lists.
type DirHandle struct {
	generation uint32
	inUse      bool

	VolumeID          uint32
	FirstCluster      uint32
	IterationPosition int
	State             DirState
	RefreshGeneration uint64
}

// DirState is a directory handle's enumeration state (spec §3.1).
type DirState int

const (
	DirOpen DirState = iota
	DirEOF
	DirErr
	DirClosed
)

// FileArena is a fixed-capacity pool of FileHandle slots.
type FileArena struct {
	mu        sync.Mutex
	slots     []FileHandle
	freeList  []int
	nextGen   uint32
}

// NewFileArena builds an arena with capacity slots.
func NewFileArena(capacity int) *FileArena {
	a := &FileArena{slots: make([]FileHandle, capacity), nextGen: 1}
	for i := capacity - 1; i >= 0; i-- {
		a.freeList = append(a.freeList, i)
		a.slots[i].Lock = NewAdvisoryLock()
	}
	return a
}

// Alloc reserves a slot and returns its ID, or ErrTooManyOpenFiles if the
// arena is exhausted.
func (a *FileArena) Alloc() (ID, *FileHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.freeList) == 0 {
		return ID{}, nil, fatfserrors.ErrTooManyOpenFiles
	}
	idx := a.freeList[len(a.freeList)-1]
	a.freeList = a.freeList[:len(a.freeList)-1]

	gen := a.nextGen
	a.nextGen++
	lock := a.slots[idx].Lock
	a.slots[idx] = FileHandle{generation: gen, inUse: true, Lock: lock}
	return ID{index: idx, generation: gen}, &a.slots[idx], nil
}

// Get resolves id to its handle, failing if the handle was closed and the
// slot reused (a stale ID whose generation no longer matches).
func (a *FileArena) Get(id ID) (*FileHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id.index < 0 || id.index >= len(a.slots) {
		return nil, fatfserrors.ErrFileHandleInvalid
	}
	h := &a.slots[id.index]
	if !h.inUse || h.generation != id.generation {
		return nil, fatfserrors.ErrFileHandleInvalid
	}
	return h, nil
}

// Free releases id back to the free list.
func (a *FileArena) Free(id ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id.index < 0 || id.index >= len(a.slots) {
		return fatfserrors.ErrFileHandleInvalid
	}
	h := &a.slots[id.index]
	if !h.inUse || h.generation != id.generation {
		return fatfserrors.ErrFileHandleInvalid
	}
	h.inUse = false
	a.freeList = append(a.freeList, id.index)
	return nil
}

// DirArena is a fixed-capacity pool of DirHandle slots, identical in
// shape to FileArena but for directory handles.
type DirArena struct {
	mu       sync.Mutex
	slots    []DirHandle
	freeList []int
	nextGen  uint32
}

func NewDirArena(capacity int) *DirArena {
	a := &DirArena{slots: make([]DirHandle, capacity), nextGen: 1}
	for i := capacity - 1; i >= 0; i-- {
		a.freeList = append(a.freeList, i)
	}
	return a
}

func (a *DirArena) Alloc() (ID, *DirHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.freeList) == 0 {
		return ID{}, nil, fatfserrors.ErrTooManyOpenDirs
	}
	idx := a.freeList[len(a.freeList)-1]
	a.freeList = a.freeList[:len(a.freeList)-1]

	gen := a.nextGen
	a.nextGen++
	a.slots[idx] = DirHandle{generation: gen, inUse: true}
	return ID{index: idx, generation: gen}, &a.slots[idx], nil
}

func (a *DirArena) Get(id ID) (*DirHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id.index < 0 || id.index >= len(a.slots) {
		return nil, fatfserrors.ErrFileHandleInvalid
	}
	h := &a.slots[id.index]
	if !h.inUse || h.generation != id.generation {
		return nil, fatfserrors.ErrFileHandleInvalid
	}
	return h, nil
}

func (a *DirArena) Free(id ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id.index < 0 || id.index >= len(a.slots) {
		return fatfserrors.ErrFileHandleInvalid
	}
	h := &a.slots[id.index]
	if !h.inUse || h.generation != id.generation {
		return fatfserrors.ErrFileHandleInvalid
	}
	h.inUse = false
	a.freeList = append(a.freeList, id.index)
	return nil
}
