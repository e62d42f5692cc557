// Package bufpool implements C1, the fixed-count pool of sector-sized
// byte buffers shared by every layer above it: cache, syscall layer, and
// directory-entry insertion all borrow buffers from here instead of
// allocating their own.
//
// Grounded on the teacher's drivers/common/blockcache.BlockCache, which
// tracks block presence/dirtiness with github.com/boljen/go-bitmap over a
// single flat backing array; this package reuses that bitmap-over-flat-
// array shape to track which buffer slots are currently on loan.
package bufpool

import (
	"sync"

	"github.com/boljen/go-bitmap"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// VolumeRef identifies the owner of a borrowed buffer. The pool never
// dereferences it; it only records it for Owner() and debug purposes.
type VolumeRef interface {
	// VolumeID is a stable identifier unique among mounted volumes, used
	// only to tag a borrowed buffer with its owner (spec §3.1 "tagged with
	// owning-volume reference").
	VolumeID() uint32
}

// Buffer is a single loaned sector-sized byte buffer.
type Buffer struct {
	Data  []byte
	owner uint32
	index int
}

// Owner returns the VolumeID the buffer was acquired for.
func (b *Buffer) Owner() uint32 { return b.owner }

// Pool is a fixed-count pool of equally-sized buffers, each
// MaxSectorSize bytes (spec §4.1). Reentrant under the device lock: Get
// and Release take their own mutex so concurrent callers already holding
// a device lock never deadlock against each other here.
type Pool struct {
	mu          sync.Mutex
	buffers     [][]byte
	owners      []uint32
	borrowed    bitmap.Bitmap
	bufSize     int
	debugZeroOnRelease bool
}

// New creates a pool of count buffers, each bufSize bytes (the maximum
// supported sector size for the filesystem instance). debugZeroOnRelease
// mirrors spec §4.1 "zeroes contents in debug builds".
func New(count int, bufSize int, debugZeroOnRelease bool) *Pool {
	p := &Pool{
		buffers:            make([][]byte, count),
		owners:             make([]uint32, count),
		borrowed:           bitmap.NewSlice(count),
		bufSize:            bufSize,
		debugZeroOnRelease: debugZeroOnRelease,
	}
	for i := range p.buffers {
		p.buffers[i] = make([]byte, bufSize)
	}
	return p
}

// Get acquires one free buffer and records the owning volume. Returns
// errors.ErrPoolEmpty if every buffer is currently on loan; callers that
// need to block wrap Get in their own retry/semaphore (spec §4.1 "no
// ordering guarantees between waiters: callers pre-reserve before
// entering tight paths").
func (p *Pool) Get(owner VolumeRef) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.buffers); i++ {
		if !p.borrowed.Get(i) {
			p.borrowed.Set(i, true)
			p.owners[i] = owner.VolumeID()
			return &Buffer{Data: p.buffers[i], owner: owner.VolumeID(), index: i}, nil
		}
	}
	return nil, fatfserrors.ErrPoolEmpty
}

// Release returns buf to the pool. Zeroes the backing array first when
// the pool was constructed with debugZeroOnRelease.
func (p *Pool) Release(buf *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if buf.index < 0 || buf.index >= len(p.buffers) {
		return
	}
	if p.debugZeroOnRelease {
		for i := range p.buffers[buf.index] {
			p.buffers[buf.index][i] = 0
		}
	}
	p.borrowed.Set(buf.index, false)
	p.owners[buf.index] = 0
}

// Size reports the number of buffers in the pool.
func (p *Pool) Size() int { return len(p.buffers) }

// BufferSize reports the size, in bytes, of each buffer in the pool.
func (p *Pool) BufferSize() int { return p.bufSize }
