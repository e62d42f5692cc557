// Package cache implements C4, the per-volume typed sector cache:
// management/directory/file pools with round-robin replacement, and the
// ReadOnly/WriteThrough/WriteBack write policies of spec §4.4.
//
// Grounded on the teacher's drivers/common/blockcache.BlockCache
// (bitmap-tracked present/dirty state over a flat backing array via
// github.com/boljen/go-bitmap), split here into three independent
// sub-pools instead of one, and extended with typed-pool round-robin
// eviction and a pluggable Device collaborator for misses/flushes.
package cache

import (
	"sync"

	"github.com/boljen/go-bitmap"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// Mode selects the cache's write policy (spec §4.4).
type Mode int

const (
	ReadOnly Mode = iota
	WriteThrough
	WriteBack
)

// SectorType partitions the cache into typed pools (spec §4.4).
type SectorType int

const (
	Management SectorType = iota
	Directory
	File
	numSectorTypes
)

// PoolShares gives the percentage of the cache's buffers assigned to each
// typed pool; normalized to sum to 100 by New if they don't already.
type PoolShares struct {
	ManagementPercent int
	DirectoryPercent  int
	FilePercent       int
}

// Device is the collaborator a cache reads misses from and flushes dirty
// buffers to. package volume implements it with an adapter over its
// device.Device that adds the partition offset and the volume's
// refresh-generation snapshot; device.Device itself does not satisfy it,
// since its Read/Write also take that snapshot.
type Device interface {
	Read(dest []byte, start uint32, count uint32) error
	Write(src []byte, start uint32, count uint32) error
}

type slot struct {
	sector uint32
	occupied bool
}

type pool struct {
	slots      []slot
	sectorSize int
	data       []byte
	dirty      bitmap.Bitmap
	rr         int // round-robin cursor for next eviction
}

func newPool(count int, sectorSize int) *pool {
	return &pool{
		slots:      make([]slot, count),
		sectorSize: sectorSize,
		data:       make([]byte, count*sectorSize),
		dirty:      bitmap.NewSlice(count),
	}
}

func (p *pool) find(sector uint32) (int, bool) {
	for i, s := range p.slots {
		if s.occupied && s.sector == sector {
			return i, true
		}
	}
	return -1, false
}

func (p *pool) buf(i int) []byte {
	return p.data[i*p.sectorSize : (i+1)*p.sectorSize]
}

// Cache is the per-volume typed sector cache.
type Cache struct {
	mu     sync.Mutex
	mode   Mode
	device Device
	sectorSize int
	pools  [numSectorTypes]*pool
}

// New builds a Cache with totalBuffers sectors of sectorSize bytes each,
// split across the three typed pools proportional to shares (spec §4.4
// "proportional to configured percentages"). Returns ErrCacheTooSmall if
// the split would leave any pool empty.
func New(device Device, mode Mode, sectorSize int, totalBuffers int, shares PoolShares) (*Cache, error) {
	sum := shares.ManagementPercent + shares.DirectoryPercent + shares.FilePercent
	if sum <= 0 {
		return nil, fatfserrors.ErrCacheInvalidMode.WithMessage("pool shares sum to zero")
	}
	mgmt := totalBuffers * shares.ManagementPercent / sum
	dir := totalBuffers * shares.DirectoryPercent / sum
	file := totalBuffers - mgmt - dir
	if mgmt == 0 || dir == 0 || file == 0 {
		return nil, fatfserrors.ErrCacheTooSmall
	}

	c := &Cache{mode: mode, device: device, sectorSize: sectorSize}
	c.pools[Management] = newPool(mgmt, sectorSize)
	c.pools[Directory] = newPool(dir, sectorSize)
	c.pools[File] = newPool(file, sectorSize)
	return c, nil
}

func (c *Cache) poolFor(t SectorType) (*pool, error) {
	if t < 0 || int(t) >= len(c.pools) {
		return nil, fatfserrors.ErrCacheInvalidSectorType
	}
	return c.pools[t], nil
}

// insert places data for sector into p, reusing an exact-match slot in
// place (no round-robin advance) or evicting the next round-robin slot,
// flushing it first if dirty (spec §4.4 edge policy).
func (c *Cache) insert(p *pool, sector uint32, data []byte, markDirty bool) error {
	if i, ok := p.find(sector); ok {
		copy(p.buf(i), data)
		if markDirty {
			p.dirty.Set(i, true)
		}
		return nil
	}

	i := p.rr
	p.rr = (p.rr + 1) % len(p.slots)

	if p.slots[i].occupied && p.dirty.Get(i) {
		if err := c.device.Write(p.buf(i), p.slots[i].sector, 1); err != nil {
			return fatfserrors.ErrCacheFlushFailed.WrapError(err)
		}
		p.dirty.Set(i, false)
	}

	p.slots[i] = slot{sector: sector, occupied: true}
	copy(p.buf(i), data)
	if markDirty {
		p.dirty.Set(i, true)
	}
	return nil
}

// Read fills dest ([count*sectorSize] bytes) with sectors [start, start+count),
// coalescing cache misses into contiguous device reads and inserting each
// miss run into the typed pool (spec §4.4 read()).
func (c *Cache) Read(dest []byte, start uint32, count uint32, t SectorType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.poolFor(t)
	if err != nil {
		return err
	}

	i := uint32(0)
	for i < count {
		sector := start + i
		if idx, ok := p.find(sector); ok {
			copy(dest[i*uint32(c.sectorSize):(i+1)*uint32(c.sectorSize)], p.buf(idx))
			i++
			continue
		}

		runStart := i
		for i < count {
			if _, ok := p.find(start + i); ok {
				break
			}
			i++
		}
		runCount := i - runStart

		runBuf := make([]byte, runCount*uint32(c.sectorSize))
		if err := c.device.Read(runBuf, start+runStart, runCount); err != nil {
			return err
		}
		copy(dest[runStart*uint32(c.sectorSize):i*uint32(c.sectorSize)], runBuf)

		for j := uint32(0); j < runCount; j++ {
			sec := start + runStart + j
			chunk := runBuf[j*uint32(c.sectorSize) : (j+1)*uint32(c.sectorSize)]
			if err := c.insert(p, sec, chunk, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Write applies src ([count*sectorSize] bytes) to sectors [start, start+count)
// according to the cache's mode (spec §4.4 write()).
func (c *Cache) Write(src []byte, start uint32, count uint32, t SectorType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.poolFor(t)
	if err != nil {
		return err
	}

	switch c.mode {
	case ReadOnly:
		if err := c.device.Write(src, start, count); err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			if idx, ok := p.find(start + i); ok {
				p.slots[idx].occupied = false
				p.dirty.Set(idx, false)
			}
		}
		return nil

	case WriteThrough:
		for i := uint32(0); i < count; i++ {
			chunk := src[i*uint32(c.sectorSize) : (i+1)*uint32(c.sectorSize)]
			if err := c.insert(p, start+i, chunk, false); err != nil {
				return err
			}
		}
		return c.device.Write(src, start, count)

	default: // WriteBack
		for i := uint32(0); i < count; i++ {
			chunk := src[i*uint32(c.sectorSize) : (i+1)*uint32(c.sectorSize)]
			if err := c.insert(p, start+i, chunk, true); err != nil {
				return err
			}
		}
		return nil
	}
}

// Release drops any buffer in [start, start+count) from all three typed
// pools without writing dirty contents back (spec §4.4 release(): "sector
// is now free on device").
func (c *Cache) Release(start uint32, count uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.pools {
		for i := range p.slots {
			if p.slots[i].occupied && p.slots[i].sector >= start && p.slots[i].sector < start+count {
				p.slots[i].occupied = false
				p.dirty.Set(i, false)
			}
		}
	}
}

// Invalidate marks every buffer free without writing dirty contents (spec
// §4.4 invalidate(): used post-format, when underlying data is known
// superseded).
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.pools {
		for i := range p.slots {
			p.slots[i].occupied = false
			p.dirty.Set(i, false)
		}
	}
}

// Flush writes every dirty buffer and clears its dirty flag. A no-op in
// WriteThrough and ReadOnly modes, since neither ever leaves a buffer
// dirty (spec §4.4 flush()).
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != WriteBack {
		return nil
	}

	for _, p := range c.pools {
		for i := range p.slots {
			if p.slots[i].occupied && p.dirty.Get(i) {
				if err := c.device.Write(p.buf(i), p.slots[i].sector, 1); err != nil {
					return fatfserrors.ErrCacheFlushFailed.WrapError(err)
				}
				p.dirty.Set(i, false)
			}
		}
	}
	return nil
}
