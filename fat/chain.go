// Cluster chain operations (spec §4.6.2). Grounded on the teacher's
// drivers/common/allocatormap.go Allocator (first-fit findRun scan over a
// github.com/boljen/go-bitmap occupancy map), generalized from "blocks"
// to "FAT clusters" and layered on top of a Table abstraction instead of
// a raw bitmap, since cluster occupancy here is read from the FAT itself
// rather than tracked independently.
package fat

import (
	"github.com/boljen/go-bitmap"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// Table is the FAT-entry read/write collaborator chain operations run
// against; package volume supplies the concrete implementation backed by
// the sector cache.
type Table interface {
	ReadEntry(cluster uint32) (ClusterNumber, error)
	WriteEntry(cluster uint32, value ClusterNumber) error
	Variant() Variant
	MaxCluster() uint32
}

// ChainFollow walks forward up to length steps from start, or until EOF,
// whichever comes first (spec §4.6.2 chain_follow).
func ChainFollow(t Table, start uint32, length int) (end uint32, traversed int, err error) {
	codec := CodecFor(t.Variant())
	cur := start
	for i := 0; i < length; i++ {
		v, rerr := t.ReadEntry(cur)
		if rerr != nil {
			return cur, i, rerr
		}
		if codec.IsEOF(v) {
			return cur, i, nil
		}
		cur = uint32(v)
		traversed = i + 1
	}
	return cur, traversed, nil
}

// ChainEndFind follows from start until EOF (spec §4.6.2 chain_end_find).
func ChainEndFind(t Table, start uint32) (end uint32, length int, err error) {
	codec := CodecFor(t.Variant())
	cur := start
	for {
		v, rerr := t.ReadEntry(cur)
		if rerr != nil {
			return cur, length, rerr
		}
		if codec.IsEOF(v) {
			return cur, length, nil
		}
		cur = uint32(v)
		length++
		if length > int(t.MaxCluster())+1 {
			return cur, length, fatfserrors.ErrFatChainBroken.WithMessage("chain longer than volume's cluster count; likely cross-linked")
		}
	}
}

// ChainReverseFollow repeatedly chain-end-finds from start until the
// predecessor of stop is identified, used for truncation (spec §4.6.2
// chain_reverse_follow).
func ChainReverseFollow(t Table, start uint32, stop uint32) (predecessor uint32, err error) {
	if start == stop {
		return 0, fatfserrors.ErrFatClusterInvalid.WithMessage("stop cluster is the chain head")
	}
	cur := start
	for {
		v, rerr := t.ReadEntry(cur)
		if rerr != nil {
			return 0, rerr
		}
		if uint32(v) == stop {
			return cur, nil
		}
		codec := CodecFor(t.Variant())
		if codec.IsEOF(v) {
			return 0, fatfserrors.ErrFatChainBroken.WithMessage("stop cluster not found in chain")
		}
		cur = uint32(v)
	}
}

// Allocator accelerates cluster_free_find with an in-memory occupancy
// bitmap mirroring the teacher's Allocator, instead of re-scanning the FAT
// from the hint on every call. The bitmap is built once at mount and kept
// in sync by ChainAlloc/ChainDel.
type Allocator struct {
	table      Table
	free       bitmap.Bitmap // true == free; indexed by cluster-2
	nextHint   uint32
}

// NewAllocator builds an Allocator by scanning every cluster's FAT entry
// once (spec §4.6.2 cluster_free_find "first-fit scan starting at
// next-allocation hint; wraps").
func NewAllocator(t Table, nextHint uint32) (*Allocator, error) {
	maxCluster := t.MaxCluster()
	count := int(maxCluster) - 1 // clusters 2..=maxCluster
	if count < 0 {
		count = 0
	}
	a := &Allocator{table: t, free: bitmap.NewSlice(count), nextHint: nextHint}
	codec := CodecFor(t.Variant())
	for c := uint32(2); c <= maxCluster; c++ {
		v, err := t.ReadEntry(c)
		if err != nil {
			return nil, err
		}
		if v == codec.FreeMarker() {
			a.free.Set(int(c-2), true)
		}
	}
	return a, nil
}

func (a *Allocator) clusterFreeFind() (uint32, error) {
	total := a.free.Len()
	if total == 0 {
		return 0, fatfserrors.ErrDeviceFull
	}
	start := int(a.nextHint) - 2
	if start < 0 || start >= total {
		start = 0
	}
	for i := 0; i < total; i++ {
		idx := (start + i) % total
		if a.free.Get(idx) {
			return uint32(idx) + 2, nil
		}
	}
	return 0, fatfserrors.ErrDeviceFull
}

// ChainAlloc locates count free clusters via first-fit scan from the next-
// allocation hint, links each newly-allocated cluster from the prior one
// (or returns it as head if startOrNone is 0), and rolls back partial
// allocation on failure (spec §4.6.2 chain_alloc).
func (a *Allocator) ChainAlloc(startOrNone uint32, count int) (head uint32, err error) {
	codec := CodecFor(a.table.Variant())
	allocated := make([]uint32, 0, count)
	var appendTo uint32

	defer func() {
		if err != nil {
			for _, c := range allocated {
				_ = a.table.WriteEntry(c, codec.FreeMarker())
				a.free.Set(int(c-2), true)
			}
			if appendTo != 0 && len(allocated) > 0 {
				_ = a.table.WriteEntry(appendTo, codec.EOFMarker())
			}
		}
	}()

	prev := startOrNone
	if prev != 0 {
		// Find the true chain end to append from.
		prev, _, err = ChainEndFind(a.table, prev)
		if err != nil {
			return 0, err
		}
		appendTo = prev
	}

	for i := 0; i < count; i++ {
		c, ferr := a.clusterFreeFind()
		if ferr != nil {
			err = fatfserrors.ErrDeviceFull
			return 0, err
		}
		a.free.Set(int(c-2), false)
		a.nextHint = c + 1
		allocated = append(allocated, c)

		if err = a.table.WriteEntry(c, codec.EOFMarker()); err != nil {
			return 0, err
		}
		if prev != 0 {
			if err = a.table.WriteEntry(prev, ClusterNumber(c)); err != nil {
				return 0, err
			}
		} else {
			head = c
		}
		prev = c
	}
	return head, nil
}

// ChainDel marks every cluster in the chain starting at start as free. If
// deleteFirst is false, the head cluster itself is preserved (spec §4.6.2
// chain_del).
func (a *Allocator) ChainDel(start uint32, deleteFirst bool) error {
	codec := CodecFor(a.table.Variant())
	cur := start
	first := true
	for {
		v, err := a.table.ReadEntry(cur)
		if err != nil {
			return err
		}
		isEOF := codec.IsEOF(v)

		if !first || deleteFirst {
			if err := a.table.WriteEntry(cur, codec.FreeMarker()); err != nil {
				return err
			}
			a.free.Set(int(cur-2), true)
		}
		first = false

		if isEOF {
			return nil
		}
		cur = uint32(v)
	}
}

// ClusterFreeFind exposes the accelerated first-fit scan directly (spec
// §4.6.2 cluster_free_find).
func (a *Allocator) ClusterFreeFind() (uint32, error) {
	return a.clusterFreeFind()
}

// FreeCount returns the number of clusters currently marked free in the
// allocator's bitmap, used by volume.Query (SPEC_FULL.md §3 "FSINFO
// free-count hint staleness").
func (a *Allocator) FreeCount() int {
	n := 0
	for i := 0; i < a.free.Len(); i++ {
		if a.free.Get(i) {
			n++
		}
	}
	return n
}
