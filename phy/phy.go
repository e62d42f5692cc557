// Package phy defines the collaborator interfaces the core consumes but
// never implements: the physical-layer driver, the host RTOS locking
// primitives, and the system clock (spec §6.4-6.5, §1 "OUT OF SCOPE as
// external collaborators").
package phy

import "time"

// Driver is the physical-layer driver for a block-oriented storage unit:
// NAND/NOR flash, SD/MMC, or a RAM disk. The core never talks to hardware
// directly; every device operation in package device funnels through one
// of these, grounded on the teacher's BlockDevice but generalized from "a
// stream" to an explicit driver contract so a real flash/SD backend can
// implement it without an io.Seeker in the middle (spec §6.4).
type Driver interface {
	// Open prepares unit for I/O. Called once per device open.
	Open(unit int) error

	// Close releases any resources Open acquired.
	Close(unit int) error

	// Rd reads count sectors starting at startSector into dest, which must
	// be exactly count*SectorSize() bytes.
	Rd(unit int, dest []byte, startSector uint32, count uint32) error

	// Wr writes count sectors starting at startSector from src, which must
	// be exactly count*SectorSize() bytes.
	Wr(unit int, src []byte, startSector uint32, count uint32) error

	// EraseBlock hints that the given sector range is no longer live data
	// and may be reclaimed by flash wear-leveling (C2 release()).
	EraseBlock(unit int, startSector uint32, sizeSectors uint32) error

	// IoCtrl issues a driver-specific control operation, e.g. querying
	// geometry or forcing a media rescan. opcode and buf are driver-defined.
	IoCtrl(unit int, opcode int, buf []byte) error

	// WaitWhileBusy blocks until the unit is no longer busy or timeoutUs
	// microseconds elapse, whichever comes first. Returns a timeout-shaped
	// error (see errors.ErrDeviceTimeout) on expiry.
	WaitWhileBusy(unit int, timeoutUs int64) error

	// SectorSize reports the unit's native sector size in bytes. Must be a
	// power of two in [512, 4096].
	SectorSize(unit int) (uint32, error)

	// SectorCount reports the unit's total sector count.
	SectorCount(unit int) (uint32, error)

	// Present reports whether media is currently inserted/available. A
	// driver for fixed storage (NAND/NOR/RAM disk) always returns true.
	Present(unit int) (bool, error)
}

// Rtos is the host OS locking primitive the core builds its device/registry
// locks on top of (spec §5, §6 "the host OS mutex/semaphore primitives").
// A trivial implementation wraps sync.Mutex/sync.Cond; a real embedded
// target wraps its RTOS's native mutex and semaphore.
type Rtos interface {
	// NewMutex returns a new, unlocked recursive-capable mutex handle.
	NewMutex() Mutex

	// NewSemaphore returns a new counting semaphore with the given initial
	// count, used to guard pool resources (buffer pool, handle arenas).
	NewSemaphore(initialCount int) Semaphore
}

// Mutex is a lock handle vended by Rtos.
type Mutex interface {
	Lock()
	Unlock()
}

// Semaphore is a counting semaphore handle vended by Rtos.
type Semaphore interface {
	Acquire()
	TryAcquire() bool
	Release()
}

// Clock is the timestamp source for directory-entry creation/write/access
// times (spec §6.5). FAT timestamps pack year-1980/month/day and
// hour/minute/second-over-2; Now returns the broken-down value the fat
// package encodes from.
type Clock interface {
	Now() time.Time
}

// DefaultClock is a Clock backed by the host's wall clock. Used when a
// caller doesn't supply one of their own (e.g. in tests or a non-embedded
// build where time.Now is perfectly fine).
type DefaultClock struct{}

func (DefaultClock) Now() time.Time { return time.Now() }
