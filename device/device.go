// Package device implements C2, the block device: a wrapper around a
// phy.Driver that tracks open/present/formatted state, sector geometry,
// and the refresh generation used to fence stale cached state across the
// rest of the stack.
//
// Grounded on the teacher's drivers/common.BlockDevice (bounds checking,
// block-id-to-offset arithmetic), generalized from "a stream" to "a
// phy.Driver unit" and extended with the state machine, refresh
// generation, and two-level locking spec §3.1/§4.2/§5 require.
package device

import (
	"sync"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/phy"
)

// State is a device's lifecycle state (spec §3.1).
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StatePresent
	StateLowFormatValid
	StateClosing
)

// Device is a (driver-type, unit-number) pair plus everything the rest of
// the stack needs to address it (spec §3.1 "Block device").
type Device struct {
	Name   string
	driver phy.Driver
	unit   int

	// accessLock is the per-device access lock (spec §5 lock 2), acquired
	// for refresh and through AccessLock. It is a plain sync.Mutex and is
	// not re-entrant: a second acquire before release blocks. Sector I/O
	// takes opLock only, so holding accessLock does not exclude it.
	accessLock sync.Mutex
	// opLock is the per-device operation lock (spec §5 lock 3): held for
	// the duration of any sector I/O.
	opLock sync.Mutex

	mu sync.Mutex // guards the fields below

	state      State
	sectorSize uint32
	sectorCount uint32
	generation  uint64
	refCount    int
}

// Open initializes driver for unit and populates geometry (spec §4.2
// open()).
func Open(name string, driver phy.Driver, unit int) (*Device, error) {
	d := &Device{Name: name, driver: driver, unit: unit, state: StateOpening}

	if err := driver.Open(unit); err != nil {
		d.state = StateClosed
		return nil, fatfserrors.ErrDeviceIo.WrapError(err)
	}

	sectorSize, err := driver.SectorSize(unit)
	if err != nil {
		return nil, fatfserrors.ErrDeviceInvalidSectorSize.WrapError(err)
	}
	if sectorSize < 512 || sectorSize > 4096 || sectorSize&(sectorSize-1) != 0 {
		return nil, fatfserrors.ErrDeviceInvalidSectorSize
	}

	sectorCount, err := driver.SectorCount(unit)
	if err != nil {
		return nil, fatfserrors.ErrDeviceInvalidSize.WrapError(err)
	}

	present, err := driver.Present(unit)
	if err != nil {
		return nil, fatfserrors.ErrDeviceIo.WrapError(err)
	}

	d.sectorSize = sectorSize
	d.sectorCount = sectorCount
	d.generation = 1
	if present {
		d.state = StatePresent
	} else {
		d.state = StateOpen
	}
	return d, nil
}

// SectorSize returns the device's sector size in bytes.
func (d *Device) SectorSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sectorSize
}

// SectorCount returns the device's total sector count.
func (d *Device) SectorCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sectorCount
}

// Generation returns the current refresh generation (spec §3.1, §3.2
// "refresh_generation snapshot").
func (d *Device) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// State returns the device's current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) checkBounds(start uint32, count uint32) error {
	d.mu.Lock()
	total := d.sectorCount
	d.mu.Unlock()
	if count == 0 {
		return nil
	}
	if start >= total || uint64(start)+uint64(count) > uint64(total) {
		return fatfserrors.ErrDeviceIo.WithMessage("sector range out of bounds")
	}
	return nil
}

// Read performs a bulk sector transfer into dest, which must be exactly
// count*SectorSize() bytes (spec §4.2 read()). expectedGeneration is the
// caller's refresh-generation snapshot; a mismatch against the device's
// current generation yields ErrDeviceChanged without touching hardware.
func (d *Device) Read(dest []byte, start uint32, count uint32, expectedGeneration uint64) error {
	if err := d.checkGeneration(expectedGeneration); err != nil {
		return err
	}
	if err := d.checkBounds(start, count); err != nil {
		return err
	}

	d.opLock.Lock()
	defer d.opLock.Unlock()

	if err := d.driver.Rd(d.unit, dest, start, count); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return nil
}

// Write performs a bulk sector transfer from src (spec §4.2 write()).
func (d *Device) Write(src []byte, start uint32, count uint32, expectedGeneration uint64) error {
	if err := d.checkGeneration(expectedGeneration); err != nil {
		return err
	}
	if err := d.checkBounds(start, count); err != nil {
		return err
	}

	d.opLock.Lock()
	defer d.opLock.Unlock()

	if err := d.driver.Wr(d.unit, src, start, count); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return nil
}

func (d *Device) checkGeneration(expected uint64) error {
	d.mu.Lock()
	current := d.generation
	d.mu.Unlock()
	if expected != current {
		return fatfserrors.ErrDeviceChanged
	}
	return nil
}

// Release hints that sectors [start, start+count) are free, allowing the
// driver to mark the corresponding blocks reusable (spec §4.2 release()).
func (d *Device) Release(start uint32, count uint32) error {
	d.opLock.Lock()
	defer d.opLock.Unlock()

	if err := d.driver.EraseBlock(d.unit, start, count); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return nil
}

// Refresh re-queries the driver for media presence. On a change, it
// increments the refresh generation and re-reads geometry (spec §4.2
// refresh()).
func (d *Device) Refresh() (changed bool, err error) {
	d.accessLock.Lock()
	defer d.accessLock.Unlock()

	present, err := d.driver.Present(d.unit)
	if err != nil {
		return false, fatfserrors.ErrDeviceIo.WrapError(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	wasPresent := d.state == StatePresent || d.state == StateLowFormatValid
	if present == wasPresent {
		return false, nil
	}

	d.generation++
	if present {
		sectorSize, serr := d.driver.SectorSize(d.unit)
		if serr != nil {
			return true, fatfserrors.ErrDeviceInvalidSectorSize.WrapError(serr)
		}
		sectorCount, cerr := d.driver.SectorCount(d.unit)
		if cerr != nil {
			return true, fatfserrors.ErrDeviceInvalidSize.WrapError(cerr)
		}
		d.sectorSize = sectorSize
		d.sectorCount = sectorCount
		d.state = StatePresent
	} else {
		d.state = StateOpen
	}
	return true, nil
}

// Query reports the device's current state, size, and sector size (spec
// §4.2 query()).
type QueryResult struct {
	State      State
	Size       uint64
	SectorSize uint32
}

func (d *Device) Query() QueryResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return QueryResult{
		State:      d.state,
		Size:       uint64(d.sectorCount) * uint64(d.sectorSize),
		SectorSize: d.sectorSize,
	}
}

// AccessLock acquires the per-device access lock that Refresh also takes
// (spec §5 lock 2). The lock is not re-entrant: calling AccessLock (or
// Refresh) again before AccessUnlock blocks. Callers must call
// AccessUnlock exactly once per AccessLock.
func (d *Device) AccessLock()   { d.accessLock.Lock() }
func (d *Device) AccessUnlock() { d.accessLock.Unlock() }

// AddRef increments the device's reference count; volumes hold one for
// their lifetime (spec §3.3 "Device lifecycle").
func (d *Device) AddRef() {
	d.mu.Lock()
	d.refCount++
	d.mu.Unlock()
}

// RemoveRef decrements the reference count and reports whether it reached
// zero, meaning the caller may close the device.
func (d *Device) RemoveRef() (zero bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refCount--
	return d.refCount <= 0
}

// Close releases the underlying driver. Callers must ensure RemoveRef has
// reached zero first.
func (d *Device) Close() error {
	d.mu.Lock()
	d.state = StateClosing
	d.mu.Unlock()

	if err := d.driver.Close(d.unit); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}

	d.mu.Lock()
	d.state = StateClosed
	d.mu.Unlock()
	return nil
}
