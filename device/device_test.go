package device_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/device"
)

// ramDriver is an in-memory phy.Driver backing a RAM disk, used to
// exercise package device without real hardware.
type ramDriver struct {
	sectorSize  uint32
	sectorCount uint32
	data        []byte
	present     bool
	opened      bool
}

func newRAMDriver(sectorSize, sectorCount uint32) *ramDriver {
	return &ramDriver{
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		data:        make([]byte, sectorSize*sectorCount),
		present:     true,
	}
}

func (r *ramDriver) Open(unit int) error  { r.opened = true; return nil }
func (r *ramDriver) Close(unit int) error { r.opened = false; return nil }

func (r *ramDriver) Rd(unit int, dest []byte, startSector uint32, count uint32) error {
	off := startSector * r.sectorSize
	copy(dest, r.data[off:off+count*r.sectorSize])
	return nil
}

func (r *ramDriver) Wr(unit int, src []byte, startSector uint32, count uint32) error {
	off := startSector * r.sectorSize
	copy(r.data[off:off+count*r.sectorSize], src)
	return nil
}

func (r *ramDriver) EraseBlock(unit int, startSector uint32, sizeSectors uint32) error {
	return nil
}
func (r *ramDriver) IoCtrl(unit int, opcode int, buf []byte) error       { return nil }
func (r *ramDriver) WaitWhileBusy(unit int, timeoutUs int64) error       { return nil }
func (r *ramDriver) SectorSize(unit int) (uint32, error)                { return r.sectorSize, nil }
func (r *ramDriver) SectorCount(unit int) (uint32, error)                { return r.sectorCount, nil }
func (r *ramDriver) Present(unit int) (bool, error)                      { return r.present, nil }

func TestOpen__PopulatesGeometry(t *testing.T) {
	drv := newRAMDriver(512, 100)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	if d.SectorSize() != 512 {
		t.Errorf("got SectorSize %d, want 512", d.SectorSize())
	}
	if d.SectorCount() != 100 {
		t.Errorf("got SectorCount %d, want 100", d.SectorCount())
	}
	if d.State() != device.StatePresent {
		t.Errorf("got state %v, want StatePresent", d.State())
	}
}

func TestOpen__RejectsBadSectorSize(t *testing.T) {
	drv := newRAMDriver(100, 10)
	if _, err := device.Open("ram0", drv, 0); err == nil {
		t.Error("expected Open to reject a non-power-of-two sector size")
	}
}

func TestReadWrite__RoundTrip(t *testing.T) {
	drv := newRAMDriver(512, 10)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}

	want := make([]byte, 512)
	for i := range want {
		want[i] = byte(i)
	}
	if err := d.Write(want, 3, 1, d.Generation()); err != nil {
		t.Fatalf("Write failed: %s", err)
	}

	got := make([]byte, 512)
	if err := d.Read(got, 3, 1, d.Generation()); err != nil {
		t.Fatalf("Read failed: %s", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestReadWrite__OutOfBoundsRejected(t *testing.T) {
	drv := newRAMDriver(512, 10)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	buf := make([]byte, 512*2)
	if err := d.Read(buf, 9, 2, d.Generation()); err == nil {
		t.Error("expected Read past the end of the device to fail")
	}
}

// A stale generation snapshot must be rejected without touching the
// driver, the refresh-fencing mechanism spec §3.2 describes.
func TestReadWrite__StaleGenerationRejected(t *testing.T) {
	drv := newRAMDriver(512, 10)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	stale := d.Generation()

	drv.present = false
	if _, err := d.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	drv.present = true
	if _, err := d.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}

	buf := make([]byte, 512)
	if err := d.Read(buf, 0, 1, stale); err == nil {
		t.Error("expected Read with a stale generation to fail")
	}
}

func TestRefresh__BumpsGenerationOnMediaChange(t *testing.T) {
	drv := newRAMDriver(512, 10)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	before := d.Generation()

	drv.present = false
	changed, err := d.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	if !changed {
		t.Error("expected Refresh to report a change when presence flips")
	}
	if d.Generation() == before {
		t.Error("expected Generation to bump after a presence change")
	}
	if d.State() != device.StateOpen {
		t.Errorf("got state %v, want StateOpen after media removed", d.State())
	}
}

func TestRefresh__NoChangeWhenPresenceStable(t *testing.T) {
	drv := newRAMDriver(512, 10)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	changed, err := d.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	if changed {
		t.Error("expected Refresh to report no change when presence is stable")
	}
}

func TestAddRefRemoveRef__ReachesZero(t *testing.T) {
	drv := newRAMDriver(512, 10)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	d.AddRef()
	d.AddRef()
	if zero := d.RemoveRef(); zero {
		t.Error("expected RemoveRef to report non-zero after two AddRef calls and one RemoveRef")
	}
	if zero := d.RemoveRef(); !zero {
		t.Error("expected RemoveRef to reach zero after balancing both AddRef calls")
	}
}

func TestQuery__ReportsSize(t *testing.T) {
	drv := newRAMDriver(512, 100)
	d, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	q := d.Query()
	if q.Size != 512*100 {
		t.Errorf("got Size %d, want %d", q.Size, 512*100)
	}
	if q.SectorSize != 512 {
		t.Errorf("got SectorSize %d, want 512", q.SectorSize)
	}
}
