package volume_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/cache"
	"github.com/go-ucfat/fatfs/device"
	"github.com/go-ucfat/fatfs/fat"
	"github.com/go-ucfat/fatfs/volume"
)

// ramDriver is an in-memory phy.Driver backing a RAM disk, used to build a
// real device/volume stack without hardware.
type ramDriver struct {
	sectorSize  uint32
	sectorCount uint32
	data        []byte
	present     bool
}

func newRAMDriver(sectorSize, sectorCount uint32) *ramDriver {
	return &ramDriver{
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		data:        make([]byte, sectorSize*sectorCount),
		present:     true,
	}
}

func (r *ramDriver) Open(unit int) error  { return nil }
func (r *ramDriver) Close(unit int) error { return nil }

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
func (r *ramDriver) IoCtrl(unit int, opcode int, buf []byte) error { return nil }
func (r *ramDriver) WaitWhileBusy(unit int, timeoutUs int64) error { return nil }
func (r *ramDriver) SectorSize(unit int) (uint32, error)           { return r.sectorSize, nil }
func (r *ramDriver) SectorCount(unit int) (uint32, error)          { return r.sectorCount, nil }
func (r *ramDriver) Present(unit int) (bool, error)                { return r.present, nil }

// preformatSink adapts ramDriver to fat.Sink so a volume can be formatted
// before device.Open even runs, the way a factory-fresh card would arrive.
type preformatSink struct{ drv *ramDriver }

func (s preformatSink) SectorSize() uint32   { return s.drv.sectorSize }
func (s preformatSink) TotalSectors() uint32 { return s.drv.sectorCount }
func (s preformatSink) WriteSector(lba uint32, data []byte) error {
	off := lba * s.drv.sectorSize
	copy(s.drv.data[off:off+s.drv.sectorSize], data)
	return nil
}

var testPoolShares = cache.PoolShares{ManagementPercent: 33, DirectoryPercent: 33, FilePercent: 34}

func openTestVolume(t *testing.T) (*volume.Volume, *device.Device, *ramDriver) {
	t.Helper()
	drv := newRAMDriver(512, 65536)
	cfg := fat.FormatConfig{
		Variant:             fat.FAT16,
		ClusterSizeSectors:  4,
		ReservedSectorCount: 1,
		NumFATs:             2,
		RootEntryCount:      512,
	}
	if _, err := fat.Format(preformatSink{drv}, cfg); err != nil {
		t.Fatalf("Format failed: %s", err)
	}

	dev, err := device.Open("ram0", drv, 0)
	if err != nil {
		t.Fatalf("device.Open failed: %s", err)
	}

	vol, err := volume.Open("vol0", dev, 0, volume.AccessReadWrite, cache.WriteBack, testPoolShares, 12)
	if err != nil {
		t.Fatalf("volume.Open failed: %s", err)
	}
	return vol, dev, drv
}

func TestOpen__MountsFormattedDevice(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	if vol.Metadata().Variant != fat.FAT16 {
		t.Errorf("got variant %v, want FAT16", vol.Metadata().Variant)
	}
}

func TestReadWrite__RoundTripThroughCache(t *testing.T) {
	vol, _, _ := openTestVolume(t)

	data := make([]byte, 512)
	data[0] = 0x42
	if err := vol.Write(data, 100, 1, cache.File); err != nil {
		t.Fatalf("Write failed: %s", err)
	}
	got := make([]byte, 512)
	if err := vol.Read(got, 100, 1, cache.File); err != nil {
		t.Fatalf("Read failed: %s", err)
	}
	if got[0] != 0x42 {
		t.Errorf("got %#x, want 0x42", got[0])
	}
}

func TestReadWrite__RejectsOutOfBoundsSector(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	buf := make([]byte, 512)
	if err := vol.Read(buf, vol.Metadata().MaxClusterNumber*1000, 1, cache.File); err == nil {
		t.Error("expected Read past the partition to fail")
	}
}

func TestLabelSetGet__RoundTrip(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	if err := vol.LabelSet("MYVOLUME"); err != nil {
		t.Fatalf("LabelSet failed: %s", err)
	}
	if got := vol.LabelGet(); got != "MYVOLUME" {
		t.Errorf("got label %q, want %q", got, "MYVOLUME")
	}
}

func TestLabelSet__RejectsForbiddenCharacters(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	if err := vol.LabelSet("BAD*NAME"); err == nil {
		t.Error("expected LabelSet to reject a '*' character")
	}
}

func TestLabelSet__RejectsOverlongLabel(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	if err := vol.LabelSet("TWELVECHARS!"); err == nil {
		t.Error("expected LabelSet to reject a label over 11 characters")
	}
}

func TestFormat__RejectsWhileFilesOpen(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	vol.AddFileRef()
	defer vol.RemoveFileRef()

	cfg := fat.FormatConfig{
		Variant:             fat.FAT16,
		ClusterSizeSectors:  4,
		ReservedSectorCount: 1,
		NumFATs:             2,
		RootEntryCount:      512,
	}
	if err := vol.Format(cfg); err == nil {
		t.Error("expected Format to refuse while a file is open")
	}
}

func TestRefresh__NoOpWhenGenerationUnchanged(t *testing.T) {
	vol, _, _ := openTestVolume(t)
	changed, err := vol.Refresh()
	if err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	if changed {
		t.Error("expected Refresh to report no change when nothing happened to the device")
	}
}

func TestRefresh__RefusesWhileHandlesOpen(t *testing.T) {
	vol, dev, drv := openTestVolume(t)
	vol.AddFileRef()
	defer vol.RemoveFileRef()

	drv.present = false
	if _, err := dev.Refresh(); err != nil {
		t.Fatalf("device Refresh failed: %s", err)
	}

	if _, err := vol.Refresh(); err == nil {
		t.Error("expected volume Refresh to refuse while a file handle is open")
	}
}

func TestClose__FlushesDirtyCache(t *testing.T) {
	vol, _, drv := openTestVolume(t)
	data := make([]byte, 512)
	data[0] = 0x7

	if err := vol.Write(data, 200, 1, cache.File); err != nil {
		t.Fatalf("Write failed: %s", err)
	}
	if err := vol.Close(); err != nil {
		t.Fatalf("Close failed: %s", err)
	}
	if drv.data[200*512] != 0x7 {
		t.Errorf("got %#x at sector 200 after Close, want 0x7", drv.data[200*512])
	}
}
