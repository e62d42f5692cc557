package partition_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/partition"
)

func TestParse__NoSignatureMeansEntireDevice(t *testing.T) {
	sector := make([]byte, 512)
	table, err := partition.Parse(sector)
	if err != nil {
		t.Fatalf("Parse failed: %s", err)
	}
	if table.HasSignature {
		t.Error("expected HasSignature false for a sector with no 0x55AA signature")
	}
}

func TestParse__RejectsShortSector(t *testing.T) {
	if _, err := partition.Parse(make([]byte, 100)); err == nil {
		t.Error("expected Parse to reject a sector shorter than 512 bytes")
	}
}

func TestWriteThenParse__RoundTrip(t *testing.T) {
	sector := partition.Write(2048, partition.TypeFAT16)

	table, err := partition.Parse(sector)
	if err != nil {
		t.Fatalf("Parse failed: %s", err)
	}
	if !table.HasSignature {
		t.Fatal("expected HasSignature true after Write")
	}

	entry, err := table.Get(1)
	if err != nil {
		t.Fatalf("Get(1) failed: %s", err)
	}
	if entry.StartSector != 1 {
		t.Errorf("got StartSector %d, want 1", entry.StartSector)
	}
	if entry.SizeSectors != 2047 {
		t.Errorf("got SizeSectors %d, want 2047", entry.SizeSectors)
	}
	if entry.TypeCode != partition.TypeFAT16 {
		t.Errorf("got TypeCode %#x, want %#x", entry.TypeCode, partition.TypeFAT16)
	}
}

func TestGet__RejectsOutOfRangeIndex(t *testing.T) {
	sector := partition.Write(2048, partition.TypeFAT16)
	table, err := partition.Parse(sector)
	if err != nil {
		t.Fatalf("Parse failed: %s", err)
	}
	if _, err := table.Get(0); err == nil {
		t.Error("expected Get(0) to fail (index 0 is handled by the caller, not Table)")
	}
	if _, err := table.Get(5); err == nil {
		t.Error("expected Get(5) to fail (only indices 1..4 exist)")
	}
}

func TestGet__RejectsEmptyEntry(t *testing.T) {
	sector := partition.Write(2048, partition.TypeFAT16)
	table, err := partition.Parse(sector)
	if err != nil {
		t.Fatalf("Parse failed: %s", err)
	}
	if _, err := table.Get(2); err == nil {
		t.Error("expected Get(2) to fail: Write only populates entry 1")
	}
}

func TestTypeForFATVariant(t *testing.T) {
	cases := []struct {
		fatType      int
		totalSectors uint32
		sectorSize   uint32
		want         byte
	}{
		{12, 1000, 512, partition.TypeFAT12},
		{16, 1000, 512, partition.TypeFAT16Small},
		{16, 1 << 20, 512, partition.TypeFAT16},
		{32, 1000, 512, partition.TypeFAT32},
		{32, 0x01000000, 512, partition.TypeFAT32LBA},
	}
	for _, c := range cases {
		got := partition.TypeForFATVariant(c.fatType, c.totalSectors, c.sectorSize)
		if got != c.want {
			t.Errorf("TypeForFATVariant(%d, %d, %d) = %#x, want %#x", c.fatType, c.totalSectors, c.sectorSize, got, c.want)
		}
	}
}
