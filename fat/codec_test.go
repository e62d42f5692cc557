package fat_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/fat"
)

func TestCodecRoundTrip__FAT12(t *testing.T) {
	testCodecRoundTrip(t, fat.FAT12, 512)
}

func TestCodecRoundTrip__FAT16(t *testing.T) {
	testCodecRoundTrip(t, fat.FAT16, 512)
}

func TestCodecRoundTrip__FAT32(t *testing.T) {
	testCodecRoundTrip(t, fat.FAT32, 512)
}

// testCodecRoundTrip writes a value into every cluster slot a small FAT
// buffer can hold and reads it back, checking both neighbors are left
// untouched (spec §8 round-trip law: encode then decode is the identity).
func testCodecRoundTrip(t *testing.T, variant fat.Variant, sectorSize int) {
	codec := fat.CodecFor(variant)
	buf := make([]byte, sectorSize*4)

	clusters := []uint32{2, 3, 4, 17, 100}
	for _, c := range clusters {
		if err := codec.WriteEntry(buf, sectorSize, c, fat.ClusterNumber(c+1)); err != nil {
			t.Fatalf("WriteEntry(%d) failed: %s", c, err)
		}
	}
	for _, c := range clusters {
		got, err := codec.ReadEntry(buf, sectorSize, c)
		if err != nil {
			t.Fatalf("ReadEntry(%d) failed: %s", c, err)
		}
		if got != fat.ClusterNumber(c+1) {
			t.Errorf("cluster %d: got %d, want %d", c, got, c+1)
		}
	}
}

// FAT32's WriteEntry must preserve the existing entry's upper four
// reserved bits (spec §4.6.1).
func TestFAT32WriteEntryPreservesReservedBits(t *testing.T) {
	codec := fat.CodecFor(fat.FAT32)
	buf := make([]byte, 512)

	buf[0], buf[1], buf[2], buf[3] = 0x00, 0x00, 0x00, 0xF0
	if err := codec.WriteEntry(buf, 512, 0, fat.ClusterNumber(5)); err != nil {
		t.Fatalf("WriteEntry failed: %s", err)
	}

	got, err := codec.ReadEntry(buf, 512, 0)
	if err != nil {
		t.Fatalf("ReadEntry failed: %s", err)
	}
	if got != 5 {
		t.Errorf("got %d, want 5", got)
	}
	if buf[3] != 0xF0 {
		t.Errorf("reserved bits clobbered: got %#x, want 0xf0", buf[3])
	}
}

func TestIsEOF(t *testing.T) {
	cases := []struct {
		variant fat.Variant
		value   fat.ClusterNumber
		wantEOF bool
	}{
		{fat.FAT12, fat.ClusterNumber(0xFF8), true},
		{fat.FAT12, fat.ClusterNumber(0xFF6), false},
		{fat.FAT16, fat.ClusterNumber(0xFFF8), true},
		{fat.FAT16, fat.ClusterNumber(0xFFF6), false},
		{fat.FAT32, fat.ClusterNumber(0x0FFFFFF8), true},
		{fat.FAT32, fat.ClusterNumber(0x0FFFFFF6), false},
	}
	for _, c := range cases {
		codec := fat.CodecFor(c.variant)
		if got := codec.IsEOF(c.value); got != c.wantEOF {
			t.Errorf("variant %v value %#x: IsEOF() = %v, want %v", c.variant, c.value, got, c.wantEOF)
		}
	}
}
