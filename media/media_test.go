package media

import (
	"testing"

	"github.com/go-ucfat/fatfs/fat"
)

func TestSlugs_CoversEveryEmbeddedRow(t *testing.T) {
	want := []string{
		"floppy360", "floppy720", "floppy1200", "floppy1440", "floppy2880",
		"cf16", "cf64", "sd256",
	}
	got := Slugs()
	if len(got) != len(want) {
		t.Fatalf("Slugs() has %d entries, want %d: %v", len(got), len(want), got)
	}
	for _, slug := range want {
		if _, err := Lookup(slug); err != nil {
			t.Errorf("Lookup(%q): %v", slug, err)
		}
	}
}

func TestLookup_Floppy1440Fields(t *testing.T) {
	g, err := Lookup("floppy1440")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if g.SectorSize != 512 || g.TotalSectors != 2880 || g.Variant != int(fat.FAT12) {
		t.Fatalf("floppy1440 = %+v", g)
	}
	if got := g.TotalSizeBytes(); got != 512*2880 {
		t.Fatalf("TotalSizeBytes() = %d, want %d", got, 512*2880)
	}
	cfg := g.FormatConfig()
	if cfg.Variant != fat.FAT12 || cfg.ClusterSizeSectors != g.ClusterSizeSectors || cfg.RootEntryCount != g.RootEntryCount {
		t.Fatalf("FormatConfig() = %+v, want derived from %+v", cfg, g)
	}
	if cfg.NumFATs != 2 || cfg.ReservedSectorCount != 1 {
		t.Fatalf("FormatConfig() defaults = %+v", cfg)
	}
}

func TestLookup_Sd256IsFAT32WithComputedRootDir(t *testing.T) {
	g, err := Lookup("sd256")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if g.Variant != int(fat.FAT32) {
		t.Fatalf("sd256 Variant = %d, want FAT32", g.Variant)
	}
	if g.RootEntryCount != 0 {
		t.Fatalf("sd256 RootEntryCount = %d, want 0 (FAT32 root is a cluster chain)", g.RootEntryCount)
	}
}

func TestLookup_UnknownSlug(t *testing.T) {
	if _, err := Lookup("does-not-exist"); err == nil {
		t.Fatal("Lookup(unknown): want error, got nil")
	}
}
