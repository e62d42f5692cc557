// Package media holds predefined storage-medium geometries (classic
// floppy form factors plus a couple of common flash-card sizes), loaded
// from an embedded CSV table, so cmd/ucfatutil and callers building a
// fresh image don't have to hand-compute sector counts for a "1.44 MB
// floppy" by name.
//
// Grounded on the teacher's disks.DiskGeometry / GetPredefinedDiskGeometry
// (gocarina/gocsv over an embedded CSV keyed by slug), narrowed from the
// teacher's general-purpose physical-geometry fields (heads, tracks,
// sectors/track) down to exactly what fat.FormatConfig and device sizing
// need.
package media

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/go-ucfat/fatfs/fat"
)

// Geometry is one predefined medium: its sector geometry and the FAT
// variant/cluster size that conventionally formats it.
type Geometry struct {
	Slug               string `csv:"slug"`
	Description        string `csv:"description"`
	SectorSize         uint32 `csv:"sector_size"`
	TotalSectors       uint32 `csv:"total_sectors"`
	ClusterSizeSectors uint32 `csv:"cluster_size_sectors"`
	Variant            int    `csv:"variant"`
	RootEntryCount     uint32 `csv:"root_entry_count"`
}

//go:embed geometries.csv
var rawGeometries string

var presets = map[string]Geometry{}

func init() {
	err := gocsv.UnmarshalToCallback(strings.NewReader(rawGeometries), func(row Geometry) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate predefined geometry slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("media: malformed embedded geometry table: %s", err))
	}
}

// Lookup returns the predefined geometry named by slug.
func Lookup(slug string) (Geometry, error) {
	g, ok := presets[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("no predefined medium geometry named %q", slug)
	}
	return g, nil
}

// Slugs lists every predefined geometry's slug.
func Slugs() []string {
	slugs := make([]string, 0, len(presets))
	for slug := range presets {
		slugs = append(slugs, slug)
	}
	return slugs
}

// TotalSizeBytes is the minimum backing-image size for g.
func (g Geometry) TotalSizeBytes() int64 {
	return int64(g.SectorSize) * int64(g.TotalSectors)
}

// FormatConfig builds the fat.FormatConfig a fresh image of this geometry
// should be formatted with.
func (g Geometry) FormatConfig() fat.FormatConfig {
	return fat.FormatConfig{
		Variant:             fat.Variant(g.Variant),
		ClusterSizeSectors:  g.ClusterSizeSectors,
		ReservedSectorCount: 1,
		NumFATs:             2,
		RootEntryCount:      g.RootEntryCount,
	}
}
