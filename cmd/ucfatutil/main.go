// ucfatutil is a small command-line tool for creating, formatting, and
// inspecting FAT disk images from the host, built on the same fatfs
// package an embedded target links against.
//
// Grounded on the teacher's cmd/main.go (a urfave/cli/v2 App with a
// "format" command), generalized from the teacher's stub
// (formatImage always returning nil) into real commands that actually
// create, format, and report on an image file.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	fatfs "github.com/go-ucfat/fatfs"
	"github.com/go-ucfat/fatfs/fat"
	"github.com/go-ucfat/fatfs/internal/diskimage"
	"github.com/go-ucfat/fatfs/media"
)

func main() {
	app := &cli.App{
		Name:  "ucfatutil",
		Usage: "Create, format, and inspect FAT disk images",
		Commands: []*cli.Command{
			{
				Name:      "list-media",
				Usage:     "List predefined medium geometries",
				Action:    listMedia,
				ArgsUsage: " ",
			},
			{
				Name:      "format",
				Usage:     "Create and format a fresh disk image",
				Action:    formatImage,
				ArgsUsage: "OUTPUT_FILE MEDIA_SLUG",
			},
			{
				Name:      "stat",
				Usage:     "Report space usage for an existing image",
				Action:    statImage,
				ArgsUsage: "IMAGE_FILE MEDIA_SLUG",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("ucfatutil: %s", err)
	}
}

func listMedia(c *cli.Context) error {
	slugs := media.Slugs()
	sort.Strings(slugs)
	for _, slug := range slugs {
		g, err := media.Lookup(slug)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %-20s %s\n", g.Slug, humanize.Bytes(uint64(g.TotalSizeBytes())), g.Description)
	}
	return nil
}

// imageSink adapts a diskimage.Image to fat.Sink so Format can write
// directly into it before any device/volume exists.
type imageSink struct{ img *diskimage.Image }

func (s imageSink) SectorSize() uint32 {
	size, _ := s.img.SectorSize(0)
	return size
}
func (s imageSink) TotalSectors() uint32 {
	count, _ := s.img.SectorCount(0)
	return count
}
func (s imageSink) WriteSector(lba uint32, data []byte) error {
	return s.img.Wr(0, data, lba, 1)
}

func formatImage(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("usage: ucfatutil format OUTPUT_FILE MEDIA_SLUG", 1)
	}
	outPath, slug := c.Args().Get(0), c.Args().Get(1)

	geometry, err := media.Lookup(slug)
	if err != nil {
		return cli.Exit(err, 1)
	}

	img := diskimage.New(geometry.SectorSize, geometry.TotalSectors)
	if _, err := fat.Format(imageSink{img}, geometry.FormatConfig()); err != nil {
		return cli.Exit(fmt.Sprintf("format failed: %s", err), 1)
	}

	data, err := img.Bytes()
	if err != nil {
		return cli.Exit(err, 1)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Printf("Wrote %s image (%s) to %s\n", geometry.Description, humanize.Bytes(uint64(len(data))), outPath)
	return nil
}

func statImage(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("usage: ucfatutil stat IMAGE_FILE MEDIA_SLUG", 1)
	}
	imgPath, slug := c.Args().Get(0), c.Args().Get(1)

	geometry, err := media.Lookup(slug)
	if err != nil {
		return cli.Exit(err, 1)
	}

	img, err := diskimage.LoadFile(imgPath, geometry.SectorSize)
	if err != nil {
		return cli.Exit(err, 1)
	}

	fs := fatfs.New(fatfs.DefaultConfig())
	if err := fs.Mount("img", img, 0, 0, fatfs.AccessModeReadOnly); err != nil {
		return cli.Exit(fmt.Sprintf("mount failed: %s", err), 1)
	}
	defer fs.Unmount("img")

	result, err := fs.Query("img", false)
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(fatfs.QuerySummary(result, geometry.SectorSize))
	return nil
}
