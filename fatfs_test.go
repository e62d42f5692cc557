package fatfs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	fatfs "github.com/go-ucfat/fatfs"
	"github.com/go-ucfat/fatfs/fat"
	"github.com/go-ucfat/fatfs/internal/diskimage"
)

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

func newFormattedImage(t *testing.T) *diskimage.Image {
	t.Helper()
	img := diskimage.New(512, 65536)
	cfg := fat.FormatConfig{
		Variant:             fat.FAT16,
		ClusterSizeSectors:  4,
		ReservedSectorCount: 1,
		NumFATs:             2,
		RootEntryCount:      512,
	}
	_, err := fat.Format(imageSink{img}, cfg)
	require.NoError(t, err)
	return img
}

func mountFresh(t *testing.T, cfg fatfs.Config) (*fatfs.Filesystem, string) {
	t.Helper()
	fs := fatfs.New(cfg)
	img := newFormattedImage(t)
	require.NoError(t, fs.Mount("vol0", img, 0, 0, fatfs.AccessModeReadWrite))
	return fs, "vol0"
}

func TestOpenWriteCloseReadBack(t *testing.T) {
	fs, _ := mountFresh(t, fatfs.DefaultConfig())

	id, err := fs.Open("/hello.txt", fatfs.OpenRead|fatfs.OpenWrite|fatfs.OpenCreate)
	require.NoError(t, err)

	n, err := fs.Write(id, []byte("hello, filesystem"))
	require.NoError(t, err)
	require.Equal(t, len("hello, filesystem"), n)
	require.NoError(t, fs.CloseFile(id))

	id2, err := fs.Open("/hello.txt", fatfs.OpenRead)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err = fs.Read(id2, buf)
	require.NoError(t, err)
	require.Equal(t, "hello, filesystem", string(buf[:n]))
	require.NoError(t, fs.CloseFile(id2))
}

func TestMakeDirOpenDirReadDir(t *testing.T) {
	fs, _ := mountFresh(t, fatfs.DefaultConfig())

	_, err := fs.MakeDir("/sub")
	require.NoError(t, err)

	id, err := fs.Open("/sub/child.txt", fatfs.OpenRead|fatfs.OpenWrite|fatfs.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(id))

	dirID, err := fs.OpenDir("/sub")
	require.NoError(t, err)
	names := map[string]bool{}
	for {
		entry, ok, err := fs.ReadDir(dirID)
		require.NoError(t, err)
		if !ok {
			break
		}
		names[entry.Info.Name] = true
	}
	require.True(t, names["."])
	require.True(t, names[".."])
	require.True(t, names["CHILD.TXT"] || names["child.txt"])
	require.NoError(t, fs.CloseDir(dirID))
}

func TestRenameSameDirectory(t *testing.T) {
	fs, _ := mountFresh(t, fatfs.DefaultConfig())

	id, err := fs.Open("/old.txt", fatfs.OpenRead|fatfs.OpenWrite|fatfs.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(id))

	require.NoError(t, fs.Rename("/old.txt", "/new.txt"))

	_, err = fs.Open("/new.txt", fatfs.OpenRead)
	require.NoError(t, err)
	_, err = fs.Open("/old.txt", fatfs.OpenRead)
	require.Error(t, err)
}

func TestRenameAcrossDirectoriesRejected(t *testing.T) {
	fs, _ := mountFresh(t, fatfs.DefaultConfig())

	_, err := fs.MakeDir("/sub")
	require.NoError(t, err)

	id, err := fs.Open("/a.txt", fatfs.OpenRead|fatfs.OpenWrite|fatfs.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(id))

	err = fs.Rename("/a.txt", "/sub/a.txt")
	require.Error(t, err)
}

func TestChdirGetwdAndUnqualifiedOpenUsesCwdVolume(t *testing.T) {
	fs, _ := mountFresh(t, fatfs.DefaultConfig())

	_, err := fs.MakeDir("/work")
	require.NoError(t, err)
	require.NoError(t, fs.Chdir("vol0:/work"))

	wd, err := fs.Getwd()
	require.NoError(t, err)
	require.Equal(t, "vol0:/work", wd)

	// Every FullPath is rooted (the grammar requires a leading "/"), so an
	// unqualified path substitutes in the working directory's volume but
	// keeps its own component chain — it lands at vol0's root, not inside
	// "/work" (spec §4.11: "a missing volume component resolves to the
	// default volume", not a component-chain prefix).
	id, err := fs.Open("/unqualified.txt", fatfs.OpenRead|fatfs.OpenWrite|fatfs.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(id))

	rootDirID, err := fs.OpenDir("vol0:/")
	require.NoError(t, err)
	found := false
	for {
		entry, ok, err := fs.ReadDir(rootDirID)
		require.NoError(t, err)
		if !ok {
			break
		}
		if entry.Info.Name == "UNQUALIFIED.TXT" || entry.Info.Name == "unqualified.txt" {
			found = true
		}
	}
	require.True(t, found, "an unqualified path should resolve against the working directory's volume, rooted at its own root")
	require.NoError(t, fs.CloseDir(rootDirID))
}

func TestMountDuplicateNameRejected(t *testing.T) {
	fs, name := mountFresh(t, fatfs.DefaultConfig())
	img2 := newFormattedImage(t)
	err := fs.Mount(name, img2, 0, 0, fatfs.AccessModeReadWrite)
	require.Error(t, err)
}

func TestJournaledMountCompletesMutatingOps(t *testing.T) {
	cfg := fatfs.DefaultConfig()
	cfg.Capabilities |= fatfs.CapJournal
	fs, _ := mountFresh(t, cfg)

	_, err := fs.MakeDir("/jnl")
	require.NoError(t, err)

	id, err := fs.Open("/jnl/file.txt", fatfs.OpenRead|fatfs.OpenWrite|fatfs.OpenCreate)
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(id))

	require.NoError(t, fs.Remove("/jnl/file.txt"))
	require.NoError(t, fs.RemoveDir("/jnl"))
}
