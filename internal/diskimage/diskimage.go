// Package diskimage implements a phy.Driver backed by a flat in-memory
// byte slice, the way cmd/ucfatutil (and tests elsewhere in this module)
// exercise the stack without real hardware.
//
// Grounded on the teacher's testing.LoadDiskImage /
// file_systems/common/blockcache.BlockCache, both of which wrap a flat
// []byte with github.com/xaionaro-go/bytesextra.NewReadWriteSeeker to get
// an io.ReadWriteSeeker over it; this package keeps that wrapping but
// drives it from phy.Driver's Rd/Wr contract instead of an io.Seeker, so
// it plugs directly into package device like any other driver.
package diskimage

import (
	"io"
	"os"
	"sync"

	"github.com/xaionaro-go/bytesextra"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
	"github.com/go-ucfat/fatfs/phy"
)

var _ phy.Driver = (*Image)(nil)

// Image is a phy.Driver over an in-memory byte slice.
type Image struct {
	mu         sync.Mutex
	stream     io.ReadWriteSeeker
	sectorSize uint32
	sectors    uint32
	present    bool
}

// New allocates a fresh, zero-filled image of sectorCount sectors,
// sectorSize bytes each.
func New(sectorSize, sectorCount uint32) *Image {
	buf := make([]byte, uint64(sectorSize)*uint64(sectorCount))
	return &Image{
		stream:     bytesextra.NewReadWriteSeeker(buf),
		sectorSize: sectorSize,
		sectors:    sectorCount,
		present:    true,
	}
}

// Load wraps an existing in-memory image (e.g. a file already read in by
// the caller), inferring sector count from its length.
func Load(data []byte, sectorSize uint32) *Image {
	return &Image{
		stream:     bytesextra.NewReadWriteSeeker(data),
		sectorSize: sectorSize,
		sectors:    uint32(uint64(len(data)) / uint64(sectorSize)),
		present:    true,
	}
}

// LoadFile reads path entirely into memory and wraps it as an Image.
func LoadFile(path string, sectorSize uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return Load(data, sectorSize), nil
}

func (img *Image) Open(unit int) error  { return nil }
func (img *Image) Close(unit int) error { return nil }

func (img *Image) Rd(unit int, dest []byte, startSector uint32, count uint32) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if _, err := img.stream.Seek(int64(startSector)*int64(img.sectorSize), io.SeekStart); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	if _, err := io.ReadFull(img.stream, dest[:count*img.sectorSize]); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return nil
}

func (img *Image) Wr(unit int, src []byte, startSector uint32, count uint32) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if _, err := img.stream.Seek(int64(startSector)*int64(img.sectorSize), io.SeekStart); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	if _, err := img.stream.Write(src[:count*img.sectorSize]); err != nil {
		return fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return nil
}

func (img *Image) EraseBlock(unit int, startSector uint32, sizeSectors uint32) error { return nil }
func (img *Image) IoCtrl(unit int, opcode int, buf []byte) error                     { return nil }
func (img *Image) WaitWhileBusy(unit int, timeoutUs int64) error                     { return nil }

func (img *Image) SectorSize(unit int) (uint32, error)  { return img.sectorSize, nil }
func (img *Image) SectorCount(unit int) (uint32, error) { return img.sectors, nil }
func (img *Image) Present(unit int) (bool, error)       { return img.present, nil }

// Bytes drains the image's current contents, for a caller that wants to
// persist it (e.g. writing a formatted image out to a file).
func (img *Image) Bytes() ([]byte, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if _, err := img.stream.Seek(0, io.SeekStart); err != nil {
		return nil, fatfserrors.ErrDeviceIo.WrapError(err)
	}
	buf := make([]byte, uint64(img.sectorSize)*uint64(img.sectors))
	if _, err := io.ReadFull(img.stream, buf); err != nil {
		return nil, fatfserrors.ErrDeviceIo.WrapError(err)
	}
	return buf, nil
}
