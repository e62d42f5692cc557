package fatfs

import (
	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// Re-exported so callers of this package never need their own import of
// package errors just to compare against a sentinel (spec §9's public
// context groups flags, errors, and stat types in one place).
const (
	ErrEntryNotFound     = fatfserrors.ErrEntryNotFound
	ErrEntryExists       = fatfserrors.ErrEntryExists
	ErrEntryNotFile      = fatfserrors.ErrEntryNotFile
	ErrEntryNotDir       = fatfserrors.ErrEntryNotDir
	ErrEntryNotEmpty     = fatfserrors.ErrEntryNotEmpty
	ErrEntryReadOnly     = fatfserrors.ErrEntryReadOnly
	ErrFileInvalidOffset = fatfserrors.ErrFileInvalidOffset
	ErrFileLocked        = fatfserrors.ErrFileLocked
	ErrVolumeNotOpen     = fatfserrors.ErrVolumeNotOpen
	ErrVolumeReadOnly    = fatfserrors.ErrVolumeReadOnly
	ErrPathInvalid       = fatfserrors.ErrPathInvalid
)

// FileStat is the FileStat-like type spec §4.5/§9 groups with the public
// context: a snapshot of an entry's directory-entry metadata, the shape a
// caller gets back from a future stat()-style operation layered on top of
// direntry.Info.
type FileStat struct {
	Name         string
	Size         uint32
	IsDir        bool
	ReadOnly     bool
	FirstCluster uint32
}
