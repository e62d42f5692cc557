// Package errors defines the error taxonomy every layer of the filesystem
// returns: device, volume, entry/name, file, resource, and cache errors,
// following the same sentinel-string-constant shape the teacher used for
// POSIX errno compatibility (DiskoError), generalized to this module's own
// error families instead of errno.

package errors

import (
	stderrors "errors"
	"fmt"
)

// FatError is a sentinel error value: a bare constant string that is also
// a fully-formed error. Comparing with == or errors.Is is how callers
// distinguish error kinds across layers.
type FatError string

// Device errors (C2 block device).
const ErrDeviceIo = FatError("device I/O failure")
const ErrDeviceTimeout = FatError("device operation timed out")
const ErrDeviceNotPresent = FatError("device not present")
const ErrDeviceChanged = FatError("media changed since last access")
const ErrDeviceFull = FatError("device has no space remaining")
const ErrDeviceInvalidSize = FatError("device reports an invalid size")
const ErrDeviceInvalidSectorSize = FatError("device reports an invalid sector size")
const ErrDeviceInvalidLowFormat = FatError("device is not low-level formatted")
const ErrDeviceAlreadyOpen = FatError("device already open")
const ErrDeviceNotOpen = FatError("device not open")

// Partition errors (C3).
const ErrPartitionNotFound = FatError("partition not found")
const ErrPartitionTableInvalid = FatError("partition table is invalid")
const ErrPartitionTypeUnsupported = FatError("partition type not a supported FAT variant")

// Volume errors (C5).
const ErrVolumeNotOpen = FatError("volume not open")
const ErrVolumeNotMounted = FatError("volume not mounted")
const ErrVolumeAlreadyOpen = FatError("volume already open")
const ErrVolumeInvalidName = FatError("volume name is invalid")
const ErrVolumeInvalidSector = FatError("volume boot sector is invalid")
const ErrVolumeInvalidSystem = FatError("volume is not a recognized FAT variant")
const ErrVolumeFilesOpen = FatError("volume has open files")
const ErrVolumeDirsOpen = FatError("volume has open directories")
const ErrVolumeLabelInvalid = FatError("volume label contains invalid characters")
const ErrVolumeLabelTooLong = FatError("volume label too long")
const ErrVolumeReadOnly = FatError("volume is mounted read-only")

// Entry/name errors (C7).
const ErrNameInvalid = FatError("name contains invalid characters")
const ErrNameTooLong = FatError("name too long")
const ErrEntryNotFound = FatError("no such entry")
const ErrEntryParentNotFound = FatError("parent directory not found")
const ErrEntryExists = FatError("entry already exists")
const ErrEntryNotFile = FatError("entry is not a file")
const ErrEntryNotDir = FatError("entry is not a directory")
const ErrEntryCorrupt = FatError("directory entry is corrupt")
const ErrEntryRootDir = FatError("operation not permitted on the root directory")
const ErrEntryReadOnly = FatError("entry is marked read-only")
const ErrEntryNotEmpty = FatError("directory is not empty")
const ErrEntryChecksumMismatch = FatError("long name checksum does not match short name")

// File errors (C8/C9).
const ErrFileInvalidAccessMode = FatError("file opened with incompatible access mode")
const ErrFileInvalidOp = FatError("operation not valid for this file")
const ErrFileInvalidOpSeq = FatError("operation issued out of sequence")
const ErrFileOverflow = FatError("file offset or size exceeds FAT limits")
const ErrFileError = FatError("file is in an error state")
const ErrFileNotOpen = FatError("file not open")
const ErrFileLocked = FatError("file is locked by another owner")
const ErrFileAlreadyOpen = FatError("file already open")
const ErrFileHandleInvalid = FatError("file handle is stale or out of range")
const ErrFileInvalidOffset = FatError("seek offset is beyond end of file for a read-only handle")

// Resource errors (C1/C9 arenas and pools).
const ErrPoolEmpty = FatError("resource pool exhausted")
const ErrBufferUnavailable = FatError("no buffer available")
const ErrMemoryExhausted = FatError("memory exhausted")
const ErrOsLock = FatError("underlying OS lock primitive failed")
const ErrTooManyOpenFiles = FatError("too many open files")
const ErrTooManyOpenDirs = FatError("too many open directories")

// Cache errors (C4).
const ErrCacheInvalidMode = FatError("invalid cache mode")
const ErrCacheTooSmall = FatError("cache too small for requested pool shares")
const ErrCacheInvalidSectorType = FatError("invalid sector type")
const ErrCacheFlushFailed = FatError("cache flush failed")

// FAT core errors (C6).
const ErrFatClusterInvalid = FatError("cluster number out of range")
const ErrFatClusterBad = FatError("cluster marked bad in the FAT")
const ErrFatChainBroken = FatError("cluster chain terminates unexpectedly")
const ErrFatChainCrossLinked = FatError("cluster chain is cross-linked with another chain")

// Journal errors (C10).
const ErrJournalCorrupt = FatError("journal log is corrupt")
const ErrJournalReplayFailed = FatError("journal replay failed")

// Path errors (C11).
const ErrPathInvalid = FatError("path is malformed")
const ErrPathNoWorkingDirectory = FatError("no working directory set for a relative path")

func (e FatError) Error() string {
	return string(e)
}

func (e FatError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e,
	}
}

func (e FatError) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: stderrors.Join(e, err),
	}
}

// Is lets errors.Is(err, ErrDeviceIo) match both the bare sentinel and any
// wrapper built from it.
func (e FatError) Is(target error) bool {
	other, ok := target.(FatError)
	return ok && other == e
}
