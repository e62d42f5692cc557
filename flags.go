package fatfs

import "github.com/go-ucfat/fatfs/cache"

// AccessMode is the access mode a volume is mounted with (spec §3.1 Volume
// "access mode ∈ {rd, rdwr}").
type AccessMode int

const (
	AccessModeReadOnly AccessMode = iota
	AccessModeReadWrite
)

func (m AccessMode) CanWrite() bool { return m == AccessModeReadWrite }

// OpenFlags are the per-file access flags named in spec §3.1 "File handle".
// They follow the same bitmask-plus-predicate shape as the teacher's
// MountFlags (disko/api.go), generalized from mount-wide permissions to
// per-file open() flags.
type OpenFlags int

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenAppend
	OpenCreate
	OpenExcl
	OpenTruncate
)

func (f OpenFlags) CanRead() bool     { return f&OpenRead != 0 }
func (f OpenFlags) CanWrite() bool    { return f&OpenWrite != 0 }
func (f OpenFlags) IsAppend() bool    { return f&OpenAppend != 0 }
func (f OpenFlags) ShouldCreate() bool { return f&OpenCreate != 0 }
func (f OpenFlags) IsExclusive() bool { return f&OpenExcl != 0 }
func (f OpenFlags) ShouldTruncate() bool { return f&OpenTruncate != 0 }

// CacheMode selects the sector cache's write policy (spec §4.4). Aliased
// to package cache's own type so callers of fatfs.New never need to
// import cache directly for configuration.
type CacheMode = cache.Mode

const (
	CacheReadOnly     = cache.ReadOnly
	CacheWriteThrough = cache.WriteThrough
	CacheWriteBack    = cache.WriteBack
)

// SectorType partitions the sector cache into typed pools (spec §4.4).
type SectorType = cache.SectorType

const (
	SectorTypeManagement = cache.Management
	SectorTypeDirectory  = cache.Directory
	SectorTypeFile       = cache.File
)

// CachePoolShares gives the percentage of the cache's buffers assigned to
// each typed pool. The three shares should sum to 100, but are normalized by
// the cache constructor if they don't (spec §4.4 "proportional to configured
// percentages").
type CachePoolShares = cache.PoolShares

// DefaultCachePoolShares is a reasonable default split skewed towards file
// data, since management sectors (BPB/FAT) are read far less often than
// directory and file data once a volume is warmed up.
var DefaultCachePoolShares = CachePoolShares{
	ManagementPercent: 10,
	DirectoryPercent:  30,
	FilePercent:       60,
}

// Capability flags are set at construction time rather than at compile
// time (spec §9, "Optional features gated at build time"). Only
// CapJournal is consulted (by Mount); CapLongNames, CapFileLocks and
// CapWorkingDirectory are recorded in Config and change no behaviour.
type Capabilities int

const (
	CapLongNames Capabilities = 1 << iota
	CapJournal
	CapFileLocks
	CapWorkingDirectory
)

func (c Capabilities) Has(flag Capabilities) bool { return c&flag != 0 }

// Config is the construction-time configuration for a Filesystem context
// (spec §9 "Global mutable state" -> "model these as an explicit Filesystem
// context constructed at init").
type Config struct {
	Capabilities    Capabilities
	CacheMode       CacheMode
	CachePoolShares CachePoolShares

	// MaxOpenFiles and MaxOpenDirs size the handle arenas (spec §4.9).
	MaxOpenFiles int
	MaxOpenDirs  int

	// MaxVolumes and MaxDevices are not used by New; the volume table is
	// a map with no size bound.
	MaxVolumes int
	MaxDevices int

	// BufferPoolSize is the number of sector buffers in the shared pool
	// (spec §4.1).
	BufferPoolSize int

	// ConcurrentEntriesAccess is recorded but not consulted: opening an
	// already-open file for writing succeeds whatever its value.
	ConcurrentEntriesAccess bool
}

// DefaultConfig returns sensible defaults for a small embedded deployment.
func DefaultConfig() Config {
	return Config{
		Capabilities:            CapLongNames | CapFileLocks | CapWorkingDirectory,
		CacheMode:               CacheWriteBack,
		CachePoolShares:         DefaultCachePoolShares,
		MaxOpenFiles:            8,
		MaxOpenDirs:             4,
		MaxVolumes:              4,
		MaxDevices:              4,
		BufferPoolSize:          16,
		ConcurrentEntriesAccess: true,
	}
}
