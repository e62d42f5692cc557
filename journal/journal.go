// Package journal implements C10, the write-ahead journal hook guarding
// multi-sector operations (directory insert plus chain allocation, chain
// truncation) against a torn write leaving the volume inconsistent after a
// crash (spec §4.10).
//
// Grounded on the teacher's drivers/common/blockcache.BlockCache for the
// pooled-buffer shape (internal/bufpool, itself grounded there) and on
// noxer/bytewriter for serializing the on-disk log header the way the
// teacher's file_systems/unixv1 format routine builds fixed-layout
// on-disk records.
package journal

import (
	"encoding/binary"
	"sync"

	"github.com/noxer/bytewriter"

	"github.com/go-ucfat/fatfs/internal/bufpool"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// State is the journal's lifecycle state (spec §4.10).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateStarted
	StateReplaying
)

// Device is the collaborator the journal reads its log region from and
// writes it to, and replays recorded before-images against. package fatfs
// backs it with an adapter over a private in-memory diskimage.Image;
// volume.Volume does not satisfy it, since its Read/Write also take a
// sector type.
type Device interface {
	Read(dest []byte, start uint32, count uint32) error
	Write(src []byte, start uint32, count uint32) error
}

const headerMagic = uint32(0x4a4e4c31) // "JNL1"

// entry is one recorded before-image: the sector it came from, and its
// contents immediately before the in-flight operation touched it.
type entry struct {
	sector uint32
	before []byte
}

// Log is the C10 journal hook. A caller wraps a multi-sector mutation in
// journal_enter/journal_exit; every sector it's about to overwrite gets
// recorded first via Record. If the process crashes between enter and
// exit, the next Open replays the recorded before-images and restores the
// volume to its pre-transaction state.
type Log struct {
	dev         Device
	pool        *bufpool.Pool
	sectorSize  uint32
	startSector uint32
	sectorCount uint32
	owner       bufpool.VolumeRef

	mu      sync.Mutex
	state   State
	entries []entry
}

// Open attaches a journal to the sectorCount sectors starting at
// startSector on dev, replaying any transaction left incomplete by a prior
// crash before returning (spec §4.10 "journal replay on mount").
func Open(dev Device, pool *bufpool.Pool, owner bufpool.VolumeRef, startSector, sectorCount, sectorSize uint32) (*Log, error) {
	l := &Log{
		dev:         dev,
		pool:        pool,
		owner:       owner,
		sectorSize:  sectorSize,
		startSector: startSector,
		sectorCount: sectorCount,
		state:       StateOpen,
	}

	dirty, err := l.readHeader()
	if err != nil {
		return nil, err
	}
	if dirty {
		l.state = StateReplaying
		if err := l.replayFromDisk(); err != nil {
			return nil, err
		}
		l.state = StateOpen
	}
	return l, nil
}

// header is the fixed-layout record occupying the journal region's first
// sector: a magic number, a dirty flag, and the count of recorded entries
// that follow it.
type header struct {
	magic   uint32
	dirty   bool
	nEntries uint16
}

func (l *Log) readHeader() (dirty bool, err error) {
	buf, err := l.pool.Get(l.owner)
	if err != nil {
		return false, err
	}
	defer l.pool.Release(buf)

	if err := l.dev.Read(buf.Data[:l.sectorSize], l.startSector, 1); err != nil {
		return false, fatfserrors.ErrJournalCorrupt.WrapError(err)
	}
	if binary.BigEndian.Uint32(buf.Data[0:4]) != headerMagic {
		// Never journaled before: treat as a clean, empty log.
		return false, nil
	}
	return buf.Data[4] != 0, nil
}

// replayFromDisk re-reads the entries recorded in the journal region and
// writes each before-image back to its original sector (spec §4.10
// "restores the pre-transaction image").
func (l *Log) replayFromDisk() error {
	buf, err := l.pool.Get(l.owner)
	if err != nil {
		return err
	}
	defer l.pool.Release(buf)

	if err := l.dev.Read(buf.Data[:l.sectorSize], l.startSector, 1); err != nil {
		return fatfserrors.ErrJournalReplayFailed.WrapError(err)
	}
	nEntries := binary.BigEndian.Uint16(buf.Data[5:7])

	entryBuf, err := l.pool.Get(l.owner)
	if err != nil {
		return err
	}
	defer l.pool.Release(entryBuf)

	for i := uint16(0); i < nEntries; i++ {
		logSector := l.startSector + 1 + uint32(i)
		if logSector >= l.startSector+l.sectorCount {
			return fatfserrors.ErrJournalCorrupt
		}
		if err := l.dev.Read(entryBuf.Data[:l.sectorSize], logSector, 1); err != nil {
			return fatfserrors.ErrJournalReplayFailed.WrapError(err)
		}
		targetSector := binary.BigEndian.Uint32(entryBuf.Data[0:4])
		if err := l.dev.Write(entryBuf.Data[4:4+l.sectorSize], targetSector, 1); err != nil {
			return fatfserrors.ErrJournalReplayFailed.WrapError(err)
		}
	}
	return l.writeHeader(false, 0)
}

// writeHeader serializes header fields into a pooled sector buffer with
// bytewriter and flushes it to the journal region's first sector.
func (l *Log) writeHeader(dirty bool, nEntries uint16) error {
	buf, err := l.pool.Get(l.owner)
	if err != nil {
		return err
	}
	defer l.pool.Release(buf)

	w := bytewriter.New(buf.Data[:l.sectorSize])

	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], headerMagic)
	if _, err := w.Write(magic[:]); err != nil {
		return fatfserrors.ErrJournalCorrupt.WrapError(err)
	}

	dirtyByte := byte(0)
	if dirty {
		dirtyByte = 1
	}
	if _, err := w.Write([]byte{dirtyByte}); err != nil {
		return fatfserrors.ErrJournalCorrupt.WrapError(err)
	}

	var count [2]byte
	binary.BigEndian.PutUint16(count[:], nEntries)
	if _, err := w.Write(count[:]); err != nil {
		return fatfserrors.ErrJournalCorrupt.WrapError(err)
	}

	return l.dev.Write(buf.Data[:l.sectorSize], l.startSector, 1)
}

// Enter begins a journaled transaction (spec §4.10 journal_enter): it
// marks the log dirty so a crash before Exit triggers replay on the next
// Open, and clears any entries left from a prior transaction.
func (l *Log) Enter() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return fatfserrors.ErrFileInvalidOpSeq
	}
	l.entries = l.entries[:0]
	l.state = StateStarted
	return l.writeHeader(true, 0)
}

// Record appends before (the sector's contents immediately before this
// transaction overwrites it) to the in-flight transaction's log. Callers
// must call Enter first.
func (l *Log) Record(sector uint32, before []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStarted {
		return fatfserrors.ErrFileInvalidOpSeq
	}
	cp := make([]byte, len(before))
	copy(cp, before)
	l.entries = append(l.entries, entry{sector: sector, before: cp})

	logSector := l.startSector + 1 + uint32(len(l.entries)-1)
	if logSector >= l.startSector+l.sectorCount {
		return fatfserrors.ErrJournalCorrupt.WithMessage("journal region too small for transaction")
	}

	buf, err := l.pool.Get(l.owner)
	if err != nil {
		return err
	}
	defer l.pool.Release(buf)

	binary.BigEndian.PutUint32(buf.Data[0:4], sector)
	copy(buf.Data[4:4+l.sectorSize], before)
	return l.dev.Write(buf.Data[:l.sectorSize], logSector, 1)
}

// Exit ends the in-flight transaction (spec §4.10 journal_exit),
// discarding its log: the operation is considered durably complete and a
// crash from here on needs no replay.
func (l *Log) Exit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStarted {
		return fatfserrors.ErrFileInvalidOpSeq
	}
	l.entries = l.entries[:0]
	l.state = StateOpen
	return l.writeHeader(false, 0)
}

// State reports the journal's current lifecycle state.
func (l *Log) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// NoOp is a journal that performs no logging at all: every Enter/Record/
// Exit call is a no-op that always succeeds. Mounting with CapJournal
// unset wires this in instead of a real Log, matching spec §4.10's
// "journaling is an optional capability" (flags.go's CapJournal).
type NoOp struct{}

func (NoOp) Enter() error                        { return nil }
func (NoOp) Record(sector uint32, before []byte) error { return nil }
func (NoOp) Exit() error                         { return nil }
func (NoOp) State() State                        { return StateOpen }

// Journal is the interface the rest of the stack programs against, so a
// real Log and a NoOp are interchangeable behind one capability flag.
type Journal interface {
	Enter() error
	Record(sector uint32, before []byte) error
	Exit() error
	State() State
}

var (
	_ Journal = (*Log)(nil)
	_ Journal = NoOp{}
)
