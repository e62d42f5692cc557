// Advisory file lock (spec §4.9), with the acquire/accept/release split
// documented in original_source/Source/fs_file.c's
// FSFile_Lock/FSFile_LockAccept/FSFile_LockGet/FSFile_LockSet (SPEC_FULL.md
// §3): an owner that already holds the lock and reopens the same file
// nests rather than blocking on itself.
package handle

import (
	"sync"

	fatfserrors "github.com/go-ucfat/fatfs/errors"
)

// AdvisoryLock is a counted, re-entrant lock owned by one logical task
// identifier (spec §4.9 "Advisory file lock").
type AdvisoryLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner string
	count int
}

// NewAdvisoryLock returns an unlocked lock.
func NewAdvisoryLock() *AdvisoryLock {
	l := &AdvisoryLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// TryLock succeeds if the lock is free or already held by owner (spec
// §4.9 try_lock, and the original's "accept" path for the same owner
// reopening the file).
func (l *AdvisoryLock) TryLock(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 || l.owner == owner {
		l.owner = owner
		l.count++
		return true
	}
	return false
}

// Lock blocks until the lock is available, then acquires it with the same
// semantics as TryLock (spec §4.9 lock).
func (l *AdvisoryLock) Lock(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count != 0 && l.owner != owner {
		l.cond.Wait()
	}
	l.owner = owner
	l.count++
}

// Unlock decrements the count; at 0 it clears the owner and wakes any
// waiter. Unlock by a non-owner is a no-op error (spec §4.9 unlock).
func (l *AdvisoryLock) Unlock(owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 || l.owner != owner {
		return fatfserrors.ErrFileLocked.WithMessage("unlock by non-owner")
	}
	l.count--
	if l.count == 0 {
		l.owner = ""
		l.cond.Broadcast()
	}
	return nil
}

// Owner reports the current owner and count (0 if unlocked).
func (l *AdvisoryLock) Owner() (owner string, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner, l.count
}
