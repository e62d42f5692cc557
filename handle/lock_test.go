package handle_test

import (
	"testing"
	"time"

	"github.com/go-ucfat/fatfs/handle"
)

func TestAdvisoryLock__TryLockAndUnlock(t *testing.T) {
	l := handle.NewAdvisoryLock()
	if !l.TryLock("alice") {
		t.Fatal("expected TryLock to succeed on a free lock")
	}
	if owner, count := l.Owner(); owner != "alice" || count != 1 {
		t.Errorf("got owner=%q count=%d, want alice/1", owner, count)
	}
	if err := l.Unlock("alice"); err != nil {
		t.Fatalf("Unlock failed: %s", err)
	}
	if owner, count := l.Owner(); owner != "" || count != 0 {
		t.Errorf("got owner=%q count=%d, want empty/0", owner, count)
	}
}

func TestAdvisoryLock__TryLockFailsForOtherOwner(t *testing.T) {
	l := handle.NewAdvisoryLock()
	if !l.TryLock("alice") {
		t.Fatal("expected first TryLock to succeed")
	}
	if l.TryLock("bob") {
		t.Error("expected TryLock by a different owner to fail while held")
	}
}

// The same owner reopening the file nests the lock rather than blocking on
// itself (spec §4.9, grounded on the original's LockAccept path).
func TestAdvisoryLock__ReentrantSameOwnerNests(t *testing.T) {
	l := handle.NewAdvisoryLock()
	if !l.TryLock("alice") {
		t.Fatal("expected first TryLock to succeed")
	}
	if !l.TryLock("alice") {
		t.Fatal("expected re-entrant TryLock by the same owner to succeed")
	}
	if _, count := l.Owner(); count != 2 {
		t.Errorf("got count %d, want 2 after two nested locks", count)
	}

	if err := l.Unlock("alice"); err != nil {
		t.Fatalf("first Unlock failed: %s", err)
	}
	if _, count := l.Owner(); count != 1 {
		t.Errorf("got count %d after one Unlock, want 1 (still held)", count)
	}

	if err := l.Unlock("alice"); err != nil {
		t.Fatalf("second Unlock failed: %s", err)
	}
	if owner, count := l.Owner(); owner != "" || count != 0 {
		t.Errorf("got owner=%q count=%d after final Unlock, want empty/0", owner, count)
	}
}

func TestAdvisoryLock__UnlockByNonOwnerFails(t *testing.T) {
	l := handle.NewAdvisoryLock()
	if !l.TryLock("alice") {
		t.Fatal("expected TryLock to succeed")
	}
	if err := l.Unlock("bob"); err == nil {
		t.Error("expected Unlock by a non-owner to fail")
	}
}

func TestAdvisoryLock__UnlockWhenFreeFails(t *testing.T) {
	l := handle.NewAdvisoryLock()
	if err := l.Unlock("alice"); err == nil {
		t.Error("expected Unlock on a free lock to fail")
	}
}

// Lock blocks a second, different owner until the first releases.
func TestAdvisoryLock__LockBlocksUntilReleased(t *testing.T) {
	l := handle.NewAdvisoryLock()
	l.Lock("alice")

	acquired := make(chan struct{})
	go func() {
		l.Lock("bob")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("expected bob's Lock to block while alice holds it")
	case <-time.After(50 * time.Millisecond):
	}

	if err := l.Unlock("alice"); err != nil {
		t.Fatalf("Unlock failed: %s", err)
	}

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected bob's Lock to acquire after alice released")
	}

	if owner, _ := l.Owner(); owner != "bob" {
		t.Errorf("got owner %q, want bob", owner)
	}
}
