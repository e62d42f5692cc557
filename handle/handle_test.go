package handle_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/handle"
)

func TestFileArena__AllocGetFree(t *testing.T) {
	a := handle.NewFileArena(2)

	id, fh, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %s", err)
	}
	if !id.Valid() {
		t.Fatal("expected a valid ID from Alloc")
	}
	fh.Size = 42

	got, err := a.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %s", err)
	}
	if got.Size != 42 {
		t.Errorf("got Size %d, want 42", got.Size)
	}

	if err := a.Free(id); err != nil {
		t.Fatalf("Free failed: %s", err)
	}
	if _, err := a.Get(id); err == nil {
		t.Error("expected Get to fail on a freed handle")
	}
}

// A reused arena slot must carry a fresh generation, so a stale ID from
// before the slot was freed and reallocated is rejected (spec §9 "Manual
// memory management").
func TestFileArena__StaleIDRejectedAfterReuse(t *testing.T) {
	a := handle.NewFileArena(1)

	id1, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("first Alloc failed: %s", err)
	}
	if err := a.Free(id1); err != nil {
		t.Fatalf("Free failed: %s", err)
	}

	id2, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("second Alloc failed: %s", err)
	}
	if id1 == id2 {
		t.Fatal("expected the reallocated ID to differ (generation bump)")
	}

	if _, err := a.Get(id1); err == nil {
		t.Error("expected Get(id1) to fail after the slot was reused")
	}
	if _, err := a.Get(id2); err != nil {
		t.Errorf("Get(id2) should succeed: %s", err)
	}
}

func TestFileArena__ExhaustionReturnsError(t *testing.T) {
	a := handle.NewFileArena(1)
	if _, _, err := a.Alloc(); err != nil {
		t.Fatalf("first Alloc failed: %s", err)
	}
	if _, _, err := a.Alloc(); err == nil {
		t.Error("expected Alloc to fail once the arena is exhausted")
	}
}

// The per-slot AdvisoryLock must survive across Alloc/Free/Alloc cycles
// rather than being silently discarded when the slot is re-zeroed.
func TestFileArena__LockSurvivesSlotReuse(t *testing.T) {
	a := handle.NewFileArena(1)

	id1, fh1, err := a.Alloc()
	if err != nil {
		t.Fatalf("first Alloc failed: %s", err)
	}
	if fh1.Lock == nil {
		t.Fatal("expected a non-nil Lock on a freshly allocated handle")
	}
	if !fh1.Lock.TryLock("owner-a") {
		t.Fatal("expected TryLock to succeed on a fresh lock")
	}
	if err := fh1.Lock.Unlock("owner-a"); err != nil {
		t.Fatalf("Unlock failed: %s", err)
	}
	if err := a.Free(id1); err != nil {
		t.Fatalf("Free failed: %s", err)
	}

	_, fh2, err := a.Alloc()
	if err != nil {
		t.Fatalf("second Alloc failed: %s", err)
	}
	if fh2.Lock == nil {
		t.Fatal("expected the reused slot to still carry a non-nil Lock")
	}
	if !fh2.Lock.TryLock("owner-b") {
		t.Error("expected the reused lock to be free after Unlock before reuse")
	}
}

func TestDirArena__AllocGetFree(t *testing.T) {
	a := handle.NewDirArena(1)

	id, dh, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %s", err)
	}
	dh.IterationPosition = 3

	got, err := a.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %s", err)
	}
	if got.IterationPosition != 3 {
		t.Errorf("got IterationPosition %d, want 3", got.IterationPosition)
	}

	if err := a.Free(id); err != nil {
		t.Fatalf("Free failed: %s", err)
	}
	if _, err := a.Get(id); err == nil {
		t.Error("expected Get to fail on a freed dir handle")
	}
}

func TestDirArena__ExhaustionReturnsError(t *testing.T) {
	a := handle.NewDirArena(1)
	if _, _, err := a.Alloc(); err != nil {
		t.Fatalf("first Alloc failed: %s", err)
	}
	if _, _, err := a.Alloc(); err == nil {
		t.Error("expected Alloc to fail once the arena is exhausted")
	}
}

func TestID__ZeroValueInvalid(t *testing.T) {
	var id handle.ID
	if id.Valid() {
		t.Error("expected the zero-value ID to be invalid")
	}
}
