package direntry_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/direntry"
)

// fakeSlots is an in-memory direntry.Slots backed by a flat slice of
// 32-byte records, used to exercise Lookup/Insert/Enumerate/Delete without
// a real volume.
type fakeSlots struct {
	slots [][]byte
}

func newFakeSlots(n int) *fakeSlots {
	s := &fakeSlots{slots: make([][]byte, n)}
	for i := range s.slots {
		s.slots[i] = make([]byte, direntry.EntrySize)
	}
	return s
}

func (s *fakeSlots) Count() int { return len(s.slots) }
func (s *fakeSlots) Read(index int) []byte {
	out := make([]byte, direntry.EntrySize)
	copy(out, s.slots[index])
	return out
}
func (s *fakeSlots) Write(index int, data []byte) {
	copy(s.slots[index], data)
}
func (s *fakeSlots) Grow(n int) error {
	for i := 0; i < n; i++ {
		s.slots = append(s.slots, make([]byte, direntry.EntrySize))
	}
	return nil
}

func TestInsertLookup__PlainSFNName(t *testing.T) {
	s := newFakeSlots(16)

	_, err := direntry.Insert(s, "README.TXT", direntry.AttrArchive, 5, 123, direntry.Raw{})
	if err != nil {
		t.Fatalf("Insert failed: %s", err)
	}

	info, err := direntry.Lookup(s, "README.TXT")
	if err != nil {
		t.Fatalf("Lookup failed: %s", err)
	}
	if info.Name != "README.TXT" {
		t.Errorf("got name %q, want %q", info.Name, "README.TXT")
	}
	if info.FirstCluster != 5 {
		t.Errorf("got first cluster %d, want 5", info.FirstCluster)
	}
	if info.Size != 123 {
		t.Errorf("got size %d, want 123", info.Size)
	}
}

func TestInsertLookup__CaseInsensitive(t *testing.T) {
	s := newFakeSlots(16)
	if _, err := direntry.Insert(s, "README.TXT", direntry.AttrArchive, 1, 0, direntry.Raw{}); err != nil {
		t.Fatalf("Insert failed: %s", err)
	}
	if _, err := direntry.Lookup(s, "readme.txt"); err != nil {
		t.Errorf("Lookup should be case-insensitive, got: %s", err)
	}
}

// A name that isn't 8.3-legal ASCII must round-trip through an LFN chain.
func TestInsertLookup__LongNameRoundTrip(t *testing.T) {
	s := newFakeSlots(16)
	name := "a long mixed-case file name.txt"
	if _, err := direntry.Insert(s, name, direntry.AttrArchive, 9, 0, direntry.Raw{}); err != nil {
		t.Fatalf("Insert failed: %s", err)
	}
	info, err := direntry.Lookup(s, name)
	if err != nil {
		t.Fatalf("Lookup failed: %s", err)
	}
	if info.Name != name {
		t.Errorf("got name %q, want %q", info.Name, name)
	}
}

func TestLookup__NotFound(t *testing.T) {
	s := newFakeSlots(8)
	if _, err := direntry.Lookup(s, "MISSING.TXT"); err == nil {
		t.Error("expected Lookup to fail for a name not present")
	}
}

// Two names colliding on the same truncated 8.3 base must be disambiguated
// with a numeric tail (spec §4.7.4).
func TestInsert__NumericTailOnCollision(t *testing.T) {
	s := newFakeSlots(32)
	names := []string{
		"somewhatlongname.txt",
		"somewhatlongname2.txt",
		"somewhatlongname3.txt",
	}
	for i, name := range names {
		if _, err := direntry.Insert(s, name, direntry.AttrArchive, uint32(i+1), 0, direntry.Raw{}); err != nil {
			t.Fatalf("Insert(%q) failed: %s", name, err)
		}
	}
	for _, name := range names {
		if _, err := direntry.Lookup(s, name); err != nil {
			t.Errorf("Lookup(%q) failed after numeric-tail disambiguation: %s", name, err)
		}
	}
}

func TestEnumerate__SkipsErasedAndLFNFragmentsAndStopsAtFree(t *testing.T) {
	s := newFakeSlots(16)
	if _, err := direntry.Insert(s, "ONE.TXT", direntry.AttrArchive, 1, 0, direntry.Raw{}); err != nil {
		t.Fatalf("Insert failed: %s", err)
	}
	if _, err := direntry.Insert(s, "a long file name two.txt", direntry.AttrArchive, 2, 0, direntry.Raw{}); err != nil {
		t.Fatalf("Insert failed: %s", err)
	}
	if _, err := direntry.Insert(s, "THREE.TXT", direntry.AttrArchive, 3, 0, direntry.Raw{}); err != nil {
		t.Fatalf("Insert failed: %s", err)
	}

	entries, err := direntry.Enumerate(s)
	if err != nil {
		t.Fatalf("Enumerate failed: %s", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := map[string]bool{"ONE.TXT": true, "a long file name two.txt": true, "THREE.TXT": true}
	for _, e := range entries {
		if !want[e.Info.Name] {
			t.Errorf("unexpected entry name %q", e.Info.Name)
		}
		delete(want, e.Info.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing entries: %v", want)
	}
}

func TestDeleteThenLookup__EntryGone(t *testing.T) {
	s := newFakeSlots(16)
	info, err := direntry.Insert(s, "GONE.TXT", direntry.AttrArchive, 1, 0, direntry.Raw{})
	if err != nil {
		t.Fatalf("Insert failed: %s", err)
	}

	if err := direntry.Delete(s, info.Position); err != nil {
		t.Fatalf("Delete failed: %s", err)
	}
	if _, err := direntry.Lookup(s, "GONE.TXT"); err == nil {
		t.Error("expected Lookup to fail after Delete")
	}
}

func TestDelete__LFNChainFullyErased(t *testing.T) {
	s := newFakeSlots(16)
	name := "a long file name to delete.txt"
	info, err := direntry.Insert(s, name, direntry.AttrArchive, 1, 0, direntry.Raw{})
	if err != nil {
		t.Fatalf("Insert failed: %s", err)
	}

	if err := direntry.Delete(s, info.Position); err != nil {
		t.Fatalf("Delete failed: %s", err)
	}

	entries, err := direntry.Enumerate(s)
	if err != nil {
		t.Fatalf("Enumerate failed: %s", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no live entries after deleting the only one, got %d", len(entries))
	}
}

// Insert must grow the directory via Slots.Grow when no free run of the
// needed size exists.
func TestInsert__GrowsWhenFull(t *testing.T) {
	s := newFakeSlots(1)
	if _, err := direntry.Insert(s, "ONE.TXT", direntry.AttrArchive, 1, 0, direntry.Raw{}); err != nil {
		t.Fatalf("first Insert failed: %s", err)
	}
	if _, err := direntry.Insert(s, "TWO.TXT", direntry.AttrArchive, 2, 0, direntry.Raw{}); err != nil {
		t.Fatalf("second Insert (requiring growth) failed: %s", err)
	}
	if s.Count() <= 1 {
		t.Errorf("expected directory to grow beyond 1 slot, got %d", s.Count())
	}
}
