package direntry_test

import (
	"testing"

	"github.com/go-ucfat/fatfs/direntry"
)

func TestEncodeDecodeLFN__RoundTrip(t *testing.T) {
	names := []string{
		"short",
		"exactly-thirteen",
		"a long file name that spans several fragments.txt",
		"x",
	}
	sfn, err := direntry.EncodeSFN("LONGFI~1", "TXT")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}

	for _, name := range names {
		fragments, err := direntry.EncodeLFN(name, sfn)
		if err != nil {
			t.Fatalf("EncodeLFN(%q) failed: %s", name, err)
		}
		got, err := direntry.DecodeLFN(fragments, sfn)
		if err != nil {
			t.Fatalf("DecodeLFN(%q) failed: %s", name, err)
		}
		if got != name {
			t.Errorf("round trip of %q = %q", name, got)
		}
	}
}

// A name of exactly 13*N characters must produce exactly N fragments
// (checked for N = 1 and N = 2).
func TestEncodeLFN__FragmentCount(t *testing.T) {
	sfn, err := direntry.EncodeSFN("F", "TXT")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}

	thirteen := "1234567890123"
	fragments, err := direntry.EncodeLFN(thirteen, sfn)
	if err != nil {
		t.Fatalf("EncodeLFN failed: %s", err)
	}
	if len(fragments) != 1 {
		t.Errorf("13-char name: got %d fragments, want 1", len(fragments))
	}

	twentySix := thirteen + thirteen
	fragments, err = direntry.EncodeLFN(twentySix, sfn)
	if err != nil {
		t.Fatalf("EncodeLFN failed: %s", err)
	}
	if len(fragments) != 2 {
		t.Errorf("26-char name: got %d fragments, want 2", len(fragments))
	}
}

// EncodeLFN stores the chain in on-disk order: the highest ordinal (with
// the terminal bit set) comes first, immediately before the SFN slot.
func TestEncodeLFN__OrdinalOrderAndTerminalBit(t *testing.T) {
	sfn, err := direntry.EncodeSFN("F", "TXT")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}

	name := "1234567890123" + "1234567890123" + "abc"
	fragments, err := direntry.EncodeLFN(name, sfn)
	if err != nil {
		t.Fatalf("EncodeLFN failed: %s", err)
	}
	if len(fragments) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(fragments))
	}

	if fragments[0][0] != (3 | 0x40) {
		t.Errorf("first stored fragment should carry ordinal 3 with terminal bit set, got %#x", fragments[0][0])
	}
	if fragments[1][0] != 2 {
		t.Errorf("second stored fragment should carry ordinal 2, got %#x", fragments[1][0])
	}
	if fragments[2][0] != 1 {
		t.Errorf("last stored fragment should carry ordinal 1, got %#x", fragments[2][0])
	}
}

func TestDecodeLFN__ChecksumMismatch(t *testing.T) {
	sfnA, err := direntry.EncodeSFN("AAAAAAAA", "TXT")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}
	sfnB, err := direntry.EncodeSFN("BBBBBBBB", "TXT")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}

	fragments, err := direntry.EncodeLFN("mismatched checksum name", sfnA)
	if err != nil {
		t.Fatalf("EncodeLFN failed: %s", err)
	}

	if _, err := direntry.DecodeLFN(fragments, sfnB); err == nil {
		t.Error("expected DecodeLFN to reject a chain whose checksum doesn't match the given SFN")
	}
}

func TestDecodeLFN__MissingFragment(t *testing.T) {
	sfn, err := direntry.EncodeSFN("F", "TXT")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}
	name := "1234567890123" + "1234567890123" + "abc"
	fragments, err := direntry.EncodeLFN(name, sfn)
	if err != nil {
		t.Fatalf("EncodeLFN failed: %s", err)
	}

	truncated := fragments[:len(fragments)-1]
	if _, err := direntry.DecodeLFN(truncated, sfn); err == nil {
		t.Error("expected DecodeLFN to reject a chain missing a fragment")
	}
}

func TestValidateLFNName__RejectsEmptyAndOverlong(t *testing.T) {
	if err := direntry.ValidateLFNName(""); err == nil {
		t.Error("expected ValidateLFNName to reject an empty name")
	}

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	if err := direntry.ValidateLFNName(string(long)); err == nil {
		t.Error("expected ValidateLFNName to reject a name over 255 UCS-2 units")
	}
}

func TestShortNameChecksum__Deterministic(t *testing.T) {
	sfn, err := direntry.EncodeSFN("FOO", "BAR")
	if err != nil {
		t.Fatalf("EncodeSFN failed: %s", err)
	}
	a := direntry.ShortNameChecksum(sfn)
	b := direntry.ShortNameChecksum(sfn)
	if a != b {
		t.Errorf("checksum not deterministic: %d != %d", a, b)
	}
}
