package token

import (
	"strings"
	"testing"
)

func TestDigester_SHA256Fallback(t *testing.T) {
	t.Parallel()

	d := NewDigester("   ")
	if d.HMAC() {
		t.Fatalf("expected SHA-256 mode for blank key")
	}
	got := d.Digest("refresh-token")
	if got != HashSHA256Hex("refresh-token") {
		t.Fatalf("digest mismatch: %q", got)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
}

func TestDigester_HMAC(t *testing.T) {
	t.Parallel()

	key := strings.Repeat("k", 32)
	d := NewDigester(key)
	if !d.HMAC() {
		t.Fatalf("expected HMAC mode")
	}
	if d.Digest("tok") != HashHMACSHA256Hex("tok", []byte(key)) {
		t.Fatalf("hmac digest mismatch")
	}
	if d.Digest("tok") == HashSHA256Hex("tok") {
		t.Fatalf("hmac digest must differ from plain sha256")
	}
	other := NewDigester(strings.Repeat("x", 32))
	if d.Digest("tok") == other.Digest("tok") {
		t.Fatalf("different keys must give different digests")
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := HashSHA256Hex("a")
	b := HashSHA256Hex("b")

	cases := []struct {
		name string
		x, y string
		want bool
	}{
		{name: "same", x: a, y: a, want: true},
		{name: "different", x: a, y: b, want: false},
		{name: "short", x: "abc", y: "abc", want: false},
		{name: "empty", x: "", y: "", want: false},
	}
	for _, tc := range cases {
		if got := Equal(tc.x, tc.y); got != tc.want {
			t.Fatalf("%s: Equal=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestCheckHMACKey(t *testing.T) {
	t.Parallel()

	if err := CheckHMACKey("", MinHMACKeyBytes); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	if err := CheckHMACKey("short", MinHMACKeyBytes); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	if err := CheckHMACKey(strings.Repeat("z", 32), MinHMACKeyBytes); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
