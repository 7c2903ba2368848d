package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(16)
	if len(hex) != 16 {
		t.Errorf("expected length 16, got %d", len(hex))
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q in hex string", c)
		}
	}
	if GenerateRandomHex(0) != "" {
		t.Error("expected empty string for zero length")
	}
	if GenerateRandomHex(-5) != "" {
		t.Error("expected empty string for negative length")
	}
}

func TestGenerateDisplayID(t *testing.T) {
	id := GenerateDisplayID()
	if !strings.HasPrefix(id, DisplayIDPrefix) {
		t.Errorf("expected prefix %q, got %q", DisplayIDPrefix, id)
	}
	if len(id) != len(DisplayIDPrefix)+8 {
		t.Errorf("unexpected display ID length: %q", id)
	}

	// Collisions across a handful of draws would indicate a broken generator.
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[GenerateDisplayID()] = true
	}
	if len(seen) < 95 {
		t.Errorf("expected mostly unique IDs, got %d distinct of 100", len(seen))
	}
}
