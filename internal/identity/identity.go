// Package identity maps external contact identifiers to stable internal user keys.
//
// The mapping is a one-way SHA-256 digest of the canonicalized phone number,
// so the raw identifier never reaches the stores and cannot be recovered from
// a persisted key.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/askely/concierge/internal/models"
)

// canonicalize strips everything but digits. Phone numbers arrive in mixed
// shapes ("whatsapp:+212 6..", "+212-6..") and all must resolve to one key.
func canonicalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Resolve derives the stable user key for a raw contact identifier.
// Identical inputs always yield identical keys; the key is not invertible.
// Empty or digit-free input fails with models.ErrInvalidIdentifier.
func Resolve(raw string) (string, error) {
	canonical := canonicalize(raw)
	if canonical == "" {
		slog.Debug("identity.Resolve rejected identifier", "raw_length", len(raw))
		return "", models.ErrInvalidIdentifier
	}

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
