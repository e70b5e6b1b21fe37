// Package identifier mints the opaque linking identifiers that join a PII
// record to its clinical record. Identifiers are random v4 UUIDs in the
// 36-character hyphenated form and carry no information about the patient.
package identifier

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const CanonicalLength = 36

// Generator produces a new linking identifier.
type Generator func() string

// New returns a fresh random identifier. It panics if the system random source
// fails; CheckEntropy is called at startup so that never happens mid-request.
func New() string {
	return uuid.New().String()
}

// CheckEntropy verifies the random source is usable.
func CheckEntropy() error {
	if _, err := uuid.NewRandom(); err != nil {
		return fmt.Errorf("random source unavailable: %w", err)
	}
	return nil
}

// Valid reports whether s is a well-formed identifier in canonical form: the
// lowercase hyphenated rendering of an RFC 4122 version 4 UUID, as New mints.
func Valid(s string) bool {
	if len(s) != CanonicalLength || strings.ToLower(s) != s {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122
}
