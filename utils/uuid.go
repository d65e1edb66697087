package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// Reference builds a deterministic idempotency key from its parts,
// e.g. Reference("hold", bidID) -> "hold:<bidID>"
func Reference(parts ...string) string {
	return strings.Join(parts, ":")
}
