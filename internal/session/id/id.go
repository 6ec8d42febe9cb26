// Package id generates and checks session identifiers.
package id

import (
	"strings"

	"github.com/google/uuid"
)

const prefix = "ses-"

// Generate creates a new session ID: "ses-" followed by a version 7 UUID.
// IDs generated by one process sort in creation order.
// Example: ses-01932c07-a9e4-7b3c-8f0e-5d2a1c4b6e90
func Generate() string {
	u, err := uuid.NewV7()
	if err != nil {
		return prefix + uuid.NewString()
	}
	return prefix + u.String()
}

// Valid reports whether s has the form of a generated session ID.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil && len(rest) == 36
}
