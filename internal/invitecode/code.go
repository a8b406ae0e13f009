// Package invitecode issues the short codes that gate joining a party.
package invitecode

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is the symbol set codes are drawn from: uppercase letters and digits.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length is the number of symbols in a code.
	Length = 6
)

// Generate returns a new code read from crypto/rand. It does not check uniqueness;
// callers rely on the storage constraint and regenerate on collision.
func Generate() (string, error) {
	code, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("generate invitation code: %w", err)
	}
	return code, nil
}

// Valid reports whether s has the shape of an issued code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
