// Package joincode generates the short codes players type in to find a session.
package joincode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const Length = 6

// New returns a random code of Length characters from Alphabet.
func New() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	out := make([]byte, Length)
	for i := range out {
		out[i] = Alphabet[int(buf[i])%len(Alphabet)]
	}
	return string(out), nil
}

// Normalize upper-cases and trims user input so "  abc234 " matches "ABC234".
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code has the expected length and alphabet.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
