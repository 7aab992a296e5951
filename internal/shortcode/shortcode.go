// Package shortcode generates and validates the random identifiers short
// links are addressed by.
package shortcode

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// Alphabet is the full alphanumeric set codes are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the generated code length.
const DefaultLength = 7

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{7}$`)

// Generator produces random short codes of a fixed length.
type Generator struct {
	length int
}

// NewGenerator returns a Generator for the given code length. Non-positive
// lengths fall back to DefaultLength.
func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length}
}

// Generate returns a new random code using crypto/rand.
func (g *Generator) Generate() (string, error) {
	bytes := make([]byte, g.length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate short code: %w", err)
	}
	for i, b := range bytes {
		bytes[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(bytes), nil
}

// Valid reports whether s is a well-formed 7-character short code.
func Valid(s string) bool {
	return codePattern.MatchString(s)
}
