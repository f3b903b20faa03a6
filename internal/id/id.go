package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate mints a prefixed NanoID, e.g. "shelf-V1StGXR8_Z5jdHi6B-myT".
// The prefix makes identifiers self-describing in logs and in the
// database. Fails only when the system cannot supply secure randomness.
func Generate(prefix string) (string, error) {
	suffix, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + suffix, nil
}

// MustGenerate is Generate for call sites where entropy exhaustion
// should crash the program, such as initialization.
func MustGenerate(prefix string) string {
	generated, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return generated
}
