/*
Package fingerprint derives the stable identity of a tool.

A fingerprint is the hex encoding of a 128-bit BLAKE3 digest of the trimmed
concatenation of a tool's name and description. Two tools with identical
name and description text share a fingerprint regardless of which provider
exposes them or when they were indexed.
*/
package fingerprint

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 16

// Compute returns the fingerprint of a tool's name and description.
func Compute(name, description string) string {
	sum := blake3.Sum256([]byte(strings.TrimSpace(name + description)))
	return hex.EncodeToString(sum[:Size])
}

// Valid reports whether s has the shape of a fingerprint.
func Valid(s string) bool {
	if len(s) != Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}
