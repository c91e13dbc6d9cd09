package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the entropy of a verification token. The hex encoding
// doubles it to 64 characters on the wire.
const tokenBytes = 32

// EncodedLen is the length of a generated token string.
const EncodedLen = tokenBytes * 2

// New returns a fresh ownership-proof token. The token is pure
// randomness, never derived from the hostname or any tenant secret: it
// is the only artifact standing between an attacker and a domain they
// do not control DNS for.
func New() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
