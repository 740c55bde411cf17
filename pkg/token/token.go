package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	// Prefix starts every generated token.
	Prefix = "vosk_"

	// HashPrefix starts every token hash.
	HashPrefix = "vosh_"

	// DefaultLength is the number of random bytes in a token.
	DefaultLength = 32
)

// Generate returns a new random token.
func Generate() (string, error) {
	b := make([]byte, DefaultLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the storable hash of token.
func Hash(token string) string {
	h := sha256.Sum256([]byte(token))
	return HashPrefix + hex.EncodeToString(h[:])
}

// IsHash reports whether s looks like a value returned by Hash.
func IsHash(s string) bool {
	body, ok := strings.CutPrefix(s, HashPrefix)
	if !ok || len(body) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// Verify reports whether token matches expectedHash, in constant time.
func Verify(token, expectedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(token)), []byte(expectedHash)) == 1
}

// Matcher returns a check for presented tokens against configured, which
// is either a hash or the token itself.
func Matcher(configured string) func(presented string) bool {
	want := configured
	if !IsHash(configured) {
		want = Hash(configured)
	}
	return func(presented string) bool {
		return Verify(presented, want)
	}
}
