package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/teris-io/shortid"
)

const (
	// CredentialPrefix marks issued API credentials.
	CredentialPrefix = "qr_"

	// CredentialBytes is the number of random bytes in a credential.
	// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
	CredentialBytes = 32
)

// IDFunc generates a candidate artifact identifier.
type IDFunc func() (string, error)

// ShortID generates URL-safe artifact identifiers.
func ShortID() (string, error) {
	return shortid.Generate()
}

// generateCredential returns a new raw credential of the form qr_<64 hex>.
func generateCredential() (string, error) {
	b := make([]byte, CredentialBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return CredentialPrefix + hex.EncodeToString(b), nil
}

// hashCredential returns the SHA-256 hex digest stored for a credential.
// Credentials are high-entropy random values, so a fast hash is enough.
func hashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// wellFormedCredential reports whether s has the shape of an issued credential.
func wellFormedCredential(s string) bool {
	if !strings.HasPrefix(s, CredentialPrefix) {
		return false
	}
	body := s[len(CredentialPrefix):]
	if len(body) != CredentialBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
