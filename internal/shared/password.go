package shared

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tempPasswordBytes yields a 12-character URL-safe credential once encoded.
const tempPasswordBytes = 9

// GenerateTempPassword returns a cryptographically random, URL-safe single-use
// credential. Callers must hand it to the user exactly once and never persist
// or log the plaintext.
func GenerateTempPassword() (string, error) {
	buf := make([]byte, tempPasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shared: generate temp password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
