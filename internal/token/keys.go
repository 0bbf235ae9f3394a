package token

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// keyInfo domain-separates the derived keys from any other use of the
// master secret.
const keyInfo = "flock-checkin-token-v1"

// signingKeyFor derives the HMAC signing key for the day the token was
// issued. Deriving per-day keys from the server-held master secret bounds
// the blast radius of a leaked key to one day of tokens, and lets
// verification stay pure: the key is a function of the issued-at claim.
func signingKeyFor(secret []byte, issuedAt time.Time) ([]byte, error) {
	salt := []byte(issuedAt.UTC().Format("2006-01-02"))
	reader := hkdf.New(sha256.New, secret, salt, []byte(keyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}
