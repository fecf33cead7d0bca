package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashURL returns a hex SHA-256 of the url, used as a stable cache key.
func HashURL(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}
