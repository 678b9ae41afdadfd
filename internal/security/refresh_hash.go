package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken returns the hex SHA-256 of a refresh token. Only this digest is persisted,
// so a leaked table cannot be replayed as cookies.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual reports in constant time whether providedToken hashes to storedHash.
// An empty token never matches.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	if providedToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(providedToken)), []byte(storedHash)) == 1
}
