package protocolone

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Authenticate computes the pinUvAuthParam for protocol one:
// HMAC-SHA-256 over the message, truncated to the first 16 bytes.
func Authenticate(key []byte, message []byte) []byte {
	hasher := hmac.New(sha256.New, key)
	hasher.Write(message)
	return hasher.Sum(nil)[:16]
}
