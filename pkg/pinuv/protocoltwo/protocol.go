package protocoltwo

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Authenticate computes the pinUvAuthParam for protocol two: untruncated
// HMAC-SHA-256 over the message.
func Authenticate(key []byte, message []byte) []byte {
	// If the key is longer than 32 bytes, discard the excess.
	// (This selects the HMAC-key portion of the shared secret.
	// When the key is the pinUvAuthToken, it is exactly 32 bytes long, and thus this step has no effect.)
	if len(key) > 32 {
		key = key[:32]
	}

	hasher := hmac.New(sha256.New, key)
	hasher.Write(message)
	return hasher.Sum(nil)
}
