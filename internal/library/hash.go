package library

import (
	"crypto/sha256"
	"encoding/hex"
)

const hashBytes = 8192 // First 8KB for content hash

// ContentHash identifies content by the first 8KB of its bytes.
func ContentHash(data []byte) string {
	if len(data) > hashBytes {
		data = data[:hashBytes]
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16]) // First 16 bytes = 32 hex chars
}
