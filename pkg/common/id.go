package common

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateToolID returns a time-ordered record id. Sorting ids sorts records
// by creation time.
func GenerateToolID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// GenerateSessionID generates a unique session ID.
func GenerateSessionID() string {
	return "sess-" + GenerateRandomID(24)
}

// GenerateRandomID generates a random ID of the specified length.
func GenerateRandomID(length int) string {
	bytes := make([]byte, length/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:length]
}
