package service

import (
	"crypto/rand"
	"encoding/hex"
)

// newID returns a 32-char hex identifier used for every row this layer
// creates.
func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
