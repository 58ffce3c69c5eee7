package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func keyModelName(modelName string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return "unknown"
	}
	return modelName
}

func contentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func cacheKey(modelName, taskType, text string) string {
	return "embed:" + keyModelName(modelName) + ":" + taskType + ":" + contentHash(text)
}
