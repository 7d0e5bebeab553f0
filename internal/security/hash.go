package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashForLogging returns a short stable fingerprint of sensitive values such
// as email addresses for operational logs
func HashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(sensitive))))
	return hex.EncodeToString(hash[:])[:16]
}
