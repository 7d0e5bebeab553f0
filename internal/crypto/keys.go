package crypto

import (
	"crypto/sha256"
	"errors"
	"log/slog"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the work factor for per-user key derivation
	PBKDF2Iterations = 100_000

	// KeySize is the derived key length for AES-256
	KeySize = 32

	saltPrefix = "projectguard/credential/"

	// Used only outside production so local data survives restarts
	developmentMasterKey = "projectguard-development-master-key-do-not-use-in-production"
)

var ErrMissingMasterKey = errors.New("CREDENTIAL_MASTER_KEY is required in production")

// DeriveUserKey stretches the master key with a per-user salt into a 256-bit key.
// It is a pure function of its inputs.
func DeriveUserKey(masterKey []byte, userID string) []byte {
	salt := []byte(saltPrefix + userID)
	return pbkdf2.Key(masterKey, salt, PBKDF2Iterations, KeySize, sha256.New)
}

// LoadMasterKey returns the configured master key. Outside production a
// deterministic development key is substituted when none is configured.
func LoadMasterKey(value, environment string, logger *slog.Logger) ([]byte, error) {
	if value != "" {
		return []byte(value), nil
	}

	if environment == "production" {
		return nil, ErrMissingMasterKey
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("!!! CREDENTIAL_MASTER_KEY is not set: using the built-in DEVELOPMENT master key. Stored credentials are NOT protected. Never run this configuration in production. !!!",
		"environment", environment,
	)

	return []byte(developmentMasterKey), nil
}
