package config

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a short, non-secret identifier for the loaded
// configuration, logged at startup so two runs can be compared without
// ever printing API keys or other secret values. It hashes the
// marshaled config, so any field change (including secrets) changes
// the fingerprint, but the fingerprint itself reveals nothing about
// those values.
func (c *Config) Fingerprint() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:4]), nil
}
