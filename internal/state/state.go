// Package state persists the single piece of mutable CLI state spec.md
// §6 names outside the database: which provider is currently active.
// Grounded on the teacher's config.go simple read-whole-file/
// write-whole-file idiom.
package state

import (
	"os"
	"strings"
)

// ReadActiveProvider reads the provider name stored at path, returning
// "" if the file doesn't exist yet (no override has been set).
func ReadActiveProvider(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteActiveProvider overwrites path with name, creating it with 0600
// permissions (the state file is not secret, but matches the
// database's conservative permission posture).
func WriteActiveProvider(path, name string) error {
	return os.WriteFile(path, []byte(name+"\n"), 0600)
}
