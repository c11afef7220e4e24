package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBlocklistOverride_MissingFileIsNoOp(t *testing.T) {
	cfg := Default()
	before := append([]string(nil), cfg.Safety.BlockedPatterns...)

	err := cfg.LoadBlocklistOverride(filepath.Join(t.TempDir(), "blocklist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, before, cfg.Safety.BlockedPatterns)
}

func TestLoadBlocklistOverride_AppendsNewPatterns(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns:\n  - \"deploy --force\"\n  - \"drop database\"\n"), 0644))

	require.NoError(t, cfg.LoadBlocklistOverride(path))
	assert.Contains(t, cfg.Safety.BlockedPatterns, "deploy --force")
	assert.Contains(t, cfg.Safety.BlockedPatterns, "drop database")
	assert.Contains(t, cfg.Safety.BlockedPatterns, "rm -rf /")
}

func TestLoadBlocklistOverride_SkipsDuplicatesAndBlanks(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns:\n  - \"rm -rf /\"\n  - \"\"\n  - \"mkfs\"\n"), 0644))

	before := len(cfg.Safety.BlockedPatterns)
	require.NoError(t, cfg.LoadBlocklistOverride(path))
	assert.Equal(t, before, len(cfg.Safety.BlockedPatterns))
}

func TestLoadBlocklistOverride_InvalidYAMLReturnsError(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "blocklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patterns: [this is not\n  valid"), 0644))

	err := cfg.LoadBlocklistOverride(path)
	assert.Error(t, err)
}
