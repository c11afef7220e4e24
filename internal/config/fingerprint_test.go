package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_DeterministicForSameConfig(t *testing.T) {
	cfg := Default()
	a, err := cfg.Fingerprint()
	require.NoError(t, err)
	b, err := cfg.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	cfg := Default()
	a, err := cfg.Fingerprint()
	require.NoError(t, err)

	cfg.General.DefaultProvider = "ollama"
	b, err := cfg.Fingerprint()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
