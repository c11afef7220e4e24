package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadActiveProvider_MissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_provider")
	got, err := ReadActiveProvider(path)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestWriteAndReadActiveProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_provider")
	require.NoError(t, WriteActiveProvider(path, "anthropic"))

	got, err := ReadActiveProvider(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got)
}

func TestWriteActiveProvider_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_provider")
	require.NoError(t, WriteActiveProvider(path, "openai"))
	require.NoError(t, WriteActiveProvider(path, "ollama"))

	got, err := ReadActiveProvider(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", got)
}
