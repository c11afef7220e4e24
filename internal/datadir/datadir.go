// Package datadir resolves the filesystem locations cherry2k reads and
// writes: the data directory (database, default config), and the state
// directory (active-provider pointer file).
package datadir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default data directory name under $HOME.
	DefaultDirName = ".cherry2k"

	// EnvVar is the environment variable that overrides the data directory.
	EnvVar = "CHERRY2K_DATA_DIR"

	// StateEnvVar overrides the state directory independently of the data dir.
	StateEnvVar = "CHERRY2K_STATE_DIR"

	configSubdir = "config"
	dataSubdir   = "data"
)

// DataDir provides a single source of truth for cherry2k's on-disk layout.
// Use New to construct an instance, which resolves the root and optionally
// creates the directory tree.
type DataDir struct {
	root  string
	state string
}

// New returns a DataDir rooted at the resolved data directory. It does NOT
// create subdirectories; call EnsureDirs for that.
//
// Resolution priority for the data root:
//  1. CHERRY2K_DATA_DIR environment variable
//  2. configValue argument (from config.json data_dir field)
//  3. ~/.cherry2k/
//
// The state directory defaults to the data root unless CHERRY2K_STATE_DIR
// is set, matching spec.md's separate "state-dir"/"data-dir" terminology
// while keeping a single-host default layout simple.
func New(configValue string) (*DataDir, error) {
	root, err := resolveRoot(configValue)
	if err != nil {
		return nil, err
	}
	state := os.Getenv(StateEnvVar)
	if state == "" {
		state = root
	}
	return &DataDir{root: root, state: state}, nil
}

// Root returns the base data directory path.
func (d *DataDir) Root() string { return d.root }

// ConfigDir returns {root}/config/.
func (d *DataDir) ConfigDir() string { return filepath.Join(d.root, configSubdir) }

// DatabaseDir returns {root}/data/.
func (d *DataDir) DatabaseDir() string { return filepath.Join(d.root, dataSubdir) }

// DatabasePath returns {root}/data/sessions.db, spec.md §6's database file.
func (d *DataDir) DatabasePath() string { return filepath.Join(d.DatabaseDir(), "sessions.db") }

// StateDir returns the directory holding the active-provider pointer file.
func (d *DataDir) StateDir() string { return d.state }

// ActiveProviderPath returns {state-dir}/active_provider, spec.md §6's state file.
func (d *DataDir) ActiveProviderPath() string { return filepath.Join(d.state, "active_provider") }

// FilePath returns the full path to a file directly inside the root directory.
func (d *DataDir) FilePath(filename string) string {
	return filepath.Join(d.root, filename)
}

// EnsureDirs creates the root and all subdirectories with 0700 permissions.
func (d *DataDir) EnsureDirs() error {
	dirs := []string{d.root, d.ConfigDir(), d.DatabaseDir(), d.state}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// resolveRoot determines the root path without creating it.
func resolveRoot(configValue string) (string, error) {
	dir := os.Getenv(EnvVar)
	if dir == "" {
		dir = configValue
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	return dir, nil
}
