package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".paxxium"

// Paths holds resolved filesystem paths for server data.
type Paths struct {
	Base    string // ~/.paxxium
	Config  string // ~/.paxxium/config.yaml
	Logs    string // ~/.paxxium/logs
	Data    string // ~/.paxxium/data
	Uploads string // ~/.paxxium/uploads
}

// Database returns the SQLite path, honoring an explicit storage.database.
func (p Paths) Database(cfg StorageConfig) string {
	if cfg.Database != "" {
		return cfg.Database
	}
	return filepath.Join(p.Data, "paxxium.db")
}

// ResolvePaths computes all standard paths from the home directory.
// If PAXXIUM_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("PAXXIUM_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:    base,
		Config:  filepath.Join(base, "config.yaml"),
		Logs:    filepath.Join(base, "logs"),
		Data:    filepath.Join(base, "data"),
		Uploads: filepath.Join(base, "uploads"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Logs, p.Data, p.Uploads} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
