package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for themekit.
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".themekit-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "themekit"))
}

// GetHomeDir returns the user's home directory.
//
// Returns an empty string if the home directory cannot be determined.
func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Clean(homeDir)
}

// GetDataDir returns the user's data directory for themekit (theme
// database, debug logs).
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".themekit"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".themekit"))
}

// GetThemesDir returns the default directory of user theme files.
func GetThemesDir() string {
	return filepath.Join(GetDataDir(), "themes")
}

// GetDatabasePath returns the default location of the SQLite theme store.
func GetDatabasePath() string {
	return filepath.Join(GetDataDir(), "themes.db")
}
