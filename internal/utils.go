package internal

import (
	"os"
	"path/filepath"
)

// Version is the application version
const Version = "0.3.0"

// AppName is used for the default data and config directories
const AppName = "flashrec"

// DefaultDataDir returns where working copies live, following the XDG
// state directory convention
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "decks")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName, "decks")
	}
	return filepath.Join(home, ".local", "state", AppName, "decks")
}

// DefaultConfigDir returns the directory holding the preferences file
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(dir, AppName)
}

// DefaultCacheDir returns the directory for cached speech synthesis output
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "tts")
}
