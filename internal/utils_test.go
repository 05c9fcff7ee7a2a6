package internal

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	want := filepath.Join("/tmp/state", "flashrec", "decks")
	if got := DefaultDataDir(); got != want {
		t.Errorf("DefaultDataDir() = %q, want %q", got, want)
	}
}

func TestDefaultConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/config")

	if got := DefaultConfigDir(); !strings.HasSuffix(got, AppName) {
		t.Errorf("DefaultConfigDir() = %q, want a path ending in %q", got, AppName)
	}
}
