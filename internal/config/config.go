// Package config persists the user's preferences and the position of the
// most recently studied deck as a single JSON document.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// FileName is the name of the preferences file inside the config directory
const FileName = "config.json"

// Preferences is the only state that survives between sessions
type Preferences struct {
	ListenAfterRecord bool   `json:"listenAfterRecord" mapstructure:"listenAfterRecord"`
	ListenAfterLoad   bool   `json:"listenAfterLoad" mapstructure:"listenAfterLoad"`
	RecentImportPath  string `json:"recentImportPath" mapstructure:"recentImportPath"`
	RecentIndex       int    `json:"recentIndex" mapstructure:"recentIndex"`
	RecentSide        int    `json:"recentSide" mapstructure:"recentSide"`
}

// Defaults returns the preferences used before anything was saved
func Defaults() Preferences {
	return Preferences{
		ListenAfterRecord: true,
	}
}

// Store reads and writes the preferences file
type Store struct {
	fs     afero.Fs
	path   string
	logger *log.Logger
}

// NewStore creates a Store for <configDir>/config.json
func NewStore(fs afero.Fs, configDir string, logger *log.Logger) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{
		fs:     fs,
		path:   filepath.Join(configDir, FileName),
		logger: logger,
	}
}

// Path returns the preferences file location
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved preferences. A missing file is created empty.
// Unreadable or malformed content is logged and yields the defaults, so a
// broken file never stops a session from starting.
func (s *Store) Load() Preferences {
	info, err := s.fs.Stat(s.path)
	if os.IsNotExist(err) {
		if err := s.createEmpty(); err != nil {
			s.logf("Warning: could not create preferences file %s: %v", s.path, err)
		}
		return Defaults()
	}
	if err != nil {
		s.logf("Warning: could not read preferences file %s: %v", s.path, err)
		return Defaults()
	}
	if info.Size() == 0 {
		return Defaults()
	}

	v := viper.New()
	v.SetFs(s.fs)
	v.SetConfigFile(s.path)
	v.SetConfigType("json")

	defaults := Defaults()
	v.SetDefault("listenAfterRecord", defaults.ListenAfterRecord)
	v.SetDefault("listenAfterLoad", defaults.ListenAfterLoad)
	v.SetDefault("recentImportPath", defaults.RecentImportPath)
	v.SetDefault("recentIndex", defaults.RecentIndex)
	v.SetDefault("recentSide", defaults.RecentSide)

	if err := v.ReadInConfig(); err != nil {
		s.logf("Warning: could not parse preferences file %s: %v", s.path, err)
		return Defaults()
	}

	var prefs Preferences
	if err := v.Unmarshal(&prefs); err != nil {
		s.logf("Warning: invalid preferences in %s: %v", s.path, err)
		return Defaults()
	}

	return prefs.normalized()
}

// Save overwrites the preferences file. The JSON is written to a
// temporary file in the same directory and renamed over the target.
func (s *Store) Save(prefs Preferences) error {
	data, err := json.MarshalIndent(prefs.normalized(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary preferences file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	_ = s.fs.Chmod(tmpName, 0644)

	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}
	return nil
}

func (s *Store) createEmpty() error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// normalized clamps values a hand-edited file may have broken
func (p Preferences) normalized() Preferences {
	if p.RecentIndex < 0 {
		p.RecentIndex = 0
	}
	if p.RecentSide != 1 {
		p.RecentSide = 0
	}
	return p
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
