package audio

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/snonux/flashrec/internal/deck"
	"codeberg.org/snonux/flashrec/internal/naming"
	"github.com/spf13/afero"
)

// DefaultExt is the extension of recorded audio files
const DefaultExt = ".wav"

// ErrEmptyRecording is returned when a recording buffer has no data
var ErrEmptyRecording = errors.New("recording is empty")

// TransferMode selects how Transfer relocates an existing audio file
type TransferMode int

const (
	// Copy leaves the source file in place (used after an import)
	Copy TransferMode = iota
	// Move renames the source file (used after a text edit)
	Move
)

func (m TransferMode) String() string {
	if m == Move {
		return "move"
	}
	return "copy"
}

// Location is an audio file's absolute path and its bare name
type Location struct {
	Path string
	Name string
}

// StoreConfig configures a Store
type StoreConfig struct {
	Fs        afero.Fs
	SourceDir string // directory existing audio names are resolved against
	WorkDir   string // directory new audio files are written to
	Prefix    string // prepended to every generated file name
	Ext       string // extension of generated files, DefaultExt if empty
	Now       func() time.Time
	Logger    *log.Logger
}

// Store keeps exactly one audio file per card side inside the working
// directory. Existing audio names resolve against the previous audio
// directory until Settle is called after an import.
type Store struct {
	fs         afero.Fs
	prevDir    string
	currentDir string
	prefix     string
	ext        string
	now        func() time.Time
	logger     *log.Logger
}

// NewStore creates a Store. A missing SourceDir defaults to WorkDir.
func NewStore(config StoreConfig) *Store {
	s := &Store{
		fs:         config.Fs,
		prevDir:    config.SourceDir,
		currentDir: config.WorkDir,
		prefix:     config.Prefix,
		ext:        config.Ext,
		now:        config.Now,
		logger:     config.Logger,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.prevDir == "" {
		s.prevDir = s.currentDir
	}
	if s.ext == "" {
		s.ext = DefaultExt
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// WorkDir returns the directory new audio files are written to
func (s *Store) WorkDir() string {
	return s.currentDir
}

// SourceDir returns the directory existing audio names resolve against
func (s *Store) SourceDir() string {
	return s.prevDir
}

// Settle marks normalization as finished: from now on existing names
// resolve inside the working directory.
func (s *Store) Settle() {
	s.logf("Using %s as audio directory", s.currentDir)
	s.prevDir = s.currentDir
}

// Resolve returns where the side's audio lives. A side that already names
// a file resolves into the source directory; otherwise a new name is
// generated from the side's text inside the working directory.
func (s *Store) Resolve(side *deck.Side, appendTimestamp bool) Location {
	if side.HasAudio() {
		return Location{
			Path: filepath.Join(s.prevDir, side.AudioFileName),
			Name: side.AudioFileName,
		}
	}
	return s.generate(side, s.ext, appendTimestamp)
}

func (s *Store) generate(side *deck.Side, ext string, appendTimestamp bool) Location {
	name := naming.AudioFileName(s.prefix, side.Text, ext, appendTimestamp, s.now())
	return Location{Path: filepath.Join(s.currentDir, name), Name: name}
}

// Available reports whether the side's audio file exists on disk
func (s *Store) Available(side *deck.Side) bool {
	if !side.HasAudio() {
		return false
	}
	return s.exists(s.Resolve(side, false).Path)
}

// CommitRecording writes buf as the side's new audio file under a fresh
// timestamped name, removes the superseded file and updates the side.
// When the write fails the side and the previous file are left as they
// were. The caller is responsible for re-serializing the deck.
func (s *Store) CommitRecording(buf []byte, side *deck.Side) (Location, error) {
	next, prev, err := s.WriteRecording(buf, side)
	if err != nil {
		return Location{}, err
	}
	s.DeleteSuperseded(prev, next)
	return next, nil
}

// WriteRecording is CommitRecording without the cleanup: the superseded
// location is returned and its file kept, so the caller can delete it
// once the new name has been persisted. prev is zero when the side had
// no audio.
func (s *Store) WriteRecording(buf []byte, side *deck.Side) (next, prev Location, err error) {
	if len(buf) == 0 {
		return Location{}, Location{}, ErrEmptyRecording
	}

	if side.HasAudio() {
		prev = s.Resolve(side, false)
	}
	next = s.generate(side, s.ext, true)

	if err := s.writeAtomic(next.Path, buf); err != nil {
		return Location{}, Location{}, fmt.Errorf("failed to write recording %s: %w", next.Path, err)
	}

	side.AudioFileName = next.Name
	s.logf("Saved recording for %q to %s", side.Text, next.Path)
	return next, prev, nil
}

// DeleteSuperseded removes prev unless it is empty or was overwritten in
// place by next
func (s *Store) DeleteSuperseded(prev, next Location) {
	if prev.Path != "" && prev.Path != next.Path {
		s.Delete(prev.Path)
	}
}

// Transfer relocates the side's existing audio file to the name derived
// from its current text inside the working directory. It reports whether
// the side changed. Transfers that would be redundant are skipped and
// logged, not treated as errors.
func (s *Store) Transfer(side *deck.Side, mode TransferMode) (bool, error) {
	if !side.HasAudio() {
		return false, nil
	}

	prev := s.Resolve(side, false)
	ext := filepath.Ext(prev.Name)
	if ext == "" {
		ext = s.ext
	}
	next := s.generate(side, ext, true)

	if prev.Path == next.Path || s.exists(next.Path) || !s.exists(prev.Path) {
		s.logf("Not %s %s to %s: paths are identical, the destination exists, or the source is missing",
			verb(mode), prev.Path, next.Path)
		return false, nil
	}

	if mode == Copy && filepath.Dir(prev.Path) == filepath.Dir(next.Path) &&
		naming.CanonicalAudioName(prev.Name) == naming.CanonicalAudioName(next.Name) {
		s.logf("Skipping copy of %s: %s is only a re-stamped name in the same directory", prev.Path, next.Name)
		return false, nil
	}

	switch mode {
	case Copy:
		if err := s.copyFile(prev.Path, next.Path); err != nil {
			return false, fmt.Errorf("failed to copy audio %s: %w", prev.Path, err)
		}
	case Move:
		if err := s.fs.Rename(prev.Path, next.Path); err != nil {
			return false, fmt.Errorf("failed to rename audio %s: %w", prev.Path, err)
		}
	}

	s.logf("Transferred audio (%s) %s -> %s", mode, prev.Path, next.Path)
	side.AudioFileName = next.Name
	return true, nil
}

// Delete removes path. A missing file is logged, not returned.
func (s *Store) Delete(path string) {
	if err := s.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			s.logf("No old audio file to delete at %s", path)
			return
		}
		s.logf("Failed to delete old audio file %s: %v", path, err)
		return
	}
	s.logf("Deleted old audio file %s", path)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, dir, ".recording-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	_ = s.fs.Chmod(tmpName, 0644)

	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) copyFile(src, dst string) error {
	source, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := s.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		s.fs.Remove(dst)
		return err
	}
	return destination.Close()
}

func (s *Store) exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func verb(mode TransferMode) string {
	if mode == Move {
		return "renaming"
	}
	return "copying"
}
