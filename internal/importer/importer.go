// Package importer decides whether a selected flashcard file is a new
// import or a re-open of an existing working copy, and materializes new
// imports inside the data directory.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/snonux/flashrec/internal/archive"
	"codeberg.org/snonux/flashrec/internal/deck"
	"codeberg.org/snonux/flashrec/internal/naming"
	"github.com/spf13/afero"
)

// ErrNoDeckFile is returned when a zip bundle contains no .txt or .csv file
var ErrNoDeckFile = errors.New("no .txt or .csv file found")

// extractedZipPrefix names the directory a bundle is unpacked into
const extractedZipPrefix = "extractedZip_"

// Resolution is the outcome of resolving a selected file
type Resolution struct {
	Path      string      // managed working copy to load
	Format    deck.Format // inferred from the extension
	SourceDir string      // where the deck's existing audio files live
	Created   bool        // true for a new import, false for a re-open
}

// WorkDir returns the working directory of the resolved copy
func (r *Resolution) WorkDir() string {
	return filepath.Dir(r.Path)
}

// Options configures a Resolver
type Options struct {
	Fs       afero.Fs
	DataDir  string
	Now      func() time.Time
	Logger   *log.Logger
	Progress io.Writer // receives extracted bytes of zip bundles
}

// Resolver maps user-selected files to working copies below DataDir
type Resolver struct {
	fs       afero.Fs
	dataDir  string
	now      func() time.Time
	logger   *log.Logger
	progress io.Writer
}

// NewResolver creates a Resolver
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		fs:       opts.Fs,
		dataDir:  opts.DataDir,
		now:      opts.Now,
		logger:   opts.Logger,
		progress: opts.Progress,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve accepts a .txt, .csv or .zip file. Zip bundles are extracted
// first and their first deck file is used. A byte-identical copy of an
// already managed file re-opens that copy; anything else becomes a new
// timestamped working directory.
func (r *Resolver) Resolve(path string) (*Resolution, error) {
	if path == "" {
		return nil, fmt.Errorf("no file selected")
	}

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		found, err := r.unpack(path)
		if err != nil {
			return nil, err
		}
		path = found
	}

	format, err := deck.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if ok, err := afero.Exists(r.fs, path); err != nil || !ok {
		return nil, fmt.Errorf("import file %s: %w", path, os.ErrNotExist)
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	importName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if existing, ok := r.findExisting(path, importName, ext); ok {
		r.logf("Directory and file already exist. Importing local file %s", existing)
		return &Resolution{
			Path:      existing,
			Format:    format,
			SourceDir: filepath.Dir(path),
		}, nil
	}

	created, err := r.materialize(path, importName, ext)
	if err != nil {
		return nil, err
	}
	r.logf("Created working copy %s", created)

	return &Resolution{
		Path:      created,
		Format:    format,
		SourceDir: filepath.Dir(path),
		Created:   true,
	}, nil
}

// findExisting looks for a managed copy that is byte-identical to path.
// The canonical <data>/<name>/<file> location is checked first, then the
// newest timestamped working directory derived from the same name.
func (r *Resolver) findExisting(path, importName, ext string) (string, bool) {
	canonical := filepath.Join(r.dataDir, importName, filepath.Base(path))
	if ok, _ := afero.DirExists(r.fs, filepath.Dir(canonical)); ok && r.filesMatch(path, canonical) {
		return canonical, true
	}

	stem := naming.WorkingStem(importName, ext)
	entries, err := afero.ReadDir(r.fs, r.dataDir)
	if err != nil {
		return "", false
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && naming.HasTimestamp(name) && naming.StripTimestamp(name) == stem {
			candidates = append(candidates, name)
		}
	}
	// Timestamps sort chronologically, newest first
	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))

	for _, name := range candidates {
		managed := filepath.Join(r.dataDir, name, name+"."+ext)
		if r.filesMatch(path, managed) {
			return managed, true
		}
	}
	return "", false
}

// materialize copies path into a fresh working directory and returns the
// managed file's path. Same-second collisions advance the stamp.
func (r *Resolver) materialize(path, importName, ext string) (string, error) {
	now := r.now()
	name := naming.WorkingName(importName, ext, now)
	for {
		exists, err := afero.Exists(r.fs, filepath.Join(r.dataDir, name))
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		now = now.Add(time.Second)
		name = naming.WorkingName(importName, ext, now)
	}

	workDir := filepath.Join(r.dataDir, name)
	if err := r.fs.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}

	dest := filepath.Join(workDir, name+"."+ext)
	if err := r.copyFile(path, dest); err != nil {
		r.fs.RemoveAll(workDir)
		return "", fmt.Errorf("failed to copy %s into working directory: %w", path, err)
	}
	return dest, nil
}

// unpack extracts a bundle to <data>/extractedZip_<name> and returns its
// first deck file
func (r *Resolver) unpack(zipPath string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	dest := filepath.Join(r.dataDir, extractedZipPrefix+name)

	if err := archive.Extract(r.fs, zipPath, dest, r.progress); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", zipPath, err)
	}
	r.logf("Unzipped %s to %s", zipPath, dest)

	found, err := archive.FindFirstDeckFile(r.fs, dest)
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", dest, err)
	}
	if found == "" {
		return "", fmt.Errorf("%w in %s", ErrNoDeckFile, zipPath)
	}
	return found, nil
}

func (r *Resolver) filesMatch(a, b string) bool {
	left, err := afero.ReadFile(r.fs, a)
	if err != nil {
		return false
	}
	right, err := afero.ReadFile(r.fs, b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

func (r *Resolver) copyFile(src, dst string) error {
	in, err := r.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := r.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (r *Resolver) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
