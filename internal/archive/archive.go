// Package archive moves finished working directories out of the way and
// handles the zip bundles decks are imported from and exported to.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ArchiveDir moves a working directory into <parent>/archive, stamping the
// new name with now. It returns the archived path.
func ArchiveDir(fs afero.Fs, workDir string, now time.Time) (string, error) {
	// Check if the working directory exists
	if ok, err := afero.DirExists(fs, workDir); err != nil || !ok {
		return "", fmt.Errorf("working directory does not exist: %s", workDir)
	}

	parentDir := filepath.Dir(workDir)
	archiveDir := filepath.Join(parentDir, "archive")

	if err := fs.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := filepath.Base(workDir)
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s-%s", base, now.Format("20060102-150405")))

	// Check if archive already exists (unlikely but possible)
	if _, err := fs.Stat(archivePath); err == nil {
		archivePath = filepath.Join(archiveDir, fmt.Sprintf("%s-%s", base, now.Format("20060102-150405.000000")))
		if _, err := fs.Stat(archivePath); err == nil {
			return "", fmt.Errorf("archive %s already exists: %w", archivePath, os.ErrExist)
		}
	}

	if err := fs.Rename(workDir, archivePath); err != nil {
		return "", fmt.Errorf("failed to archive working directory: %w", err)
	}

	return archivePath, nil
}
