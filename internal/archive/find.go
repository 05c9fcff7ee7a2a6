package archive

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// deckExtensions are the file types a deck can be loaded from
var deckExtensions = map[string]bool{".txt": true, ".csv": true}

// FindFirstDeckFile returns the first .txt or .csv file below dir in
// depth-first order, visiting entries by name. Files and directories are
// visited in a single sorted pass, so a directory sorting before a file
// is searched first. It returns "" when there is none.
func FindFirstDeckFile(fs afero.Fs, dir string) (string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", err
	}

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			found, err := FindFirstDeckFile(fs, full)
			if err != nil {
				return "", err
			}
			if found != "" {
				return found, nil
			}
			continue
		}
		if entry.Mode().IsRegular() && deckExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			return full, nil
		}
	}

	return "", nil
}
