package deck

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultCSVHeader is written when a CSV working copy has no header of its own
var DefaultCSVHeader = []string{"front", "back"}

// Write serializes cards in the given format. Delimited output has one
// EncodeCard line per card; CSV output repeats the header first.
func Write(w io.Writer, cards []*Card, format Format, header []string) error {
	switch format {
	case Delimited:
		bw := bufio.NewWriter(w)
		for _, card := range cards {
			if _, err := bw.WriteString(EncodeCard(card) + "\n"); err != nil {
				return err
			}
		}
		return bw.Flush()

	case CSV:
		cw := csv.NewWriter(w)
		if len(header) < 2 {
			header = DefaultCSVHeader
		}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for _, card := range cards {
			record := []string{EncodeBlob(card.Front), EncodeBlob(card.Back)}
			// Pad to the header width so strict CSV readers accept the file
			for len(record) < len(header) {
				record = append(record, "")
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write card: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// WriteFile overwrites path with the serialized cards. The content goes
// to a temporary file in the same directory first and is renamed into
// place, so readers never observe a half-written working copy.
func WriteFile(fs afero.Fs, path string, cards []*Card, format Format, header []string) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := Write(tmp, cards, format, header); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("failed to serialize flashcards: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if info, err := fs.Stat(path); err == nil {
		_ = fs.Chmod(tmpName, info.Mode())
	} else {
		_ = fs.Chmod(tmpName, os.FileMode(0644))
	}

	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
