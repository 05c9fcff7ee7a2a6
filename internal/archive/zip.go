package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrNestedDestination is returned when a zip would be written inside
	// the directory it archives
	ErrNestedDestination = errors.New("destination is inside the directory being archived")

	// ErrUnsafePath is returned for zip entries that would land outside
	// the extraction directory
	ErrUnsafePath = errors.New("zip entry escapes the extraction directory")
)

// CheckDestination rejects a zip destination whose parent directory equals
// srcDir or lies below it.
func CheckDestination(srcDir, dest string) error {
	src, err := filepath.Abs(srcDir)
	if err != nil {
		return err
	}
	parent, err := filepath.Abs(filepath.Dir(dest))
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(src, parent)
	if err != nil {
		// Different volumes can never nest
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("%w: %s is under %s", ErrNestedDestination, dest, srcDir)
	}
	return nil
}

// CreateZip archives the entire srcDir into dest. Entries are rooted at
// the base name of srcDir, so /a/b/deck becomes deck/... in the zip.
// Bytes read from the source files are mirrored to progress when it is
// not nil. The archive is assembled in a temporary file next to dest and
// renamed into place, so a failure leaves no partial zip behind.
func CreateZip(fs afero.Fs, srcDir, dest string, progress io.Writer) error {
	if err := CheckDestination(srcDir, dest); err != nil {
		return err
	}

	info, err := fs.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("source directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", srcDir)
	}

	destDir := filepath.Dir(dest)
	if err := fs.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmp, err := afero.TempFile(fs, destDir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary zip: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeZip(fs, tmp, srcDir, progress); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("failed to close temporary zip: %w", err)
	}
	_ = fs.Chmod(tmpName, 0644)

	if err := fs.Rename(tmpName, dest); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("failed to move zip into place: %w", err)
	}
	return nil
}

func writeZip(fs afero.Fs, w io.Writer, srcDir string, progress io.Writer) error {
	zw := zip.NewWriter(w)
	root := filepath.Base(filepath.Clean(srcDir))

	err := afero.Walk(fs, srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name

		if info.IsDir() {
			header.Name += "/"
			_, err := zw.CreateHeader(header)
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header.Method = zip.Deflate
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}

		f, err := fs.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		var src io.Reader = f
		if progress != nil {
			src = io.TeeReader(f, progress)
		}
		if _, err := io.Copy(entry, src); err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive %s: %w", srcDir, err)
	}

	return zw.Close()
}

// DirSize sums the sizes of the regular files below dir
func DirSize(fs afero.Fs, dir string) (int64, error) {
	var total int64
	err := afero.Walk(fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Extract unpacks zipPath into destDir. The archive is extracted into a
// temporary sibling directory first and renamed to destDir only when
// every entry was written; an existing destDir is replaced.
func Extract(fs afero.Fs, zipPath, destDir string, progress io.Writer) error {
	parent := filepath.Dir(destDir)
	if err := fs.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", parent, err)
	}

	tmpDir, err := afero.TempDir(fs, parent, ".extract-")
	if err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	if err := extractTo(fs, zipPath, tmpDir, progress); err != nil {
		fs.RemoveAll(tmpDir)
		return err
	}

	if err := fs.RemoveAll(destDir); err != nil {
		fs.RemoveAll(tmpDir)
		return fmt.Errorf("failed to replace %s: %w", destDir, err)
	}
	if err := fs.Rename(tmpDir, destDir); err != nil {
		fs.RemoveAll(tmpDir)
		return fmt.Errorf("failed to move extracted files into place: %w", err)
	}
	return nil
}

func extractTo(fs afero.Fs, zipPath, destDir string, progress io.Writer) error {
	f, err := fs.Open(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat zip: %w", err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return fmt.Errorf("failed to read zip: %w", err)
	}

	for _, entry := range zr.File {
		name := filepath.FromSlash(strings.TrimSuffix(entry.Name, "/"))
		if name == "" {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, entry.Name)
		}
		target := filepath.Join(destDir, name)

		if entry.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := extractFile(fs, entry, target, progress); err != nil {
			return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractFile(fs afero.Fs, entry *zip.File, target string, progress io.Writer) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	var src io.Reader = rc
	if progress != nil {
		src = io.TeeReader(rc, progress)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
