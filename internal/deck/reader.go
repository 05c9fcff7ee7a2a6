package deck

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/afero"
)

// Row is one raw record of a source file
type Row struct {
	Line   int      // 1-based line (delimited) or record number (CSV)
	Fields []string // cells in source order
}

// Reader yields the raw rows of a flashcard source one at a time.
// It is finite and can be restarted by opening the file again.
type Reader struct {
	format  Format
	lines   *bufio.Reader
	done    bool
	records *csv.Reader
	n       int
	header  []string
}

// NewReader wraps r for the given format. For CSV the header row is
// consumed immediately and is available through Header.
func NewReader(r io.Reader, format Format) (*Reader, error) {
	rd := &Reader{format: format}

	switch format {
	case Delimited:
		rd.lines = bufio.NewReader(r)
	case CSV:
		rd.records = csv.NewReader(r)
		rd.records.FieldsPerRecord = -1
		rd.records.LazyQuotes = true
		header, err := rd.records.Read()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		rd.header = header
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return rd, nil
}

// Header returns the CSV header row, or nil for delimited files
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next row, or io.EOF once the input is exhausted.
// A *csv.ParseError is returned for a broken CSV record; reading may
// continue after it.
func (r *Reader) Next() (Row, error) {
	r.n++

	if r.format == Delimited {
		if r.done {
			return Row{}, io.EOF
		}
		// Lines have no length limit
		line, err := r.lines.ReadString('\n')
		if err == io.EOF {
			r.done = true
			if line == "" {
				return Row{}, io.EOF
			}
		} else if err != nil {
			return Row{}, err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		return Row{Line: r.n, Fields: SplitLine(line)}, nil
	}

	record, err := r.records.Read()
	if err != nil {
		return Row{Line: r.n}, err
	}
	return Row{Line: r.n, Fields: record}, nil
}

// Contents is a fully read source file
type Contents struct {
	Cards   []*Card
	Header  []string // CSV header, kept for re-serialization
	Skipped int      // rows that did not decode
}

// ReadFile reads every card from path. Rows that fail to decode are
// logged and skipped; only I/O failures abort the read.
func ReadFile(fs afero.Fs, path string, format Format, logger *log.Logger) (*Contents, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flashcard file: %w", err)
	}
	defer f.Close()

	return Read(f, format, logger)
}

// Read consumes r completely and returns the decoded cards
func Read(r io.Reader, format Format, logger *log.Logger) (*Contents, error) {
	rd, err := NewReader(r, format)
	if err != nil {
		return nil, err
	}

	contents := &Contents{Header: rd.Header()}
	for {
		row, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logf(logger, "Skipping unreadable row %d: %v", row.Line, err)
				contents.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to read flashcard file: %w", err)
		}

		card, err := DecodeRow(row.Fields)
		if err != nil {
			logf(logger, "Skipping row %d: %v", row.Line, err)
			contents.Skipped++
			continue
		}
		contents.Cards = append(contents.Cards, card)
	}

	return contents, nil
}

func logf(logger *log.Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
