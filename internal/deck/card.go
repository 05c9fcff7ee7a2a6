package deck

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Face selects one side of a card
type Face int

const (
	Front Face = 0
	Back  Face = 1
)

func (f Face) String() string {
	if f == Back {
		return "back"
	}
	return "front"
}

// Flip returns the other face
func (f Face) Flip() Face {
	return f ^ 1
}

// Valid reports whether f is Front or Back
func (f Face) Valid() bool {
	return f == Front || f == Back
}

// Side is the text shown on one face of a card plus the bare name of its
// audio file inside the working directory. An empty AudioFileName means
// the side has no recording yet.
type Side struct {
	Text          string
	AudioFileName string
}

// HasAudio reports whether the side references an audio file
func (s *Side) HasAudio() bool {
	return s.AudioFileName != ""
}

// Card is a front/back pair
type Card struct {
	Front Side
	Back  Side
}

// Side returns a pointer to the requested face so callers can mutate it
func (c *Card) Side(f Face) *Side {
	if f == Back {
		return &c.Back
	}
	return &c.Front
}

// Format identifies the layout of a flashcard source file
type Format string

const (
	Delimited Format = "txt"
	CSV       Format = "csv"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither .txt nor .csv
	ErrUnsupportedFormat = errors.New("unsupported flashcard format")

	// ErrMalformedRow is returned when a row does not yield a valid card
	ErrMalformedRow = errors.New("malformed flashcard row")

	// ErrInvalidText is returned for card text that would not read back
	// unchanged after a save
	ErrInvalidText = errors.New("invalid card text")
)

// FormatFromPath infers the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return Delimited, nil
	case ".csv":
		return CSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
