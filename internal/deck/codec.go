package deck

import (
	"fmt"
	"strings"
)

// Delimiter separates front and back in the delimited format
const Delimiter = "\t"

const (
	markerOpen  = "[sound:"
	markerClose = "]"
)

// DecodeBlob splits a cell into its text and optional trailing
// [sound:filename] marker. The marker is only recognized at the very end
// of the blob; anything else is text. ok is false for an empty blob.
func DecodeBlob(blob string) (side Side, ok bool) {
	if blob == "" {
		return Side{}, false
	}

	if strings.HasSuffix(blob, markerClose) {
		if i := strings.Index(blob, markerOpen); i >= 0 && i+len(markerOpen) <= len(blob)-len(markerClose) {
			side.Text = blob[:i]
			side.AudioFileName = blob[i+len(markerOpen) : len(blob)-len(markerClose)]
			return side, true
		}
	}

	side.Text = blob
	return side, true
}

// EncodeBlob is the inverse of DecodeBlob
func EncodeBlob(side Side) string {
	if !side.HasAudio() {
		return side.Text
	}
	return side.Text + markerOpen + side.AudioFileName + markerClose
}

// SplitLine splits a delimited line into its cells
func SplitLine(line string) []string {
	return strings.Split(line, Delimiter)
}

// DecodeRow builds a card from the first two cells of a row. Cells past
// the second are ignored. A missing or empty cell nullifies the card.
func DecodeRow(fields []string) (*Card, error) {
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: expected 2 columns, got %d", ErrMalformedRow, len(fields))
	}

	front, ok := DecodeBlob(fields[0])
	if !ok {
		return nil, fmt.Errorf("%w: empty front", ErrMalformedRow)
	}
	back, ok := DecodeBlob(fields[1])
	if !ok {
		return nil, fmt.Errorf("%w: empty back", ErrMalformedRow)
	}

	return &Card{Front: front, Back: back}, nil
}

// DecodeLine decodes one line of the delimited format
func DecodeLine(line string) (*Card, error) {
	return DecodeRow(SplitLine(line))
}

// EncodeCard serializes a card as one delimited line (without newline)
func EncodeCard(card *Card) string {
	return EncodeBlob(card.Front) + Delimiter + EncodeBlob(card.Back)
}

// ValidateText rejects text that cannot be stored in a side: blank text
// drops the card on reload, a tab or line break splits the row and a
// sound marker is read back as audio.
func ValidateText(text string) error {
	switch {
	case strings.TrimSpace(text) == "":
		return fmt.Errorf("%w: text is empty", ErrInvalidText)
	case strings.ContainsAny(text, "\t\r\n"):
		return fmt.Errorf("%w: text contains a tab or line break", ErrInvalidText)
	case strings.Contains(text, markerOpen):
		return fmt.Errorf("%w: text contains %q", ErrInvalidText, markerOpen)
	}
	return nil
}
