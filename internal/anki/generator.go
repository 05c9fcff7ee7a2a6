package anki

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// GeneratorOptions configures the CSV export
type GeneratorOptions struct {
	Fs             afero.Fs
	OutputPath     string // Output CSV file path
	MediaFolder    string // Folder the audio files are copied to, skipped if empty
	IncludeHeaders bool   // Include CSV headers
}

// DefaultGeneratorOptions returns sensible defaults
func DefaultGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{
		OutputPath:     "anki_import.csv",
		MediaFolder:    "collection.media",
		IncludeHeaders: true,
	}
}

// Generator creates Anki-compatible CSV import files
type Generator struct {
	options *GeneratorOptions
	fs      afero.Fs
	cards   []Card
}

// NewGenerator creates a new Anki generator
func NewGenerator(options *GeneratorOptions) *Generator {
	if options == nil {
		options = DefaultGeneratorOptions()
	}
	fs := options.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Generator{
		options: options,
		fs:      fs,
		cards:   make([]Card, 0),
	}
}

// AddCard adds a card to the collection
func (g *Generator) AddCard(card Card) {
	g.cards = append(g.cards, card)
}

// Cards returns the collected cards
func (g *Generator) Cards() []Card {
	return g.cards
}

// GenerateCSV writes the CSV file and copies the referenced audio into the
// media folder. Anki resolves [sound:...] references by bare file name.
func (g *Generator) GenerateCSV() error {
	file, err := g.fs.Create(g.options.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	if err := g.WriteCSV(file); err != nil {
		return err
	}

	if g.options.MediaFolder != "" {
		if err := g.copyMedia(g.options.MediaFolder); err != nil {
			return fmt.Errorf("failed to copy media: %w", err)
		}
	}
	return nil
}

// WriteCSV writes the cards as CSV to w
func (g *Generator) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if g.options.IncludeHeaders {
		if err := writer.Write([]string{"Front", "Back"}); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for _, card := range g.cards {
		record := []string{
			field(card.Front, card.FrontAudio),
			field(card.Back, card.BackAudio),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write card: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (g *Generator) copyMedia(mediaDir string) error {
	if err := g.fs.MkdirAll(mediaDir, 0755); err != nil {
		return err
	}
	for _, card := range g.cards {
		for _, src := range []string{card.FrontAudio, card.BackAudio} {
			if src == "" {
				continue
			}
			dst := filepath.Join(mediaDir, filepath.Base(src))
			if err := copyFile(g.fs, src, dst); err != nil {
				return fmt.Errorf("failed to copy %s: %w", src, err)
			}
		}
	}
	return nil
}

// Stats returns statistics about the card collection
func (g *Generator) Stats() (totalCards, withAudio int) {
	totalCards = len(g.cards)
	for _, card := range g.cards {
		if card.FrontAudio != "" || card.BackAudio != "" {
			withAudio++
		}
	}
	return
}

func copyFile(fs afero.Fs, src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}
