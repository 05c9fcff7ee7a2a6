// Package anki exports a flashcard deck for import into Anki, either as a
// CSV file next to a media folder or as a self-contained .apkg package.
package anki

import (
	"fmt"
	"path/filepath"

	"codeberg.org/snonux/flashrec/internal/deck"
	"github.com/microcosm-cc/bluemonday"
)

// Card is one exported note. Audio fields hold absolute paths and are
// empty when the side has no recording on disk.
type Card struct {
	Front      string
	Back       string
	FrontAudio string
	BackAudio  string
}

var textPolicy = bluemonday.StrictPolicy()

// CardsFromDeck converts deck cards, resolving audio names inside workDir.
// exists filters out audio names whose file is gone.
func CardsFromDeck(cards []*deck.Card, workDir string, exists func(string) bool) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		out = append(out, Card{
			Front:      c.Front.Text,
			Back:       c.Back.Text,
			FrontAudio: audioPath(&c.Front, workDir, exists),
			BackAudio:  audioPath(&c.Back, workDir, exists),
		})
	}
	return out
}

func audioPath(side *deck.Side, workDir string, exists func(string) bool) string {
	if !side.HasAudio() {
		return ""
	}
	path := filepath.Join(workDir, side.AudioFileName)
	if exists != nil && !exists(path) {
		return ""
	}
	return path
}

// SanitizeText turns card text into a safe HTML field value: markup is
// dropped and special characters are escaped
func SanitizeText(text string) string {
	return textPolicy.Sanitize(text)
}

// soundTag is Anki's audio reference, e.g. [sound:cat.wav]
func soundTag(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf("[sound:%s]", name)
}

// field renders text followed by its audio reference
func field(text, audioFile string) string {
	value := SanitizeText(text)
	if audioFile != "" {
		value += soundTag(filepath.Base(audioFile))
	}
	return value
}
