package session

import (
	"fmt"

	"codeberg.org/snonux/flashrec/internal/deck"
)

const (
	noDeckMessage    = "Please import flashcards"
	endOfDeckMessage = "End of Flashcards"
)

// DisplayState is everything a front end needs to render the session
type DisplayState struct {
	Loaded    bool
	EndOfDeck bool
	Title     string
	Message   string

	Index int // 0-based
	Total int
	Face  deck.Face
	Text  string

	AudioPath      string
	AudioAvailable bool

	CanPrevious bool
	CanNext     bool
	CanRecord   bool
	Recording   bool
	Complete    bool
}

// Position renders the 1-based card counter, e.g. "3 / 10"
func (d DisplayState) Position() string {
	if !d.Loaded || d.EndOfDeck || d.Total == 0 {
		return ""
	}
	return fmt.Sprintf("%d / %d", d.Index+1, d.Total)
}

// DisplayState snapshots the current session
func (s *Session) DisplayState() DisplayState {
	if s.path == "" {
		return DisplayState{Message: noDeckMessage}
	}

	d := DisplayState{
		Loaded:      true,
		Title:       s.title(),
		Index:       s.cursor.Index,
		Total:       len(s.cards),
		Face:        s.cursor.Face,
		CanPrevious: s.canPrevious(),
		CanNext:     s.canNext(),
		Recording:   s.recordingAt != nil,
		Complete:    s.celebrated,
	}

	// Every row was malformed: nothing to study, ask for another deck
	if len(s.cards) == 0 {
		d.Message = noDeckMessage
		return d
	}

	side, err := s.sideAt(s.cursor)
	if err != nil {
		d.EndOfDeck = true
		d.Message = endOfDeckMessage
		return d
	}

	d.Text = side.Text
	d.CanRecord = true
	if side.HasAudio() {
		d.AudioPath = s.store.Resolve(side, false).Path
		d.AudioAvailable = s.store.Available(side)
	}
	return d
}
