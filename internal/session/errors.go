package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeck is returned by operations that need a loaded deck
	ErrNoDeck = errors.New("no deck loaded")

	// ErrNotOnCard is returned when the cursor is past the last card
	ErrNotOnCard = errors.New("not on a card")

	// ErrNoAudio is returned by Listen when the current side has no audio file
	ErrNoAudio = errors.New("no audio for this side")

	// ErrNoRecorder is returned when recording without a configured recorder
	ErrNoRecorder = errors.New("no recorder configured")
)

// JumpError reports a rejected jump target. The cursor did not move.
type JumpError struct {
	Input string
	Total int
}

func (e *JumpError) Error() string {
	return fmt.Sprintf("invalid flashcard number %q: must be between 1 and %d", e.Input, e.Total)
}
