package session

import (
	"context"
	"strconv"
	"strings"

	"codeberg.org/snonux/flashrec/internal/deck"
)

// Next advances front -> back -> next card's front. It does nothing on the
// back of the last card.
func (s *Session) Next(ctx context.Context) error {
	if s.path == "" {
		return ErrNoDeck
	}
	if !s.canNext() {
		return nil
	}
	if err := s.finishTransition(ctx); err != nil {
		return err
	}

	if s.cursor.Face == deck.Back {
		s.cursor = Cursor{Index: s.cursor.Index + 1, Face: deck.Front}
	} else {
		s.cursor.Face = deck.Back
	}
	s.afterMove()
	return nil
}

// Previous is the inverse of Next. It does nothing on the front of the
// first card.
func (s *Session) Previous(ctx context.Context) error {
	if s.path == "" {
		return ErrNoDeck
	}
	if !s.canPrevious() {
		return nil
	}
	if err := s.finishTransition(ctx); err != nil {
		return err
	}

	if s.cursor.Face == deck.Front {
		s.cursor = Cursor{Index: s.cursor.Index - 1, Face: deck.Back}
	} else {
		s.cursor.Face = deck.Front
	}
	s.afterMove()
	return nil
}

// JumpTo moves to the front of the card with the given 1-based number.
// Anything that is not a plain integer in range yields a *JumpError.
func (s *Session) JumpTo(ctx context.Context, input string) error {
	if s.path == "" {
		return ErrNoDeck
	}

	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(s.cards) {
		return &JumpError{Input: input, Total: len(s.cards)}
	}
	if err := s.finishTransition(ctx); err != nil {
		return err
	}

	s.cursor = Cursor{Index: n - 1, Face: deck.Front}
	s.afterMove()
	return nil
}

func (s *Session) canNext() bool {
	if s.cursor.Index >= len(s.cards) {
		return false
	}
	return s.cursor.Index < len(s.cards)-1 || s.cursor.Face == deck.Front
}

func (s *Session) canPrevious() bool {
	if len(s.cards) == 0 {
		return false
	}
	return s.cursor.Index > 0 || s.cursor.Face == deck.Back
}

// finishTransition stops playback and commits a recording in progress to
// the card it was started on
func (s *Session) finishTransition(ctx context.Context) error {
	s.StopListening()
	return s.stopRecording(ctx, true)
}
