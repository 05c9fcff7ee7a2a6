package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StartRecording begins capturing audio for the visible side
func (s *Session) StartRecording(ctx context.Context) error {
	if _, err := s.sideAt(s.cursor); err != nil {
		return err
	}
	if s.recorder == nil {
		return ErrNoRecorder
	}
	if s.recordingAt != nil {
		return nil
	}

	s.StopListening()
	if err := s.recorder.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	at := s.cursor
	s.recordingAt = &at
	s.notify()
	return nil
}

// StopRecording ends the capture, waits for the settle delay and commits
// the buffer to the side the recording was started on
func (s *Session) StopRecording(ctx context.Context) error {
	return s.stopRecording(ctx, false)
}

// Recording reports whether a capture is in progress
func (s *Session) Recording() bool {
	return s.recordingAt != nil
}

func (s *Session) stopRecording(ctx context.Context, auto bool) error {
	if s.recordingAt == nil {
		return nil
	}
	at := *s.recordingAt

	// Keep capturing briefly so the tail of the utterance is kept
	select {
	case <-ctx.Done():
	case <-time.After(s.settleDelay):
	}

	buf, err := s.recorder.Stop(ctx)
	s.recordingAt = nil
	if err != nil {
		s.notify()
		return fmt.Errorf("failed to stop recording: %w", err)
	}

	if err := s.CommitRecordingAt(at, buf); err != nil {
		return err
	}

	if !auto && s.prefs.ListenAfterRecord {
		if err := s.Listen(); err != nil && !errors.Is(err, ErrNoAudio) {
			s.logger.Printf("Error playing audio: %v", err)
		}
	}
	return nil
}

// CommitRecording stores buf as the audio of the visible side
func (s *Session) CommitRecording(buf []byte) error {
	return s.CommitRecordingAt(s.cursor, buf)
}

// CommitRecordingAt stores buf as the audio of the side at c, replacing
// any previous recording, and re-serializes the deck. The previous file
// is only deleted once the working copy references the new one.
func (s *Session) CommitRecordingAt(c Cursor, buf []byte) error {
	side, err := s.sideAt(c)
	if err != nil {
		return err
	}

	oldName := side.AudioFileName
	next, prev, err := s.store.WriteRecording(buf, side)
	if err != nil {
		s.logger.Printf("Error saving recording: %v", err)
		s.notify()
		return err
	}
	if err := s.save(); err != nil {
		// The working copy on disk still names the previous file
		side.AudioFileName = oldName
		if next.Path != prev.Path {
			s.store.Delete(next.Path)
		}
		s.notify()
		return err
	}
	s.store.DeleteSuperseded(prev, next)

	s.checkCompletion()
	s.notify()
	return nil
}
