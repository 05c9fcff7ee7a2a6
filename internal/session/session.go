// Package session owns the loaded deck and the study cursor. It drives
// import, audio normalization, recording and re-serialization, and keeps
// the preferences file pointed at the current position.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/snonux/flashrec/internal/archive"
	"codeberg.org/snonux/flashrec/internal/audio"
	"codeberg.org/snonux/flashrec/internal/config"
	"codeberg.org/snonux/flashrec/internal/deck"
	"codeberg.org/snonux/flashrec/internal/importer"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// DefaultSettleDelay is how long a stopped recording keeps capturing so
// the last moment of speech is not cut off
const DefaultSettleDelay = 200 * time.Millisecond

// Recorder delivers captured audio buffers
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([]byte, error)
	Recording() bool
}

// Player plays audio files
type Player interface {
	Play(path string) error
	Stop()
}

// PreferenceStore loads and saves the persisted preferences
type PreferenceStore interface {
	Load() config.Preferences
	Save(config.Preferences) error
}

// Cursor points at one side of one card
type Cursor struct {
	Index int
	Face  deck.Face
}

// Options configures a Session
type Options struct {
	Fs          afero.Fs
	DataDir     string
	Preferences PreferenceStore
	Recorder    Recorder
	Player      Player
	AudioPrefix string
	AudioExt    string
	SettleDelay time.Duration
	Logger      *log.Logger
	Now         func() time.Time
	Progress    io.Writer // zip extraction progress

	// OnChange is called whenever the display state may have changed
	OnChange func(DisplayState)
	// OnComplete fires once per loaded deck when every side has audio
	OnComplete func()
}

// Session is a single study session. It is not safe for concurrent use;
// every operation completes before the next one starts.
type Session struct {
	fs          afero.Fs
	resolver    *importer.Resolver
	prefsStore  PreferenceStore
	prefs       config.Preferences
	recorder    Recorder
	player      Player
	audioPrefix string
	audioExt    string
	settleDelay time.Duration
	logger      *log.Logger
	now         func() time.Time
	onChange    func(DisplayState)
	onComplete  func()

	cards  []*deck.Card
	format deck.Format
	header []string
	path   string
	store  *audio.Store
	cursor Cursor

	recordingAt  *Cursor
	checkedIndex int
	celebrated   bool
}

// New creates a session with no deck loaded and reads the preferences
func New(opts Options) *Session {
	s := &Session{
		fs:           opts.Fs,
		prefsStore:   opts.Preferences,
		recorder:     opts.Recorder,
		player:       opts.Player,
		audioPrefix:  opts.AudioPrefix,
		audioExt:     opts.AudioExt,
		settleDelay:  opts.SettleDelay,
		logger:       opts.Logger,
		now:          opts.Now,
		onChange:     opts.OnChange,
		onComplete:   opts.OnComplete,
		checkedIndex: -1,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.settleDelay == 0 {
		s.settleDelay = DefaultSettleDelay
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}

	s.resolver = importer.NewResolver(importer.Options{
		Fs:       s.fs,
		DataDir:  opts.DataDir,
		Now:      s.now,
		Logger:   s.logger,
		Progress: opts.Progress,
	})

	s.prefs = config.Defaults()
	if s.prefsStore != nil {
		s.prefs = s.prefsStore.Load()
	}
	return s
}

// ImportFromPath resolves path to a working copy and loads it at the first
// card. On failure the previously loaded deck stays current.
func (s *Session) ImportFromPath(ctx context.Context, path string) error {
	if err := s.finishTransition(ctx); err != nil {
		return err
	}

	res, err := s.resolver.Resolve(path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if err := s.load(res.Path, res.Format, res.SourceDir, Cursor{}); err != nil {
		return err
	}
	s.afterMove()
	return nil
}

// Resume reloads the deck recorded in the preferences at its saved
// position. A deck that no longer exists leaves the session without a
// deck instead of failing.
func (s *Session) Resume(ctx context.Context) error {
	path := s.prefs.RecentImportPath
	if path == "" {
		s.notify()
		return nil
	}

	if ok, _ := afero.Exists(s.fs, path); !ok {
		s.logger.Printf("Recent deck %s no longer exists", path)
		s.notify()
		return nil
	}

	format, err := deck.FormatFromPath(path)
	if err != nil {
		return err
	}

	at := Cursor{Index: s.prefs.RecentIndex, Face: deck.Face(s.prefs.RecentSide)}
	if err := s.load(path, format, filepath.Dir(path), at); err != nil {
		return err
	}
	s.afterMove()
	return nil
}

// load reads the working copy, moves every referenced audio file into the
// working directory and makes the deck current
func (s *Session) load(path string, format deck.Format, sourceDir string, at Cursor) error {
	contents, err := deck.ReadFile(s.fs, path, format, s.logger)
	if err != nil {
		s.logger.Printf("Error importing flashcards from %s: %v", path, err)
		return err
	}
	if contents.Skipped > 0 {
		s.logger.Printf("Skipped %d malformed rows in %s", contents.Skipped, path)
	}

	store := audio.NewStore(audio.StoreConfig{
		Fs:        s.fs,
		SourceDir: sourceDir,
		WorkDir:   filepath.Dir(path),
		Prefix:    s.audioPrefix,
		Ext:       s.audioExt,
		Now:       s.now,
		Logger:    s.logger,
	})

	s.logger.Printf("Using source audio directory %s", sourceDir)
	changed := false
	var errs error
	for _, card := range contents.Cards {
		for _, face := range []deck.Face{deck.Front, deck.Back} {
			moved, err := store.Transfer(card.Side(face), audio.Copy)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%q: %w", card.Side(face).Text, err))
			}
			changed = changed || moved
		}
	}
	store.Settle()
	for _, err := range multierr.Errors(errs) {
		s.logger.Printf("Failed to copy audio: %v", err)
	}

	if changed {
		if err := deck.WriteFile(s.fs, path, contents.Cards, format, contents.Header); err != nil {
			return fmt.Errorf("failed to save working copy: %w", err)
		}
	}

	s.cards = contents.Cards
	s.format = format
	s.header = contents.Header
	s.path = path
	s.store = store
	s.cursor = s.clamp(at)
	s.checkedIndex = -1
	s.celebrated = false

	s.logger.Printf("Loaded %d flashcards from %s", len(s.cards), path)
	return nil
}

func (s *Session) clamp(c Cursor) Cursor {
	if !c.Face.Valid() {
		c.Face = deck.Front
	}
	if c.Index < 0 {
		c.Index = 0
	}
	if len(s.cards) == 0 {
		return Cursor{}
	}
	if c.Index > len(s.cards)-1 {
		c = Cursor{Index: len(s.cards) - 1, Face: deck.Front}
	}
	return c
}

// ExportWorkingCopyToZip archives the whole working directory into dest
func (s *Session) ExportWorkingCopyToZip(dest string, progress io.Writer) error {
	if s.path == "" {
		return ErrNoDeck
	}
	workDir := filepath.Dir(s.path)
	if err := archive.CreateZip(s.fs, workDir, dest, progress); err != nil {
		return err
	}
	s.logger.Printf("Exported %s to %s", workDir, dest)
	return nil
}

// SuggestedExportName is the default file name for a zip export
func (s *Session) SuggestedExportName() string {
	if s.path == "" {
		return ""
	}
	return s.title() + ".zip"
}

// EditCurrentCardText replaces the text of the visible side and renames
// its audio file to match. The working copy is always re-serialized.
// Text failing deck.ValidateText is rejected before anything changes.
func (s *Session) EditCurrentCardText(ctx context.Context, text string) error {
	if _, err := s.sideAt(s.cursor); err != nil {
		return err
	}
	if err := deck.ValidateText(text); err != nil {
		return err
	}
	if err := s.finishTransition(ctx); err != nil {
		return err
	}
	side, err := s.sideAt(s.cursor)
	if err != nil {
		return err
	}

	side.Text = text
	var errs error
	if _, err := s.store.Transfer(side, audio.Move); err != nil {
		s.logger.Printf("Failed to rename audio for %q: %v", text, err)
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, s.save())

	// The edited card must be checked again
	if s.cursor.Index <= s.checkedIndex {
		s.checkedIndex = s.cursor.Index - 1
	}
	s.checkCompletion()
	s.notify()
	return errs
}

// MissingAudio lists the sides that have text but no audio file on disk
func (s *Session) MissingAudio() []Cursor {
	var missing []Cursor
	for i, card := range s.cards {
		for _, face := range []deck.Face{deck.Front, deck.Back} {
			side := card.Side(face)
			if side.Text != "" && !s.store.Available(side) {
				missing = append(missing, Cursor{Index: i, Face: face})
			}
		}
	}
	return missing
}

// SideText returns the text at c
func (s *Session) SideText(c Cursor) (string, error) {
	side, err := s.sideAt(c)
	if err != nil {
		return "", err
	}
	return side.Text, nil
}

// Cards returns the loaded deck
func (s *Session) Cards() []*deck.Card {
	return s.cards
}

// Cursor returns the current position
func (s *Session) Cursor() Cursor {
	return s.cursor
}

// WorkingCopyPath returns the managed file the deck is saved to
func (s *Session) WorkingCopyPath() string {
	return s.path
}

// Preferences returns the current preferences
func (s *Session) Preferences() config.Preferences {
	return s.prefs
}

// UpdatePreferences applies fn and persists the result
func (s *Session) UpdatePreferences(fn func(*config.Preferences)) error {
	fn(&s.prefs)
	return s.savePrefs()
}

// Listen plays the audio of the visible side
func (s *Session) Listen() error {
	side, err := s.sideAt(s.cursor)
	if err != nil {
		return err
	}
	if !s.store.Available(side) {
		return ErrNoAudio
	}
	if s.player == nil {
		return nil
	}
	return s.player.Play(s.store.Resolve(side, false).Path)
}

// StopListening stops playback
func (s *Session) StopListening() {
	if s.player != nil {
		s.player.Stop()
	}
}

// Complete reports whether every card has text and existing audio on both
// sides. Cards already verified are not checked again.
func (s *Session) Complete() bool {
	if len(s.cards) == 0 {
		return false
	}

	for i := s.checkedIndex + 1; i < len(s.cards); i++ {
		card := s.cards[i]
		if card.Front.Text == "" || card.Back.Text == "" ||
			!s.store.Available(&card.Front) || !s.store.Available(&card.Back) {
			return false
		}
		s.checkedIndex = i
	}
	return true
}

func (s *Session) checkCompletion() {
	if s.celebrated || !s.Complete() {
		return
	}
	s.celebrated = true
	s.logger.Printf("Every flashcard in %s has audio", s.title())
	if s.onComplete != nil {
		s.onComplete()
	}
}

// save re-serializes the deck into the working copy
func (s *Session) save() error {
	if err := deck.WriteFile(s.fs, s.path, s.cards, s.format, s.header); err != nil {
		s.logger.Printf("Error exporting to file: %v", err)
		return fmt.Errorf("failed to save working copy: %w", err)
	}
	return nil
}

func (s *Session) savePrefs() error {
	if s.prefsStore == nil {
		return nil
	}
	if err := s.prefsStore.Save(s.prefs); err != nil {
		s.logger.Printf("Error writing preferences: %v", err)
		return err
	}
	return nil
}

// afterMove persists the cursor, refreshes the display and plays the new
// side when listenAfterLoad is set
func (s *Session) afterMove() {
	s.prefs.RecentImportPath = s.path
	s.prefs.RecentIndex = s.cursor.Index
	s.prefs.RecentSide = int(s.cursor.Face)
	_ = s.savePrefs()

	s.checkCompletion()
	s.notify()

	if s.prefs.ListenAfterLoad && s.onCard() {
		if err := s.Listen(); err != nil && err != ErrNoAudio {
			s.logger.Printf("Error playing audio: %v", err)
		}
	}
}

func (s *Session) onCard() bool {
	return s.cursor.Index >= 0 && s.cursor.Index < len(s.cards)
}

func (s *Session) sideAt(c Cursor) (*deck.Side, error) {
	if s.path == "" {
		return nil, ErrNoDeck
	}
	if c.Index < 0 || c.Index >= len(s.cards) || !c.Face.Valid() {
		return nil, ErrNotOnCard
	}
	return s.cards[c.Index].Side(c.Face), nil
}

func (s *Session) title() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.DisplayState())
	}
}
