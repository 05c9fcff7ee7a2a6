package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"codeberg.org/snonux/flashrec/internal"
	"codeberg.org/snonux/flashrec/internal/anki"
	"codeberg.org/snonux/flashrec/internal/archive"
	"codeberg.org/snonux/flashrec/internal/audio"
	"codeberg.org/snonux/flashrec/internal/cli"
	"codeberg.org/snonux/flashrec/internal/config"
	"codeberg.org/snonux/flashrec/internal/models"
	"codeberg.org/snonux/flashrec/internal/session"
)

// Options configures a Processor. Zero values select the real terminal,
// filesystem, recorder and player.
type Options struct {
	Settings  cli.Settings
	Fs        afero.Fs
	Logger    *log.Logger
	Out       io.Writer
	In        io.Reader
	Recorder  session.Recorder
	Player    session.Player
	Provider  audio.Provider // overrides the configured speech provider
	Clipboard ClipboardWriter
	Now       func() time.Time
	Progress  bool // draw progress bars on stderr
}

var _ cli.Actions = (*Processor)(nil)

// ClipboardWriter places text on the clipboard
type ClipboardWriter interface {
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// Processor runs one subcommand against the resumed session
type Processor struct {
	settings cli.Settings
	fs       afero.Fs
	logger   *log.Logger
	out      io.Writer
	in       io.Reader
	player   session.Player
	provider audio.Provider
	clip     ClipboardWriter
	now      func() time.Time
	progress bool

	session *session.Session
}

// NewProcessor creates the session and resumes the most recent deck
func NewProcessor(opts Options) (*Processor, error) {
	p := &Processor{
		settings: opts.Settings,
		fs:       opts.Fs,
		logger:   opts.Logger,
		out:      opts.Out,
		in:       opts.In,
		player:   opts.Player,
		provider: opts.Provider,
		clip:     opts.Clipboard,
		now:      opts.Now,
		progress: opts.Progress,
	}
	if p.fs == nil {
		p.fs = afero.NewOsFs()
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard, "", 0)
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.in == nil {
		p.in = os.Stdin
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.clip == nil {
		p.clip = systemClipboard{}
	}
	if p.player == nil {
		p.player = audio.NewCommandPlayer()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audio.NewCommandRecorder(os.TempDir())
	}

	var extractProgress io.Writer
	if p.progress {
		extractProgress = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	p.session = session.New(session.Options{
		Fs:          p.fs,
		DataDir:     p.settings.DataDir,
		Preferences: config.NewStore(p.fs, p.settings.ConfigDir, p.logger),
		Recorder:    recorder,
		Player:      p.player,
		AudioPrefix: p.settings.AudioPrefix,
		AudioExt:    p.settings.AudioExt,
		SettleDelay: p.settings.SettleDelay,
		Logger:      p.logger,
		Now:         p.now,
		Progress:    extractProgress,
		OnComplete: func() {
			fmt.Fprintln(p.out, "Every card side has audio. Well done!")
		},
	})

	if err := p.session.Resume(context.Background()); err != nil {
		// A broken recent deck must not block importing another one
		p.logger.Printf("Could not resume the last deck: %v", err)
	}
	return p, nil
}

// Session returns the underlying session
func (p *Processor) Session() *session.Session {
	return p.session
}

// Import imports a deck and shows its first card
func (p *Processor) Import(path string) error {
	if err := p.session.ImportFromPath(context.Background(), path); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Imported %d flashcards into %s\n", len(p.session.Cards()), p.session.WorkingCopyPath())
	return p.Show(false)
}

// Show prints the visible side
func (p *Processor) Show(textOnly bool) error {
	d := p.session.DisplayState()
	if textOnly {
		fmt.Fprintln(p.out, d.Text)
		return nil
	}

	if !d.Loaded || d.Total == 0 {
		fmt.Fprintln(p.out, d.Message)
		return nil
	}
	if d.EndOfDeck {
		fmt.Fprintf(p.out, "%s: %s\n", d.Title, d.Message)
		return nil
	}

	fmt.Fprintf(p.out, "%s  %s  [%s]\n", d.Title, d.Position(), d.Face)
	fmt.Fprintln(p.out, d.Text)
	switch {
	case d.AudioAvailable:
		fmt.Fprintf(p.out, "audio: %s\n", filepath.Base(d.AudioPath))
	case d.AudioPath != "":
		fmt.Fprintf(p.out, "audio: %s (missing)\n", filepath.Base(d.AudioPath))
	default:
		fmt.Fprintln(p.out, "audio: none")
	}
	return nil
}

// Next moves forward and shows the new side
func (p *Processor) Next() error {
	if err := p.session.Next(context.Background()); err != nil {
		return err
	}
	return p.showAndWait()
}

// Previous moves back and shows the new side
func (p *Processor) Previous() error {
	if err := p.session.Previous(context.Background()); err != nil {
		return err
	}
	return p.showAndWait()
}

// Jump moves to the front of a 1-based card number
func (p *Processor) Jump(target string) error {
	if err := p.session.JumpTo(context.Background(), target); err != nil {
		return err
	}
	return p.showAndWait()
}

// Record captures audio for the visible side. With a zero duration the
// capture runs until a line is read from the input.
func (p *Processor) Record(duration time.Duration) error {
	ctx := context.Background()
	if err := p.session.StartRecording(ctx); err != nil {
		return err
	}

	if duration > 0 {
		fmt.Fprintf(p.out, "Recording for %s...\n", duration)
		time.Sleep(duration)
	} else {
		fmt.Fprintln(p.out, "Recording... press Enter to stop")
		if _, err := bufio.NewReader(p.in).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			p.logger.Printf("Error reading input: %v", err)
		}
	}

	if err := p.session.StopRecording(ctx); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Saved recording")
	return p.showAndWait()
}

// Attach commits an existing audio file as the visible side's recording
func (p *Processor) Attach(file string) error {
	if ext := strings.ToLower(filepath.Ext(file)); ext != p.audioExt() {
		return fmt.Errorf("attach expects a %s file, got %q", p.audioExt(), ext)
	}
	data, err := audio.ReadRecording(p.fs, file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	if err := p.session.CommitRecording(data); err != nil {
		return err
	}
	return p.Show(false)
}

// Edit replaces the text of the visible side
func (p *Processor) Edit(text string) error {
	if err := p.session.EditCurrentCardText(context.Background(), text); err != nil {
		return err
	}
	return p.Show(false)
}

// Copy puts the text of the visible side on the clipboard
func (p *Processor) Copy() error {
	d := p.session.DisplayState()
	switch {
	case !d.Loaded || d.Total == 0:
		return session.ErrNoDeck
	case d.EndOfDeck:
		return session.ErrNotOnCard
	}
	if err := p.clip.WriteAll(d.Text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	fmt.Fprintf(p.out, "Copied %q\n", d.Text)
	return nil
}

// Listen plays the visible side and waits for playback to end
func (p *Processor) Listen() error {
	if err := p.session.Listen(); err != nil {
		return err
	}
	p.waitForPlayback()
	return nil
}

// Fill synthesizes speech for every side that has text but no audio.
// Failures are collected and reported together; the remaining sides are
// still processed.
func (p *Processor) Fill() error {
	if p.session.WorkingCopyPath() == "" {
		return session.ErrNoDeck
	}
	missing := p.session.MissingAudio()
	if len(missing) == 0 {
		fmt.Fprintln(p.out, "Every card side already has audio")
		return nil
	}

	provider, err := p.speechProvider()
	if err != nil {
		return err
	}

	tmpDir, err := afero.TempDir(afero.NewOsFs(), "", "flashrec_fill_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	bar := p.countBar(len(missing), "synthesizing")
	ctx := context.Background()
	filled := 0
	var errs error

	for i, at := range missing {
		err := p.fillSide(ctx, provider, at, filepath.Join(tmpDir, fmt.Sprintf("side-%d%s", i, p.audioExt())))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("card %d %s: %w", at.Index+1, at.Face, err))
		} else {
			filled++
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	fmt.Fprintf(p.out, "Filled %d of %d sides using %s\n", filled, len(missing), provider.Name())
	return errs
}

func (p *Processor) fillSide(ctx context.Context, provider audio.Provider, at session.Cursor, tmpFile string) error {
	text, err := p.session.SideText(at)
	if err != nil {
		return err
	}
	if err := audio.ValidateText(text); err != nil {
		return err
	}
	if err := provider.GenerateAudio(ctx, text, tmpFile); err != nil {
		return err
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return err
	}
	return p.session.CommitRecordingAt(at, data)
}

// speechProvider builds the configured provider. OpenAI calls go through a
// circuit breaker and fall back to espeak-ng when it is installed.
func (p *Processor) speechProvider() (audio.Provider, error) {
	if p.provider != nil {
		return p.provider, nil
	}

	cfg := *p.settings.Provider
	cfg.CacheDir = p.cacheDir()
	primary, err := audio.NewProvider(&cfg)
	if cfg.Provider != "openai" {
		return primary, err
	}

	espeakCfg := cfg
	espeakCfg.Provider = "espeak"
	fallback, fallbackErr := audio.NewProvider(&espeakCfg)

	switch {
	case err != nil && fallbackErr != nil:
		return nil, multierr.Combine(err, fallbackErr)
	case err != nil:
		p.logger.Printf("OpenAI unavailable (%v), using %s", err, fallback.Name())
		return fallback, nil
	}

	breaker := audio.NewBreakerProvider(primary, 3, 30*time.Second)
	if fallbackErr != nil {
		return breaker, nil
	}
	return audio.NewProviderWithFallback(breaker, fallback, p.logger), nil
}

// ExportZip writes the working directory to dest, or to a name derived
// from the deck title in the current directory when dest is empty
func (p *Processor) ExportZip(dest string) error {
	workDir, err := p.workDir()
	if err != nil {
		return err
	}
	if dest == "" {
		dest = p.session.SuggestedExportName()
	}

	var progress io.Writer
	if p.progress {
		size, err := archive.DirSize(p.fs, workDir)
		if err != nil {
			return err
		}
		progress = progressbar.DefaultBytes(size, "exporting")
	}

	if err := p.session.ExportWorkingCopyToZip(dest, progress); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Exported %s to %s\n", filepath.Base(workDir), dest)
	return nil
}

// ExportAPKG writes an Anki package of the current deck
func (p *Processor) ExportAPKG(dest string) error {
	cards, err := p.ankiCards()
	if err != nil {
		return err
	}

	gen := anki.NewAPKGGenerator(p.deckName())
	for _, card := range cards {
		gen.AddCard(card)
	}
	if err := gen.GenerateAPKG(dest); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Anki package created: %s\n", dest)
	return nil
}

// ExportCSV writes an Anki CSV plus a collection.media folder next to it
func (p *Processor) ExportCSV(dest string) error {
	cards, err := p.ankiCards()
	if err != nil {
		return err
	}

	gen := anki.NewGenerator(&anki.GeneratorOptions{
		Fs:             p.fs,
		OutputPath:     dest,
		MediaFolder:    filepath.Join(filepath.Dir(dest), "collection.media"),
		IncludeHeaders: false,
	})
	for _, card := range cards {
		gen.AddCard(card)
	}
	if err := gen.GenerateCSV(); err != nil {
		return err
	}

	total, withAudio := gen.Stats()
	fmt.Fprintf(p.out, "Anki CSV created: %s (%d cards, %d with audio)\n", dest, total, withAudio)
	return nil
}

// Archive moves the current working directory into the archive and
// forgets it as the recent deck
func (p *Processor) Archive() error {
	workDir, err := p.workDir()
	if err != nil {
		return err
	}

	archived, err := archive.ArchiveDir(p.fs, workDir, p.now())
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", workDir, err)
	}
	if err := p.session.UpdatePreferences(func(prefs *config.Preferences) {
		prefs.RecentImportPath = ""
		prefs.RecentIndex = 0
		prefs.RecentSide = 0
	}); err != nil {
		return err
	}

	fmt.Fprintf(p.out, "Archived to %s\n", archived)
	return nil
}

// Prefs applies the given preference changes and prints the result
func (p *Processor) Prefs(changes cli.PrefChanges) error {
	if !changes.Empty() {
		err := p.session.UpdatePreferences(func(prefs *config.Preferences) {
			if changes.ListenAfterRecord != nil {
				prefs.ListenAfterRecord = *changes.ListenAfterRecord
			}
			if changes.ListenAfterLoad != nil {
				prefs.ListenAfterLoad = *changes.ListenAfterLoad
			}
		})
		if err != nil {
			return err
		}
	}

	prefs := p.session.Preferences()
	fmt.Fprintf(p.out, "listen-after-record: %t\n", prefs.ListenAfterRecord)
	fmt.Fprintf(p.out, "listen-after-load:   %t\n", prefs.ListenAfterLoad)
	return nil
}

// ListModels prints the OpenAI speech models
func (p *Processor) ListModels() error {
	return models.NewLister(p.settings.Provider.OpenAIKey).ListAvailableModels(context.Background(), p.out)
}

// Cache reports the size of the speech cache, removing it first when clear is set
func (p *Processor) Cache(clear bool) error {
	dir := p.cacheDir()
	if clear {
		if err := audio.ClearCache(p.fs, dir); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dir, err)
		}
		fmt.Fprintf(p.out, "Cleared %s\n", dir)
	}

	count, size, err := audio.CacheStats(p.fs, dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	fmt.Fprintf(p.out, "%d cached speech files, %d bytes in %s\n", count, size, dir)
	return nil
}

func (p *Processor) cacheDir() string {
	if p.settings.Provider.CacheDir != "" {
		return p.settings.Provider.CacheDir
	}
	return internal.DefaultCacheDir()
}

func (p *Processor) ankiCards() ([]anki.Card, error) {
	workDir, err := p.workDir()
	if err != nil {
		return nil, err
	}
	exists := func(path string) bool {
		ok, _ := afero.Exists(p.fs, path)
		return ok
	}
	return anki.CardsFromDeck(p.session.Cards(), workDir, exists), nil
}

func (p *Processor) workDir() (string, error) {
	path := p.session.WorkingCopyPath()
	if path == "" {
		return "", session.ErrNoDeck
	}
	return filepath.Dir(path), nil
}

func (p *Processor) deckName() string {
	if p.settings.DeckName != "" {
		return p.settings.DeckName
	}
	return p.session.DisplayState().Title
}

func (p *Processor) audioExt() string {
	if p.settings.AudioExt == "" {
		return audio.DefaultExt
	}
	return p.settings.AudioExt
}

func (p *Processor) countBar(max int, desc string) *progressbar.ProgressBar {
	if !p.progress {
		return nil
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// showAndWait prints the new side and lets autoplay finish before the
// process exits
func (p *Processor) showAndWait() error {
	if err := p.Show(false); err != nil {
		return err
	}
	p.waitForPlayback()
	return nil
}

func (p *Processor) waitForPlayback() {
	player, ok := p.player.(interface{ Playing() bool })
	if !ok {
		return
	}
	for player.Playing() {
		time.Sleep(50 * time.Millisecond)
	}
}
