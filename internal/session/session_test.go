package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/snonux/flashrec/internal/archive"
	"codeberg.org/snonux/flashrec/internal/audio"
	"codeberg.org/snonux/flashrec/internal/config"
	"codeberg.org/snonux/flashrec/internal/deck"
	"codeberg.org/snonux/flashrec/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	fs        afero.Fs
	root      string
	dataDir   string
	clock     *clock
	prefs     *testutil.MockPreferences
	recorder  *testutil.MockRecorder
	player    *testutil.MockPlayer
	logs      *bytes.Buffer
	states    []DisplayState
	completed int
	session   *Session
}

// saveFailingFs refuses to replace deck files while failing is set
type saveFailingFs struct {
	afero.Fs
	failing bool
}

func (f *saveFailingFs) Rename(oldname, newname string) error {
	if f.failing && strings.HasSuffix(newname, ".txt") {
		return errors.New("disk full")
	}
	return f.Fs.Rename(oldname, newname)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		fs:       afero.NewOsFs(),
		root:     root,
		dataDir:  filepath.Join(root, "data"),
		clock:    &clock{now: time.Date(2024, 3, 5, 7, 8, 9, 0, time.Local)},
		prefs:    testutil.NewMockPreferences(),
		recorder: &testutil.MockRecorder{Buffer: testutil.FakeWAV("take")},
		player:   &testutil.MockPlayer{},
		logs:     &bytes.Buffer{},
	}
	h.session = h.open()
	return h
}

// open starts a new session sharing the harness' preferences and clock
func (h *harness) open() *Session {
	return New(Options{
		Fs:          h.fs,
		DataDir:     h.dataDir,
		Preferences: h.prefs,
		Recorder:    h.recorder,
		Player:      h.player,
		SettleDelay: time.Millisecond,
		Logger:      log.New(h.logs, "", 0),
		Now:         h.clock.Now,
		OnChange:    func(d DisplayState) { h.states = append(h.states, d) },
		OnComplete:  func() { h.completed++ },
	})
}

func (h *harness) importDeck(t *testing.T, lines []string, audioFiles ...string) {
	t.Helper()
	path := testutil.CreateTestDeck(t, filepath.Join(h.root, "downloads"), "deck.txt", lines, audioFiles...)
	require.NoError(t, h.session.ImportFromPath(context.Background(), path))
}

func (h *harness) workFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(h.session.WorkingCopyPath())
	require.NoError(t, err)
	return string(data)
}

func TestImportNormalizesAudio(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat[sound:cat.wav]\tchat"}, "cat.wav")

	workDir := filepath.Join(h.dataDir, "deck_2024-03-05_07-08-09")
	assert.Equal(t, filepath.Join(workDir, "deck_2024-03-05_07-08-09.txt"), h.session.WorkingCopyPath())

	card := h.session.Cards()[0]
	assert.Equal(t, "cat_2024-03-05_07-08-09.wav", card.Front.AudioFileName)
	assert.False(t, card.Back.HasAudio())
	testutil.AssertFileContent(t, filepath.Join(workDir, card.Front.AudioFileName), testutil.FakeWAV("cat.wav"))
	testutil.AssertFileExists(t, filepath.Join(h.root, "downloads", "cat.wav"))
	assert.Equal(t, "cat[sound:cat_2024-03-05_07-08-09.wav]\tchat\n", h.workFile(t))

	state := h.session.DisplayState()
	assert.True(t, state.Loaded)
	assert.Equal(t, "cat", state.Text)
	assert.Equal(t, "1 / 1", state.Position())
	assert.True(t, state.AudioAvailable)
	assert.Equal(t, "deck_2024-03-05_07-08-09", state.Title)

	assert.Equal(t, h.session.WorkingCopyPath(), h.prefs.Prefs.RecentImportPath)
	assert.NotEmpty(t, h.states)
}

func TestImportMissingSourceAudioKeepsName(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat[sound:gone.wav]\tchat"})

	card := h.session.Cards()[0]
	assert.Equal(t, "gone.wav", card.Front.AudioFileName)
	assert.False(t, h.session.DisplayState().AudioAvailable)
	assert.Contains(t, h.logs.String(), "source is missing")
}

func TestReopenDoesNotDuplicateAudio(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat[sound:cat.wav]\tchat"}, "cat.wav")
	path := h.session.WorkingCopyPath()
	before := h.workFile(t)

	h.clock.advance(time.Minute)
	require.NoError(t, h.session.ImportFromPath(context.Background(), path))

	assert.Equal(t, path, h.session.WorkingCopyPath())
	assert.Equal(t, before, h.workFile(t))
	assert.ElementsMatch(t,
		[]string{"deck_2024-03-05_07-08-09.txt", "cat_2024-03-05_07-08-09.wav"},
		testutil.ListFiles(t, filepath.Dir(path)))
}

func TestImportFailureKeepsCurrentDeck(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	path := h.session.WorkingCopyPath()

	err := h.session.ImportFromPath(context.Background(), filepath.Join(h.root, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, path, h.session.WorkingCopyPath())
	assert.Len(t, h.session.Cards(), 1)
}

func TestNavigation(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"one\teins", "two\tzwei"})
	ctx := context.Background()

	steps := []Cursor{
		{Index: 0, Face: deck.Back},
		{Index: 1, Face: deck.Front},
		{Index: 1, Face: deck.Back},
		{Index: 1, Face: deck.Back}, // no-op at the end
	}
	for _, want := range steps {
		require.NoError(t, h.session.Next(ctx))
		assert.Equal(t, want, h.session.Cursor())
	}
	assert.False(t, h.session.DisplayState().CanNext)
	assert.Equal(t, 1, h.prefs.Prefs.RecentIndex)
	assert.Equal(t, 1, h.prefs.Prefs.RecentSide)

	back := []Cursor{
		{Index: 1, Face: deck.Front},
		{Index: 0, Face: deck.Back},
		{Index: 0, Face: deck.Front},
		{Index: 0, Face: deck.Front}, // no-op at the start
	}
	for _, want := range back {
		require.NoError(t, h.session.Previous(ctx))
		assert.Equal(t, want, h.session.Cursor())
	}
	assert.False(t, h.session.DisplayState().CanPrevious)
	assert.Equal(t, "eins", h.session.Cards()[0].Back.Text)
}

func TestJumpTo(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"one\teins", "two\tzwei", "three\tdrei"})
	ctx := context.Background()

	require.NoError(t, h.session.JumpTo(ctx, "3"))
	assert.Equal(t, Cursor{Index: 2, Face: deck.Front}, h.session.Cursor())

	for _, input := range []string{"0", "4", "-1", "abc", "2x", ""} {
		err := h.session.JumpTo(ctx, input)
		var jumpErr *JumpError
		require.True(t, errors.As(err, &jumpErr), "input %q", input)
		assert.Equal(t, 3, jumpErr.Total)
		assert.Equal(t, Cursor{Index: 2, Face: deck.Front}, h.session.Cursor(), "input %q must not move", input)
	}
}

func TestDeckWithoutValidRowsAsksForImport(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"front only", "\tback only"})

	assert.Empty(t, h.session.Cards())
	state := h.session.DisplayState()
	assert.True(t, state.Loaded)
	assert.False(t, state.EndOfDeck)
	assert.Equal(t, "Please import flashcards", state.Message)
	assert.Empty(t, state.Position())
	assert.False(t, state.CanRecord)
}

func TestOperationsWithoutDeck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.session.Next(ctx), ErrNoDeck)
	assert.ErrorIs(t, h.session.Previous(ctx), ErrNoDeck)
	assert.ErrorIs(t, h.session.JumpTo(ctx, "1"), ErrNoDeck)
	assert.ErrorIs(t, h.session.StartRecording(ctx), ErrNoDeck)
	assert.ErrorIs(t, h.session.CommitRecording([]byte("x")), ErrNoDeck)
	assert.ErrorIs(t, h.session.EditCurrentCardText(ctx, "x"), ErrNoDeck)
	assert.ErrorIs(t, h.session.ExportWorkingCopyToZip(filepath.Join(h.root, "out.zip"), nil), ErrNoDeck)

	state := h.session.DisplayState()
	assert.False(t, state.Loaded)
	assert.Equal(t, "Please import flashcards", state.Message)
	assert.Empty(t, h.recorder.Calls)
}

func TestRecordAndListen(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	ctx := context.Background()

	require.NoError(t, h.session.StartRecording(ctx))
	assert.True(t, h.session.DisplayState().Recording)
	require.NoError(t, h.session.StopRecording(ctx))
	assert.False(t, h.session.Recording())

	card := h.session.Cards()[0]
	assert.Equal(t, "cat_2024-03-05_07-08-09.wav", card.Front.AudioFileName)

	audioPath := filepath.Join(filepath.Dir(h.session.WorkingCopyPath()), card.Front.AudioFileName)
	testutil.AssertFileContent(t, audioPath, testutil.FakeWAV("take"))
	assert.Equal(t, "cat[sound:cat_2024-03-05_07-08-09.wav]\tchat\n", h.workFile(t))

	// listenAfterRecord is on by default
	assert.Equal(t, []string{audioPath}, h.player.Played)
	assert.Equal(t, []string{"START", "STOP"}, h.recorder.Calls)
}

func TestRecordingFinalizedOnNavigation(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	ctx := context.Background()

	require.NoError(t, h.session.StartRecording(ctx))
	require.NoError(t, h.session.Next(ctx))

	card := h.session.Cards()[0]
	assert.True(t, card.Front.HasAudio(), "the recording belongs to the side it was started on")
	assert.False(t, card.Back.HasAudio())
	assert.Equal(t, Cursor{Index: 0, Face: deck.Back}, h.session.Cursor())
	assert.Empty(t, h.player.Played, "auto-stopped recordings are not played back")
}

func TestReRecordReplacesPreviousFile(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	workDir := filepath.Dir(h.session.WorkingCopyPath())

	require.NoError(t, h.session.CommitRecording([]byte("first")))
	first := h.session.Cards()[0].Front.AudioFileName

	h.clock.advance(time.Second)
	require.NoError(t, h.session.CommitRecording([]byte("second")))
	second := h.session.Cards()[0].Front.AudioFileName

	assert.NotEqual(t, first, second)
	testutil.AssertFileNotExists(t, filepath.Join(workDir, first))
	testutil.AssertFileContent(t, filepath.Join(workDir, second), []byte("second"))
}

func TestEmptyRecordingIsRejected(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	before := h.workFile(t)

	err := h.session.CommitRecording(nil)
	assert.ErrorIs(t, err, audio.ErrEmptyRecording)
	assert.False(t, h.session.Cards()[0].Front.HasAudio())
	assert.Equal(t, before, h.workFile(t))
}

func TestCommitRecordingAtEndOfDeck(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})

	err := h.session.CommitRecordingAt(Cursor{Index: 1}, []byte("x"))
	assert.ErrorIs(t, err, ErrNotOnCard)
}

func TestEditRenamesAudio(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	ctx := context.Background()
	workDir := filepath.Dir(h.session.WorkingCopyPath())

	require.NoError(t, h.session.CommitRecording([]byte("meow")))
	old := h.session.Cards()[0].Front.AudioFileName

	h.clock.advance(time.Second)
	require.NoError(t, h.session.EditCurrentCardText(ctx, "kitten"))

	side := h.session.Cards()[0].Front
	assert.Equal(t, "kitten", side.Text)
	assert.Equal(t, "kitten_2024-03-05_07-08-10.wav", side.AudioFileName)
	testutil.AssertFileNotExists(t, filepath.Join(workDir, old))
	testutil.AssertFileContent(t, filepath.Join(workDir, side.AudioFileName), []byte("meow"))
	assert.Equal(t, "kitten[sound:kitten_2024-03-05_07-08-10.wav]\tchat\n", h.workFile(t))
}

func TestEditWithoutAudioIsSaved(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	ctx := context.Background()

	require.NoError(t, h.session.Next(ctx))
	require.NoError(t, h.session.EditCurrentCardText(ctx, "le chat"))
	assert.Equal(t, "cat\tle chat\n", h.workFile(t))
}

func TestEditRejectsTextThatWouldNotReload(t *testing.T) {
	for _, text := range []string{"a\tb", "a\nb", "", "   ", "a[sound:x.wav]"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			h := newHarness(t)
			h.importDeck(t, []string{"cat[sound:cat.wav]\tchat", "dog\tchien"}, "cat.wav")
			before := h.workFile(t)
			workDir := filepath.Dir(h.session.WorkingCopyPath())
			files := testutil.ListFiles(t, workDir)

			err := h.session.EditCurrentCardText(context.Background(), text)
			assert.ErrorIs(t, err, deck.ErrInvalidText)
			assert.Equal(t, "cat", h.session.Cards()[0].Front.Text)
			assert.Equal(t, before, h.workFile(t))
			assert.ElementsMatch(t, files, testutil.ListFiles(t, workDir))

			resumed := h.open()
			require.NoError(t, resumed.Resume(context.Background()))
			require.Len(t, resumed.Cards(), 2)
			assert.Equal(t, "cat", resumed.Cards()[0].Front.Text)
			assert.Equal(t, "chat", resumed.Cards()[0].Back.Text)
		})
	}
}

func TestFailedSaveKeepsPreviousRecording(t *testing.T) {
	h := newHarness(t)
	fs := &saveFailingFs{Fs: afero.NewOsFs()}
	h.fs = fs
	h.session = h.open()
	h.importDeck(t, []string{"cat\tchat"})
	workDir := filepath.Dir(h.session.WorkingCopyPath())

	require.NoError(t, h.session.CommitRecording([]byte("first")))
	first := h.session.Cards()[0].Front.AudioFileName

	h.clock.advance(time.Second)
	fs.failing = true
	assert.Error(t, h.session.CommitRecording([]byte("second")))

	assert.Equal(t, first, h.session.Cards()[0].Front.AudioFileName)
	testutil.AssertFileContent(t, filepath.Join(workDir, first), []byte("first"))
	testutil.AssertFileNotExists(t, filepath.Join(workDir, "cat_2024-03-05_07-08-10.wav"))
	assert.Equal(t, "cat[sound:"+first+"]\tchat\n", h.workFile(t))
}

func TestCompletionFiresOnce(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat\tchat"})
	ctx := context.Background()

	require.NoError(t, h.session.CommitRecording([]byte("front")))
	assert.Zero(t, h.completed)

	require.NoError(t, h.session.Next(ctx))
	require.NoError(t, h.session.CommitRecording([]byte("back")))
	assert.Equal(t, 1, h.completed)
	assert.True(t, h.session.DisplayState().Complete)

	h.clock.advance(time.Second)
	require.NoError(t, h.session.CommitRecording([]byte("again")))
	assert.Equal(t, 1, h.completed)
}

func TestCompletionSurvivesEdit(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat[sound:a.wav]\tchat[sound:b.wav]"}, "a.wav", "b.wav")
	assert.Equal(t, 1, h.completed, "a fully recorded deck completes on load")

	// The edited card is checked again; completion is still reported once
	require.NoError(t, h.session.EditCurrentCardText(context.Background(), "kitten"))
	assert.True(t, h.session.Complete())
	assert.Equal(t, 1, h.completed)
}

func TestResume(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"one\teins", "two\tzwei"})
	ctx := context.Background()
	require.NoError(t, h.session.JumpTo(ctx, "2"))
	require.NoError(t, h.session.Next(ctx))

	resumed := h.open()
	require.NoError(t, resumed.Resume(ctx))
	assert.Equal(t, h.session.WorkingCopyPath(), resumed.WorkingCopyPath())
	assert.Equal(t, Cursor{Index: 1, Face: deck.Back}, resumed.Cursor())
}

func TestResumeClampsIndex(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"one\teins", "two\tzwei"})
	h.prefs.Prefs.RecentIndex = 10

	resumed := h.open()
	require.NoError(t, resumed.Resume(context.Background()))
	assert.Equal(t, Cursor{Index: 1, Face: deck.Front}, resumed.Cursor())
}

func TestResumeMissingDeck(t *testing.T) {
	h := newHarness(t)
	h.prefs.Prefs.RecentImportPath = filepath.Join(h.root, "gone", "deck.txt")

	s := h.open()
	require.NoError(t, s.Resume(context.Background()))
	assert.False(t, s.DisplayState().Loaded)
}

func TestListenAfterLoad(t *testing.T) {
	h := newHarness(t)
	h.prefs.Prefs.ListenAfterLoad = true
	h.session = h.open()
	h.importDeck(t, []string{"cat\tchat[sound:chat.wav]"}, "chat.wav")

	assert.Empty(t, h.player.Played, "the front has no audio")
	require.NoError(t, h.session.Next(context.Background()))
	require.Len(t, h.player.Played, 1)
	assert.True(t, strings.HasSuffix(h.player.Played[0], "chat_2024-03-05_07-08-09.wav"))
	assert.Positive(t, h.player.Stops, "every move stops the previous playback")
}

func TestExportWorkingCopyToZip(t *testing.T) {
	h := newHarness(t)
	h.importDeck(t, []string{"cat[sound:cat.wav]\tchat"}, "cat.wav")

	dest := filepath.Join(h.root, h.session.SuggestedExportName())
	require.NoError(t, h.session.ExportWorkingCopyToZip(dest, nil))
	testutil.AssertFileExists(t, dest)

	nested := filepath.Join(filepath.Dir(h.session.WorkingCopyPath()), "out.zip")
	assert.ErrorIs(t, h.session.ExportWorkingCopyToZip(nested, nil), archive.ErrNestedDestination)
}

func TestUpdatePreferences(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.UpdatePreferences(func(p *config.Preferences) {
		p.ListenAfterLoad = true
	}))
	assert.True(t, h.prefs.Prefs.ListenAfterLoad)
	assert.True(t, h.session.Preferences().ListenAfterLoad)
}

func TestMissingAudio(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.session.MissingAudio())

	h.importDeck(t, []string{"cat[sound:cat.wav]\tchat", "dog\thund[sound:gone.wav]"}, "cat.wav")
	assert.Equal(t, []Cursor{
		{Index: 0, Face: deck.Back},
		{Index: 1, Face: deck.Front},
		{Index: 1, Face: deck.Back},
	}, h.session.MissingAudio())

	text, err := h.session.SideText(Cursor{Index: 1, Face: deck.Back})
	require.NoError(t, err)
	assert.Equal(t, "hund", text)

	require.NoError(t, h.session.CommitRecordingAt(Cursor{Index: 0, Face: deck.Back}, []byte("chat")))
	assert.Len(t, h.session.MissingAudio(), 2)
}
