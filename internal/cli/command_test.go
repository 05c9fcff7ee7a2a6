package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// recordingActions remembers which action ran with which argument
type recordingActions struct {
	calls []string
	prefs PrefChanges
}

func (r *recordingActions) add(call string) error {
	r.calls = append(r.calls, call)
	return nil
}

func (r *recordingActions) Import(path string) error     { return r.add("import " + path) }
func (r *recordingActions) Next() error                  { return r.add("next") }
func (r *recordingActions) Previous() error              { return r.add("prev") }
func (r *recordingActions) Jump(target string) error     { return r.add("jump " + target) }
func (r *recordingActions) Attach(file string) error     { return r.add("attach " + file) }
func (r *recordingActions) Edit(text string) error       { return r.add("edit " + text) }
func (r *recordingActions) Listen() error                { return r.add("listen") }
func (r *recordingActions) Copy() error                  { return r.add("copy") }
func (r *recordingActions) Fill() error                  { return r.add("fill") }
func (r *recordingActions) ExportZip(dest string) error  { return r.add("export " + dest) }
func (r *recordingActions) ExportAPKG(dest string) error { return r.add("apkg " + dest) }
func (r *recordingActions) ExportCSV(dest string) error  { return r.add("csv " + dest) }
func (r *recordingActions) Archive() error               { return r.add("archive") }
func (r *recordingActions) ListModels() error            { return r.add("models") }

func (r *recordingActions) Show(textOnly bool) error {
	if textOnly {
		return r.add("show --text")
	}
	return r.add("show")
}

func (r *recordingActions) Cache(clear bool) error {
	if clear {
		return r.add("cache --clear")
	}
	return r.add("cache")
}

func (r *recordingActions) Record(d time.Duration) error {
	return r.add("record " + d.String())
}

func (r *recordingActions) Prefs(changes PrefChanges) error {
	r.prefs = changes
	return r.add("prefs")
}

func execute(t *testing.T, args ...string) *recordingActions {
	t.Helper()
	viper.Reset()

	actions := &recordingActions{}
	cmd := CreateRootCommand(NewFlags(), func() (Actions, error) { return actions, nil })
	cmd.SetArgs(append([]string{}, args...))
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute(%v) error = %v", args, err)
	}
	return actions
}

func TestCreateRootCommand(t *testing.T) {
	cmd := CreateRootCommand(NewFlags(), nil)

	if cmd.Use != "flashrec" {
		t.Errorf("Expected Use to be 'flashrec', got %s", cmd.Use)
	}

	for _, name := range []string{
		"config", "data-dir", "config-dir", "verbose", "deck-name", "format", "prefix",
		"settle-ms", "provider", "openai-model", "openai-voice", "openai-speed",
		"openai-instruction", "espeak-voice",
	} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag %s to exist", name)
		}
	}

	want := []string{"import", "show", "next", "prev", "jump", "record", "attach", "edit",
		"listen", "copy", "fill", "export", "export-apkg", "anki-csv", "archive", "prefs", "models", "cache"}
	for _, name := range want {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub == cmd {
			t.Errorf("Expected subcommand %s", name)
		}
	}
}

func TestSetupFlags(t *testing.T) {
	cmd := &cobra.Command{}
	flags := NewFlags()

	setupFlags(cmd, flags)

	tests := []struct {
		name      string
		shorthand string
		value     string
	}{
		{"format", "f", ".wav"},
		{"verbose", "v", "false"},
		{"settle-ms", "", "200"},
		{"provider", "", "openai"},
		{"deck-name", "", "flashrec"},
		{"espeak-voice", "", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flag *pflag.Flag
			flag = cmd.PersistentFlags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("Expected persistent flag %s to exist", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("Flag %s shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.value {
				t.Errorf("Flag %s default = %q, want %q", tt.name, flag.DefValue, tt.value)
			}
		})
	}
}

func TestSubcommandDispatch(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "show"},
		{[]string{"import", "deck.txt"}, "import deck.txt"},
		{[]string{"show", "--text"}, "show --text"},
		{[]string{"next"}, "next"},
		{[]string{"previous"}, "prev"},
		{[]string{"jump", "3"}, "jump 3"},
		{[]string{"record", "--seconds", "2"}, "record 2s"},
		{[]string{"attach", "take.wav"}, "attach take.wav"},
		{[]string{"edit", "le", "chat"}, "edit le chat"},
		{[]string{"listen"}, "listen"},
		{[]string{"copy"}, "copy"},
		{[]string{"fill"}, "fill"},
		{[]string{"export", "out.zip"}, "export out.zip"},
		{[]string{"export"}, "export "},
		{[]string{"export-apkg", "out.apkg"}, "apkg out.apkg"},
		{[]string{"anki-csv", "out.csv"}, "csv out.csv"},
		{[]string{"archive"}, "archive"},
		{[]string{"models"}, "models"},
		{[]string{"cache"}, "cache"},
		{[]string{"cache", "--clear"}, "cache --clear"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(append([]string{"cmd"}, tt.args...), "_"), func(t *testing.T) {
			actions := execute(t, tt.args...)
			if len(actions.calls) != 1 || actions.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", actions.calls, tt.want)
			}
		})
	}
}

func TestPrefsOnlyReportsGivenFlags(t *testing.T) {
	actions := execute(t, "prefs", "--listen-after-load")
	if actions.prefs.ListenAfterRecord != nil {
		t.Error("listen-after-record was not given")
	}
	if actions.prefs.ListenAfterLoad == nil || !*actions.prefs.ListenAfterLoad {
		t.Error("listen-after-load should be set to true")
	}

	actions = execute(t, "prefs")
	if !actions.prefs.Empty() {
		t.Error("prefs without flags should not change anything")
	}
}

func TestInitConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfgPath := filepath.Join(t.TempDir(), "flashrec.yaml")
	content := `data_dir: /test/decks
audio:
  prefix: fr_
  openai_key: test-key
anki:
  deck_name: French`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}

	InitConfig(cfgPath)

	if got := viper.GetString("data_dir"); got != "/test/decks" {
		t.Errorf("data_dir = %q", got)
	}
	if got := viper.GetString("anki.deck_name"); got != "French" {
		t.Errorf("anki.deck_name = %q", got)
	}

	t.Setenv("FLASHREC_AUDIO_PREFIX", "env_")
	if got := viper.GetString("audio.prefix"); got != "env_" {
		t.Errorf("Environment should override the config file, got %q", got)
	}
}

func TestGetOpenAIKey(t *testing.T) {
	defer viper.Reset()

	tests := []struct {
		name      string
		envKey    string
		configKey string
		expected  string
	}{
		{"from environment", "env-test-key", "config-test-key", "env-test-key"},
		{"from config when no env", "", "config-test-key", "config-test-key"},
		{"empty when neither set", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Setenv("OPENAI_API_KEY", tt.envKey)
			if tt.configKey != "" {
				viper.Set("audio.openai_key", tt.configKey)
			}

			if got := GetOpenAIKey(); got != tt.expected {
				t.Errorf("GetOpenAIKey() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoadSettings(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{}
	setupFlags(cmd, NewFlags())
	cmd.PersistentFlags().Set("format", "mp3")
	cmd.PersistentFlags().Set("settle-ms", "350")
	cmd.PersistentFlags().Set("provider", "espeak")

	settings := LoadSettings()
	if settings.AudioExt != ".mp3" {
		t.Errorf("AudioExt = %q, want .mp3", settings.AudioExt)
	}
	if settings.SettleDelay != 350*time.Millisecond {
		t.Errorf("SettleDelay = %v", settings.SettleDelay)
	}
	if settings.Provider.Provider != "espeak" {
		t.Errorf("Provider = %q", settings.Provider.Provider)
	}
	if settings.Provider.OpenAIModel != "gpt-4o-mini-tts" {
		t.Errorf("OpenAIModel default lost: %q", settings.Provider.OpenAIModel)
	}
}
