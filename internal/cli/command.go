package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/flashrec/internal"
)

// Actions carries out the subcommands against the current session
type Actions interface {
	Import(path string) error
	Show(textOnly bool) error
	Next() error
	Previous() error
	Jump(target string) error
	Record(duration time.Duration) error
	Attach(file string) error
	Edit(text string) error
	Listen() error
	Copy() error
	Fill() error
	ExportZip(dest string) error
	ExportAPKG(dest string) error
	ExportCSV(dest string) error
	Archive() error
	Prefs(changes PrefChanges) error
	ListModels() error
	Cache(clear bool) error
}

// ActionsFactory builds the Actions once flags and config are parsed
type ActionsFactory func() (Actions, error)

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags, newActions ActionsFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flashrec",
		Short: "Flashcard audio recorder",
		Long: `flashrec imports flashcard decks and records one audio clip per card side.

Decks are plain tab-separated text or CSV files, optionally bundled with
their audio in a zip. Imported decks are kept as managed working copies
and every recording is written back into the deck as [sound:...] markers.

Examples:
  flashrec import words.txt      # Import a deck and show the first card
  flashrec next                  # Flip to the back or move to the next card
  flashrec record --seconds 3    # Record the visible side
  flashrec export deck.zip       # Share the deck together with its audio`,
		Args:    cobra.NoArgs,
		Version: internal.Version,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Show(false)
		}),
	}

	setupFlags(rootCmd, flags)
	addCommands(rootCmd, flags, newActions)

	return rootCmd
}

func run(newActions ActionsFactory, fn func(Actions, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		actions, err := newActions()
		if err != nil {
			return err
		}
		return fn(actions, args)
	}
}

func addCommands(root *cobra.Command, flags *Flags, newActions ActionsFactory) {
	importCmd := &cobra.Command{
		Use:   "import PATH",
		Short: "Import a .txt, .csv or .zip deck",
		Args:  cobra.ExactArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Import(args[0])
		}),
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the visible card side",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Show(flags.TextOnly)
		}),
	}
	showCmd.Flags().BoolVar(&flags.TextOnly, "text", false, "Print only the text of the visible side")

	nextCmd := &cobra.Command{
		Use:   "next",
		Short: "Flip to the back or advance to the next card",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Next()
		}),
	}

	prevCmd := &cobra.Command{
		Use:     "prev",
		Aliases: []string{"previous"},
		Short:   "Flip to the front or go back to the previous card",
		Args:    cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Previous()
		}),
	}

	jumpCmd := &cobra.Command{
		Use:   "jump N",
		Short: "Jump to the front of card N (1-based)",
		Args:  cobra.ExactArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Jump(args[0])
		}),
	}

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record audio for the visible side",
		Long:  "Record audio for the visible side. Without --seconds the recording runs until Enter is pressed.",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Record(time.Duration(flags.RecordSeconds) * time.Second)
		}),
	}
	recordCmd.Flags().IntVar(&flags.RecordSeconds, "seconds", 0, "Stop recording after this many seconds")

	attachCmd := &cobra.Command{
		Use:   "attach FILE",
		Short: "Use an existing audio file as the recording of the visible side",
		Args:  cobra.ExactArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Attach(args[0])
		}),
	}

	editCmd := &cobra.Command{
		Use:   "edit TEXT...",
		Short: "Replace the text of the visible side",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Edit(strings.Join(args, " "))
		}),
	}

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Play the audio of the visible side",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Listen()
		}),
	}

	fillCmd := &cobra.Command{
		Use:   "fill",
		Short: "Synthesize speech for every side without audio",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Fill()
		}),
	}

	copyCmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the text of the visible side to the clipboard",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Copy()
		}),
	}

	exportCmd := &cobra.Command{
		Use:   "export [DEST.zip]",
		Short: "Zip the working directory of the current deck",
		Long: `Zip the working directory of the current deck.

Without DEST the zip is written to the current directory and named after
the deck and the export time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			var dest string
			if len(args) == 1 {
				dest = args[0]
			}
			return a.ExportZip(dest)
		}),
	}

	apkgCmd := &cobra.Command{
		Use:   "export-apkg DEST.apkg",
		Short: "Export the current deck as an Anki package",
		Args:  cobra.ExactArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.ExportAPKG(args[0])
		}),
	}

	csvCmd := &cobra.Command{
		Use:   "anki-csv DEST.csv",
		Short: "Export the current deck as an Anki CSV with a media folder",
		Args:  cobra.ExactArgs(1),
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.ExportCSV(args[0])
		}),
	}

	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Move the working directory of the current deck into the archive",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Archive()
		}),
	}

	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change the listen preferences",
		Args:  cobra.NoArgs,
	}
	prefsCmd.Flags().BoolVar(&flags.ListenAfterRecord, "listen-after-record", true, "Play a recording right after it was made")
	prefsCmd.Flags().BoolVar(&flags.ListenAfterLoad, "listen-after-load", false, "Play the audio of every side that comes into view")
	prefsCmd.RunE = run(newActions, func(a Actions, args []string) error {
		return a.Prefs(prefChanges(prefsCmd, flags))
	})

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the OpenAI speech models available for the API key",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.ListModels()
		}),
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Show or clear the synthesized speech cache",
		Args:  cobra.NoArgs,
		RunE: run(newActions, func(a Actions, args []string) error {
			return a.Cache(flags.ClearCache)
		}),
	}
	cacheCmd.Flags().BoolVar(&flags.ClearCache, "clear", false, "Remove every cached speech file")

	root.AddCommand(importCmd, showCmd, nextCmd, prevCmd, jumpCmd, recordCmd, attachCmd,
		editCmd, listenCmd, copyCmd, fillCmd, exportCmd, apkgCmd, csvCmd, archiveCmd, prefsCmd, modelsCmd, cacheCmd)
}

func prefChanges(cmd *cobra.Command, flags *Flags) PrefChanges {
	var changes PrefChanges
	if cmd.Flags().Changed("listen-after-record") {
		v := flags.ListenAfterRecord
		changes.ListenAfterRecord = &v
	}
	if cmd.Flags().Changed("listen-after-load") {
		v := flags.ListenAfterLoad
		changes.ListenAfterLoad = &v
	}
	return changes
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	pf := cmd.PersistentFlags()

	pf.StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.flashrec.yaml)")
	pf.StringVar(&flags.DataDir, "data-dir", flags.DataDir, "Directory holding the managed working copies")
	pf.StringVar(&flags.ConfigDir, "config-dir", flags.ConfigDir, "Directory holding the preferences file")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "Log every file operation to stderr")
	pf.StringVar(&flags.DeckName, "deck-name", flags.DeckName, "Deck name for Anki exports")

	pf.StringVarP(&flags.AudioFormat, "format", "f", flags.AudioFormat, "Extension of new audio files (.wav or .mp3)")
	pf.StringVar(&flags.AudioPrefix, "prefix", "", "Prefix for new audio file names")
	pf.IntVar(&flags.SettleMS, "settle-ms", flags.SettleMS, "Milliseconds to keep recording after stop")

	pf.StringVar(&flags.Provider, "provider", flags.Provider, "Speech provider for fill: openai or espeak")
	pf.StringVar(&flags.OpenAIModel, "openai-model", flags.OpenAIModel, "OpenAI TTS model: tts-1, tts-1-hd, gpt-4o-mini-tts")
	pf.StringVar(&flags.OpenAIVoice, "openai-voice", flags.OpenAIVoice, "OpenAI voice: alloy, ash, coral, echo, fable, nova, onyx, sage, shimmer")
	pf.Float64Var(&flags.OpenAISpeed, "openai-speed", flags.OpenAISpeed, "OpenAI speech speed (0.25 to 4.0)")
	pf.StringVar(&flags.OpenAIInstruction, "openai-instruction", "", "Voice instructions for gpt-4o-mini-tts")
	pf.StringVar(&flags.ESpeakVoice, "espeak-voice", flags.ESpeakVoice, "espeak-ng voice used when OpenAI is unavailable")

	bindFlagsToViper(cmd)
}

func bindFlagsToViper(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	viper.BindPFlag("data_dir", pf.Lookup("data-dir"))
	viper.BindPFlag("config_dir", pf.Lookup("config-dir"))
	viper.BindPFlag("anki.deck_name", pf.Lookup("deck-name"))
	viper.BindPFlag("audio.format", pf.Lookup("format"))
	viper.BindPFlag("audio.prefix", pf.Lookup("prefix"))
	viper.BindPFlag("audio.settle_ms", pf.Lookup("settle-ms"))
	viper.BindPFlag("audio.provider", pf.Lookup("provider"))
	viper.BindPFlag("audio.openai_model", pf.Lookup("openai-model"))
	viper.BindPFlag("audio.openai_voice", pf.Lookup("openai-voice"))
	viper.BindPFlag("audio.openai_speed", pf.Lookup("openai-speed"))
	viper.BindPFlag("audio.openai_instruction", pf.Lookup("openai-instruction"))
	viper.BindPFlag("audio.espeak_voice", pf.Lookup("espeak-voice"))
}

// InitConfig initializes viper configuration
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".flashrec" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".flashrec")
	}

	viper.SetEnvPrefix("FLASHREC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// GetOpenAIKey retrieves the OpenAI API key from environment or config
func GetOpenAIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return viper.GetString("audio.openai_key")
}
