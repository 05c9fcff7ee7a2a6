package cli

import "codeberg.org/snonux/flashrec/internal"

// Flags holds all command-line flag values
type Flags struct {
	// General flags
	CfgFile   string
	DataDir   string
	ConfigDir string
	Verbose   bool
	DeckName  string

	// Audio flags
	AudioFormat string
	AudioPrefix string
	SettleMS    int

	// Speech synthesis flags, used by fill
	Provider          string
	OpenAIModel       string
	OpenAIVoice       string
	OpenAISpeed       float64
	OpenAIInstruction string
	ESpeakVoice       string

	// Subcommand flags
	TextOnly          bool
	RecordSeconds     int
	ClearCache        bool
	ListenAfterRecord bool
	ListenAfterLoad   bool
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		DataDir:     internal.DefaultDataDir(),
		ConfigDir:   internal.DefaultConfigDir(),
		DeckName:    "flashrec",
		AudioFormat: ".wav",
		SettleMS:    200,
		Provider:    "openai",
		OpenAIModel: "gpt-4o-mini-tts",
		OpenAIVoice: "alloy",
		OpenAISpeed: 1.0,
		ESpeakVoice: "en",
	}
}

// PrefChanges lists the preference toggles given on the command line.
// A nil field was not given.
type PrefChanges struct {
	ListenAfterRecord *bool
	ListenAfterLoad   *bool
}

// Empty reports whether no preference is to be changed
func (c PrefChanges) Empty() bool {
	return c.ListenAfterRecord == nil && c.ListenAfterLoad == nil
}
