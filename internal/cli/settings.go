package cli

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"codeberg.org/snonux/flashrec/internal/audio"
)

// Settings is the effective configuration after flags, config file and
// environment have been merged by viper
type Settings struct {
	DataDir     string
	ConfigDir   string
	DeckName    string
	AudioExt    string
	AudioPrefix string
	SettleDelay time.Duration
	Provider    *audio.Config
}

// LoadSettings reads the merged configuration. Flag defaults apply for
// keys nobody set.
func LoadSettings() Settings {
	ext := viper.GetString("audio.format")
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	provider := audio.DefaultProviderConfig()
	if v := viper.GetString("audio.provider"); v != "" {
		provider.Provider = v
	}
	provider.OpenAIKey = GetOpenAIKey()
	if v := viper.GetString("audio.openai_model"); v != "" {
		provider.OpenAIModel = v
	}
	if v := viper.GetString("audio.openai_voice"); v != "" {
		provider.OpenAIVoice = v
	}
	if v := viper.GetFloat64("audio.openai_speed"); v != 0 {
		provider.OpenAISpeed = v
	}
	if v := viper.GetString("audio.openai_instruction"); v != "" {
		provider.OpenAIInstruction = v
	}
	if v := viper.GetString("audio.espeak_voice"); v != "" {
		provider.ESpeakVoice = v
	}
	provider.CacheDir = viper.GetString("audio.cache_dir")

	return Settings{
		DataDir:     viper.GetString("data_dir"),
		ConfigDir:   viper.GetString("config_dir"),
		DeckName:    viper.GetString("anki.deck_name"),
		AudioExt:    ext,
		AudioPrefix: viper.GetString("audio.prefix"),
		SettleDelay: time.Duration(viper.GetInt("audio.settle_ms")) * time.Millisecond,
		Provider:    provider,
	}
}
