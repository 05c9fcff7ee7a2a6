package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ESpeakConfig holds the espeak-ng voice settings
type ESpeakConfig struct {
	Voice   string // voice or language variant, e.g. "en", "fr", "de+f1"
	Speed   int    // words per minute, 80 to 450
	Pitch   int    // 0 to 99
	WordGap int    // pause between words in 10ms units
}

// DefaultESpeakConfig speaks a little slower than espeak-ng's default
func DefaultESpeakConfig() *ESpeakConfig {
	return &ESpeakConfig{
		Voice: "en",
		Speed: 140,
		Pitch: 50,
	}
}

// ESpeakProvider synthesizes speech with the local espeak-ng binary. MP3
// output additionally needs ffmpeg.
type ESpeakProvider struct {
	config ESpeakConfig
}

// NewESpeakProvider fails when espeak-ng is not on PATH
func NewESpeakProvider(config *ESpeakConfig) (Provider, error) {
	if err := checkESpeakInstalled(); err != nil {
		return nil, err
	}
	return newESpeakProvider(config), nil
}

func newESpeakProvider(config *ESpeakConfig) *ESpeakProvider {
	if config == nil {
		config = DefaultESpeakConfig()
	}
	c := *config
	c.Speed = clamp(c.Speed, 80, 450)
	c.Pitch = clamp(c.Pitch, 0, 99)
	return &ESpeakProvider{config: c}
}

// GenerateAudio speaks text into outputFile. The format follows the
// file's extension.
func (p *ESpeakProvider) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	if err := ValidateText(text); err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(outputFile)); ext {
	case ".wav":
		return p.speak(ctx, text, outputFile)
	case ".mp3":
		tempWAV := strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + "_espeak.wav"
		defer os.Remove(tempWAV)

		if err := p.speak(ctx, text, tempWAV); err != nil {
			return err
		}
		return run(ctx, "ffmpeg", "-loglevel", "error", "-i", tempWAV, "-acodec", "mp3", "-y", outputFile)
	default:
		return fmt.Errorf("espeak-ng cannot produce %q files", ext)
	}
}

func (p *ESpeakProvider) speak(ctx context.Context, text, outputFile string) error {
	return run(ctx, "espeak-ng", p.args(text, outputFile)...)
}

// args builds the espeak-ng command line for one utterance
func (p *ESpeakProvider) args(text, outputFile string) []string {
	args := []string{
		"-v", p.config.Voice,
		"-s", strconv.Itoa(p.config.Speed),
		"-p", strconv.Itoa(p.config.Pitch),
	}
	if p.config.WordGap > 0 {
		args = append(args, "-g", strconv.Itoa(p.config.WordGap))
	}
	return append(args, "-w", outputFile, text)
}

// Name returns the provider name
func (p *ESpeakProvider) Name() string {
	return "espeak-ng"
}

// IsAvailable checks if espeak-ng is installed
func (p *ESpeakProvider) IsAvailable() error {
	return checkESpeakInstalled()
}

func checkESpeakInstalled() error {
	if _, err := exec.LookPath("espeak-ng"); err != nil {
		return fmt.Errorf("espeak-ng is not installed or not in PATH: %w", err)
	}
	return nil
}

func run(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w\nOutput: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
