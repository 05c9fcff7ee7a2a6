package audio

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/afero"
)

// OpenAIProvider implements Provider interface for OpenAI TTS
type OpenAIProvider struct {
	client   *openai.Client
	config   *Config
	fs       afero.Fs
	cacheDir string
}

// NewOpenAIProvider creates a new OpenAI TTS provider
func NewOpenAIProvider(config *Config) (Provider, error) {
	return newOpenAIProvider(config, afero.NewOsFs())
}

func newOpenAIProvider(config *Config, fs afero.Fs) (*OpenAIProvider, error) {
	if config.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	provider := &OpenAIProvider{
		client:   openai.NewClient(config.OpenAIKey),
		config:   config,
		fs:       fs,
		cacheDir: config.CacheDir,
	}

	if provider.cacheDir != "" {
		if err := fs.MkdirAll(provider.cacheDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	return provider, nil
}

// GenerateAudio generates audio using OpenAI TTS
func (p *OpenAIProvider) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	if err := ValidateText(text); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(outputFile))
	format, ok := speechFormats[ext]
	if !ok {
		return fmt.Errorf("unsupported output format %q", ext)
	}

	if p.cacheDir != "" {
		cacheFile := p.cacheFilePath(text, ext)
		if exists, _ := afero.Exists(p.fs, cacheFile); exists {
			return p.copyFile(cacheFile, outputFile)
		}
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.config.OpenAIModel),
		Input:          p.preprocessText(text),
		Voice:          openai.SpeechVoice(p.config.OpenAIVoice),
		Speed:          p.config.OpenAISpeed,
		ResponseFormat: format,
	}

	if p.supportsInstructions() && p.config.OpenAIInstruction != "" {
		req.Instructions = p.config.OpenAIInstruction
	}

	response, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "does not have access to model") && p.supportsInstructions() {
			return fmt.Errorf("OpenAI TTS API error: %w\nNote: The %s model requires access. Try setting audio.openai_model to tts-1-hd instead", err, p.config.OpenAIModel)
		}
		return fmt.Errorf("OpenAI TTS API error: %w", err)
	}
	defer response.Close()

	if dir := filepath.Dir(outputFile); dir != "" && dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	out, err := p.fs.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := io.Copy(out, response)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		p.fs.Remove(outputFile)
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	if written == 0 {
		p.fs.Remove(outputFile)
		return fmt.Errorf("no audio data received from OpenAI")
	}

	if p.cacheDir != "" {
		_ = p.copyFile(outputFile, p.cacheFilePath(text, ext)) // Ignore cache errors
	}

	return nil
}

var speechFormats = map[string]openai.SpeechResponseFormat{
	".mp3":  openai.SpeechResponseFormatMp3,
	".wav":  openai.SpeechResponseFormatWav,
	".opus": openai.SpeechResponseFormatOpus,
	".aac":  openai.SpeechResponseFormatAac,
	".flac": openai.SpeechResponseFormatFlac,
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the OpenAI API is accessible
func (p *OpenAIProvider) IsAvailable() error {
	if p.config.OpenAIKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	// A test call would cost credits, so a configured key counts as available
	return nil
}

func (p *OpenAIProvider) supportsInstructions() bool {
	return p.config.OpenAIModel == "gpt-4o-mini-tts"
}

// preprocessText drops the markup characters some decks carry, which the
// voice would otherwise read out
func (p *OpenAIProvider) preprocessText(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, markup := range []string{"[", "]", "{", "}", "<", ">", "|"} {
		cleaned = strings.ReplaceAll(cleaned, markup, " ")
	}
	return strings.Join(strings.Fields(cleaned), " ")
}

// cacheFilePath generates a cache file path for the given text
func (p *OpenAIProvider) cacheFilePath(text, ext string) string {
	h := md5.New()
	h.Write([]byte(text))
	h.Write([]byte(p.config.OpenAIModel))
	h.Write([]byte(p.config.OpenAIVoice))
	h.Write([]byte(fmt.Sprintf("%.2f", p.config.OpenAISpeed)))
	if p.supportsInstructions() {
		h.Write([]byte(p.config.OpenAIInstruction))
	}
	hash := hex.EncodeToString(h.Sum(nil))

	// Use first 2 chars as subdirectory for better file system performance
	return filepath.Join(p.cacheDir, hash[:2], hash[2:]+ext)
}

// copyFile copies a file from src to dst
func (p *OpenAIProvider) copyFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	source, err := p.fs.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := p.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	return err
}

// ClearCache removes all cached speech files below dir
func ClearCache(fs afero.Fs, dir string) error {
	if dir == "" {
		return nil
	}
	return fs.RemoveAll(dir)
}

// CacheStats returns the number and total size of cached speech files
func CacheStats(fs afero.Fs, dir string) (fileCount int, totalSize int64, err error) {
	if dir == "" {
		return 0, 0, nil
	}
	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		return 0, 0, err
	}

	err = afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			fileCount++
			totalSize += info.Size()
		}
		return nil
	})

	return fileCount, totalSize, err
}
