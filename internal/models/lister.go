package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrNoAPIKey is returned when no OpenAI API key is configured
var ErrNoAPIKey = errors.New("OpenAI API key not found. Set OPENAI_API_KEY environment variable or configure audio.openai_key in .flashrec.yaml")

// modelClient is the part of the OpenAI client the lister needs
type modelClient interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Lister handles listing available OpenAI models
type Lister struct {
	apiKey string
	client modelClient
}

// NewLister creates a new model lister
func NewLister(apiKey string) *Lister {
	return &Lister{
		apiKey: apiKey,
		client: openai.NewClient(apiKey),
	}
}

// SpeechModels returns the sorted IDs of the text-to-speech models
func (l *Lister) SpeechModels(ctx context.Context) ([]string, error) {
	if l.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	models, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	var speech []string
	for _, model := range models.Models {
		if isSpeechModel(model.ID) {
			speech = append(speech, model.ID)
		}
	}
	sort.Strings(speech)
	return speech, nil
}

// ListAvailableModels prints the speech models to w
func (l *Lister) ListAvailableModels(ctx context.Context, w io.Writer) error {
	speech, err := l.SpeechModels(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Text-to-Speech (TTS) Models:")
	if len(speech) == 0 {
		fmt.Fprintln(w, "  No TTS models found")
		return nil
	}
	for _, model := range speech {
		fmt.Fprintf(w, "  %s\n", model)
	}
	return nil
}

func isSpeechModel(id string) bool {
	// gpt-4o-audio-preview is a chat model that accepts audio, not TTS
	return strings.Contains(id, "tts")
}
