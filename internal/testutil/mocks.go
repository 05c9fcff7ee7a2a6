package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"codeberg.org/snonux/flashrec/internal/config"
)

// MockRecorder hands out a canned buffer on Stop
type MockRecorder struct {
	Buffer   []byte
	StartErr error
	StopErr  error
	Calls    []string

	recording bool
}

// Start mocks starting a capture
func (m *MockRecorder) Start(ctx context.Context) error {
	m.Calls = append(m.Calls, "START")
	if m.StartErr != nil {
		return m.StartErr
	}
	m.recording = true
	return nil
}

// Stop mocks ending a capture
func (m *MockRecorder) Stop(ctx context.Context) ([]byte, error) {
	m.Calls = append(m.Calls, "STOP")
	if !m.recording {
		return nil, errors.New("not recording")
	}
	m.recording = false
	if m.StopErr != nil {
		return nil, m.StopErr
	}
	return m.Buffer, nil
}

// Recording reports whether Start was called without Stop
func (m *MockRecorder) Recording() bool {
	return m.recording
}

// MockPlayer records what it was asked to play
type MockPlayer struct {
	Played []string
	Stops  int
	Err    error
}

// Play mocks playing a file
func (m *MockPlayer) Play(path string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Played = append(m.Played, path)
	return nil
}

// Stop mocks stopping playback
func (m *MockPlayer) Stop() {
	m.Stops++
}

// MockProvider writes fake audio instead of calling a TTS service
type MockProvider struct {
	ProviderName string
	Errors       map[string]error
	AvailableErr error

	mu    sync.Mutex
	Calls []string
}

// GenerateAudio writes a small file named after text to outputFile
func (m *MockProvider) GenerateAudio(ctx context.Context, text, outputFile string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if err, ok := m.Errors[text]; ok {
		return err
	}
	return os.WriteFile(outputFile, FakeWAV(text), 0644)
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// IsAvailable returns AvailableErr
func (m *MockProvider) IsAvailable() error {
	return m.AvailableErr
}

// MockPreferences keeps preferences in memory
type MockPreferences struct {
	Prefs   config.Preferences
	SaveErr error
	Saves   int
}

// NewMockPreferences starts from the defaults
func NewMockPreferences() *MockPreferences {
	return &MockPreferences{Prefs: config.Defaults()}
}

// Load returns the stored preferences
func (m *MockPreferences) Load() config.Preferences {
	return m.Prefs
}

// Save stores prefs unless SaveErr is set
func (m *MockPreferences) Save(prefs config.Preferences) error {
	if m.SaveErr != nil {
		return fmt.Errorf("mock save: %w", m.SaveErr)
	}
	m.Prefs = prefs
	m.Saves++
	return nil
}
