package audio

import (
	"context"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewESpeakProviderClampsConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    *ESpeakConfig
		wantSpeed int
		wantPitch int
	}{
		{"defaults", nil, 140, 50},
		{"too slow and low", &ESpeakConfig{Voice: "en", Speed: 10, Pitch: -5}, 80, 0},
		{"too fast and high", &ESpeakConfig{Voice: "en", Speed: 1000, Pitch: 150}, 450, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newESpeakProvider(tt.config)
			if p.config.Speed != tt.wantSpeed {
				t.Errorf("Speed = %d, want %d", p.config.Speed, tt.wantSpeed)
			}
			if p.config.Pitch != tt.wantPitch {
				t.Errorf("Pitch = %d, want %d", p.config.Pitch, tt.wantPitch)
			}
		})
	}
}

func TestESpeakArgs(t *testing.T) {
	p := newESpeakProvider(&ESpeakConfig{Voice: "de", Speed: 120, Pitch: 40, WordGap: 2})

	got := p.args("Hallo", "/tmp/out.wav")
	want := []string{"-v", "de", "-s", "120", "-p", "40", "-g", "2", "-w", "/tmp/out.wav", "Hallo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args() = %v, want %v", got, want)
	}
}

func TestESpeakProviderRejectsInput(t *testing.T) {
	p := newESpeakProvider(nil)

	if err := p.GenerateAudio(context.Background(), "cat", "cat.ogg"); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if err := p.GenerateAudio(context.Background(), "", "cat.wav"); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestESpeakProviderGeneratesWAV(t *testing.T) {
	if _, err := exec.LookPath("espeak-ng"); err != nil {
		t.Skip("espeak-ng not installed")
	}

	provider, err := NewESpeakProvider(DefaultESpeakConfig())
	if err != nil {
		t.Fatalf("NewESpeakProvider() error: %v", err)
	}

	out := filepath.Join(t.TempDir(), "hello.wav")
	if err := provider.GenerateAudio(context.Background(), "hello", out); err != nil {
		t.Fatalf("GenerateAudio() error: %v", err)
	}
}
