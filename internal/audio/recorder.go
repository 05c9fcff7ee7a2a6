package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/afero"
)

// ErrNotRecording is returned by Stop when no recording is in progress
var ErrNotRecording = errors.New("not recording")

// CommandRecorder captures microphone input with an external recorder
// process writing a WAV file to a scratch directory. Stop hands the
// captured bytes back and removes the scratch file.
type CommandRecorder struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan error
	tempFile string
	tempDir  string
	lookPath func(string) (string, error)
}

// NewCommandRecorder creates a recorder writing scratch files to tempDir.
// An empty tempDir uses the system temporary directory.
func NewCommandRecorder(tempDir string) *CommandRecorder {
	return &CommandRecorder{tempDir: tempDir, lookPath: exec.LookPath}
}

// Start begins capturing audio. It returns once the recorder process runs.
func (r *CommandRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("already recording")
	}

	f, err := os.CreateTemp(r.tempDir, "flashrec-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	f.Close()

	cmd, err := r.recordCommand(f.Name())
	if err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	r.cmd = cmd
	r.done = done
	r.tempFile = f.Name()
	return nil
}

// Stop ends the capture and returns the recorded audio
func (r *CommandRecorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return nil, ErrNotRecording
	}
	defer func() {
		os.Remove(r.tempFile)
		r.cmd, r.done, r.tempFile = nil, nil, ""
	}()

	// Recorders finalize the WAV header on interrupt
	if err := r.cmd.Process.Signal(os.Interrupt); err != nil {
		r.cmd.Process.Kill()
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		r.cmd.Process.Kill()
		<-r.done
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(r.tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return data, nil
}

// Recording reports whether a capture is in progress
func (r *CommandRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}

// recordCommand picks a platform-specific recorder writing to outputFile
func (r *CommandRecorder) recordCommand(outputFile string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "linux":
		if _, err := r.lookPath("arecord"); err == nil {
			return exec.Command("arecord", "-q", "-f", "cd", "-t", "wav", outputFile), nil
		}
		if _, err := r.lookPath("rec"); err == nil {
			return exec.Command("rec", "-q", outputFile), nil
		}
		return nil, fmt.Errorf("no audio recorder found. Install alsa-utils (arecord) or sox (rec)")
	case "darwin":
		if _, err := r.lookPath("rec"); err == nil {
			return exec.Command("rec", "-q", outputFile), nil
		}
		return nil, fmt.Errorf("no audio recorder found. Install sox (rec)")
	default:
		return nil, fmt.Errorf("recording is not supported on %s", runtime.GOOS)
	}
}

// ReadRecording loads an existing audio file as a recording buffer
func ReadRecording(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyRecording
	}
	return data, nil
}
