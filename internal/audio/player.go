package audio

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// CommandPlayer plays audio files through an external player process
type CommandPlayer struct {
	mu      sync.Mutex
	playCmd *exec.Cmd
	// lookPath is exec.LookPath, swapped in tests
	lookPath func(string) (string, error)
}

// NewCommandPlayer creates a player using the platform's audio tools
func NewCommandPlayer() *CommandPlayer {
	return &CommandPlayer{lookPath: exec.LookPath}
}

// Play starts playback of audioFile in the background, stopping anything
// that is still playing.
func (p *CommandPlayer) Play(audioFile string) error {
	cmd, err := p.playCommand(audioFile)
	if err != nil {
		return err
	}

	p.Stop()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio player: %w", err)
	}

	p.mu.Lock()
	p.playCmd = cmd
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		if p.playCmd == cmd {
			p.playCmd = nil
		}
		p.mu.Unlock()
	}()

	return nil
}

// Stop kills the running player, if any
func (p *CommandPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playCmd != nil && p.playCmd.Process != nil {
		p.playCmd.Process.Kill()
	}
	p.playCmd = nil
}

// Playing reports whether a player process is running
func (p *CommandPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playCmd != nil
}

// playCommand picks a platform-specific player for audioFile
func (p *CommandPlayer) playCommand(audioFile string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("afplay", audioFile), nil
	case "linux":
		// Try multiple commands in order of preference
		candidates := [][]string{
			{"paplay", audioFile},
			{"aplay", "-q", audioFile},
			{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", audioFile},
			{"play", "-q", audioFile},
			{"mpg123", "-q", audioFile},
		}
		for _, c := range candidates {
			if _, err := p.lookPath(c[0]); err == nil {
				return exec.Command(c[0], c[1:]...), nil
			}
		}
		return nil, fmt.Errorf("no audio player found. Install paplay, aplay, ffplay, sox, or mpg123")
	case "windows":
		return exec.Command("cmd", "/c", "start", "/min", audioFile), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}
