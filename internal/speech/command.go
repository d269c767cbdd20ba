package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

// speechCommands are tried in order.
var speechCommands = []string{"espeak-ng", "espeak", "spd-say", "say"}

// CommandSynthesizer speaks through an installed speech command.
type CommandSynthesizer struct {
	bin   string
	voice Voice

	mu     sync.Mutex
	proc   *os.Process
	paused bool
}

// NewCommandSynthesizer finds a speech command on PATH. It returns
// ErrSpeechUnsupported when none is installed.
func NewCommandSynthesizer(v Voice) (*CommandSynthesizer, error) {
	for _, name := range speechCommands {
		if bin, err := exec.LookPath(name); err == nil {
			return &CommandSynthesizer{bin: bin, voice: v}, nil
		}
	}
	return nil, ErrSpeechUnsupported
}

// args builds the command line for text.
func (c *CommandSynthesizer) args(text string) []string {
	wpm := strconv.Itoa(c.voice.WPM())
	var args []string
	switch filepath.Base(c.bin) {
	case "spd-say":
		// -w blocks until the utterance is spoken, so pause and cancel
		// reach it. Rate and pitch are offsets in -100..100.
		args = []string{"-w", "-r", strconv.Itoa(offset(c.voice.Rate)), "-p", strconv.Itoa(offset(c.voice.Pitch))}
		if c.voice.Name != "" {
			args = append(args, "-y", c.voice.Name)
		}
		return append(args, "--", text)
	case "say":
		args = []string{"-r", wpm}
		if c.voice.Name != "" {
			args = append(args, "-v", c.voice.Name)
		}
		return append(args, text)
	}
	args = []string{"-s", wpm}
	if c.voice.Pitch > 0 {
		args = append(args, "-p", strconv.Itoa(int(50*c.voice.Pitch+0.5)))
	}
	if c.voice.Name != "" {
		args = append(args, "-v", c.voice.Name)
	}
	return append(args, "--", text)
}

// offset maps a 1.0-centred multiplier onto speech-dispatcher's -100..100.
func offset(v float64) int {
	if v <= 0 {
		return 0
	}
	return max(-100, min(100, int((v-1)*100)))
}

func (c *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.bin, c.args(text)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.bin, err)
	}
	c.mu.Lock()
	c.proc = cmd.Process
	if c.paused {
		suspend(c.proc)
	}
	c.mu.Unlock()

	err := cmd.Wait()

	c.mu.Lock()
	c.proc = nil
	c.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *CommandSynthesizer) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	if c.proc != nil {
		suspend(c.proc)
	}
}

func (c *CommandSynthesizer) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	if c.proc != nil {
		cont(c.proc)
	}
}
