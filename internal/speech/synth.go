// Package speech reads the current unit of the open document aloud, one
// sentence at a time.
package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/metcalfc/aeonsight/internal/reader"
)

var (
	// ErrSpeechUnsupported is returned when no speech backend is available.
	ErrSpeechUnsupported = errors.New("speech synthesis is not available")

	// ErrNothingReadable is returned by Play when the unit has no text.
	ErrNothingReadable = errors.New("nothing readable")

	// ErrNotSpeaking is returned by TogglePause when idle.
	ErrNotSpeaking = errors.New("read-aloud is not active")
)

// Synthesizer speaks one utterance at a time. Speak blocks until the
// utterance finishes or ctx is cancelled. Pause and Resume act on the
// utterance in progress.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Pause()
	Resume()
}

// Voice holds the user's speech preferences. Rate and Pitch are
// multipliers around 1.0.
type Voice struct {
	Rate  float64
	Pitch float64
	Name  string
}

// DefaultWPM is the speaking pace of a voice at rate 1.0.
const DefaultWPM = 175

// WPM returns the words per minute v speaks at.
func (v Voice) WPM() int {
	rate := v.Rate
	if rate <= 0 {
		rate = 1
	}
	return int(float64(DefaultWPM)*rate + 0.5)
}

// WordDelay returns the time one word takes at wpm.
func WordDelay(wpm int) time.Duration {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	return time.Duration(60.0/float64(wpm)*1000) * time.Millisecond
}

// PacedSynthesizer is a silent synthesizer that takes as long as the
// utterance would take to read at a fixed pace. It backs read-aloud when
// no speech command is installed and drives tests.
type PacedSynthesizer struct {
	wpm int

	mu     sync.Mutex
	paused bool
	pause  chan struct{} // closed when paused
	resume chan struct{} // closed when running
}

// NewPacedSynthesizer returns a synthesizer pacing at wpm.
func NewPacedSynthesizer(wpm int) *PacedSynthesizer {
	resume := make(chan struct{})
	close(resume)
	return &PacedSynthesizer{wpm: wpm, pause: make(chan struct{}), resume: resume}
}

// Duration returns how long text takes to speak.
func (p *PacedSynthesizer) Duration(text string) time.Duration {
	return time.Duration(reader.CountWords(text)) * WordDelay(p.wpm)
}

func (p *PacedSynthesizer) Speak(ctx context.Context, text string) error {
	remaining := p.Duration(text)
	for remaining > 0 {
		p.mu.Lock()
		paused, pause, resume := p.paused, p.pause, p.resume
		p.mu.Unlock()

		if paused {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-resume:
			}
			continue
		}

		start := time.Now()
		t := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			remaining = 0
		case <-pause:
			t.Stop()
			remaining -= time.Since(start)
		}
	}
	return ctx.Err()
}

func (p *PacedSynthesizer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	close(p.pause)
	p.resume = make(chan struct{})
}

func (p *PacedSynthesizer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	close(p.resume)
	p.pause = make(chan struct{})
}
