package speech

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/session"
)

// DefaultSettleDelay is the pause between following into the next unit
// and starting to read it.
const DefaultSettleDelay = 400 * time.Millisecond

// Document is the part of the open session the engine reads from.
type Document interface {
	ReadableText() (string, error)
	Navigate(ctx context.Context, dir session.Direction) error
	MarkSentence(i int) bool
	ClearMark()
}

// State is the playback state.
type State int

const (
	Idle State = iota
	Speaking
	Paused
)

func (s State) String() string {
	switch s {
	case Speaking:
		return "speaking"
	case Paused:
		return "paused"
	}
	return "idle"
}

// Highlight is the sentence being spoken and its neighbours. Index is -1
// when nothing is highlighted.
type Highlight struct {
	Prev    string
	Current string
	Next    string
	Index   int
	Total   int
}

// Options configure an Engine.
type Options struct {
	Follow      bool
	SettleDelay time.Duration
	Logger      *log.Logger
	// OnUtterance runs after each utterance completes, successfully or not.
	OnUtterance func()
}

// Engine drives the sentence queue. At most one utterance is in flight.
type Engine struct {
	synth  Synthesizer
	doc    Document
	logger *log.Logger
	settle time.Duration
	onUtt  func()

	// ctl serializes Play, TogglePause and Stop.
	ctl sync.Mutex

	mu        sync.Mutex
	sentences []string
	index     int
	speaking  bool
	paused    bool
	// resumed is closed when a pause ends. It is nil unless paused.
	resumed chan struct{}
	follow  bool
	status  string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine returns an idle engine reading doc through synth.
func NewEngine(synth Synthesizer, doc Document, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Engine{
		synth:  synth,
		doc:    doc,
		logger: logger,
		settle: settle,
		onUtt:  opts.OnUtterance,
		follow: opts.Follow,
	}
}

// Play cancels any utterance in flight and reads the current unit from
// its first sentence.
func (e *Engine) Play() error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.halt()

	sentences, err := e.load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.sentences = sentences
	e.index = 0
	e.speaking = true
	e.paused = false
	e.resumed = nil
	e.status = ""
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go e.run(ctx, done)
	return nil
}

// load extracts and splits the current unit.
func (e *Engine) load() ([]string, error) {
	text, err := e.doc.ReadableText()
	if err != nil && !errors.Is(err, reader.ErrSandboxViolation) {
		e.setStatus(err.Error())
		return nil, err
	}
	sentences := reader.Split(text)
	if len(sentences) == 0 {
		msg := "Nothing readable on this page"
		if errors.Is(err, reader.ErrSandboxViolation) {
			msg = "Nothing readable: embedded content is isolated while scripts are allowed"
		}
		e.setStatus(msg)
		return nil, ErrNothingReadable
	}
	return sentences, nil
}

// waitResumed blocks while playback is paused. It reports false when ctx
// ends first.
func (e *Engine) waitResumed(ctx context.Context) bool {
	e.mu.Lock()
	resumed := e.resumed
	e.mu.Unlock()
	if resumed == nil {
		return ctx.Err() == nil
	}
	select {
	case <-resumed:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		for {
			if !e.waitResumed(ctx) {
				return
			}
			e.mu.Lock()
			if ctx.Err() != nil {
				e.mu.Unlock()
				return
			}
			if e.index >= len(e.sentences) {
				e.mu.Unlock()
				break
			}
			i, text := e.index, e.sentences[e.index]
			e.mu.Unlock()

			e.doc.MarkSentence(i)
			err := e.synth.Speak(ctx, text)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				e.logger.Printf("speech: utterance %d: %v", i, err)
			}
			e.mu.Lock()
			e.index++
			e.mu.Unlock()
			if e.onUtt != nil {
				e.onUtt()
			}
		}

		e.doc.ClearMark()
		e.mu.Lock()
		follow := e.follow
		e.mu.Unlock()
		if !follow {
			e.finish("Finished reading")
			return
		}

		err := e.doc.Navigate(ctx, session.Next)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, reader.ErrBoundary) {
			e.finish("end of document")
			return
		}
		if err != nil {
			e.finish(err.Error())
			return
		}

		t := time.NewTimer(e.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if !e.waitResumed(ctx) {
			return
		}

		sentences, err := e.load()
		if err != nil {
			e.mu.Lock()
			e.speaking, e.paused = false, false
			e.resumed = nil
			e.sentences = nil
			e.index = 0
			e.mu.Unlock()
			return
		}
		e.mu.Lock()
		e.sentences = sentences
		e.index = 0
		e.mu.Unlock()
	}
}

func (e *Engine) finish(status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speaking, e.paused = false, false
	e.resumed = nil
	e.sentences = nil
	e.index = 0
	e.status = status
}

// halt cancels playback and waits for the run loop to exit. Callers
// hold ctl.
func (e *Engine) halt() {
	e.mu.Lock()
	cancel, done, paused := e.cancel, e.done, e.paused
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		if paused {
			e.synth.Resume()
		}
		<-done
	}

	e.mu.Lock()
	e.sentences = nil
	e.index = 0
	e.speaking, e.paused = false, false
	e.resumed = nil
	e.mu.Unlock()
	e.doc.ClearMark()
}

// Stop cancels speech, clears the queue and the highlight. It is safe to
// call at any time.
func (e *Engine) Stop() {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.halt()
	e.setStatus("")
}

// TogglePause pauses or resumes playback without touching the queue. A
// pause also holds back the next utterance and the next unit in follow
// mode.
func (e *Engine) TogglePause() error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.mu.Lock()
	if !e.speaking {
		e.mu.Unlock()
		return ErrNotSpeaking
	}
	e.paused = !e.paused
	paused := e.paused
	if paused {
		e.resumed = make(chan struct{})
	} else if e.resumed != nil {
		close(e.resumed)
		e.resumed = nil
	}
	e.mu.Unlock()

	if paused {
		e.synth.Pause()
	} else {
		e.synth.Resume()
	}
	return nil
}

// SetFollow enables or disables following into the next unit.
func (e *Engine) SetFollow(on bool) {
	e.mu.Lock()
	e.follow = on
	e.mu.Unlock()
}

// Follow reports whether follow mode is on.
func (e *Engine) Follow() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.follow
}

// State returns the playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.paused:
		return Paused
	case e.speaking:
		return Speaking
	}
	return Idle
}

// Highlight returns the sentences around the one being spoken.
func (e *Engine) Highlight() Highlight {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.speaking || e.index >= len(e.sentences) {
		return Highlight{Index: -1}
	}
	h := Highlight{Current: e.sentences[e.index], Index: e.index, Total: len(e.sentences)}
	if e.index > 0 {
		h.Prev = e.sentences[e.index-1]
	}
	if e.index+1 < len(e.sentences) {
		h.Next = e.sentences[e.index+1]
	}
	return h
}

// Status returns the latest playback message.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(msg string) {
	e.mu.Lock()
	e.status = strings.TrimSpace(msg)
	e.mu.Unlock()
}
