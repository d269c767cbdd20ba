// Package app wires the library, the open session, read-aloud, the idle
// guard and preferences behind one set of command handlers. Front ends
// call these handlers and render Snapshot; they hold no session state.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/metcalfc/aeonsight/internal/idle"
	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/metcalfc/aeonsight/internal/session"
	"github.com/metcalfc/aeonsight/internal/speech"
	"github.com/metcalfc/aeonsight/internal/state"
)

// Options configure a Controller. Library and Prefs are required.
type Options struct {
	Library *library.Store
	Prefs   *state.Store
	// Synth speaks utterances. Nil disables read-aloud.
	Synth speech.Synthesizer
	// Clock drives the idle guard. Nil uses the wall clock.
	Clock idle.Clock
	// Alerter is notified in addition to the snapshot's Alert field.
	Alerter     idle.Alerter
	SettleDelay time.Duration
	Logger      *log.Logger
	Now         func() time.Time
}

// Controller is the command surface of the reader.
type Controller struct {
	lib     *library.Store
	prefs   *state.Store
	session *session.Session
	engine  *speech.Engine
	guard   *idle.Guard
	logger  *log.Logger
	alerter idle.Alerter

	mu     sync.Mutex
	alert  string
	status string
}

// New builds a controller from opts and arms the idle guard.
func New(opts Options) (*Controller, error) {
	if opts.Library == nil || opts.Prefs == nil {
		return nil, errors.New("app: library and preferences are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	prefs := opts.Prefs.Get()

	c := &Controller{
		lib:     opts.Library,
		prefs:   opts.Prefs,
		logger:  logger,
		alerter: opts.Alerter,
	}
	c.guard = idle.New(prefs.IdleMinutes, opts.Clock, idle.AlertFunc(c.onIdle))
	c.session = session.New(session.Options{
		Sandbox:    prefs.SandboxMode(),
		ResumeKey:  reader.ResumeKey(prefs.ResumeKey),
		OnPosition: c.savePosition,
		Logger:     logger,
		Now:        opts.Now,
	})
	if opts.Synth != nil {
		c.engine = speech.NewEngine(opts.Synth, c.session, speech.Options{
			Follow:      prefs.TTS.Follow,
			SettleDelay: opts.SettleDelay,
			Logger:      logger,
			OnUtterance: c.guard.Activity,
		})
		c.session.BindReadAloud(c.engine)
	}
	c.guard.Start()
	return c, nil
}

// Session returns the open-document session for read-only queries.
func (c *Controller) Session() *session.Session { return c.session }

// Library returns the catalog.
func (c *Controller) Library() *library.Store { return c.lib }

// Preferences returns the current preferences.
func (c *Controller) Preferences() state.Preferences { return c.prefs.Get() }

func (c *Controller) onIdle(msg string) {
	c.mu.Lock()
	c.alert = msg
	c.mu.Unlock()
	c.logger.Printf("idle: %s", msg)
	if c.alerter != nil {
		c.alerter.Alert(msg)
	}
}

func (c *Controller) setStatus(msg string) {
	c.mu.Lock()
	c.status = msg
	c.mu.Unlock()
}

// savePosition persists a move. Saves racing a removal are dropped by the
// store; they are logged and never resurrect the item.
func (c *Controller) savePosition(id string, pos reader.Position, progress reader.Progress) {
	pct := 0
	if progress.Known {
		pct = progress.Percent
	}
	err := c.lib.SavePosition(context.Background(), id, pos, pct)
	if errors.Is(err, library.ErrNotFound) {
		c.logger.Printf("library: dropped position save for removed item %s", id)
		return
	}
	if err != nil {
		c.logger.Printf("library: save position %s: %v", id, err)
		c.setStatus("Could not save position: " + err.Error())
	}
}

// Activity records a qualifying user input event.
func (c *Controller) Activity() {
	c.mu.Lock()
	c.alert = ""
	c.mu.Unlock()
	c.guard.Activity()
}

// Add stores a document in the library. The format is taken from name.
func (c *Controller) Add(ctx context.Context, name string, data []byte) (library.Item, error) {
	c.Activity()
	format, err := reader.FormatFromName(name)
	if err != nil {
		return library.Item{}, err
	}
	item, err := c.lib.Add(ctx, name, format, data)
	if err != nil {
		return library.Item{}, err
	}
	c.setStatus("Added " + item.Name)
	return item, nil
}

// List returns the catalog, newest first.
func (c *Controller) List(ctx context.Context) ([]library.Item, error) {
	return c.lib.List(ctx)
}

// Open loads a library item into the session at its last position.
func (c *Controller) Open(ctx context.Context, id string) error {
	c.Activity()
	item, err := c.lib.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.open(ctx, item, item.LastPosition)
}

func (c *Controller) open(ctx context.Context, item library.Item, at reader.Position) error {
	data, err := c.lib.Content(ctx, item.ID)
	if err != nil {
		c.setStatus(err.Error())
		return err
	}
	c.setStatus("")
	return c.session.Open(ctx, session.Document{
		ID:           item.ID,
		Name:         item.Name,
		Format:       item.Format,
		Content:      data,
		LastPosition: at,
	})
}

// Navigate stops read-aloud and moves one unit.
func (c *Controller) Navigate(ctx context.Context, dir session.Direction) error {
	c.Activity()
	if c.engine != nil {
		c.engine.Stop()
	}
	return c.session.Navigate(ctx, dir)
}

// Jump stops read-aloud and moves to a table of contents entry.
func (c *Controller) Jump(ctx context.Context, entry reader.TOCEntry) error {
	c.Activity()
	if c.engine != nil {
		c.engine.Stop()
	}
	return c.session.Jump(ctx, entry)
}

// GoToBookmark moves to the i-th bookmark of the open item.
func (c *Controller) GoToBookmark(ctx context.Context, i int) error {
	c.Activity()
	id, _ := c.session.Current()
	if id == "" {
		return session.ErrNotReady
	}
	item, err := c.lib.Get(ctx, id)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(item.Bookmarks) {
		return fmt.Errorf("bookmark %d out of range", i+1)
	}
	if c.engine != nil {
		c.engine.Stop()
	}
	return c.session.Seek(ctx, item.Bookmarks[i].Position)
}

// Play reads the current unit aloud from its first sentence.
func (c *Controller) Play() error {
	c.Activity()
	if c.engine == nil {
		c.setStatus(speech.ErrSpeechUnsupported.Error())
		return speech.ErrSpeechUnsupported
	}
	return c.engine.Play()
}

// TogglePause pauses or resumes read-aloud.
func (c *Controller) TogglePause() error {
	c.Activity()
	if c.engine == nil {
		return speech.ErrSpeechUnsupported
	}
	return c.engine.TogglePause()
}

// Stop ends read-aloud and clears the highlight.
func (c *Controller) Stop() {
	c.Activity()
	if c.engine != nil {
		c.engine.Stop()
	}
}

// SetFollow persists and applies follow mode.
func (c *Controller) SetFollow(on bool) error {
	if _, err := c.prefs.Update(func(p *state.Preferences) { p.TTS.Follow = on }); err != nil {
		return err
	}
	if c.engine != nil {
		c.engine.SetFollow(on)
	}
	return nil
}

// SetIdleMinutes persists and applies the idle window. It returns the
// clamped value.
func (c *Controller) SetIdleMinutes(minutes int) (int, error) {
	minutes = c.guard.SetWindow(minutes)
	_, err := c.prefs.Update(func(p *state.Preferences) { p.IdleMinutes = minutes })
	return minutes, err
}

// SetResumeKey persists and applies how EPUB positions are restored. It
// takes effect on the next Open.
func (c *Controller) SetResumeKey(key reader.ResumeKey) error {
	switch key {
	case reader.ResumeCFI, reader.ResumePercent, reader.ResumeBoth:
	default:
		return fmt.Errorf("unknown resume key %q (choose %s, %s, %s)", key, reader.ResumeCFI, reader.ResumePercent, reader.ResumeBoth)
	}
	if _, err := c.prefs.Update(func(p *state.Preferences) { p.ResumeKey = string(key) }); err != nil {
		return err
	}
	c.session.SetResumeKey(key)
	return nil
}

// SetSandboxMode persists the mode and re-opens the current document at
// its current position, since frame isolation cannot change in place.
func (c *Controller) SetSandboxMode(ctx context.Context, mode sandbox.Mode) error {
	c.Activity()
	if _, err := c.prefs.Update(func(p *state.Preferences) { p.Sandbox = mode.String() }); err != nil {
		return err
	}
	c.session.SetSandbox(mode)

	id, _ := c.session.Current()
	pos, err := c.session.Position()
	if id == "" || err != nil {
		return nil
	}
	item, err := c.lib.Get(ctx, id)
	if err != nil {
		return err
	}
	c.logger.Printf("sandbox: re-opening %s with scripts %s", id, mode)
	return c.open(ctx, item, pos)
}

// Remove deletes an item. If it is open, the session returns to Empty.
func (c *Controller) Remove(ctx context.Context, id string) error {
	c.Activity()
	if err := c.lib.Remove(ctx, id); err != nil {
		return err
	}
	if cur, _ := c.session.Current(); cur == id {
		c.session.Reset()
	}
	c.setStatus("Removed item")
	return nil
}

// Clear empties the library and resets the session.
func (c *Controller) Clear(ctx context.Context) (int, error) {
	c.Activity()
	n, err := c.lib.Clear(ctx)
	if err != nil {
		return 0, err
	}
	c.session.Reset()
	c.setStatus(fmt.Sprintf("Removed %d items", n))
	return n, nil
}

// Bookmark records the current position of the open item.
func (c *Controller) Bookmark(ctx context.Context, label string) (library.Bookmark, error) {
	c.Activity()
	id, pos, err := c.current()
	if err != nil {
		return library.Bookmark{}, err
	}
	if label == "" {
		label = pos.String()
	}
	b, err := c.lib.AddBookmark(ctx, id, pos, label)
	if err == nil {
		c.setStatus("Bookmarked " + label)
	}
	return b, err
}

// Note attaches text to the current position of the open item.
func (c *Controller) Note(ctx context.Context, text string) (library.Note, error) {
	c.Activity()
	if text == "" {
		return library.Note{}, errors.New("note text is empty")
	}
	id, pos, err := c.current()
	if err != nil {
		return library.Note{}, err
	}
	n, err := c.lib.AddNote(ctx, id, pos, text)
	if err == nil {
		c.setStatus("Note saved")
	}
	return n, err
}

func (c *Controller) current() (string, reader.Position, error) {
	id, _ := c.session.Current()
	pos, err := c.session.Position()
	if id == "" || err != nil {
		return "", reader.Position{}, session.ErrNotReady
	}
	return id, pos, nil
}

// Close stops read-aloud, closes the document and disarms the idle guard.
func (c *Controller) Close() {
	c.session.Close()
	c.guard.Stop()
}
