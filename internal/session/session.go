// Package session owns the single open document: it selects the format
// adapter, tracks position and reading stats, and reports progress.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
)

// ErrNotReady is returned by operations that need a loaded document.
var ErrNotReady = errors.New("no document is ready")

// ErrClosed is returned by Open when the session was closed or reopened
// while the document was loading.
var ErrClosed = errors.New("session closed during load")

// State is the lifecycle state of a session.
type State int

const (
	Empty State = iota
	Loading
	Ready
	Closed
	Error
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	case Error:
		return "error"
	}
	return "empty"
}

// Direction selects Navigate's movement.
type Direction int

const (
	Next Direction = iota
	Prev
)

// Document is what Open needs to know about a library item.
type Document struct {
	ID           string
	Name         string
	Format       reader.Format
	Content      []byte
	LastPosition reader.Position
}

// PositionFunc is called after every successful move, in move order.
type PositionFunc func(id string, pos reader.Position, progress reader.Progress)

// Stopper is anything that must stop before the document goes away.
type Stopper interface {
	Stop()
}

// Options configure a Session.
type Options struct {
	Sandbox       sandbox.Mode
	ResumeKey     reader.ResumeKey
	LocationChars int
	WindowChars   int
	OnPosition    PositionFunc
	Logger        *log.Logger
	Now           func() time.Time
}

// Session is the explicitly owned state of the open document. At most one
// document is open at a time; opening another closes the previous one
// first.
type Session struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time

	// navMu serializes moves so each observes the position the previous
	// one left behind.
	navMu sync.Mutex

	mu        sync.Mutex
	state     State
	status    string
	gen       uint64
	id        string
	name      string
	adapter   reader.Adapter
	mount     *sandbox.Mount
	uninstall func()
	startedAt time.Time
	wordsRead int
	speech    Stopper
}

// New returns an empty session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{opts: opts, logger: logger, now: now}
}

// BindReadAloud registers the speech engine stopped on close and reopen.
func (s *Session) BindReadAloud(st Stopper) {
	s.mu.Lock()
	s.speech = st
	s.mu.Unlock()
}

// SetSandbox changes the mode applied by the next Open.
func (s *Session) SetSandbox(m sandbox.Mode) {
	s.mu.Lock()
	s.opts.Sandbox = m
	s.mu.Unlock()
}

// SetResumeKey changes how the next Open restores EPUB positions.
func (s *Session) SetResumeKey(k reader.ResumeKey) {
	s.mu.Lock()
	s.opts.ResumeKey = k
	s.mu.Unlock()
}

func (s *Session) stopSpeech() {
	s.mu.Lock()
	st := s.speech
	s.mu.Unlock()
	if st != nil {
		st.Stop()
	}
}

// teardown releases the adapter and the mount guard. Callers hold mu.
func (s *Session) teardown() {
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			s.logger.Printf("session: close %s: %v", s.id, err)
		}
		s.adapter = nil
	}
	if s.uninstall != nil {
		s.uninstall()
		s.uninstall = nil
	}
	if s.mount != nil {
		s.mount.Clear()
		s.mount = nil
	}
	s.wordsRead = 0
	s.startedAt = time.Time{}
}

// Open closes any open document and loads doc. On failure the session is
// left in Error with the message as its status, and the error is returned.
// A restore position outside the document is clamped and reported in the
// status, not as an error.
func (s *Session) Open(ctx context.Context, doc Document) error {
	// Retire the old document first so a Play racing this call finds
	// nothing to read. Speech may be waiting on navMu to follow into the
	// next unit, so it is stopped before taking it.
	s.mu.Lock()
	s.teardown()
	s.gen++
	gen := s.gen
	s.state = Loading
	s.status = "Loading " + doc.Name + "…"
	s.id, s.name = doc.ID, doc.Name
	s.mu.Unlock()

	s.stopSpeech()

	s.navMu.Lock()
	defer s.navMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrClosed
	}
	mount := sandbox.NewMount()
	policy := sandbox.NewPolicy(s.opts.Sandbox, s.logger)
	s.mount = mount
	s.uninstall = policy.Install(mount)
	adapter, err := reader.New(doc.Format, reader.Options{
		Mount:         mount,
		LocationChars: s.opts.LocationChars,
		WindowChars:   s.opts.WindowChars,
		ResumeKey:     s.opts.ResumeKey,
	})
	if err != nil {
		s.fail(err)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	err = adapter.Load(ctx, doc.Content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		adapter.Close()
		return ErrClosed
	}
	if err != nil {
		adapter.Close()
		s.fail(err)
		return err
	}
	s.adapter = adapter
	s.state = Ready
	s.status = ""
	s.startedAt = s.now()

	if !doc.LastPosition.IsZero() {
		if err := adapter.SetPosition(doc.LastPosition); err != nil {
			var perr *reader.PositionError
			if !errors.As(err, &perr) {
				s.fail(err)
				return err
			}
			s.logger.Printf("session: %s: %v", doc.ID, err)
			s.status = "Saved position was out of range; starting at " + perr.Clamped.String()
		}
	}
	s.logger.Printf("session: opened %s (%s)", doc.ID, doc.Format)
	return nil
}

// fail moves to Error. Callers hold mu.
func (s *Session) fail(err error) {
	s.teardown()
	s.state = Error
	s.status = err.Error()
	s.logger.Printf("session: %s: %v", s.id, err)
}

// Navigate moves one unit. At either edge it returns reader.ErrBoundary
// and the session stays Ready.
func (s *Session) Navigate(ctx context.Context, dir Direction) error {
	s.navMu.Lock()
	defer s.navMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	leaving := 0
	if dir == Next {
		if text, err := s.adapter.ExtractText(); err == nil {
			leaving = reader.CountWords(text)
		}
	}
	var (
		pos reader.Position
		err error
	)
	if dir == Next {
		pos, err = s.adapter.Next()
	} else {
		pos, err = s.adapter.Prev()
	}
	if errors.Is(err, reader.ErrBoundary) {
		s.status = reader.ErrBoundary.Error()
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.status = err.Error()
		s.mu.Unlock()
		return err
	}
	s.wordsRead += leaving
	s.status = ""
	id, progress, save := s.id, s.adapter.Progress(), s.opts.OnPosition
	s.mu.Unlock()

	if save != nil {
		save(id, pos, progress)
	}
	return nil
}

// Jump moves to a table of contents entry.
func (s *Session) Jump(ctx context.Context, entry reader.TOCEntry) error {
	return s.moveTo(ctx, entry.Target)
}

// Seek moves to a saved position such as a bookmark.
func (s *Session) Seek(ctx context.Context, pos reader.Position) error {
	return s.moveTo(ctx, pos)
}

func (s *Session) moveTo(ctx context.Context, target reader.Position) error {
	s.navMu.Lock()
	defer s.navMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	if err := s.adapter.SetPosition(target); err != nil {
		var perr *reader.PositionError
		if !errors.As(err, &perr) {
			s.mu.Unlock()
			return err
		}
		s.status = err.Error()
	} else {
		s.status = ""
	}
	id, pos, progress, save := s.id, s.adapter.Position(), s.adapter.Progress(), s.opts.OnPosition
	s.mu.Unlock()

	if save != nil {
		save(id, pos, progress)
	}
	return nil
}

// Close stops read-aloud and releases the document. It is safe to call at
// any time, including while Open is loading.
func (s *Session) Close() {
	s.mu.Lock()
	s.gen++
	s.teardown()
	s.state = Closed
	s.status = ""
	s.id, s.name = "", ""
	s.mu.Unlock()
	s.stopSpeech()
}

// Reset closes the document and returns the session to Empty, as when the
// open item is removed from the library.
func (s *Session) Reset() {
	s.Close()
	s.mu.Lock()
	s.state = Empty
	s.mu.Unlock()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the latest user-facing message, or "".
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus replaces the user-facing message.
func (s *Session) SetStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
}

// Current returns the id and name of the open document.
func (s *Session) Current() (id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.name
}

// Format returns the open document's format, or "".
func (s *Session) Format() reader.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return ""
	}
	return s.adapter.Format()
}

// Sandbox returns the mode applied to embedded content.
func (s *Session) Sandbox() sandbox.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Sandbox
}

// Position returns the current position token.
func (s *Session) Position() (reader.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return reader.Position{}, ErrNotReady
	}
	return s.adapter.Position(), nil
}

// Progress returns the whole-document progress.
func (s *Session) Progress() (reader.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return reader.Progress{}, ErrNotReady
	}
	return s.adapter.Progress(), nil
}

// TOC returns the open document's table of contents.
func (s *Session) TOC() []reader.TOCEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return nil
	}
	return s.adapter.TOC()
}

// TotalUnits returns the number of pages, spine documents or sentences.
func (s *Session) TotalUnits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return 0
	}
	return s.adapter.TotalUnits()
}

// View renders the current unit.
func (s *Session) View() (reader.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return reader.View{}, ErrNotReady
	}
	return s.adapter.Render()
}

// ReadableText returns the text of the current unit. Embedded content the
// host may not read yields reader.ErrSandboxViolation and an advisory
// status.
func (s *Session) ReadableText() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return "", ErrNotReady
	}
	text, err := s.adapter.ExtractText()
	if errors.Is(err, reader.ErrSandboxViolation) {
		s.status = "Text is unavailable while embedded scripts are allowed"
	}
	return text, err
}

// MarkSentence highlights sentence i of the last readable text when the
// format supports it.
func (s *Session) MarkSentence(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.adapter.(reader.Marker); ok && s.state == Ready {
		return m.MarkSentence(i)
	}
	return false
}

// ClearMark removes any sentence highlight.
func (s *Session) ClearMark() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.adapter.(reader.Marker); ok && s.state == Ready {
		m.ClearMark()
	}
}

// Stats are the reading statistics of the open document.
type Stats struct {
	Elapsed   time.Duration
	WordsRead int
}

// Stats returns elapsed time and words read since the document opened.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return Stats{}
	}
	return Stats{Elapsed: s.now().Sub(s.startedAt), WordsRead: s.wordsRead}
}

// ElapsedString formats the elapsed time as HH:MM:SS.
func (st Stats) ElapsedString() string {
	secs := int(st.Elapsed / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// WPM returns words per minute and whether the rate is known.
func (st Stats) WPM() (int, bool) {
	mins := st.Elapsed.Minutes()
	if st.WordsRead == 0 || mins <= 0 {
		return 0, false
	}
	return int(float64(st.WordsRead)/mins + 0.5), true
}

// WPMString is the rate for display, or "—" when unknown.
func (st Stats) WPMString() string {
	if wpm, ok := st.WPM(); ok {
		return fmt.Sprintf("%d", wpm)
	}
	return "—"
}
