package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metcalfc/aeonsight/internal/idle"
	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/reader/readertest"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/metcalfc/aeonsight/internal/session"
	"github.com/metcalfc/aeonsight/internal/speech"
	"github.com/metcalfc/aeonsight/internal/state"
)

// holdSynth speaks until its context is cancelled.
type holdSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (h *holdSynth) Speak(ctx context.Context, text string) error {
	h.mu.Lock()
	h.spoken = append(h.spoken, text)
	h.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (h *holdSynth) Pause()  {}
func (h *holdSynth) Resume() {}

type manualClock struct {
	mu    sync.Mutex
	funcs []func()
}

type manualTimer struct{ stopped bool }

func (t *manualTimer) Stop() bool { t.stopped = true; return true }

func (c *manualClock) AfterFunc(d time.Duration, f func()) idle.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
	return &manualTimer{}
}

// fireLast runs the most recently armed callback.
func (c *manualClock) fireLast() {
	c.mu.Lock()
	f := c.funcs[len(c.funcs)-1]
	c.mu.Unlock()
	f()
}

func newController(t *testing.T, synth speech.Synthesizer, clock idle.Clock) *Controller {
	t.Helper()
	dir := t.TempDir()
	lib, err := library.Open(filepath.Join(dir, "library.db"), nil)
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	prefs, err := state.Open(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("prefs: %v", err)
	}
	if clock == nil {
		clock = &manualClock{}
	}
	c, err := New(Options{Library: lib, Prefs: prefs, Synth: synth, Clock: clock, SettleDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		lib.Close()
	})
	return c
}

func addPDF(t *testing.T, c *Controller, pages int) library.Item {
	t.Helper()
	data, err := readertest.PDF(pages)
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	item, err := c.Add(context.Background(), "ten.pdf", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return item
}

func TestReadThroughAndRemove(t *testing.T) {
	ctx := context.Background()
	synth := &holdSynth{}
	c := newController(t, synth, nil)
	item := addPDF(t, c, 10)

	if err := c.Open(ctx, item.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 9; i++ {
		if err := c.Navigate(ctx, session.Next); err != nil {
			t.Fatalf("Navigate %d: %v", i, err)
		}
	}
	snap := c.Snapshot()
	if snap.Position.Page != 10 || !snap.Progress.Known || snap.Progress.Percent != 100 {
		t.Fatalf("position %v, progress %v", snap.Position, snap.Progress)
	}
	if err := c.Navigate(ctx, session.Next); !errors.Is(err, reader.ErrBoundary) {
		t.Errorf("past last page = %v", err)
	}
	if c.Session().State() != session.Ready {
		t.Errorf("state after boundary = %s", c.Session().State())
	}

	saved, _ := c.Library().Get(ctx, item.ID)
	if saved.LastPosition.Page != 10 || saved.Progress != 100 {
		t.Errorf("saved %v at %d%%", saved.LastPosition, saved.Progress)
	}

	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if h := c.Snapshot().Highlight; h.Index != 0 || !strings.Contains(h.Current, "10") {
		t.Errorf("highlight while speaking = %+v", h)
	}
	c.Stop()
	snap = c.Snapshot()
	if snap.Highlight.Index != -1 || snap.Highlight.Current != "" || snap.View.Marked != -1 {
		t.Errorf("highlight after stop = %+v, marked %d", snap.Highlight, snap.View.Marked)
	}
	if snap.Speech != speech.Idle {
		t.Errorf("speech = %s", snap.Speech)
	}

	if err := c.Remove(ctx, item.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if st := c.Session().State(); st != session.Empty {
		t.Errorf("state after remove = %s", st)
	}
	items, _ := c.List(ctx)
	for _, it := range items {
		if it.ID == item.ID {
			t.Fatal("removed item still listed")
		}
	}
}

func TestRemoveOtherItemKeepsSession(t *testing.T) {
	ctx := context.Background()
	c := newController(t, nil, nil)
	open := addPDF(t, c, 2)
	other := addPDF(t, c, 3)

	if err := c.Open(ctx, open.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Remove(ctx, other.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c.Session().State() != session.Ready {
		t.Errorf("state = %s", c.Session().State())
	}
	if _, err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Session().State() != session.Empty {
		t.Errorf("state after clear = %s", c.Session().State())
	}
}

func TestPlayWithoutSynthesizer(t *testing.T) {
	c := newController(t, nil, nil)
	if err := c.Play(); !errors.Is(err, speech.ErrSpeechUnsupported) {
		t.Fatalf("Play = %v", err)
	}
	snap := c.Snapshot()
	if snap.SpeechAvailable || snap.Status == "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSandboxSwitchReopensAtPosition(t *testing.T) {
	ctx := context.Background()
	c := newController(t, &holdSynth{}, nil)
	data, err := readertest.EPUB([]readertest.Chapter{
		{Title: "One", Body: readertest.Paragraphs("One", 3)},
		{Title: "Two", Body: readertest.Paragraphs("Two", 3)},
	}, false)
	if err != nil {
		t.Fatalf("build epub: %v", err)
	}
	item, err := c.Add(ctx, "book.epub", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Open(ctx, item.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Navigate(ctx, session.Next); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	before, _ := c.Session().Position()

	if err := c.SetSandboxMode(ctx, sandbox.ScriptsAllowed); err != nil {
		t.Fatalf("SetSandboxMode: %v", err)
	}
	if got := c.Preferences().Sandbox; got != "allowed" {
		t.Errorf("persisted sandbox = %q", got)
	}
	snap := c.Snapshot()
	if snap.State != session.Ready || snap.Sandbox != sandbox.ScriptsAllowed {
		t.Fatalf("snapshot = %s / %s", snap.State, snap.Sandbox)
	}
	if !snap.Position.Equal(before) {
		t.Errorf("position %v, want %v", snap.Position, before)
	}
	if err := c.Play(); !errors.Is(err, speech.ErrNothingReadable) {
		t.Errorf("Play with scripts allowed = %v", err)
	}

	if err := c.SetSandboxMode(ctx, sandbox.ScriptsBlocked); err != nil {
		t.Fatalf("SetSandboxMode: %v", err)
	}
	if err := c.Play(); err != nil {
		t.Errorf("Play with scripts blocked = %v", err)
	}
}

func TestResumeKeyAppliesOnNextOpen(t *testing.T) {
	ctx := context.Background()
	c := newController(t, nil, nil)
	data, err := readertest.EPUB([]readertest.Chapter{
		{Title: "One", Body: readertest.Paragraphs("One", 3)},
		{Title: "Two", Body: readertest.Paragraphs("Two", 3)},
	}, false)
	if err != nil {
		t.Fatalf("build epub: %v", err)
	}
	item, err := c.Add(ctx, "book.epub", data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	end := 100.0
	saved := reader.Position{CFI: "epubcfi(/6/40[gone]!/4/2/1:0)", Percent: &end}
	if err := c.Library().SavePosition(ctx, item.ID, saved, 100); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	if err := c.SetResumeKey(reader.ResumeCFI); err != nil {
		t.Fatalf("SetResumeKey: %v", err)
	}
	if err := c.Open(ctx, item.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	byCFI, _ := c.Session().Position()
	if c.Snapshot().Status == "" {
		t.Error("unresolvable position should be reported")
	}

	if err := c.SetResumeKey(reader.ResumePercent); err != nil {
		t.Fatalf("SetResumeKey: %v", err)
	}
	if got := c.Preferences().ResumeKey; got != "percent" {
		t.Errorf("persisted resume key = %q", got)
	}
	c.Library().SavePosition(ctx, item.ID, saved, 100)
	if err := c.Open(ctx, item.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	byPercent, _ := c.Session().Position()
	if byPercent.CFI == byCFI.CFI {
		t.Errorf("percent resume stayed at %s", byPercent.CFI)
	}

	if err := c.SetResumeKey("page"); err == nil {
		t.Error("expected error for unknown resume key")
	}
}

func TestBookmarkAndNote(t *testing.T) {
	ctx := context.Background()
	c := newController(t, nil, nil)
	if _, err := c.Bookmark(ctx, "x"); !errors.Is(err, session.ErrNotReady) {
		t.Errorf("Bookmark with nothing open = %v", err)
	}

	item := addPDF(t, c, 4)
	c.Open(ctx, item.ID)
	c.Navigate(ctx, session.Next)
	if _, err := c.Bookmark(ctx, ""); err != nil {
		t.Fatalf("Bookmark: %v", err)
	}
	if _, err := c.Note(ctx, "check this"); err != nil {
		t.Fatalf("Note: %v", err)
	}
	c.Navigate(ctx, session.Next)

	if err := c.GoToBookmark(ctx, 0); err != nil {
		t.Fatalf("GoToBookmark: %v", err)
	}
	if pos, _ := c.Session().Position(); pos.Page != 2 {
		t.Errorf("position after bookmark = %v", pos)
	}
	got, _ := c.Library().Get(ctx, item.ID)
	if len(got.Bookmarks) != 1 || got.Bookmarks[0].Label != "page 2" || len(got.Notes) != 1 {
		t.Errorf("annotations = %+v / %+v", got.Bookmarks, got.Notes)
	}
}

func TestIdleAlertClearsOnActivity(t *testing.T) {
	clock := &manualClock{}
	c := newController(t, nil, clock)

	clock.fireLast()
	if c.Snapshot().Alert == "" {
		t.Fatal("expected idle alert")
	}
	c.Activity()
	if c.Snapshot().Alert != "" {
		t.Error("alert should clear on activity")
	}

	mins, err := c.SetIdleMinutes(500)
	if err != nil || mins != idle.MaxMinutes || c.Preferences().IdleMinutes != idle.MaxMinutes {
		t.Errorf("SetIdleMinutes = %d, %v", mins, err)
	}
}

func TestFollowPreferencePersists(t *testing.T) {
	c := newController(t, &holdSynth{}, nil)
	if err := c.SetFollow(true); err != nil {
		t.Fatalf("SetFollow: %v", err)
	}
	if !c.Snapshot().Follow || !c.Preferences().TTS.Follow {
		t.Error("follow not applied")
	}
}

func TestNewSynthesizer(t *testing.T) {
	s, err := NewSynthesizer(VoicePaced, state.TTS{Rate: 2})
	if err != nil {
		t.Fatalf("paced: %v", err)
	}
	if _, ok := s.(*speech.PacedSynthesizer); !ok {
		t.Errorf("paced backend = %T", s)
	}
	if s, err := NewSynthesizer(VoiceOff, state.TTS{}); s != nil || err != nil {
		t.Errorf("off = %v, %v", s, err)
	}
	if _, err := NewSynthesizer("robot", state.TTS{}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
