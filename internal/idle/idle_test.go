package idle

import (
	"sync"
	"testing"
	"time"
)

// fakeClock runs callbacks when Advance moves past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && t.at <= c.now {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Alert(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestClampMinutes(t *testing.T) {
	tests := map[int]int{-5: 1, 0: 1, 1: 1, 45: 45, 120: 120, 500: 120}
	for in, want := range tests {
		if got := ClampMinutes(in); got != want {
			t.Errorf("ClampMinutes(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestFiresOnceAtWindow(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	g := New(5, clock, rec)
	g.Start()

	clock.Advance(5*time.Minute - time.Second)
	if rec.count() != 0 {
		t.Fatal("alert fired before the window")
	}
	clock.Advance(time.Second)
	if rec.count() != 1 || !g.Expired() {
		t.Fatalf("alerts = %d, expired %v", rec.count(), g.Expired())
	}
	clock.Advance(time.Hour)
	if rec.count() != 1 {
		t.Fatalf("alert repeated while idle: %d", rec.count())
	}

	g.Activity()
	if g.Expired() {
		t.Error("activity did not clear expiry")
	}
	clock.Advance(5 * time.Minute)
	if rec.count() != 2 {
		t.Errorf("alerts after re-arm = %d, want 2", rec.count())
	}
}

func TestActivityResetsDeadline(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	g := New(10, clock, rec)
	g.Start()

	clock.Advance(7 * time.Minute)
	g.Activity()
	clock.Advance(7 * time.Minute)
	if rec.count() != 0 {
		t.Fatal("alert fired before the reset deadline")
	}
	clock.Advance(3 * time.Minute)
	if rec.count() != 1 {
		t.Fatalf("alerts = %d, want 1", rec.count())
	}
}

func TestStopLeavesNoTimer(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	g := New(1, clock, rec)
	g.Start()
	g.Stop()
	g.Activity()
	clock.Advance(time.Hour)
	if rec.count() != 0 {
		t.Errorf("alerts after Stop = %d", rec.count())
	}
}

func TestSetWindowClamps(t *testing.T) {
	clock := &fakeClock{}
	rec := &recorder{}
	g := New(30, clock, rec)
	g.Start()
	if got := g.SetWindow(0); got != 1 {
		t.Fatalf("SetWindow(0) = %d", got)
	}
	clock.Advance(time.Minute)
	if rec.count() != 1 {
		t.Errorf("alerts = %d, want 1", rec.count())
	}
	if g.Window() != time.Minute {
		t.Errorf("Window = %v", g.Window())
	}
}
