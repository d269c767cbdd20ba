// Package idle raises an alert after a period without reading activity.
package idle

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	MinMinutes     = 1
	MaxMinutes     = 120
	DefaultMinutes = 30
)

// ClampMinutes bounds an idle window to [MinMinutes, MaxMinutes].
func ClampMinutes(m int) int {
	return max(MinMinutes, min(MaxMinutes, m))
}

// Timer is the part of *time.Timer the guard uses.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. RealClock uses the time package.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Alerter is notified when the window elapses.
type Alerter interface {
	Alert(msg string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(msg string)

func (f AlertFunc) Alert(msg string) { f(msg) }

// BellAlerter rings the terminal bell and writes the message.
type BellAlerter struct {
	W io.Writer
}

func (b BellAlerter) Alert(msg string) {
	fmt.Fprintf(b.W, "\a%s\n", msg)
}

// Guard is a single inactivity timer. It fires once per idle period and
// re-arms only when activity resumes.
type Guard struct {
	clock   Clock
	alerter Alerter

	mu      sync.Mutex
	window  time.Duration
	timer   Timer
	gen     uint64
	running bool
	expired bool
}

// New returns a stopped guard with a window of minutes, clamped.
func New(minutes int, clock Clock, alerter Alerter) *Guard {
	if clock == nil {
		clock = RealClock
	}
	return &Guard{
		clock:   clock,
		alerter: alerter,
		window:  time.Duration(ClampMinutes(minutes)) * time.Minute,
	}
}

// Start arms the timer.
func (g *Guard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = true
	g.arm()
}

// Activity resets the deadline to now plus the window. After an alert it
// re-arms the guard.
func (g *Guard) Activity() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.arm()
}

// SetWindow changes the window and restarts the countdown. It returns the
// clamped number of minutes.
func (g *Guard) SetWindow(minutes int) int {
	minutes = ClampMinutes(minutes)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = time.Duration(minutes) * time.Minute
	if g.running {
		g.arm()
	}
	return minutes
}

// Window returns the current window.
func (g *Guard) Window() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.window
}

// Stop disarms the guard and leaves no timer behind.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// Expired reports whether the alert fired since the last activity.
func (g *Guard) Expired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.expired
}

// arm replaces the pending timer. Callers hold mu.
func (g *Guard) arm() {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	g.expired = false
	gen := g.gen
	mins := int(g.window / time.Minute)
	g.timer = g.clock.AfterFunc(g.window, func() { g.fire(gen, mins) })
}

func (g *Guard) fire(gen uint64, mins int) {
	g.mu.Lock()
	if gen != g.gen || !g.running {
		g.mu.Unlock()
		return
	}
	g.expired = true
	g.timer = nil
	alerter := g.alerter
	g.mu.Unlock()

	if alerter != nil {
		alerter.Alert(fmt.Sprintf("No activity for %d min. Still reading?", mins))
	}
}
