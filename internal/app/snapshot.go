package app

import (
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/metcalfc/aeonsight/internal/session"
	"github.com/metcalfc/aeonsight/internal/speech"
)

// Snapshot is everything a front end needs to draw one frame.
type Snapshot struct {
	State    session.State
	ItemID   string
	Name     string
	Format   reader.Format
	Position reader.Position
	Progress reader.Progress
	Units    int
	View     reader.View
	TOC      []reader.TOCEntry
	Stats    session.Stats
	Sandbox  sandbox.Mode

	SpeechAvailable bool
	Speech          speech.State
	Highlight       speech.Highlight
	Follow          bool

	// Status is the most relevant user-facing message.
	Status string
	// Alert is set while the idle guard has fired and no activity followed.
	Alert string
}

// Snapshot captures the current state of the reader.
func (c *Controller) Snapshot() Snapshot {
	s := c.session
	snap := Snapshot{
		State:     s.State(),
		Format:    s.Format(),
		Units:     s.TotalUnits(),
		TOC:       s.TOC(),
		Stats:     s.Stats(),
		Sandbox:   s.Sandbox(),
		Highlight: speech.Highlight{Index: -1},
		View:      reader.View{Marked: -1},
	}
	snap.ItemID, snap.Name = s.Current()
	if pos, err := s.Position(); err == nil {
		snap.Position = pos
	}
	if p, err := s.Progress(); err == nil {
		snap.Progress = p
	}
	if v, err := s.View(); err == nil {
		snap.View = v
	}

	if c.engine != nil {
		snap.SpeechAvailable = true
		snap.Speech = c.engine.State()
		snap.Highlight = c.engine.Highlight()
		snap.Follow = c.engine.Follow()
	}

	c.mu.Lock()
	snap.Alert = c.alert
	status := c.status
	c.mu.Unlock()

	// Session problems outrank speech messages, which outrank the last
	// command's confirmation.
	switch {
	case s.Status() != "":
		snap.Status = s.Status()
	case c.engine != nil && c.engine.Status() != "":
		snap.Status = c.engine.Status()
	default:
		snap.Status = status
	}
	return snap
}
