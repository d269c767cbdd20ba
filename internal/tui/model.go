// Package tui is the terminal front end. It renders controller snapshots
// and turns key presses into controller commands; the document session
// lives in the controller, not here.
package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/metcalfc/aeonsight/internal/app"
	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/metcalfc/aeonsight/internal/session"
	"github.com/metcalfc/aeonsight/internal/speech"
)

const refreshInterval = 250 * time.Millisecond

type screen int

const (
	screenLibrary screen = iota
	screenReader
	screenTOC
)

type inputMode int

const (
	inputNone inputMode = iota
	inputAdd
	inputBookmark
	inputNote
)

type tickMsg time.Time

// itemsMsg carries a fresh library listing.
type itemsMsg struct {
	items []library.Item
	err   error
}

// doneMsg reports the result of a controller command run off the UI
// goroutine.
type doneMsg struct {
	err    error
	opened bool
}

// Model is the root bubbletea model.
type Model struct {
	ctrl *app.Controller
	keys keyMap
	help help.Model
	bar  progress.Model
	in   textinput.Model

	screen  screen
	mode    inputMode
	items   []library.Item
	cursor  int
	toc     int
	confirm string
	flash   string
	openID  string

	width    int
	height   int
	quitting bool
}

// New returns a model showing the library. If openID is set, that item is
// opened on start.
func New(ctrl *app.Controller, openID string) Model {
	in := textinput.New()
	in.CharLimit = 512
	return Model{
		ctrl:   ctrl,
		keys:   defaultKeys(),
		help:   help.New(),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		in:     in,
		openID: openID,
		width:  80,
		height: 24,
	}
}

// Run starts the program in the alternate screen and blocks until quit.
func Run(ctrl *app.Controller, openID string) error {
	p := tea.NewProgram(New(ctrl, openID), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadItems(), tick()}
	if m.openID != "" {
		cmds = append(cmds, m.open(m.openID))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadItems() tea.Cmd {
	return func() tea.Msg {
		items, err := m.ctrl.List(context.Background())
		return itemsMsg{items: items, err: err}
	}
}

func (m Model) open(id string) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: m.ctrl.Open(context.Background(), id), opened: true}
	}
}

// run wraps a controller command so it executes off the UI goroutine.
func run(fn func() error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: fn()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, msg.Width/3)
		return m, nil

	case tea.MouseMsg:
		m.ctrl.Activity()
		return m, nil

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tick()

	case itemsMsg:
		if msg.err != nil {
			m.flash = msg.err.Error()
			return m, nil
		}
		m.items = msg.items
		if m.cursor >= len(m.items) {
			m.cursor = max(0, len(m.items)-1)
		}
		return m, nil

	case doneMsg:
		m.flash = ""
		if msg.err != nil && !errors.Is(msg.err, reader.ErrBoundary) {
			m.flash = msg.err.Error()
		}
		if msg.opened && msg.err == nil {
			m.screen = screenReader
		}
		return m, m.loadItems()

	case tea.KeyMsg:
		m.ctrl.Activity()
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.screen {
		case screenLibrary:
			return m.updateLibrary(msg)
		case screenReader:
			return m.updateReader(msg)
		case screenTOC:
			return m.updateTOC(msg)
		}
	}
	return m, nil
}

func (m Model) startInput(mode inputMode, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = mode
	m.in.Reset()
	m.in.Placeholder = placeholder
	return m, m.in.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.in.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.in.Value())
		mode := m.mode
		m.mode = inputNone
		m.in.Blur()
		ctrl := m.ctrl
		switch mode {
		case inputAdd:
			if value == "" {
				return m, nil
			}
			return m, run(func() error {
				data, err := os.ReadFile(value)
				if err != nil {
					return err
				}
				_, err = ctrl.Add(context.Background(), filepath.Base(value), data)
				return err
			})
		case inputBookmark:
			return m, run(func() error {
				_, err := ctrl.Bookmark(context.Background(), value)
				return err
			})
		case inputNote:
			if value == "" {
				return m, nil
			}
			return m, run(func() error {
				_, err := ctrl.Note(context.Background(), value)
				return err
			})
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.in, cmd = m.in.Update(msg)
	return m, cmd
}

func (m Model) updateLibrary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != "" {
		id := m.confirm
		m.confirm = ""
		if msg.String() == "y" || msg.String() == "Y" {
			ctrl := m.ctrl
			return m, run(func() error { return ctrl.Remove(context.Background(), id) })
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if len(m.items) > 0 {
			return m, m.open(m.items[m.cursor].ID)
		}
	case key.Matches(msg, m.keys.Add):
		return m.startInput(inputAdd, "path to a pdf, epub, txt, md or html file")
	case key.Matches(msg, m.keys.Remove):
		if len(m.items) > 0 {
			m.confirm = m.items[m.cursor].ID
		}
	case key.Matches(msg, m.keys.Back):
		if m.ctrl.Session().State() == session.Ready {
			m.screen = screenReader
		}
	}
	return m, nil
}

func (m Model) updateReader(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.ctrl
	ctx := context.Background()
	switch {
	case key.Matches(msg, m.keys.Next):
		return m, run(func() error { return ctrl.Navigate(ctx, session.Next) })
	case key.Matches(msg, m.keys.Prev):
		return m, run(func() error { return ctrl.Navigate(ctx, session.Prev) })
	case key.Matches(msg, m.keys.Play):
		if ctrl.Snapshot().Speech == speech.Idle {
			return m, run(ctrl.Play)
		}
		return m, run(ctrl.TogglePause)
	case key.Matches(msg, m.keys.Stop):
		ctrl.Stop()
	case key.Matches(msg, m.keys.Follow):
		on := !ctrl.Snapshot().Follow
		return m, run(func() error { return ctrl.SetFollow(on) })
	case key.Matches(msg, m.keys.Bookmark):
		return m.startInput(inputBookmark, "bookmark label (enter for the position)")
	case key.Matches(msg, m.keys.Jump):
		return m, run(func() error { return gotoLastBookmark(ctx, ctrl) })
	case key.Matches(msg, m.keys.Note):
		return m.startInput(inputNote, "note text")
	case key.Matches(msg, m.keys.TOC):
		if len(ctrl.Session().TOC()) > 0 {
			m.screen = screenTOC
			m.toc = 0
		} else {
			m.flash = "This document has no table of contents"
		}
	case key.Matches(msg, m.keys.Sandbox):
		next := sandbox.ScriptsAllowed
		if ctrl.Snapshot().Sandbox == sandbox.ScriptsAllowed {
			next = sandbox.ScriptsBlocked
		}
		return m, run(func() error { return ctrl.SetSandboxMode(ctx, next) })
	case key.Matches(msg, m.keys.Back):
		m.screen = screenLibrary
		return m, m.loadItems()
	}
	return m, nil
}

func gotoLastBookmark(ctx context.Context, ctrl *app.Controller) error {
	id, _ := ctrl.Session().Current()
	item, err := ctrl.Library().Get(ctx, id)
	if err != nil {
		return err
	}
	if len(item.Bookmarks) == 0 {
		return errors.New("no bookmarks yet")
	}
	return ctrl.GoToBookmark(ctx, len(item.Bookmarks)-1)
}

func (m Model) updateTOC(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	toc := m.ctrl.Session().TOC()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.toc > 0 {
			m.toc--
		}
	case key.Matches(msg, m.keys.Down):
		if m.toc < len(toc)-1 {
			m.toc++
		}
	case key.Matches(msg, m.keys.Open):
		m.screen = screenReader
		if m.toc < len(toc) {
			entry, ctrl := toc[m.toc], m.ctrl
			return m, run(func() error { return ctrl.Jump(context.Background(), entry) })
		}
	case key.Matches(msg, m.keys.Back):
		m.screen = screenReader
	}
	return m, nil
}
