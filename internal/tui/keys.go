package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Open     key.Binding
	Add      key.Binding
	Remove   key.Binding
	Next     key.Binding
	Prev     key.Binding
	Play     key.Binding
	Stop     key.Binding
	Follow   key.Binding
	Bookmark key.Binding
	Jump     key.Binding
	Note     key.Binding
	TOC      key.Binding
	Sandbox  key.Binding
	Back     key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add file")),
		Remove:   key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "remove")),
		Next:     key.NewBinding(key.WithKeys("right", "l", "pgdown"), key.WithHelp("→", "next")),
		Prev:     key.NewBinding(key.WithKeys("left", "h", "pgup"), key.WithHelp("←", "prev")),
		Play:     key.NewBinding(key.WithKeys(" "), key.WithHelp("SPACE", "read aloud/pause")),
		Stop:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Follow:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow")),
		Bookmark: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bookmark")),
		Jump:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "last bookmark")),
		Note:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "note")),
		TOC:      key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "contents")),
		Sandbox:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "scripts")),
		Back:     key.NewBinding(key.WithKeys("esc", "L"), key.WithHelp("esc", "library")),
		Quit:     key.NewBinding(key.WithKeys("q", "Q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) libraryHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Add, k.Remove, k.Quit}
}

func (k keyMap) readerHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Play, k.Stop, k.Follow, k.Bookmark, k.Jump, k.Note, k.TOC, k.Sandbox, k.Back, k.Quit}
}

func (k keyMap) tocHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Back}
}
