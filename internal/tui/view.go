package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/metcalfc/aeonsight/internal/app"
	"github.com/metcalfc/aeonsight/internal/session"
	"github.com/metcalfc/aeonsight/internal/speech"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	snap := m.ctrl.Snapshot()

	var body string
	var bindings []key.Binding
	switch m.screen {
	case screenReader:
		body = m.readerView(snap)
		bindings = m.keys.readerHelp()
	case screenTOC:
		body = m.tocView(snap)
		bindings = m.keys.tocHelp()
	default:
		body = m.libraryView()
		bindings = m.keys.libraryHelp()
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	if m.mode != inputNone {
		b.WriteString(m.in.View())
		b.WriteString("\n")
	}
	if snap.Alert != "" {
		b.WriteString(pausedStyle.Render(snap.Alert))
		b.WriteString("\n")
	}
	if m.flash != "" {
		b.WriteString(errorStyle.Render(m.flash))
		b.WriteString("\n")
	} else if snap.Status != "" {
		b.WriteString(statusStyle.Render(snap.Status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(bindings))
	return b.String()
}

func (m Model) libraryView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Library"))
	b.WriteString("\n\n")
	if len(m.items) == 0 {
		b.WriteString(dimStyle.Render("No documents yet. Press a to add one."))
		b.WriteString("\n")
		return b.String()
	}
	for i, it := range m.items {
		line := fmt.Sprintf("%-40s %-5s %3d%%  %s", truncate(it.Name, 40), it.Format, it.Progress, it.AddedAt.Format("2006-01-02"))
		if !it.HasContent {
			line += "  (content missing)"
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString(textStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	if m.confirm != "" {
		b.WriteString("\n")
		b.WriteString(pausedStyle.Render("Remove this item? (y/n)"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) readerView(snap app.Snapshot) string {
	var b strings.Builder

	switch snap.State {
	case session.Loading:
		return dimStyle.Render("Loading " + snap.Name + "...")
	case session.Empty, session.Closed:
		return dimStyle.Render("No document open. Press esc for the library.")
	case session.Error:
		return errorStyle.Render("Could not open " + snap.Name)
	}

	pct := 0.0
	pctText := snap.Progress.String()
	if snap.Progress.Known {
		pct = float64(snap.Progress.Percent) / 100
	}
	b.WriteString(titleStyle.Render(snap.Name))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(snap.View.Label))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(pct))
	b.WriteString(" ")
	if snap.Progress.Known && snap.Progress.Percent == 100 {
		b.WriteString(completeStyle.Render(pctText))
	} else {
		b.WriteString(statusStyle.Render(pctText))
	}
	b.WriteString("\n\n")

	width := max(20, m.width-4)
	wrap := lipgloss.NewStyle().Width(width)
	for i, block := range snap.View.Blocks {
		style := textStyle
		if i == snap.View.Marked {
			style = highlightStyle
		}
		b.WriteString(wrap.Render(style.Render(block)))
		b.WriteString("\n")
	}

	if snap.SpeechAvailable && snap.Highlight.Index >= 0 {
		h := snap.Highlight
		b.WriteString("\n")
		if h.Prev != "" {
			b.WriteString(wrap.Render(dimStyle.Render(h.Prev)))
			b.WriteString("\n")
		}
		b.WriteString(wrap.Render(highlightStyle.Render(h.Current)))
		b.WriteString("\n")
		if h.Next != "" {
			b.WriteString(wrap.Render(dimStyle.Render(h.Next)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.statsLine(snap))
	return b.String()
}

func (m Model) statsLine(snap app.Snapshot) string {
	parts := []string{
		"Time: " + snap.Stats.ElapsedString(),
		"WPM: " + snap.Stats.WPMString(),
		"Scripts: " + snap.Sandbox.String(),
	}
	if snap.SpeechAvailable {
		speechText := "Voice: " + snap.Speech.String()
		if snap.Highlight.Index >= 0 {
			speechText += fmt.Sprintf(" %d/%d", snap.Highlight.Index+1, snap.Highlight.Total)
		}
		if snap.Follow {
			speechText += " (follow)"
		}
		parts = append(parts, speechText)
	}
	line := statusStyle.Render(strings.Join(parts, " | "))
	if snap.Speech == speech.Paused {
		line += pausedStyle.Render(" PAUSED")
	}
	return line
}

func (m Model) tocView(snap app.Snapshot) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Contents: " + snap.Name))
	b.WriteString("\n\n")

	// Keep the cursor on screen.
	visible := max(5, m.height-8)
	start := 0
	if m.toc >= visible {
		start = m.toc - visible + 1
	}
	end := min(len(snap.TOC), start+visible)
	for i := start; i < end; i++ {
		e := snap.TOC[i]
		line := strings.Repeat("  ", e.Level) + e.Title
		if e.Preview != "" {
			line += dimStyle.Render("  " + truncate(e.Preview, 50))
		}
		if i == m.toc {
			b.WriteString(selectedStyle.Render("> ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
