package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func loadPlain(t *testing.T, f Format, text string, window int) *PlainAdapter {
	t.Helper()
	a := NewPlainAdapter(f, Options{WindowChars: window})
	if err := a.Load(context.Background(), []byte(text)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return a
}

func numbered(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Sentence number %d is here. ", i)
	}
	return b.String()
}

func TestPlainNavigation(t *testing.T) {
	a := loadPlain(t, FormatText, numbered(10), 40)
	if a.TotalUnits() != 10 {
		t.Fatalf("TotalUnits = %d, want 10", a.TotalUnits())
	}
	if _, err := a.Prev(); !errors.Is(err, ErrBoundary) {
		t.Fatalf("Prev at start = %v, want ErrBoundary", err)
	}

	var visited []int
	for {
		pos, err := a.Next()
		if errors.Is(err, ErrBoundary) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		visited = append(visited, pos.Sentence)
	}
	if len(visited) == 0 || visited[len(visited)-1] >= 10 {
		t.Fatalf("visited = %v", visited)
	}
	for i := 1; i < len(visited); i++ {
		if visited[i] <= visited[i-1] {
			t.Fatalf("positions not increasing: %v", visited)
		}
	}

	for a.Position().Sentence > 0 {
		if _, err := a.Prev(); err != nil {
			t.Fatalf("Prev: %v", err)
		}
	}
	if _, err := a.Prev(); !errors.Is(err, ErrBoundary) {
		t.Errorf("Prev at start = %v", err)
	}
}

func TestPlainPositionRoundTrip(t *testing.T) {
	a := loadPlain(t, FormatText, numbered(10), 40)
	a.Next()
	a.Next()
	pos := a.Position()
	if err := a.SetPosition(pos); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if !a.Position().Equal(pos) {
		t.Errorf("position moved: %v -> %v", pos, a.Position())
	}
}

func TestPlainSetPositionClamps(t *testing.T) {
	a := loadPlain(t, FormatText, numbered(5), 40)
	err := a.SetPosition(Position{Sentence: 99})
	var perr *PositionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PositionError", err)
	}
	if perr.Clamped.Sentence != 4 || a.Position().Sentence != 4 {
		t.Errorf("clamped to %v, position %v", perr.Clamped, a.Position())
	}
}

func TestPlainProgressUnknown(t *testing.T) {
	a := loadPlain(t, FormatText, numbered(3), 40)
	if p := a.Progress(); p.Known || p.String() != "—" {
		t.Errorf("Progress = %+v", p)
	}
}

func TestPlainRejectsInvalidUTF8(t *testing.T) {
	a := NewPlainAdapter(FormatText, Options{})
	err := a.Load(context.Background(), []byte{0xff, 0xfe, 'a'})
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
}

func TestPlainStripsBOM(t *testing.T) {
	a := loadPlain(t, FormatText, "\xef\xbb\xbfHello there friend.", 0)
	text, _ := a.ExtractText()
	if text != "Hello there friend." {
		t.Errorf("ExtractText = %q", text)
	}
}

func TestHTMLStripsMarkup(t *testing.T) {
	doc := `<html><head><title>T</title><style>p{color:red}</style></head><body>
<h1>Intro</h1><p>Hello there world.</p><script>alert(1)</script>
<h2>Next part</h2><p>More text here.</p></body></html>`
	a := loadPlain(t, FormatHTML, doc, 0)

	text, err := a.ExtractText()
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color") || strings.Contains(text, "<") {
		t.Errorf("markup leaked into text: %q", text)
	}
	if a.TotalUnits() != 2 {
		t.Errorf("TotalUnits = %d, want 2", a.TotalUnits())
	}

	toc := a.TOC()
	if len(toc) != 2 {
		t.Fatalf("TOC = %+v", toc)
	}
	if toc[0].Title != "Intro" || toc[0].Level != 0 || toc[0].Target.Sentence != 0 {
		t.Errorf("toc[0] = %+v", toc[0])
	}
	if toc[1].Title != "Next part" || toc[1].Level != 1 || toc[1].Target.Sentence != 1 {
		t.Errorf("toc[1] = %+v", toc[1])
	}
}

func TestMarkdownTOC(t *testing.T) {
	content := `# Introduction
This is the introduction.

## Getting Started
Here's how to get started with the project.

### Prerequisites
You'll need these things installed.

## Usage
Here's how to use it.

# Advanced Topics
More complex stuff here.

## Configuration
Configure everything.
`
	a := loadPlain(t, FormatText, content, 0)
	toc := a.TOC()
	if len(toc) != 6 {
		t.Fatalf("Expected 6 TOC entries, got %d", len(toc))
	}

	expectedLevels := []int{0, 1, 2, 1, 0, 1} // h1=0, h2=1, h3=2
	expectedTitles := []string{"Introduction", "Getting Started", "Prerequisites", "Usage", "Advanced Topics", "Configuration"}
	for i, entry := range toc {
		if entry.Level != expectedLevels[i] {
			t.Errorf("Entry %d (%s): expected level %d, got %d", i, entry.Title, expectedLevels[i], entry.Level)
		}
		if entry.Title != expectedTitles[i] {
			t.Errorf("Entry %d: expected title %q, got %q", i, expectedTitles[i], entry.Title)
		}
		if i > 0 && entry.Target.Sentence < toc[i-1].Target.Sentence {
			t.Errorf("Entry %d: target %d before previous entry", i, entry.Target.Sentence)
		}
	}
}

func TestPlainMarkSentence(t *testing.T) {
	a := loadPlain(t, FormatText, numbered(20), 200)
	a.Next()
	text, _ := a.ExtractText()
	sentences := Split(text)
	if len(sentences) < 2 {
		t.Fatalf("window too small: %q", sentences)
	}
	if !a.MarkSentence(1) {
		t.Fatal("MarkSentence(1) = false")
	}
	v, _ := a.Render()
	if v.Marked != 1 || v.Blocks[v.Marked] != sentences[1] {
		t.Errorf("marked block %d of %q, want %q", v.Marked, v.Blocks, sentences[1])
	}
	if a.MarkSentence(len(sentences)) {
		t.Error("MarkSentence past the window should fail")
	}
	a.ClearMark()
	v, _ = a.Render()
	if v.Marked != -1 {
		t.Errorf("Marked after ClearMark = %d", v.Marked)
	}
}
