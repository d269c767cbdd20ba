package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultWindowChars sizes the visible unit of plain documents.
const DefaultWindowChars = 1500

// PlainAdapter serves text and HTML documents. Its position is an index
// into the sentence list of the whole document; the visible unit is a
// window of sentences starting there.
type PlainAdapter struct {
	format    Format
	window    int
	sentences []string
	toc       []TOCEntry
	pos       int
	marked    int
	loaded    bool
}

func init() {
	Register(FormatText, func(opts Options) Adapter { return NewPlainAdapter(FormatText, opts) })
	Register(FormatHTML, func(opts Options) Adapter { return NewPlainAdapter(FormatHTML, opts) })
}

// NewPlainAdapter returns an unloaded adapter for text or HTML.
func NewPlainAdapter(f Format, opts Options) *PlainAdapter {
	w := opts.WindowChars
	if w <= 0 {
		w = DefaultWindowChars
	}
	return &PlainAdapter{format: f, window: w, marked: -1}
}

func (a *PlainAdapter) Format() Format { return a.format }

// Load decodes data as UTF-8 and splits it into sentences. HTML markup is
// stripped first.
func (a *PlainAdapter) Load(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return &LoadError{Format: a.format, Err: errors.New("content is not valid UTF-8")}
	}

	var (
		text  string
		heads []heading
	)
	if a.format == FormatHTML {
		doc, err := html.Parse(bytes.NewReader(data))
		if err != nil {
			return &LoadError{Format: a.format, Err: err}
		}
		text, heads = textAndHeadings(doc)
	} else {
		text = string(data)
		heads = markdownHeadings(text)
	}

	a.sentences = Split(text)
	a.toc = a.buildTOC(text, heads)
	a.pos = 0
	a.marked = -1
	a.loaded = true
	return nil
}

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

func markdownHeadings(text string) []heading {
	var (
		heads []heading
		words int
	)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if match := headerRegex.FindStringSubmatch(line); match != nil {
			heads = append(heads, heading{
				title: strings.TrimSpace(match[2]),
				level: len(match[1]),
				word:  words,
			})
		}
		words += CountWords(line)
	}
	return heads
}

func (a *PlainAdapter) buildTOC(text string, heads []heading) []TOCEntry {
	if len(heads) == 0 {
		return nil
	}
	words := ParseText(text)
	entries := make([]TOCEntry, 0, len(heads))
	for _, h := range heads {
		end := h.word + 10
		if end > len(words) {
			end = len(words)
		}
		entries = append(entries, TOCEntry{
			Title:     h.title,
			Preview:   previewWords(words[h.word:end]),
			WordIndex: h.word,
			Level:     h.level - 1, // h1 = level 0
			Target:    Position{Sentence: SentenceOfWord(text, h.word)},
		})
	}
	return entries
}

// windowEnd returns the exclusive end of the window starting at from.
func (a *PlainAdapter) windowEnd(from int) int {
	end, chars := from, 0
	for end < len(a.sentences) {
		chars += utf8.RuneCountInString(a.sentences[end]) + 1
		end++
		if chars >= a.window {
			break
		}
	}
	return end
}

func (a *PlainAdapter) Render() (View, error) {
	if !a.loaded {
		return View{}, ErrNotLoaded
	}
	end := a.windowEnd(a.pos)
	v := View{
		Label:  fmt.Sprintf("Sentence %d of %d", min(a.pos+1, len(a.sentences)), len(a.sentences)),
		Blocks: append([]string(nil), a.sentences[a.pos:end]...),
		Marked: -1,
	}
	if a.marked >= a.pos && a.marked < end {
		v.Marked = a.marked - a.pos
	}
	return v, nil
}

func (a *PlainAdapter) Position() Position { return Position{Sentence: a.pos} }

func (a *PlainAdapter) SetPosition(pos Position) error {
	if !a.loaded {
		return ErrNotLoaded
	}
	want := pos.Sentence
	switch {
	case want < 0:
		a.pos = 0
	case len(a.sentences) == 0:
		a.pos = 0
	case want >= len(a.sentences):
		a.pos = len(a.sentences) - 1
	default:
		a.pos = want
		a.marked = -1
		return nil
	}
	a.marked = -1
	if want == a.pos {
		return nil
	}
	return &PositionError{Requested: pos, Clamped: a.Position(), Reason: "is outside the document"}
}

func (a *PlainAdapter) Next() (Position, error) {
	if !a.loaded {
		return Position{}, ErrNotLoaded
	}
	end := a.windowEnd(a.pos)
	if end >= len(a.sentences) {
		return a.Position(), ErrBoundary
	}
	a.pos = end
	a.marked = -1
	return a.Position(), nil
}

func (a *PlainAdapter) Prev() (Position, error) {
	if !a.loaded {
		return Position{}, ErrNotLoaded
	}
	if a.pos == 0 {
		return a.Position(), ErrBoundary
	}
	i, chars := a.pos, 0
	for i > 0 && chars < a.window {
		i--
		chars += utf8.RuneCountInString(a.sentences[i]) + 1
	}
	a.pos = i
	a.marked = -1
	return a.Position(), nil
}

// ExtractText returns the sentences of the visible window.
func (a *PlainAdapter) ExtractText() (string, error) {
	if !a.loaded {
		return "", ErrNotLoaded
	}
	return strings.Join(a.sentences[a.pos:a.windowEnd(a.pos)], " "), nil
}

func (a *PlainAdapter) TotalUnits() int { return len(a.sentences) }

// Progress is never known for plain documents.
func (a *PlainAdapter) Progress() Progress { return Progress{} }

func (a *PlainAdapter) TOC() []TOCEntry { return a.toc }

// MarkSentence highlights sentence i of the text last returned by
// ExtractText.
func (a *PlainAdapter) MarkSentence(i int) bool {
	abs := a.pos + i
	if i < 0 || abs >= a.windowEnd(a.pos) {
		return false
	}
	a.marked = abs
	return true
}

func (a *PlainAdapter) ClearMark() { a.marked = -1 }

func (a *PlainAdapter) Close() error {
	a.sentences = nil
	a.toc = nil
	a.loaded = false
	return nil
}
