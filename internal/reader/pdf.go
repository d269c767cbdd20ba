package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFAdapter serves PDF documents one page at a time.
type PDFAdapter struct {
	doc   *pdf.Reader
	pages int
	page  int
	lines map[int][]string
}

func init() {
	Register(FormatPDF, func(Options) Adapter { return NewPDFAdapter() })
}

// NewPDFAdapter returns an unloaded PDF adapter.
func NewPDFAdapter() *PDFAdapter {
	return &PDFAdapter{lines: make(map[int][]string)}
}

func (a *PDFAdapter) Format() Format { return FormatPDF }

// Load parses the document index. Page text is decoded lazily.
func (a *PDFAdapter) Load(ctx context.Context, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer recoverLoad(FormatPDF, &err)

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &LoadError{Format: FormatPDF, Err: err}
	}
	n := doc.NumPage()
	if n == 0 {
		return &LoadError{Format: FormatPDF, Err: errors.New("document has no pages")}
	}
	a.doc = doc
	a.pages = n
	a.page = 1
	return nil
}

// pageLines returns the text rows of page p in layout order.
func (a *PDFAdapter) pageLines(p int) (lines []string, err error) {
	if cached, ok := a.lines[p]; ok {
		return cached, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read page %d: %v", p, r)
		}
	}()

	page := a.doc.Page(p)
	if page.V.IsNull() {
		a.lines[p] = nil
		return nil, nil
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", p, err)
	}
	for _, row := range rows {
		var b strings.Builder
		for _, word := range row.Content {
			b.WriteString(word.S)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	a.lines[p] = lines
	return lines, nil
}

func (a *PDFAdapter) Render() (View, error) {
	if a.doc == nil {
		return View{}, ErrNotLoaded
	}
	lines, err := a.pageLines(a.page)
	if err != nil {
		return View{}, err
	}
	return View{
		Label:  fmt.Sprintf("Page %d of %d", a.page, a.pages),
		Blocks: lines,
		Marked: -1,
	}, nil
}

func (a *PDFAdapter) Position() Position { return Position{Page: a.page} }

// SetPosition moves to pos.Page. A zero page selects the first page.
func (a *PDFAdapter) SetPosition(pos Position) error {
	if a.doc == nil {
		return ErrNotLoaded
	}
	want := pos.Page
	if want == 0 {
		want = 1
	}
	switch {
	case want < 1:
		a.page = 1
	case want > a.pages:
		a.page = a.pages
	default:
		a.page = want
		return nil
	}
	return &PositionError{Requested: pos, Clamped: a.Position(), Reason: fmt.Sprintf("is outside 1-%d", a.pages)}
}

func (a *PDFAdapter) Next() (Position, error) {
	if a.doc == nil {
		return Position{}, ErrNotLoaded
	}
	if a.page >= a.pages {
		return a.Position(), ErrBoundary
	}
	a.page++
	return a.Position(), nil
}

func (a *PDFAdapter) Prev() (Position, error) {
	if a.doc == nil {
		return Position{}, ErrNotLoaded
	}
	if a.page <= 1 {
		return a.Position(), ErrBoundary
	}
	a.page--
	return a.Position(), nil
}

// ExtractText concatenates the text runs of the current page.
func (a *PDFAdapter) ExtractText() (string, error) {
	if a.doc == nil {
		return "", ErrNotLoaded
	}
	lines, err := a.pageLines(a.page)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (a *PDFAdapter) TotalUnits() int { return a.pages }

func (a *PDFAdapter) Progress() Progress {
	if a.doc == nil {
		return Progress{}
	}
	return Progress{Percent: percentOf(a.page, a.pages), Known: true}
}

// TOC is empty for PDFs; the outline destinations are not resolved to
// page numbers.
func (a *PDFAdapter) TOC() []TOCEntry { return nil }

func (a *PDFAdapter) Close() error {
	a.doc = nil
	a.lines = make(map[int][]string)
	return nil
}
