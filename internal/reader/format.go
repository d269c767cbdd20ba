package reader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/metcalfc/aeonsight/internal/sandbox"
)

// Format identifies the encoding of a library item.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatEPUB Format = "epub"
	FormatText Format = "text"
	FormatHTML Format = "html"
)

var extensions = map[string]Format{
	".pdf":      FormatPDF,
	".epub":     FormatEPUB,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
}

// ParseFormat validates a persisted format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatPDF, FormatEPUB, FormatText, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromName picks a format from a file name's extension.
func FormatFromName(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
}

// View is what a front end draws for the current unit.
type View struct {
	Label  string
	Blocks []string
	// Marked is the index into Blocks of the highlighted sentence, or -1.
	Marked int
}

// Progress is a whole-document percentage. Formats without a stable page
// concept report Known == false.
type Progress struct {
	Percent int
	Known   bool
}

func (p Progress) String() string {
	if !p.Known {
		return "—"
	}
	return fmt.Sprintf("%d%%", p.Percent)
}

// Adapter loads one document of one format and answers position and text
// queries about it. An adapter value is the handle for a single loaded
// document and is not safe for concurrent use.
type Adapter interface {
	Format() Format
	Load(ctx context.Context, data []byte) error
	Render() (View, error)
	Position() Position
	// SetPosition moves to pos. Out-of-range targets are clamped and the
	// clamp is reported as a *PositionError; the adapter is still usable.
	SetPosition(pos Position) error
	// Next and Prev return ErrBoundary at the document edges.
	Next() (Position, error)
	Prev() (Position, error)
	// ExtractText returns the text of the current unit only.
	ExtractText() (string, error)
	TotalUnits() int
	Progress() Progress
	TOC() []TOCEntry
	Close() error
}

// Marker is implemented by adapters that can map a sentence of the
// extracted text back onto the rendered document.
type Marker interface {
	MarkSentence(i int) bool
	ClearMark()
}

// ResumeKey selects which part of an EPUB position restores a document.
type ResumeKey string

const (
	ResumeCFI     ResumeKey = "cfi"
	ResumePercent ResumeKey = "percent"
	ResumeBoth    ResumeKey = "both"
)

// Options configure adapters built by New.
type Options struct {
	// Mount receives embedded EPUB frames. If nil the adapter creates an
	// unguarded mount of its own.
	Mount *sandbox.Mount
	// LocationChars is the sampling interval of the EPUB location table.
	// Zero selects DefaultLocationChars; negative disables the table.
	LocationChars int
	// WindowChars sizes the visible unit of plain documents.
	WindowChars int
	ResumeKey   ResumeKey
}

// Factory builds an unloaded adapter.
type Factory func(opts Options) Adapter

var registry = map[Format]Factory{}

// Register adds an adapter factory for a format.
func Register(f Format, fn Factory) {
	registry[f] = fn
}

// New returns an unloaded adapter for f.
func New(f Format, opts Options) (Adapter, error) {
	fn, ok := registry[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	return fn(opts), nil
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	byFormat := map[Format][]string{}
	for ext, f := range extensions {
		byFormat[f] = append(byFormat[f], ext)
	}
	var out []string
	for f := range registry {
		exts := byFormat[f]
		sort.Strings(exts)
		out = append(out, string(f)+" ("+strings.Join(exts, ", ")+")")
	}
	sort.Strings(out)
	return out
}
