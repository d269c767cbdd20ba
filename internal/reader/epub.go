package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/metcalfc/aeonsight/internal/sandbox"
	"github.com/taylorskalyo/goreader/epub"
)

// requestedGrant is the sandbox value the renderer asks for on every
// frame it creates. The mount's policy narrows it to a single grant.
const requestedGrant = "allow-scripts allow-same-origin"

// EPUBAdapter serves EPUB books. Its position is a fragment identifier
// plus, when the location table exists, a stable percentage.
type EPUBAdapter struct {
	opts   Options
	mount  *sandbox.Mount
	docs   []*spineDoc
	toc    []TOCEntry
	nav    []navTarget
	locs   locations
	cur    cfi
	frame  *sandbox.Node
	shown  int
	loaded bool
}

func init() {
	Register(FormatEPUB, func(opts Options) Adapter { return NewEPUBAdapter(opts) })
}

// NewEPUBAdapter returns an unloaded EPUB adapter rendering into
// opts.Mount.
func NewEPUBAdapter(opts Options) *EPUBAdapter {
	if opts.LocationChars == 0 {
		opts.LocationChars = DefaultLocationChars
	}
	if opts.ResumeKey == "" {
		opts.ResumeKey = ResumeBoth
	}
	m := opts.Mount
	if m == nil {
		m = sandbox.NewMount()
	}
	return &EPUBAdapter{opts: opts, mount: m, shown: -1}
}

func (a *EPUBAdapter) Format() Format { return FormatEPUB }

// Load parses every spine document, resolves the NCX and samples the
// location table.
func (a *EPUBAdapter) Load(ctx context.Context, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer recoverLoad(FormatEPUB, &err)

	r, err := epub.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &LoadError{Format: FormatEPUB, Err: err}
	}
	if len(r.Rootfiles) == 0 {
		return &LoadError{Format: FormatEPUB, Err: errors.New("no rootfiles found in epub")}
	}
	book := r.Rootfiles[0]

	var docs []*spineDoc
	for _, ref := range book.Spine.Itemrefs {
		if err := ctx.Err(); err != nil {
			return err
		}
		var content []byte
		href := ""
		if ref.Item != nil {
			href = ref.Item.HREF
			rc, err := ref.Item.Open()
			if err != nil {
				return &LoadError{Format: FormatEPUB, Err: fmt.Errorf("failed to open %s: %w", href, err)}
			}
			content, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return &LoadError{Format: FormatEPUB, Err: fmt.Errorf("failed to read %s: %w", href, err)}
			}
		}
		d, err := parseSpineDoc(ref.IDREF, href, content)
		if err != nil {
			return &LoadError{Format: FormatEPUB, Err: fmt.Errorf("failed to parse %s: %w", href, err)}
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 {
		return &LoadError{Format: FormatEPUB, Err: errors.New("spine is empty")}
	}
	a.docs = docs

	if a.opts.LocationChars > 0 {
		locs, err := buildLocations(ctx, docs, a.opts.LocationChars)
		if err != nil {
			return err
		}
		a.locs = locs
	}

	if toc, err := readNCX(book); err == nil {
		a.nav = flattenNavPoints(toc.NavMap.NavPoints, spineIndex(docs), 0)
	}
	if len(a.nav) == 0 {
		a.nav = sectionTargets(docs)
	}
	a.toc = a.buildTOC()

	a.cur = cfi{}
	a.shown = -1
	a.loaded = true
	return nil
}

// buildTOC resolves nav targets to offsets and registers them as
// navigation stops.
func (a *EPUBAdapter) buildTOC() []TOCEntry {
	entries := make([]TOCEntry, 0, len(a.nav))
	words := 0
	starts := make([]int, len(a.docs))
	for i, d := range a.docs {
		starts[i] = words
		words += CountWords(d.text)
	}
	for _, n := range a.nav {
		d := a.docs[n.spine]
		off := 0
		if n.fragment != "" {
			if o, ok := d.anchors[n.fragment]; ok {
				off = o
			}
		}
		d.addTarget(off)
		pos := cfi{spine: n.spine, offset: off}
		entries = append(entries, TOCEntry{
			Title:     n.title,
			Preview:   previewWords(ParseText(d.slice(off, off+200))),
			WordIndex: starts[n.spine] + CountWords(d.slice(0, off)),
			Level:     n.level,
			Target:    a.positionOf(pos),
		})
	}
	return entries
}

func (a *EPUBAdapter) positionOf(c cfi) Position {
	p := Position{CFI: formatCFI(a.docs, c)}
	if len(a.locs) > 0 {
		p.Percent = floatPtr(a.locs.percent(c))
	}
	return p
}

func (a *EPUBAdapter) Position() Position {
	if !a.loaded {
		return Position{}
	}
	return a.positionOf(a.cur)
}

// SetPosition restores pos using the configured resume key. Unresolvable
// positions fall back to the start of the book.
func (a *EPUBAdapter) SetPosition(pos Position) error {
	if !a.loaded {
		return ErrNotLoaded
	}
	if pos.CFI == "" && pos.Percent == nil {
		a.cur = cfi{}
		return nil
	}

	byPercent := func() bool {
		if pos.Percent == nil || len(a.locs) == 0 {
			return false
		}
		a.cur = a.locs.at(*pos.Percent)
		return true
	}
	var cfiErr error
	byCFI := func() bool {
		if pos.CFI == "" {
			return false
		}
		c, err := parseCFI(a.docs, pos.CFI)
		if err != nil {
			cfiErr = err
			return false
		}
		a.cur = c
		return true
	}

	ok := false
	switch a.opts.ResumeKey {
	case ResumePercent:
		ok = byPercent() || byCFI()
	case ResumeCFI:
		ok = byCFI()
	default:
		ok = byCFI() || byPercent()
	}
	if ok {
		return nil
	}
	a.cur = cfi{}
	reason := "cannot be resolved"
	if cfiErr != nil {
		reason = cfiErr.Error()
	}
	return &PositionError{Requested: pos, Clamped: a.Position(), Reason: reason}
}

// Next moves to the next in-document target, or to the next spine
// document when none remains.
func (a *EPUBAdapter) Next() (Position, error) {
	if !a.loaded {
		return Position{}, ErrNotLoaded
	}
	d := a.docs[a.cur.spine]
	i := sort.SearchInts(d.targets, a.cur.offset+1)
	switch {
	case i < len(d.targets):
		a.cur.offset = d.targets[i]
	case a.cur.spine+1 < len(a.docs):
		a.cur = cfi{spine: a.cur.spine + 1}
	default:
		return a.Position(), ErrBoundary
	}
	return a.Position(), nil
}

// Prev moves to the previous target, the start of the document, or the
// last target of the previous spine document.
func (a *EPUBAdapter) Prev() (Position, error) {
	if !a.loaded {
		return Position{}, ErrNotLoaded
	}
	d := a.docs[a.cur.spine]
	i := sort.SearchInts(d.targets, a.cur.offset)
	switch {
	case i > 0:
		a.cur.offset = d.targets[i-1]
	case a.cur.offset > 0:
		a.cur.offset = 0
	case a.cur.spine > 0:
		prev := a.docs[a.cur.spine-1]
		a.cur = cfi{spine: a.cur.spine - 1, offset: prev.targets[len(prev.targets)-1]}
	default:
		return a.Position(), ErrBoundary
	}
	return a.Position(), nil
}

// unitEnd returns the end offset of the visible unit.
func (a *EPUBAdapter) unitEnd() int {
	d := a.docs[a.cur.spine]
	i := sort.SearchInts(d.targets, a.cur.offset+1)
	if i < len(d.targets) {
		return d.targets[i]
	}
	return d.length
}

// ensureFrame mounts the current spine document in a fresh frame when the
// chapter changed since the last render.
func (a *EPUBAdapter) ensureFrame() *sandbox.Node {
	if a.frame != nil && a.shown == a.cur.spine && a.frame.Parent() != nil {
		return a.frame
	}
	a.mount.Clear()
	view := sandbox.NewElement("div")
	a.mount.Insert(view)
	frame := sandbox.NewFrame(a.docs[a.cur.spine].root)
	frame.SetAttr(sandbox.AttrName, requestedGrant)
	view.AppendChild(frame)
	a.frame = frame
	a.shown = a.cur.spine
	return frame
}

func (a *EPUBAdapter) Render() (View, error) {
	if !a.loaded {
		return View{}, ErrNotLoaded
	}
	a.ensureFrame()
	d := a.docs[a.cur.spine]
	var blocks []string
	for _, line := range strings.Split(d.slice(a.cur.offset, a.unitEnd()), "\n") {
		if b := strings.Join(ParseText(line), " "); b != "" {
			blocks = append(blocks, b)
		}
	}
	label := a.chapterTitle()
	if p := a.Progress(); p.Known {
		label = fmt.Sprintf("%s (%s)", label, p)
	}
	return View{Label: label, Blocks: blocks, Marked: -1}, nil
}

// chapterTitle names the TOC entry at or before the current position.
func (a *EPUBAdapter) chapterTitle() string {
	title := fmt.Sprintf("Section %d of %d", a.cur.spine+1, len(a.docs))
	for _, n := range a.nav {
		off := 0
		if n.fragment != "" {
			off = a.docs[n.spine].anchors[n.fragment]
		}
		if (cfi{spine: n.spine, offset: off}).less(a.cur) || (n.spine == a.cur.spine && off == a.cur.offset) {
			title = n.title
		}
	}
	return title
}

// ExtractText returns the text of the visible unit. It fails with
// ErrSandboxViolation when the frame is isolated from the host.
func (a *EPUBAdapter) ExtractText() (string, error) {
	if !a.loaded {
		return "", ErrNotLoaded
	}
	frame := a.ensureFrame()
	if _, err := frame.ContentDocument(); err != nil {
		if errors.Is(err, sandbox.ErrCrossOrigin) {
			return "", ErrSandboxViolation
		}
		return "", err
	}
	text := a.docs[a.cur.spine].slice(a.cur.offset, a.unitEnd())
	return strings.Join(ParseText(text), " "), nil
}

func (a *EPUBAdapter) TotalUnits() int { return len(a.docs) }

// Progress derives from the location table and is unknown without one.
func (a *EPUBAdapter) Progress() Progress {
	if !a.loaded || len(a.locs) == 0 {
		return Progress{}
	}
	return Progress{Percent: int(a.locs.percent(a.cur) + 0.5), Known: true}
}

func (a *EPUBAdapter) TOC() []TOCEntry { return a.toc }

// Frame returns the frame holding the current chapter, or nil.
func (a *EPUBAdapter) Frame() *sandbox.Node { return a.frame }

func (a *EPUBAdapter) Close() error {
	if a.frame != nil {
		a.mount.Clear()
	}
	a.frame = nil
	a.docs = nil
	a.toc = nil
	a.nav = nil
	a.locs = nil
	a.loaded = false
	return nil
}
