package reader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/metcalfc/aeonsight/internal/reader/readertest"
	"github.com/metcalfc/aeonsight/internal/sandbox"
)

func testBook(t *testing.T, noNCX bool) []byte {
	t.Helper()
	data, err := readertest.EPUB([]readertest.Chapter{
		{
			Title:   "One",
			Body:    "<h1>One</h1>" + readertest.Paragraphs("First", 3) + `<h2 id="a1">Part A</h2>` + readertest.Paragraphs("Alpha", 3),
			Anchors: []readertest.Anchor{{ID: "a1", Title: "Part A"}},
		},
		{Title: "Two", Body: "<h1>Two</h1>" + readertest.Paragraphs("Second", 4)},
		{Title: "Three", Body: "<h1>Three</h1>" + readertest.Paragraphs("Third", 2)},
	}, noNCX)
	if err != nil {
		t.Fatalf("build epub: %v", err)
	}
	return data
}

func loadEPUB(t *testing.T, opts Options) *EPUBAdapter {
	t.Helper()
	if opts.LocationChars == 0 {
		opts.LocationChars = 100
	}
	a := NewEPUBAdapter(opts)
	if err := a.Load(context.Background(), testBook(t, false)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return a
}

func TestEPUBTOC(t *testing.T) {
	a := loadEPUB(t, Options{})
	toc := a.TOC()
	titles := []string{"One", "Part A", "Two", "Three"}
	levels := []int{0, 1, 0, 0}
	if len(toc) != len(titles) {
		t.Fatalf("TOC = %+v", toc)
	}
	for i, e := range toc {
		if e.Title != titles[i] || e.Level != levels[i] {
			t.Errorf("entry %d = %q level %d", i, e.Title, e.Level)
		}
		if e.Target.CFI == "" || e.Target.Percent == nil {
			t.Errorf("entry %d has no target: %+v", i, e.Target)
		}
	}
	if toc[1].Target.CFI != "epubcfi(/6/2[ch1]!/4/10[a1]/1:0)" {
		t.Errorf("anchor target = %s", toc[1].Target.CFI)
	}
}

func TestEPUBTOCWithoutNCX(t *testing.T) {
	a := NewEPUBAdapter(Options{})
	if err := a.Load(context.Background(), testBook(t, true)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	var titles []string
	for _, e := range a.TOC() {
		titles = append(titles, e.Title)
	}
	if strings.Join(titles, ",") != "One,Two,Three" {
		t.Errorf("titles = %v", titles)
	}
}

func TestEPUBNavigation(t *testing.T) {
	a := loadEPUB(t, Options{})
	if got := a.Position().CFI; got != "epubcfi(/6/2[ch1]!/4/2/1:0)" {
		t.Fatalf("start = %s", got)
	}
	if _, err := a.Prev(); !errors.Is(err, ErrBoundary) {
		t.Fatalf("Prev at start = %v", err)
	}

	forward := []string{
		"epubcfi(/6/2[ch1]!/4/10[a1]/1:0)",
		"epubcfi(/6/4[ch2]!/4/2/1:0)",
		"epubcfi(/6/6[ch3]!/4/2/1:0)",
	}
	for _, want := range forward {
		pos, err := a.Next()
		if err != nil || pos.CFI != want {
			t.Fatalf("Next = %s, %v; want %s", pos.CFI, err, want)
		}
		if err := a.SetPosition(pos); err != nil || a.Position().CFI != pos.CFI {
			t.Fatalf("round trip at %s: %v -> %s", pos.CFI, err, a.Position().CFI)
		}
	}
	if _, err := a.Next(); !errors.Is(err, ErrBoundary) {
		t.Fatalf("Next at end = %v", err)
	}

	backward := []string{
		"epubcfi(/6/4[ch2]!/4/2/1:0)",
		"epubcfi(/6/2[ch1]!/4/10[a1]/1:0)",
		"epubcfi(/6/2[ch1]!/4/2/1:0)",
	}
	for _, want := range backward {
		pos, err := a.Prev()
		if err != nil || pos.CFI != want {
			t.Fatalf("Prev = %s, %v; want %s", pos.CFI, err, want)
		}
	}
}

func TestEPUBProgressFromLocations(t *testing.T) {
	a := loadEPUB(t, Options{})
	start := a.Progress()
	if !start.Known || start.Percent != 0 {
		t.Fatalf("start progress = %+v", start)
	}
	for {
		if _, err := a.Next(); err != nil {
			break
		}
	}
	end := a.Progress()
	if !end.Known || end.Percent <= start.Percent {
		t.Errorf("end progress = %+v", end)
	}
}

func TestEPUBWithoutLocationTable(t *testing.T) {
	a := loadEPUB(t, Options{LocationChars: -1})
	if p := a.Progress(); p.Known || p.String() != "—" {
		t.Errorf("Progress = %+v", p)
	}
	if a.Position().Percent != nil {
		t.Errorf("Percent = %v, want nil", *a.Position().Percent)
	}
	v, err := a.Render()
	if err != nil || len(v.Blocks) == 0 {
		t.Errorf("Render = %+v, %v", v, err)
	}
}

func TestEPUBResumeByPercent(t *testing.T) {
	a := loadEPUB(t, Options{ResumeKey: ResumePercent})
	if err := a.SetPosition(Position{Percent: floatPtr(100)}); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if !strings.HasPrefix(a.Position().CFI, "epubcfi(/6/6[ch3]!") {
		t.Errorf("position = %s, want last chapter", a.Position().CFI)
	}
}

func TestEPUBUnresolvableCFI(t *testing.T) {
	a := loadEPUB(t, Options{ResumeKey: ResumeCFI})
	a.Next()
	err := a.SetPosition(Position{CFI: "epubcfi(/6/40[nope]!/4/2/1:0)"})
	var perr *PositionError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PositionError", err)
	}
	if a.Position().CFI != "epubcfi(/6/2[ch1]!/4/2/1:0)" {
		t.Errorf("fallback = %s", a.Position().CFI)
	}
}

func TestEPUBExtractTextBlocked(t *testing.T) {
	m := sandbox.NewMount()
	defer sandbox.NewPolicy(sandbox.ScriptsBlocked, nil).Install(m)()
	a := loadEPUB(t, Options{Mount: m})

	text, err := a.ExtractText()
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "First paragraph 1") || strings.Contains(text, "Alpha") {
		t.Errorf("unit text = %q", text)
	}
	for _, f := range m.Frames() {
		if f.Attr(sandbox.AttrName) != sandbox.ScriptsBlocked.Attr() {
			t.Errorf("frame grant = %q", f.Attr(sandbox.AttrName))
		}
	}
}

func TestEPUBExtractTextAllowed(t *testing.T) {
	m := sandbox.NewMount()
	defer sandbox.NewPolicy(sandbox.ScriptsAllowed, nil).Install(m)()
	a := loadEPUB(t, Options{Mount: m})

	if _, err := a.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	text, err := a.ExtractText()
	if !errors.Is(err, ErrSandboxViolation) || text != "" {
		t.Fatalf("ExtractText = %q, %v", text, err)
	}
}

func TestEPUBReplacesFrameOnChapterChange(t *testing.T) {
	m := sandbox.NewMount()
	defer sandbox.NewPolicy(sandbox.ScriptsAllowed, nil).Install(m)()
	a := loadEPUB(t, Options{Mount: m})

	a.Render()
	first := a.Frame()
	a.Next()
	a.Render()
	if a.Frame() != first {
		t.Fatal("frame replaced within the same chapter")
	}
	a.Next()
	a.Render()
	if a.Frame() == first {
		t.Fatal("frame not replaced on chapter change")
	}
	frames := m.Frames()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if got := frames[0].Attr(sandbox.AttrName); got != sandbox.ScriptsAllowed.Attr() {
		t.Errorf("grant = %q", got)
	}
}

func TestEPUBRejectsGarbage(t *testing.T) {
	a := NewEPUBAdapter(Options{})
	err := a.Load(context.Background(), []byte("PK not really"))
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
}
