package library

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/metcalfc/aeonsight/internal/reader"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "library.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddInsertsAtHead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.Add(ctx, "first.txt", reader.FormatText, []byte("one"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := s.Add(ctx, "second.pdf", reader.FormatPDF, []byte("two"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if first.ID == second.ID || first.ID == "" {
		t.Fatalf("ids not unique: %q %q", first.ID, second.ID)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("order = %+v", items)
	}
	if !items[0].HasContent || items[0].Size != 3 || items[0].ContentHash != ContentHash([]byte("two")) {
		t.Errorf("item = %+v", items[0])
	}

	data, err := s.Content(ctx, first.ID)
	if err != nil || string(data) != "one" {
		t.Errorf("Content = %q, %v", data, err)
	}
}

func TestAddRejectsUnknownFormat(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(context.Background(), "x.docx", "docx", nil); !errors.Is(err, reader.ErrUnsupportedFormat) {
		t.Errorf("err = %v", err)
	}
}

func TestRemoveCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	item, _ := s.Add(ctx, "book.pdf", reader.FormatPDF, []byte("pdf"))
	keep, _ := s.Add(ctx, "keep.txt", reader.FormatText, []byte("text"))
	s.AddBookmark(ctx, item.ID, reader.Position{Page: 2}, "start")
	s.AddNote(ctx, item.ID, reader.Position{Page: 2}, "remember")

	if err := s.Remove(ctx, item.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove = %v", err)
	}
	if _, err := s.Content(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Content after remove = %v", err)
	}
	for _, table := range []string{"blobs", "bookmarks", "notes"} {
		var n int
		s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE item_id = ?`, item.ID).Scan(&n)
		if n != 0 {
			t.Errorf("%s rows left: %d", table, n)
		}
	}

	cat, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	for _, it := range cat.Items {
		if it.ID == item.ID {
			t.Fatal("export contains removed item")
		}
	}
	if len(cat.Items) != 1 || cat.Items[0].ID != keep.ID {
		t.Errorf("export = %+v", cat.Items)
	}
	if err := s.Remove(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v", err)
	}
}

func TestSavePositionAfterRemoveIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	item, _ := s.Add(ctx, "book.pdf", reader.FormatPDF, []byte("pdf"))

	if err := s.SavePosition(ctx, item.ID, reader.Position{Page: 4}, 40); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}
	got, _ := s.Get(ctx, item.ID)
	if got.LastPosition.Page != 4 || got.Progress != 40 {
		t.Errorf("saved = %+v", got)
	}

	s.Remove(ctx, item.ID)
	if err := s.SavePosition(ctx, item.ID, reader.Position{Page: 5}, 50); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SavePosition after remove = %v", err)
	}
	if items, _ := s.List(ctx); len(items) != 0 {
		t.Errorf("items = %+v", items)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		item, _ := s.Add(ctx, name, reader.FormatText, []byte(name))
		s.AddBookmark(ctx, item.ID, reader.Position{Sentence: 1}, name)
	}
	n, err := s.Clear(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	var left int
	s.db.QueryRow(`SELECT (SELECT COUNT(*) FROM blobs) + (SELECT COUNT(*) FROM bookmarks)`).Scan(&left)
	if left != 0 {
		t.Errorf("rows left = %d", left)
	}
}

func TestAnnotations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	item, _ := s.Add(ctx, "book.epub", reader.FormatEPUB, []byte("epub"))
	pct := 12.5
	pos := reader.Position{CFI: "epubcfi(/6/2[ch1]!/4/2/1:0)", Percent: &pct}

	if _, err := s.AddBookmark(ctx, item.ID, pos, "Chapter one"); err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	if _, err := s.AddNote(ctx, item.ID, pos, "Lovely opening"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if _, err := s.AddBookmark(ctx, "missing", pos, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddBookmark on missing item = %v", err)
	}

	got, err := s.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Bookmarks) != 1 || got.Bookmarks[0].Label != "Chapter one" || !got.Bookmarks[0].Position.Equal(pos) {
		t.Errorf("bookmarks = %+v", got.Bookmarks)
	}
	if len(got.Notes) != 1 || got.Notes[0].Text != "Lovely opening" {
		t.Errorf("notes = %+v", got.Notes)
	}
}

func TestCorruptEntryIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	good, _ := s.Add(ctx, "good.txt", reader.FormatText, []byte("good"))
	bad, _ := s.Add(ctx, "bad.txt", reader.FormatText, []byte("bad"))
	if _, err := s.db.Exec(`UPDATE items SET last_position = '{not json' WHERE id = ?`, bad.ID); err != nil {
		t.Fatal(err)
	}
	weird, _ := s.Add(ctx, "weird.txt", reader.FormatText, []byte("weird"))
	s.db.Exec(`UPDATE items SET format = 'docx' WHERE id = ?`, weird.ID)

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != good.ID {
		t.Errorf("items = %+v", items)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	a, _ := src.Add(ctx, "a.pdf", reader.FormatPDF, []byte("aaa"))
	b, _ := src.Add(ctx, "b.txt", reader.FormatText, []byte("bbb"))
	src.SavePosition(ctx, a.ID, reader.Position{Page: 3}, 30)
	src.AddNote(ctx, b.ID, reader.Position{Sentence: 2}, "note")

	for _, enc := range []Encoding{JSON, YAML} {
		t.Run(string(enc), func(t *testing.T) {
			cat, err := src.Export(ctx)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			var buf bytes.Buffer
			if err := WriteCatalog(&buf, cat, enc); err != nil {
				t.Fatalf("WriteCatalog: %v", err)
			}
			if strings.Contains(buf.String(), "aaa") || strings.Contains(buf.String(), "bbb") {
				t.Fatal("export contains raw bytes")
			}
			decoded, err := ReadCatalog(&buf, enc)
			if err != nil {
				t.Fatalf("ReadCatalog: %v", err)
			}

			dst := newTestStore(t)
			existing, _ := dst.Add(ctx, "local.txt", reader.FormatText, []byte("local"))
			res, err := dst.Import(ctx, decoded)
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if len(res.Added) != 2 || len(res.MissingContent) != 2 || len(res.Skipped) != 0 {
				t.Fatalf("result = %+v", res)
			}

			items, _ := dst.List(ctx)
			if len(items) != 3 || items[0].ID != b.ID || items[1].ID != a.ID || items[2].ID != existing.ID {
				t.Fatalf("order after import = %v", ids(items))
			}
			if items[1].LastPosition.Page != 3 || items[1].Progress != 30 || items[1].HasContent {
				t.Errorf("imported a = %+v", items[1])
			}
			if len(items[0].Notes) != 1 {
				t.Errorf("imported notes = %+v", items[0].Notes)
			}
			if _, err := dst.Content(ctx, a.ID); !errors.Is(err, ErrContentMissing) {
				t.Errorf("Content = %v, want ErrContentMissing", err)
			}

			if err := dst.Attach(ctx, a.ID, []byte("aaa")); err != nil {
				t.Fatalf("Attach: %v", err)
			}
			if data, err := dst.Content(ctx, a.ID); err != nil || string(data) != "aaa" {
				t.Errorf("Content after attach = %q, %v", data, err)
			}
		})
	}
}

func TestImportNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	item, _ := s.Add(ctx, "mine.pdf", reader.FormatPDF, []byte("pdf"))
	s.SavePosition(ctx, item.ID, reader.Position{Page: 7}, 70)

	res, err := s.Import(ctx, Catalog{Version: 1, Items: []Item{
		{ID: item.ID, Name: "theirs.pdf", Format: reader.FormatPDF, LastPosition: reader.Position{Page: 1}},
		{ID: "", Name: "no id", Format: reader.FormatPDF},
		{ID: "odd", Name: "odd", Format: "docx"},
	}})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Skipped) != 1 || res.Invalid != 2 || len(res.Added) != 0 {
		t.Errorf("result = %+v", res)
	}
	got, _ := s.Get(ctx, item.ID)
	if got.Name != "mine.pdf" || got.LastPosition.Page != 7 {
		t.Errorf("item overwritten: %+v", got)
	}
}

func TestReadCatalogRejectsNewerVersion(t *testing.T) {
	_, err := ReadCatalog(strings.NewReader(`{"version": 99, "items": []}`), JSON)
	if err == nil {
		t.Fatal("expected version error")
	}
}

func TestExportNotesPDF(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	item, _ := s.Add(ctx, "Café notes.txt", reader.FormatText, []byte("text"))
	s.AddBookmark(ctx, item.ID, reader.Position{Sentence: 3}, "here")
	s.AddNote(ctx, item.ID, reader.Position{Sentence: 4}, "an idea")

	var buf bytes.Buffer
	if err := s.ExportNotesPDF(ctx, item.ID, &buf); err != nil {
		t.Fatalf("ExportNotesPDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", buf.Bytes()[:min(16, buf.Len())])
	}
	if err := s.ExportNotesPDF(ctx, "missing", &buf); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing item = %v", err)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash([]byte("Hello, World!"))
	h2 := ContentHash([]byte("Different content"))
	h3 := ContentHash([]byte("Hello, World!"))

	if h1 != h3 {
		t.Errorf("Same content should produce same hash: %s != %s", h1, h3)
	}
	if h1 == h2 {
		t.Errorf("Different content should produce different hash")
	}
	if len(h1) != 32 {
		t.Errorf("Hash should be 32 chars, got %d", len(h1))
	}

	big := bytes.Repeat([]byte("x"), 10000)
	if ContentHash(big) != ContentHash(big[:8192]) {
		t.Error("hash should only cover the first 8KB")
	}
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
