package library

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ExportNotesPDF writes a handout of an item's bookmarks and notes to w.
func (s *Store) ExportNotesPDF(ctx context.Context, id string, w io.Writer) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(item.Name), false)
	pdf.SetAuthor("AeonSight", false)
	pdf.AddPage()

	title := item.Name
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, tr(title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Format: %s  |  Progress: %d%%  |  Added: %s",
		item.Format, item.Progress, item.AddedAt.Local().Format("02/01/2006 15:04"))))
	pdf.Ln(12)

	bookmarks := make([]string, 0, len(item.Bookmarks))
	for _, b := range item.Bookmarks {
		bookmarks = append(bookmarks, fmt.Sprintf("%s (%s)", b.Label, b.Position))
	}
	writeSection(pdf, tr, "Bookmarks", bookmarks)
	pdf.Ln(6)

	notes := make([]string, 0, len(item.Notes))
	for _, n := range item.Notes {
		notes = append(notes, fmt.Sprintf("%s: %s", n.Position, n.Text))
	}
	writeSection(pdf, tr, "Notes", notes)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeSection(pdf *gofpdf.Fpdf, tr func(string) string, title string, lines []string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	if len(lines) == 0 {
		pdf.MultiCell(0, 6, "(none)", "", "L", false)
		return
	}
	for _, line := range lines {
		pdf.MultiCell(0, 6, tr("• "+line), "", "L", false)
	}
}
