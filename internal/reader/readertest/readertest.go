// Package readertest builds small in-memory documents for tests.
package readertest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDF returns a document with n pages, each reading "This is page i.".
func PDF(n int) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 14)
	for i := 1; i <= n; i++ {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 14)
		pdf.Cell(40, 10, fmt.Sprintf("This is page %d.", i))
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Anchor is an in-chapter target listed under its chapter in the NCX.
type Anchor struct {
	ID    string
	Title string
}

// Chapter is one spine document. Body is inserted verbatim inside <body>.
type Chapter struct {
	Title   string
	Body    string
	Anchors []Anchor
}

// EPUB assembles a minimal EPUB 2 book with an NCX. With noNCX the
// manifest omits the table of contents.
func EPUB(chapters []Chapter, noNCX bool) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, err
	}
	w.Write([]byte("application/epub+zip"))

	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`,
	}

	var manifest, spine, nav strings.Builder
	if !noNCX {
		manifest.WriteString(`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>` + "\n")
	}
	order := 1
	for i, ch := range chapters {
		id := fmt.Sprintf("ch%d", i+1)
		href := id + ".xhtml"
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, href)
		fmt.Fprintf(&spine, `    <itemref idref="%s"/>`+"\n", id)
		files["OEBPS/"+href] = fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>%s</title></head><body>%s</body></html>`,
			html.EscapeString(ch.Title), ch.Body)

		fmt.Fprintf(&nav, `<navPoint id="np%d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s"/>`,
			order, order, html.EscapeString(ch.Title), href)
		order++
		for _, a := range ch.Anchors {
			fmt.Fprintf(&nav, `<navPoint id="np%d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s#%s"/></navPoint>`,
				order, order, html.EscapeString(a.Title), href, a.ID)
			order++
		}
		nav.WriteString("</navPoint>\n")
	}

	spineAttr := ` toc="ncx"`
	if noNCX {
		spineAttr = ""
	}
	files["OEBPS/content.opf"] = fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:identifier id="bookid">urn:uuid:test</dc:identifier>
  </metadata>
  <manifest>
%s  </manifest>
  <spine%s>
%s  </spine>
</package>`, manifest.String(), spineAttr, spine.String())
	if !noNCX {
		files["OEBPS/toc.ncx"] = fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
%s  </navMap>
</ncx>`, nav.String())
	}

	for _, name := range []string{"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/toc.ncx"} {
		if body, ok := files[name]; ok {
			if err := writeFile(zw, name, body); err != nil {
				return nil, err
			}
			delete(files, name)
		}
	}
	for i := range chapters {
		name := fmt.Sprintf("OEBPS/ch%d.xhtml", i+1)
		if err := writeFile(zw, name, files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFile(zw *zip.Writer, name, body string) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(body))
	return err
}

// Paragraphs returns n paragraphs of filler sentences.
func Paragraphs(prefix string, n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "<p>%s paragraph %d has a few plain words in it.</p>", prefix, i)
	}
	return b.String()
}
