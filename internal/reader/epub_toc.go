package reader

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// navTarget is a flattened nav point resolved against the spine.
type navTarget struct {
	title    string
	level    int
	spine    int
	fragment string
}

// readNCX finds the NCX item in the manifest and decodes it.
func readNCX(book *epub.Rootfile) (*ncx, error) {
	for i := range book.Manifest.Items {
		item := &book.Manifest.Items[i]
		if item.MediaType != "application/x-dtbncx+xml" {
			continue
		}
		r, err := item.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open NCX: %w", err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read NCX: %w", err)
		}
		var toc ncx
		if err := xml.Unmarshal(data, &toc); err != nil {
			return nil, fmt.Errorf("failed to parse NCX: %w", err)
		}
		return &toc, nil
	}
	return nil, fmt.Errorf("no NCX file found in EPUB")
}

// spineIndex maps manifest hrefs, and their base names, to spine indices.
func spineIndex(docs []*spineDoc) map[string]int {
	m := make(map[string]int)
	for i, d := range docs {
		if d.href == "" {
			continue
		}
		if _, ok := m[d.href]; !ok {
			m[d.href] = i
		}
		if _, ok := m[path.Base(d.href)]; !ok {
			m[path.Base(d.href)] = i
		}
	}
	return m
}

func flattenNavPoints(points []navPoint, spine map[string]int, level int) []navTarget {
	var out []navTarget

	for _, np := range points {
		href := np.Content.Src
		fragment := ""
		if idx := strings.Index(href, "#"); idx != -1 {
			href, fragment = href[:idx], href[idx+1:]
		}
		href = path.Clean(href)

		idx, ok := spine[href]
		if !ok {
			idx, ok = spine[path.Base(href)]
		}
		if ok {
			out = append(out, navTarget{
				title:    strings.TrimSpace(np.Label.Text),
				level:    level,
				spine:    idx,
				fragment: fragment,
			})
		}
		if len(np.Children) > 0 {
			out = append(out, flattenNavPoints(np.Children, spine, level+1)...)
		}
	}

	return out
}

// sectionTargets builds one target per spine document when the book has
// no usable NCX, titled by the document's first heading.
func sectionTargets(docs []*spineDoc) []navTarget {
	out := make([]navTarget, 0, len(docs))
	for i, d := range docs {
		title := fmt.Sprintf("Section %d", i+1)
		if len(d.headings) > 0 {
			title = d.headings[0]
		}
		out = append(out, navTarget{title: title, spine: i})
	}
	return out
}
