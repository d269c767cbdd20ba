package reader

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// spineDoc is one parsed content document of the spine. Offsets are rune
// offsets into text, which joins every readable text node of the body.
type spineDoc struct {
	idref    string
	href     string
	root     *html.Node
	text     string
	runes    []rune
	length   int
	segs     []textSeg
	anchors  map[string]int
	headings []string
	// targets are sorted in-document offsets navigation stops at.
	targets []int
}

// textSeg locates one text node inside text and in the element tree.
type textSeg struct {
	path   string
	start  int
	length int
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true,
	atom.Ol: true, atom.Section: true, atom.Article: true, atom.Blockquote: true,
	atom.Pre: true, atom.Tr: true, atom.Table: true, atom.Hr: true, atom.Dd: true,
	atom.Dt: true, atom.Figure: true, atom.Figcaption: true, atom.Header: true,
	atom.Footer: true, atom.Aside: true, atom.Nav: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// parseSpineDoc indexes the readable text of a content document.
func parseSpineDoc(idref, href string, data []byte) (*spineDoc, error) {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	d := &spineDoc{idref: idref, href: href, root: root, anchors: make(map[string]int)}

	var (
		b        strings.Builder
		pending  []string
		brk      bool
		inBody   bool
		offset   int
		headings []string
	)
	var walk func(n *html.Node, path string)
	walk = func(n *html.Node, path string) {
		elems := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.ElementNode:
				elems++
				if skipped[c.DataAtom] {
					continue
				}
				step := path + "/" + strconv.Itoa(2*elems)
				if id := attr(c, "id"); id != "" {
					step += "[" + id + "]"
					pending = append(pending, id)
				}
				if _, ok := headingLevels[c.DataAtom]; ok {
					if t := strings.Join(ParseText(nodeText(c)), " "); t != "" {
						headings = append(headings, t)
					}
				}
				wasBody := inBody
				if c.DataAtom == atom.Body {
					inBody = true
				}
				if blockElements[c.DataAtom] {
					brk = true
				}
				walk(c, step)
				if blockElements[c.DataAtom] {
					brk = true
				}
				inBody = wasBody
			case html.TextNode:
				if !inBody || strings.TrimSpace(c.Data) == "" {
					continue
				}
				if offset > 0 {
					sep := " "
					if brk {
						sep = "\n"
					}
					b.WriteString(sep)
					offset++
				}
				brk = false
				for _, id := range pending {
					d.anchors[id] = offset
				}
				pending = pending[:0]
				size := utf8.RuneCountInString(c.Data)
				d.segs = append(d.segs, textSeg{
					path:   path + "/" + strconv.Itoa(2*elems+1),
					start:  offset,
					length: size,
				})
				b.WriteString(c.Data)
				offset += size
			}
		}
	}
	// The document element is the root of every path, so walking starts
	// from its children.
	if de := documentElement(root); de != nil {
		walk(de, "")
	}
	for _, id := range pending {
		d.anchors[id] = offset
	}
	d.text = b.String()
	d.runes = []rune(d.text)
	d.length = offset
	d.headings = headings
	d.targets = []int{0}
	return d, nil
}

func documentElement(root *html.Node) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// addTarget records an in-document navigation stop.
func (d *spineDoc) addTarget(off int) {
	i := sort.SearchInts(d.targets, off)
	if i < len(d.targets) && d.targets[i] == off {
		return
	}
	d.targets = append(d.targets, 0)
	copy(d.targets[i+1:], d.targets[i:])
	d.targets[i] = off
}

// slice returns text between two rune offsets.
func (d *spineDoc) slice(from, to int) string {
	from = max(0, min(from, len(d.runes)))
	to = max(from, min(to, len(d.runes)))
	return string(d.runes[from:to])
}

// segAt returns the segment holding off and the offset within it. Offsets
// in separators map to the end of the preceding segment.
func (d *spineDoc) segAt(off int) (textSeg, int, bool) {
	i := sort.Search(len(d.segs), func(i int) bool { return d.segs[i].start > off })
	if i == 0 {
		return textSeg{}, 0, false
	}
	s := d.segs[i-1]
	return s, min(off-s.start, s.length), true
}
