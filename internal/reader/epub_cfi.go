package reader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// cfi is a resolved position: a spine index and a rune offset into that
// document's text.
type cfi struct {
	spine  int
	offset int
}

func (c cfi) less(o cfi) bool {
	if c.spine != o.spine {
		return c.spine < o.spine
	}
	return c.offset < o.offset
}

// formatCFI renders a canonical fragment identifier for c. Element steps
// are even and carry the element id when present; the final odd step names
// the text node and the character offset within it.
func formatCFI(docs []*spineDoc, c cfi) string {
	d := docs[c.spine]
	path, off := "/4", 0
	if seg, within, ok := d.segAt(c.offset); ok {
		path, off = seg.path, within
	}
	idref := ""
	if d.idref != "" {
		idref = "[" + d.idref + "]"
	}
	return fmt.Sprintf("epubcfi(/6/%d%s!%s:%d)", 2*(c.spine+1), idref, path, off)
}

var cfiPattern = regexp.MustCompile(`^epubcfi\(/6/(\d+)(?:\[([^\]]*)\])?!((?:/\d+(?:\[[^\]]*\])?)*)(?::(\d+))?\)$`)

// parseCFI resolves s against docs. The spine step is trusted unless its
// id assertion names a different item, in which case the id wins.
func parseCFI(docs []*spineDoc, s string) (cfi, error) {
	m := cfiPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return cfi{}, fmt.Errorf("malformed fragment identifier %q", s)
	}
	step, _ := strconv.Atoi(m[1])
	spine := step/2 - 1
	if idref := m[2]; idref != "" && (spine < 0 || spine >= len(docs) || docs[spine].idref != idref) {
		spine = -1
		for i, d := range docs {
			if d.idref == idref {
				spine = i
				break
			}
		}
	}
	if step%2 != 0 || spine < 0 || spine >= len(docs) {
		return cfi{}, fmt.Errorf("fragment identifier %q names no spine item", s)
	}
	d := docs[spine]
	path := m[3]
	within := 0
	if m[4] != "" {
		within, _ = strconv.Atoi(m[4])
	}

	for _, seg := range d.segs {
		if seg.path == path {
			return cfi{spine: spine, offset: seg.start + min(within, seg.length)}, nil
		}
	}
	for _, seg := range d.segs {
		if strings.HasPrefix(seg.path, path+"/") {
			return cfi{spine: spine, offset: seg.start}, nil
		}
	}
	if len(d.segs) == 0 {
		return cfi{spine: spine}, nil
	}
	return cfi{}, fmt.Errorf("fragment identifier %q does not resolve in %s", s, d.href)
}
