package reader

import (
	"context"
	"math"
	"sort"
)

// DefaultLocationChars is the approximate length of one location.
const DefaultLocationChars = 1200

// locations samples a book into breakpoints of roughly equal length so a
// percentage stays stable across opens.
type locations []cfi

// buildLocations places a breakpoint at the start of every spine document
// and then every chars runes within it.
func buildLocations(ctx context.Context, docs []*spineDoc, chars int) (locations, error) {
	var out locations
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, cfi{spine: i})
		for off := chars; off < d.length; off += chars {
			out = append(out, cfi{spine: i, offset: off})
		}
	}
	return out, nil
}

// index returns the last breakpoint at or before c.
func (l locations) index(c cfi) int {
	i := sort.Search(len(l), func(i int) bool { return c.less(l[i]) })
	if i == 0 {
		return 0
	}
	return i - 1
}

// percent maps c to 0-100.
func (l locations) percent(c cfi) float64 {
	if len(l) <= 1 {
		return 0
	}
	return float64(l.index(c)) / float64(len(l)-1) * 100
}

// at returns the breakpoint for a percentage.
func (l locations) at(percent float64) cfi {
	if len(l) == 0 {
		return cfi{}
	}
	percent = math.Max(0, math.Min(100, percent))
	return l[int(math.Round(percent/100*float64(len(l)-1)))]
}
