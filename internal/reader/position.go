package reader

import (
	"fmt"
	"math"
)

// Position is a format-specific resume token. Only the fields of the
// producing format are set, and a token is only meaningful to the
// document instance it came from.
//
//	pdf:        Page (1-based)
//	epub:       CFI and, when a location table exists, Percent
//	text, html: Sentence (0-based)
type Position struct {
	Page     int      `json:"page,omitempty" yaml:"page,omitempty"`
	CFI      string   `json:"cfi,omitempty" yaml:"cfi,omitempty"`
	Percent  *float64 `json:"percent,omitempty" yaml:"percent,omitempty"`
	Sentence int      `json:"sentence,omitempty" yaml:"sentence,omitempty"`
}

// IsZero reports whether no field is set.
func (p Position) IsZero() bool {
	return p.Page == 0 && p.CFI == "" && p.Percent == nil && p.Sentence == 0
}

// Equal compares two tokens field by field.
func (p Position) Equal(o Position) bool {
	if p.Page != o.Page || p.CFI != o.CFI || p.Sentence != o.Sentence {
		return false
	}
	if (p.Percent == nil) != (o.Percent == nil) {
		return false
	}
	return p.Percent == nil || *p.Percent == *o.Percent
}

func (p Position) String() string {
	switch {
	case p.Page > 0:
		return fmt.Sprintf("page %d", p.Page)
	case p.CFI != "" && p.Percent != nil:
		return fmt.Sprintf("%s (%.1f%%)", p.CFI, *p.Percent)
	case p.CFI != "":
		return p.CFI
	case p.Percent != nil:
		return fmt.Sprintf("%.1f%%", *p.Percent)
	}
	return fmt.Sprintf("sentence %d", p.Sentence+1)
}

func percentOf(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func floatPtr(f float64) *float64 { return &f }
