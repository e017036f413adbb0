// Package badge renders the compact portfolio indicator and defines the
// contract for pushing it to whatever chrome displays it.
package badge

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// ErrorGlyph is shown when a refresh fails completely
const ErrorGlyph = "!"

// EmptyGlyph is shown when there is no value to display
const EmptyGlyph = "—"

// Format renders a portfolio total as compact badge text. nil yields the
// empty glyph; values are rounded, then abbreviated to "4.3k"-style
// thousands below ten thousand, whole thousands below a million, and whole
// millions above.
func Format(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return EmptyGlyph
	}

	rounded := math.Round(*v)
	switch {
	case rounded < 1000:
		return strconv.FormatFloat(rounded, 'f', 0, 64)
	case rounded < 10000:
		thousands := strconv.FormatFloat(rounded/1000, 'f', 1, 64)
		return strings.TrimSuffix(thousands, ".0") + "k"
	case rounded < 1000000:
		return strconv.FormatFloat(math.Round(rounded/1000), 'f', 0, 64) + "k"
	default:
		return strconv.FormatFloat(math.Round(rounded/1000000), 'f', 0, 64) + "M"
	}
}

// Updater pushes badge text and a tooltip to the UI chrome
type Updater interface {
	Update(ctx context.Context, text string, tooltip string) error
}
