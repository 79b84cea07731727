package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Emphasis renders matched spans in bold.
type Emphasis struct {
	style lipgloss.Style
}

// NewEmphasis detects the color profile of w. Output that is not a
// terminal gets plain text.
func NewEmphasis(w io.Writer) *Emphasis {
	return newEmphasis(lipgloss.NewRenderer(w))
}

// NewEmphasisWithProfile forces a color profile.
func NewEmphasisWithProfile(w io.Writer, p termenv.Profile) *Emphasis {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(p)
	return newEmphasis(r)
}

func newEmphasis(r *lipgloss.Renderer) *Emphasis {
	return &Emphasis{
		style: r.NewStyle().Bold(true).TabWidth(lipgloss.NoTabConversion),
	}
}

// Bold emphasizes s.
func (e *Emphasis) Bold(s string) string {
	if s == "" {
		return s
	}
	return e.style.Render(s)
}
