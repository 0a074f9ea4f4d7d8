package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// DefaultMarkdownStyle picks a dark or light theme on a terminal and plain text otherwise.
const DefaultMarkdownStyle = "auto"

// MarkdownRenderer renders item descriptions and recreates the renderer when wrap width changes.
type MarkdownRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdownRenderer constructs a renderer for a glamour standard style name.
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	style = strings.TrimSpace(style)
	if style == "" {
		style = DefaultMarkdownStyle
	}
	return &MarkdownRenderer{style: style}
}

// Render converts markdown into terminal text wrapped at width. Render errors fall back to the raw input.
func (r *MarkdownRenderer) Render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := width
	if wrapWidth < 24 {
		wrapWidth = 24
	}

	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}
