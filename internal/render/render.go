// Package render turns message text into the HTML shown in chat bubbles.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts message text to safe HTML.
type Renderer interface {
	Render(text string) (template.HTML, error)
}

// New returns the renderer registered under name: "markup" (the default) or "markdown".
func New(name string) (Renderer, error) {
	switch name {
	case "", "markup":
		return Markup{}, nil
	case "markdown":
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown renderer: %s", name)
	}
}

// Markup renders the two lightweight conventions of the chat bubbles: triple-backtick code blocks and
// double-asterisk emphasis. Every other character is escaped.
type Markup struct{}

// Render implements Renderer.
func (Markup) Render(text string) (template.HTML, error) {
	var sb strings.Builder
	for _, seg := range models.ParseMarkup(text) {
		escaped := template.HTMLEscapeString(seg.Text)
		switch seg.Kind {
		case models.SegmentCode:
			sb.WriteString(`<code class="code-block">`)
			sb.WriteString(escaped)
			sb.WriteString(`</code>`)
		case models.SegmentStrong:
			sb.WriteString(`<strong>`)
			sb.WriteString(escaped)
			sb.WriteString(`</strong>`)
		default:
			sb.WriteString(escaped)
		}
	}
	return template.HTML(sb.String()), nil
}

// Markdown renders CommonMark with GitHub extensions and highlighted code blocks. Raw HTML in the text is not
// passed through.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a markdown renderer.
func NewMarkdown() Markdown {
	return Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("monokai"),
				),
			),
		),
	}
}

// Render implements Renderer.
func (m Markdown) Render(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
