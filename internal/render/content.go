package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// goldmark's default renderer drops raw HTML, so note bodies cannot inject
// markup into the sidebar.
var noteMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
)

// NoteContentHTML renders a note body for a sidebar card or an export.
// Markdown and plain text go through goldmark; bodies that were stored as
// editor HTML are reduced to their text so only renderer-produced tags
// reach the page.
func NoteContentHTML(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if strings.HasPrefix(content, "<") {
		return textParagraphs(content)
	}
	var buf bytes.Buffer
	if err := noteMarkdown.Convert([]byte(content), &buf); err != nil {
		return "<p>" + html.EscapeString(content) + "</p>\n"
	}
	return buf.String()
}

// NoteContentText returns the visible text of a note body.
func NoteContentText(content string) string {
	if !strings.HasPrefix(strings.TrimSpace(content), "<") {
		return strings.TrimSpace(content)
	}
	return strings.Join(htmlBlocks(content), "\n")
}

func textParagraphs(markup string) string {
	var b strings.Builder
	for _, block := range htmlBlocks(markup) {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(block))
		b.WriteString("</p>\n")
	}
	return b.String()
}

// htmlBlocks extracts non-empty text blocks from an HTML fragment, breaking
// at block-level elements and <br>.
func htmlBlocks(markup string) []string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var blocks []string
	var current strings.Builder
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			blocks = append(blocks, text)
		}
		current.Reset()
	}
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return blocks
		case html.TextToken:
			current.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "div", "li", "br", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre":
				flush()
			}
		}
	}
}
