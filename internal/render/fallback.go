package render

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

// applyFallback highlights anchored notes whose anchor key never appeared in
// the rendered markup. Each note gets at most one highlight: the first
// case-sensitive occurrence of its escaped anchor text inside a single text
// run that is not already highlighted, or failing that the first occurrence
// inside an existing highlight, which then nests. Notes without a match stay
// unhighlighted.
func applyFallback(markup string, anchored []notes.Thread, emitted map[string]bool) string {
	for _, thread := range anchored {
		root := thread.Root
		key := root.AnchorKey()
		if emitted[key] || strings.TrimSpace(root.AnchorText) == "" {
			continue
		}
		needle := html.EscapeString(root.AnchorText)
		start, ok := findText(markup, needle, true)
		if !ok {
			start, ok = findText(markup, needle, false)
		}
		if !ok {
			continue
		}
		h := Highlight{CommentID: key, NoteID: root.ID}
		var b strings.Builder
		b.Grow(len(markup) + 128)
		b.WriteString(markup[:start])
		b.WriteString(h.OpenTag())
		b.WriteString(needle)
		b.WriteString("</span>")
		b.WriteString(markup[start+len(needle):])
		markup = b.String()
		emitted[key] = true
	}
	return markup
}

// findText returns the byte offset of the first occurrence of needle within a
// single text token. With skipHighlighted set, text inside highlight spans is
// ignored.
func findText(markup, needle string, skipHighlighted bool) (int, bool) {
	if needle == "" {
		return 0, false
	}
	z := html.NewTokenizer(strings.NewReader(markup))
	offset := 0
	depth := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return 0, false
		}
		raw := z.Raw()
		size := len(raw)
		switch tt {
		case html.TextToken:
			if depth == 0 || !skipHighlighted {
				if i := strings.Index(string(raw), needle); i >= 0 {
					return offset + i, true
				}
			}
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data == "span" {
				if depth > 0 {
					depth++
				} else if _, ok := ParseHighlight(tok); ok {
					depth = 1
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if depth > 0 && string(name) == "span" {
				depth--
			}
		}
		offset += size
	}
}
