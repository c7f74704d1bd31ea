package render

import (
	"strings"

	"golang.org/x/net/html"
)

// Attributes and classes carried by comment highlight spans. They are the
// integration contract between the renderer, the anchor measurers and the
// view layer.
const (
	// AttrCommentID is present on every highlight span and holds the anchor
	// key: the comment id of the mark, or the note id for notes anchored only
	// by text.
	AttrCommentID = "data-comment-id"
	// AttrNoteID is present only on the first span of a resolved highlight.
	AttrNoteID = "data-note-id"
	// AttrCommentPart marks later segments of a comment that spans several
	// text runs.
	AttrCommentPart = "data-comment-part"

	ClassHighlight = "comment-highlight"
	ClassOrphaned  = "comment-highlight--orphaned"
)

// Highlight describes one highlight span.
type Highlight struct {
	CommentID    string
	NoteID       string
	Orphaned     bool
	Continuation bool
	Classes      []string
}

// OpenTag renders the opening span tag.
func (h Highlight) OpenTag() string {
	var b strings.Builder
	b.WriteString(`<span class="`)
	b.WriteString(html.EscapeString(strings.Join(h.classList(), " ")))
	b.WriteString(`" `)
	b.WriteString(AttrCommentID)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(h.CommentID))
	b.WriteString(`"`)
	if h.NoteID != "" && !h.Orphaned {
		b.WriteString(` ` + AttrNoteID + `="`)
		b.WriteString(html.EscapeString(h.NoteID))
		b.WriteString(`"`)
	}
	if h.Continuation {
		b.WriteString(` ` + AttrCommentPart + `="true"`)
	}
	b.WriteString(">")
	return b.String()
}

func (h Highlight) classList() []string {
	classes := []string{ClassHighlight}
	if h.Orphaned {
		classes = append(classes, ClassOrphaned)
	}
	for _, class := range h.Classes {
		if class == ClassHighlight || class == ClassOrphaned || class == "" {
			continue
		}
		classes = append(classes, class)
	}
	return classes
}

// ParseHighlight reads a highlight from a parsed start tag. It reports false
// for anything that is not a highlight span.
func ParseHighlight(tag html.Token) (Highlight, bool) {
	if tag.Type != html.StartTagToken || tag.Data != "span" {
		return Highlight{}, false
	}
	return highlightFromAttrs(tag.Attr)
}

// HighlightFromNode reads a highlight from a parsed element node.
func HighlightFromNode(n *html.Node) (Highlight, bool) {
	if n == nil || n.Type != html.ElementNode || n.Data != "span" {
		return Highlight{}, false
	}
	return highlightFromAttrs(n.Attr)
}

func highlightFromAttrs(attrs []html.Attribute) (Highlight, bool) {
	var h Highlight
	found := false
	for _, attr := range attrs {
		switch attr.Key {
		case AttrCommentID:
			h.CommentID = attr.Val
			found = true
		case AttrNoteID:
			h.NoteID = attr.Val
		case AttrCommentPart:
			h.Continuation = attr.Val == "true"
		case "class":
			for _, class := range strings.Fields(attr.Val) {
				switch class {
				case ClassOrphaned:
					h.Orphaned = true
				case ClassHighlight:
				default:
					h.Classes = append(h.Classes, class)
				}
			}
		}
	}
	if !found || h.CommentID == "" {
		return Highlight{}, false
	}
	return h, true
}
