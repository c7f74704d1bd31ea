// Package render turns a transcript document and its notes into HTML with
// comment highlights.
package render

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/document"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

// markOrder is the nesting order of marks, outermost first.
var markOrder = map[string]int{
	document.MarkComment:   0,
	document.MarkLink:      1,
	document.MarkBold:      2,
	document.MarkItalic:    3,
	document.MarkUnderline: 4,
	document.MarkStrike:    5,
	document.MarkCode:      6,
	document.MarkHighlight: 7,
}

// Render converts doc into HTML. Comment marks become highlight spans tied to
// the notes that own them; anchored notes without a mark in the document get
// a best-effort highlight on the first occurrence of their anchor text.
// Render never fails: unknown nodes render their children and unknown marks
// are ignored.
func Render(doc document.Node, items []notes.Note) string {
	anchored, _ := notes.Partition(items)
	r := &renderer{
		owners:  commentOwners(anchored),
		emitted: make(map[string]bool),
	}
	r.node(doc)
	return applyFallback(r.b.String(), anchored, r.emitted)
}

type renderer struct {
	b       strings.Builder
	owners  map[string]notes.Note
	emitted map[string]bool
}

func commentOwners(threads []notes.Thread) map[string]notes.Note {
	owners := make(map[string]notes.Note, len(threads))
	for _, thread := range threads {
		id := strings.TrimSpace(thread.Root.CommentID)
		if id == "" {
			continue
		}
		if _, ok := owners[id]; ok {
			continue
		}
		owners[id] = thread.Root
	}
	return owners
}

func (r *renderer) node(n document.Node) {
	switch n.Type {
	case document.TypeDoc:
		r.inline(n.Content)
	case document.TypeParagraph:
		r.block("<p>", n.Content, "</p>\n")
	case document.TypeHeading:
		level := n.Level()
		r.block(fmt.Sprintf("<h%d>", level), n.Content, fmt.Sprintf("</h%d>\n", level))
	case document.TypeBulletList:
		r.block("<ul>\n", n.Content, "</ul>\n")
	case document.TypeOrderedList:
		r.block("<ol>\n", n.Content, "</ol>\n")
	case document.TypeListItem:
		r.block("<li>", n.Content, "</li>\n")
	case document.TypeBlockquote:
		r.block("<blockquote>\n", n.Content, "</blockquote>\n")
	case document.TypeCodeBlock:
		r.block("<pre><code>", n.Content, "</code></pre>\n")
	case document.TypeHardBreak:
		r.b.WriteString("<br>")
	case document.TypeHorizontalRule:
		r.b.WriteString("<hr>\n")
	case document.TypeText:
		r.text(n, "")
	default:
		r.inline(n.Content)
	}
}

func (r *renderer) block(open string, children []document.Node, closing string) {
	r.b.WriteString(open)
	r.inline(children)
	r.b.WriteString(closing)
}

// inline renders a run of siblings. Adjacent text nodes sharing a comment id
// are wrapped by a single highlight span.
func (r *renderer) inline(children []document.Node) {
	for i := 0; i < len(children); {
		child := children[i]
		id := ""
		if child.IsText() {
			id = child.CommentID()
		}
		if id == "" {
			r.node(child)
			i++
			continue
		}
		j := i
		for j < len(children) && children[j].IsText() && children[j].CommentID() == id {
			j++
		}
		r.b.WriteString(r.highlight(id).OpenTag())
		for _, run := range children[i:j] {
			r.text(run, id)
		}
		r.b.WriteString("</span>")
		i = j
	}
}

// highlight decides how the span for a comment id renders and records that
// the owning note has appeared.
func (r *renderer) highlight(commentID string) Highlight {
	h := Highlight{CommentID: commentID}
	owner, ok := r.owners[commentID]
	if !ok {
		h.Orphaned = true
		return h
	}
	if r.emitted[commentID] {
		h.Continuation = true
		return h
	}
	r.emitted[commentID] = true
	h.NoteID = owner.ID
	return h
}

// text writes escaped text wrapped in its marks. groupID is the comment id
// already opened by the caller.
func (r *renderer) text(n document.Node, groupID string) {
	if n.Text == "" {
		return
	}
	marks := r.orderedMarks(n.Marks, groupID)

	opens := make([]string, 0, len(marks))
	closes := make([]string, 0, len(marks))
	for _, mark := range marks {
		open, closing := r.wrapper(mark)
		opens = append(opens, open)
		closes = append(closes, closing)
	}
	for _, open := range opens {
		r.b.WriteString(open)
	}
	r.b.WriteString(html.EscapeString(n.Text))
	for i := len(closes) - 1; i >= 0; i-- {
		r.b.WriteString(closes[i])
	}
}

func (r *renderer) orderedMarks(marks []document.Mark, groupID string) []document.Mark {
	ordered := make([]document.Mark, 0, len(marks))
	groupSkipped := false
	for _, mark := range marks {
		if _, known := markOrder[mark.Type]; !known {
			continue
		}
		if mark.Type == document.MarkComment {
			id := mark.CommentID()
			if id == "" {
				continue
			}
			if id == groupID && !groupSkipped {
				groupSkipped = true
				continue
			}
		}
		ordered = append(ordered, mark)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return markOrder[ordered[i].Type] < markOrder[ordered[j].Type]
	})
	return ordered
}

func (r *renderer) wrapper(mark document.Mark) (string, string) {
	switch mark.Type {
	case document.MarkComment:
		return r.highlight(mark.CommentID()).OpenTag(), "</span>"
	case document.MarkLink:
		return `<a href="` + html.EscapeString(mark.Href()) + `">`, "</a>"
	case document.MarkBold:
		return "<strong>", "</strong>"
	case document.MarkItalic:
		return "<em>", "</em>"
	case document.MarkUnderline:
		return "<u>", "</u>"
	case document.MarkStrike:
		return "<s>", "</s>"
	case document.MarkCode:
		return "<code>", "</code>"
	case document.MarkHighlight:
		return "<mark>", "</mark>"
	}
	return "", ""
}
