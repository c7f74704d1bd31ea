// Package document holds the rich-text tree a transcript is stored as.
//
// The shape follows the ProseMirror/TipTap JSON produced by the editor: a
// tree of nodes where only text leaves carry marks.
package document

import "strings"

// Node types understood by the renderer.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeBlockquote     = "blockquote"
	TypeCodeBlock      = "codeBlock"
	TypeHardBreak      = "hardBreak"
	TypeHorizontalRule = "horizontalRule"
	TypeText           = "text"
)

// Mark types.
const (
	MarkBold      = "bold"
	MarkItalic    = "italic"
	MarkUnderline = "underline"
	MarkStrike    = "strike"
	MarkCode      = "code"
	MarkHighlight = "highlight"
	MarkLink      = "link"
	MarkComment   = "comment"
)

// Node is a node in the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is an inline annotation on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Level returns the heading level clamped to 1..6.
func (n Node) Level() int {
	level := 1
	switch v := n.Attrs["level"].(type) {
	case float64:
		level = int(v)
	case int:
		level = v
	case int64:
		level = int(v)
	}
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

// IsText reports whether the node is a text leaf.
func (n Node) IsText() bool {
	return n.Type == TypeText
}

// CommentID returns the comment identifier of a comment mark, or "" for any
// other mark or a comment mark without an id.
func (m Mark) CommentID() string {
	if m.Type != MarkComment {
		return ""
	}
	return attrString(m.Attrs, "commentId")
}

// Href returns the link target of a link mark.
func (m Mark) Href() string {
	if m.Type != MarkLink {
		return ""
	}
	return attrString(m.Attrs, "href")
}

// CommentID returns the id of the first comment mark on the node.
func (n Node) CommentID() string {
	for _, mark := range n.Marks {
		if id := mark.CommentID(); id != "" {
			return id
		}
	}
	return ""
}

// CommentIDs lists every distinct comment id in document order.
func CommentIDs(root Node) []string {
	seen := make(map[string]struct{})
	var ids []string
	Walk(root, func(n Node) {
		for _, mark := range n.Marks {
			id := mark.CommentID()
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	})
	return ids
}

// Walk visits every node depth-first, parents before children.
func Walk(root Node, visit func(Node)) {
	visit(root)
	for _, child := range root.Content {
		Walk(child, visit)
	}
}

// PlainText concatenates the text of the tree, separating blocks by newlines.
func PlainText(root Node) string {
	var b strings.Builder
	var walk func(Node)
	walk = func(n Node) {
		switch n.Type {
		case TypeText:
			b.WriteString(n.Text)
			return
		case TypeHardBreak:
			b.WriteString("\n")
			return
		}
		for _, child := range n.Content {
			walk(child)
		}
		if isBlock(n.Type) && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
	walk(root)
	return strings.TrimRight(b.String(), "\n")
}

func isBlock(nodeType string) bool {
	switch nodeType {
	case TypeParagraph, TypeHeading, TypeListItem, TypeBlockquote, TypeCodeBlock:
		return true
	}
	return false
}

func attrString(attrs map[string]any, key string) string {
	value, _ := attrs[key].(string)
	return strings.TrimSpace(value)
}
