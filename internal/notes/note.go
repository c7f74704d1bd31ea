// Package notes models interview notes: anchored comments, their replies and
// unanchored general notes.
package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Note is a comment or general annotation on an interview transcript.
type Note struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	CommentID  string    `json:"commentId,omitempty"`
	AnchorText string    `json:"anchorText,omitempty"`
	ParentID   string    `json:"parentId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Author     string    `json:"author"`
}

// IsAnchored reports whether the note refers to a range of the transcript.
func (n Note) IsAnchored() bool {
	return strings.TrimSpace(n.CommentID) != "" || strings.TrimSpace(n.AnchorText) != ""
}

// IsReply reports whether the note answers another note.
func (n Note) IsReply() bool {
	return strings.TrimSpace(n.ParentID) != ""
}

// AnchorKey is the value the transcript highlight for this note carries in
// data-comment-id. Notes anchored only by text use their own id.
func (n Note) AnchorKey() string {
	if id := strings.TrimSpace(n.CommentID); id != "" {
		return id
	}
	return n.ID
}

// CreateNoteIntent asks the mutation layer to persist a new note.
type CreateNoteIntent struct {
	Content    string `json:"content"`
	CommentID  string `json:"commentId,omitempty"`
	AnchorText string `json:"anchorText,omitempty"`
	ParentID   string `json:"parentId,omitempty"`
}

// UpdateNoteIntent replaces the content of a note.
type UpdateNoteIntent struct {
	NoteID  string `json:"noteId"`
	Content string `json:"content"`
}

// DeleteNoteIntent removes a note.
type DeleteNoteIntent struct {
	NoteID string `json:"noteId"`
}

// Mutator is the external collaborator that persists note intents.
type Mutator interface {
	CreateNote(ctx context.Context, intent CreateNoteIntent) (Note, error)
	UpdateNote(ctx context.Context, intent UpdateNoteIntent) (Note, error)
	DeleteNote(ctx context.Context, intent DeleteNoteIntent) error
}

var (
	ErrEmptyContent = errors.New("note content is required")
	ErrMissingID    = errors.New("note id is required")
)

// Validate checks the fields every create intent needs.
func (i CreateNoteIntent) Validate() error {
	if strings.TrimSpace(i.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// Validate checks an update intent.
func (i UpdateNoteIntent) Validate() error {
	if strings.TrimSpace(i.NoteID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(i.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

// NewCommentID returns a fresh client-side comment identifier.
func NewCommentID() string {
	return "cmt_" + uuid.NewString()
}

// NewNoteID returns a fresh note identifier.
func NewNoteID() string {
	return "note_" + uuid.NewString()
}

// AnchorTextFromSelection captures the first non-blank line of a selection,
// trimmed, as the fallback highlight target.
func AnchorTextFromSelection(selection string) string {
	for _, line := range strings.Split(selection, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
