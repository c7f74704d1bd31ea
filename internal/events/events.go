// Package events publishes note changes so other services (transcription,
// analytics, notifications) can follow an interview's annotations.
package events

import (
	"context"
	"time"
)

type Type string

const (
	NoteCreated Type = "note.created"
	NoteUpdated Type = "note.updated"
	NoteDeleted Type = "note.deleted"
)

// NoteEvent describes one change. Deleted carries every removed id,
// including replies removed with their root.
type NoteEvent struct {
	Type        Type      `json:"type"`
	InterviewID string    `json:"interviewId"`
	NoteID      string    `json:"noteId"`
	CommentID   string    `json:"commentId,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Deleted     []string  `json:"deleted,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher accepts events for delivery. Publish must not block on the
// broker.
type Publisher interface {
	Publish(ctx context.Context, evt NoteEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, NoteEvent) error { return nil }
