package store

import (
	"encoding/json"
	"time"
)

// Interview is a recorded interview and its transcript document.
type Interview struct {
	ID          string
	Title       string
	Participant string
	Transcript  json.RawMessage
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NoteRecord is a stored note row. ParentID is empty for root notes.
type NoteRecord struct {
	ID          string
	InterviewID string
	ParentID    string
	CommentID   string
	AnchorText  string
	Content     string
	Author      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
