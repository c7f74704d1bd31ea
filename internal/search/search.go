// Package search finds interview notes by their text, through Meilisearch
// when it is available and Postgres full-text search otherwise.
package search

import (
	"context"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	NoteID      string `json:"noteId"`
	InterviewID string `json:"interviewId"`
	CommentID   string `json:"commentId,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
	Author      string `json:"author,omitempty"`
	AnchorText  string `json:"anchorText,omitempty"`
	Snippet     string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text        string
	InterviewID string // empty = all interviews
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push notes into a search index.
type Indexer interface {
	IndexNotes(ctx context.Context, records []NoteRecord) error
	DeleteNotes(ctx context.Context, ids []string) error
}

// Engine is a search backend that keeps its own index.
type Engine interface {
	Searcher
	Indexer
}

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID          string `json:"id"`
	InterviewID string `json:"interviewId"`
	CommentID   string `json:"commentId"`
	ParentID    string `json:"parentId"`
	AnchorText  string `json:"anchorText"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	CreatedAt   int64  `json:"createdAt"`
}

// RecordFromNote builds the index record for a stored note. Content is
// indexed as visible text, without markup.
func RecordFromNote(n store.NoteRecord) NoteRecord {
	return NoteRecord{
		ID:          n.ID,
		InterviewID: n.InterviewID,
		CommentID:   n.CommentID,
		ParentID:    n.ParentID,
		AnchorText:  n.AnchorText,
		Content:     render.NoteContentText(n.Content),
		Author:      n.Author,
		CreatedAt:   n.CreatedAt.Unix(),
	}
}
