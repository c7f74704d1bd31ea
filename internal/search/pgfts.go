package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches notes with plainto_tsquery, ranks with ts_rank and builds
// snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	where, args := ftsWhere(q)

	var total int
	countSQL := "SELECT count(*) FROM interview_notes n WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	limit, offset := pageBounds(q)
	dataSQL := fmt.Sprintf(`
		SELECT n.id, n.interview_id, n.comment_id, COALESCE(n.parent_id, ''), n.author, n.anchor_text,
			ts_headline('english', n.content, plainto_tsquery('english', $1),
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS snippet
		FROM interview_notes n
		WHERE %s
		ORDER BY ts_rank(n.search_vector, plainto_tsquery('english', $1)) DESC, n.created_at ASC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.NoteID, &r.InterviewID, &r.CommentID, &r.ParentID, &r.Author, &r.AnchorText, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func ftsWhere(q Query) (string, []any) {
	where := "n.search_vector @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.InterviewID != "" {
		args = append(args, q.InterviewID)
		where += fmt.Sprintf(" AND n.interview_id = $%d", len(args))
	}
	return where, args
}

func pageBounds(q Query) (int, int) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// LoadAllRecords returns every note for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, interview_id, comment_id, COALESCE(parent_id, ''), anchor_text, content, author,
			EXTRACT(EPOCH FROM created_at)::bigint
		FROM interview_notes
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var r NoteRecord
		if err := rows.Scan(&r.ID, &r.InterviewID, &r.CommentID, &r.ParentID, &r.AnchorText, &r.Content, &r.Author, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		r.Content = render.NoteContentText(r.Content)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return records, nil
}
