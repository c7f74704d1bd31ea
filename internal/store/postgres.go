package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

const emptyTranscript = `{"type":"doc","content":[]}`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateInterview(ctx context.Context, interview Interview) (Interview, error) {
	transcript := interview.Transcript
	if len(transcript) == 0 {
		transcript = json.RawMessage(emptyTranscript)
	}
	const query = `
		INSERT INTO interviews (id, title, participant, transcript, updated_by)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		RETURNING id, title, participant, transcript, updated_by, created_at, updated_at
	`
	row := s.db.QueryRowContext(ctx, query, interview.ID, interview.Title, interview.Participant, string(transcript), interview.UpdatedBy)
	created, err := scanInterview(row)
	if err != nil {
		return Interview{}, fmt.Errorf("insert interview: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetInterview(ctx context.Context, id string) (Interview, error) {
	const query = `
		SELECT id, title, participant, transcript, updated_by, created_at, updated_at
		FROM interviews
		WHERE id = $1
	`
	interview, err := scanInterview(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return Interview{}, fmt.Errorf("get interview %s: %w", id, err)
	}
	return interview, nil
}

func (s *PostgresStore) UpdateTranscript(ctx context.Context, id string, transcript json.RawMessage, updatedBy string) (Interview, error) {
	const query = `
		UPDATE interviews
		SET transcript = $2::jsonb, updated_by = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, title, participant, transcript, updated_by, created_at, updated_at
	`
	interview, err := scanInterview(s.db.QueryRowContext(ctx, query, id, string(transcript), updatedBy))
	if err != nil {
		return Interview{}, fmt.Errorf("update transcript %s: %w", id, err)
	}
	return interview, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, interviewID string) ([]notes.Note, error) {
	const query = `
		SELECT id, interview_id, COALESCE(parent_id, ''), comment_id, anchor_text, content, author, created_at, updated_at
		FROM interview_notes
		WHERE interview_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, interviewID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]notes.Note, 0)
	for rows.Next() {
		record, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, record.Note())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, interviewID, noteID string) (NoteRecord, error) {
	const query = `
		SELECT id, interview_id, COALESCE(parent_id, ''), comment_id, anchor_text, content, author, created_at, updated_at
		FROM interview_notes
		WHERE interview_id = $1 AND id = $2
	`
	record, err := scanNote(s.db.QueryRowContext(ctx, query, interviewID, noteID))
	if err != nil {
		return NoteRecord{}, fmt.Errorf("get note %s: %w", noteID, err)
	}
	return record, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, record NoteRecord) (NoteRecord, error) {
	const query = `
		INSERT INTO interview_notes (id, interview_id, parent_id, comment_id, anchor_text, content, author)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING id, interview_id, COALESCE(parent_id, ''), comment_id, anchor_text, content, author, created_at, updated_at
	`
	created, err := scanNote(s.db.QueryRowContext(ctx, query,
		record.ID,
		record.InterviewID,
		strings.TrimSpace(record.ParentID),
		strings.TrimSpace(record.CommentID),
		record.AnchorText,
		record.Content,
		record.Author,
	))
	if err != nil {
		return NoteRecord{}, fmt.Errorf("insert note: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateNoteContent(ctx context.Context, interviewID, noteID, content string) (NoteRecord, error) {
	const query = `
		UPDATE interview_notes
		SET content = $3, updated_at = NOW()
		WHERE interview_id = $1 AND id = $2
		RETURNING id, interview_id, COALESCE(parent_id, ''), comment_id, anchor_text, content, author, created_at, updated_at
	`
	updated, err := scanNote(s.db.QueryRowContext(ctx, query, interviewID, noteID, content))
	if err != nil {
		return NoteRecord{}, fmt.Errorf("update note %s: %w", noteID, err)
	}
	return updated, nil
}

// DeleteNote removes a note and, through the parent foreign key, its
// replies. It returns the ids that were removed.
func (s *PostgresStore) DeleteNote(ctx context.Context, interviewID, noteID string) ([]string, error) {
	const query = `
		WITH RECURSIVE doomed AS (
			SELECT id FROM interview_notes WHERE interview_id = $1 AND id = $2
			UNION
			SELECT n.id FROM interview_notes n JOIN doomed d ON n.parent_id = d.id
		)
		SELECT id FROM doomed
	`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, interviewID, noteID)
	if err != nil {
		return nil, fmt.Errorf("collect note tree: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note tree: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("delete note %s: %w", noteID, sql.ErrNoRows)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM interview_notes WHERE interview_id = $1 AND id = $2`, interviewID, noteID); err != nil {
		return nil, fmt.Errorf("delete note %s: %w", noteID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete note: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (Interview, error) {
	var (
		interview  Interview
		transcript []byte
	)
	if err := row.Scan(
		&interview.ID,
		&interview.Title,
		&interview.Participant,
		&transcript,
		&interview.UpdatedBy,
		&interview.CreatedAt,
		&interview.UpdatedAt,
	); err != nil {
		return Interview{}, err
	}
	interview.Transcript = json.RawMessage(transcript)
	return interview, nil
}

func scanNote(row rowScanner) (NoteRecord, error) {
	var record NoteRecord
	err := row.Scan(
		&record.ID,
		&record.InterviewID,
		&record.ParentID,
		&record.CommentID,
		&record.AnchorText,
		&record.Content,
		&record.Author,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	return record, err
}

// Note converts the row to the thread model.
func (r NoteRecord) Note() notes.Note {
	return notes.Note{
		ID:         r.ID,
		Content:    r.Content,
		CommentID:  r.CommentID,
		AnchorText: r.AnchorText,
		ParentID:   r.ParentID,
		CreatedAt:  r.CreatedAt,
		Author:     r.Author,
	}
}
