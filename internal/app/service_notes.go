package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/events"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/search"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/store"
)

func (s *Service) ListNotes(ctx context.Context, actor Actor, interviewID string) ([]notes.Note, error) {
	if !rbac.Can(actor.Role, rbac.ActionRead) {
		return nil, errForbidden
	}
	if _, err := s.store.GetInterview(ctx, interviewID); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, interviewID)
}

// CreateNote stores a comment, reply or general note. Replies must answer a
// root note and never carry an anchor of their own.
func (s *Service) CreateNote(ctx context.Context, actor Actor, interviewID string, intent notes.CreateNoteIntent) (notes.Note, error) {
	if !rbac.Can(actor.Role, rbac.ActionComment) {
		return notes.Note{}, errForbidden
	}
	if err := intent.Validate(); err != nil {
		return notes.Note{}, validationError(err)
	}
	if _, err := s.store.GetInterview(ctx, interviewID); err != nil {
		return notes.Note{}, err
	}

	record := store.NoteRecord{
		ID:          notes.NewNoteID(),
		InterviewID: interviewID,
		ParentID:    strings.TrimSpace(intent.ParentID),
		CommentID:   strings.TrimSpace(intent.CommentID),
		AnchorText:  strings.TrimSpace(intent.AnchorText),
		Content:     strings.TrimSpace(intent.Content),
		Author:      actor.UserID,
	}
	if record.ParentID != "" {
		parent, err := s.store.GetNote(ctx, interviewID, record.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return notes.Note{}, domainError(http.StatusBadRequest, "INVALID_PARENT", "parent note not found", map[string]any{"parentId": record.ParentID})
		}
		if err != nil {
			return notes.Note{}, err
		}
		if parent.ParentID != "" {
			return notes.Note{}, domainError(http.StatusBadRequest, "INVALID_PARENT", "replies must answer a root note", map[string]any{"parentId": record.ParentID})
		}
		record.CommentID = ""
		record.AnchorText = ""
	}

	created, err := s.store.InsertNote(ctx, record)
	if err != nil {
		return notes.Note{}, err
	}
	note := created.Note()
	if note.IsAnchored() {
		s.invalidate(ctx, interviewID)
	}
	s.index(created)
	s.publish(ctx, events.NoteEvent{
		Type:        events.NoteCreated,
		InterviewID: interviewID,
		NoteID:      created.ID,
		CommentID:   created.CommentID,
		ParentID:    created.ParentID,
		Actor:       actor.UserID,
		At:          created.CreatedAt,
	})
	s.logger.Info("note created",
		"interview_id", interviewID,
		"note_id", created.ID,
		"anchored", note.IsAnchored(),
		"reply", note.IsReply(),
		"actor", actor.UserID,
	)
	return note, nil
}

func (s *Service) UpdateNote(ctx context.Context, actor Actor, interviewID string, intent notes.UpdateNoteIntent) (notes.Note, error) {
	if err := intent.Validate(); err != nil {
		return notes.Note{}, validationError(err)
	}
	existing, err := s.store.GetNote(ctx, interviewID, intent.NoteID)
	if err != nil {
		return notes.Note{}, err
	}
	if !rbac.CanModifyNote(actor.Role, actor.UserID, existing.Author) {
		return notes.Note{}, errForbidden
	}
	updated, err := s.store.UpdateNoteContent(ctx, interviewID, intent.NoteID, strings.TrimSpace(intent.Content))
	if err != nil {
		return notes.Note{}, err
	}
	s.index(updated)
	s.publish(ctx, events.NoteEvent{
		Type:        events.NoteUpdated,
		InterviewID: interviewID,
		NoteID:      updated.ID,
		CommentID:   updated.CommentID,
		ParentID:    updated.ParentID,
		Actor:       actor.UserID,
		At:          updated.UpdatedAt,
	})
	return updated.Note(), nil
}

// DeleteNote removes a note with its replies and returns every removed id.
func (s *Service) DeleteNote(ctx context.Context, actor Actor, interviewID string, intent notes.DeleteNoteIntent) ([]string, error) {
	if strings.TrimSpace(intent.NoteID) == "" {
		return nil, validationError(notes.ErrMissingID)
	}
	existing, err := s.store.GetNote(ctx, interviewID, intent.NoteID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanModifyNote(actor.Role, actor.UserID, existing.Author) {
		return nil, errForbidden
	}
	removed, err := s.store.DeleteNote(ctx, interviewID, intent.NoteID)
	if err != nil {
		return nil, err
	}
	if existing.Note().IsAnchored() {
		s.invalidate(ctx, interviewID)
	}
	if s.search != nil {
		s.search.DeleteNotes(removed)
	}
	s.publish(ctx, events.NoteEvent{
		Type:        events.NoteDeleted,
		InterviewID: interviewID,
		NoteID:      existing.ID,
		CommentID:   existing.CommentID,
		ParentID:    existing.ParentID,
		Actor:       actor.UserID,
		Deleted:     removed,
		At:          time.Now().UTC(),
	})
	return removed, nil
}

func (s *Service) index(record store.NoteRecord) {
	if s.search != nil {
		s.search.IndexNote(search.RecordFromNote(record))
	}
}

// NotesFor binds the note operations to one interview and caller, for
// components that only know note intents.
func (s *Service) NotesFor(interviewID string, actor Actor) notes.Mutator {
	return noteMutator{service: s, interviewID: interviewID, actor: actor}
}

type noteMutator struct {
	service     *Service
	interviewID string
	actor       Actor
}

func (m noteMutator) CreateNote(ctx context.Context, intent notes.CreateNoteIntent) (notes.Note, error) {
	return m.service.CreateNote(ctx, m.actor, m.interviewID, intent)
}

func (m noteMutator) UpdateNote(ctx context.Context, intent notes.UpdateNoteIntent) (notes.Note, error) {
	return m.service.UpdateNote(ctx, m.actor, m.interviewID, intent)
}

func (m noteMutator) DeleteNote(ctx context.Context, intent notes.DeleteNoteIntent) error {
	_, err := m.service.DeleteNote(ctx, m.actor, m.interviewID, intent)
	return err
}
