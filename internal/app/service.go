package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/anchor"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/cache"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/document"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/events"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/export"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/layout"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/render"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/search"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/store"
)

// Actor is the caller of a service operation. Identity comes from the
// gateway in front of the API.
type Actor struct {
	UserID string
	Role   rbac.Role
}

type CreateInterviewInput struct {
	Title       string          `json:"title"`
	Participant string          `json:"participant"`
	Transcript  json.RawMessage `json:"transcript"`
}

// TranscriptView is an interview rendered for the annotation view.
type TranscriptView struct {
	InterviewID string         `json:"interviewId"`
	Title       string         `json:"title"`
	Participant string         `json:"participant"`
	UpdatedBy   string         `json:"updatedBy"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	HTML        string         `json:"html"`
	Anchored    []notes.Thread `json:"anchored"`
	General     []notes.Thread `json:"general"`
}

// LayoutInput is the geometry a thin client measured. Rects are in page
// coordinates; the container rect is the transcript's scroll container.
type LayoutInput struct {
	Container anchor.Rect            `json:"container"`
	Anchors   map[string]anchor.Rect `json:"anchors"`
	Heights   map[string]float64     `json:"heights"`
	ActiveID  string                 `json:"activeId"`
	Pending   *anchor.Pending        `json:"pending,omitempty"`
	CardLeft  float64                `json:"cardLeft,omitempty"`
}

type dataStore interface {
	Ping(context.Context) error
	CreateInterview(context.Context, store.Interview) (store.Interview, error)
	GetInterview(context.Context, string) (store.Interview, error)
	UpdateTranscript(context.Context, string, json.RawMessage, string) (store.Interview, error)
	ListNotes(context.Context, string) ([]notes.Note, error)
	GetNote(context.Context, string, string) (store.NoteRecord, error)
	InsertNote(context.Context, store.NoteRecord) (store.NoteRecord, error)
	UpdateNoteContent(context.Context, string, string, string) (store.NoteRecord, error)
	DeleteNote(context.Context, string, string) ([]string, error)
}

type renderCache interface {
	Get(ctx context.Context, interviewID, fingerprint string) (string, bool, error)
	Put(ctx context.Context, interviewID, fingerprint, markup string) error
	Invalidate(ctx context.Context, interviewID string) error
	Ping(ctx context.Context) error
}

type noteSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexNote(record search.NoteRecord)
	DeleteNotes(ids []string)
}

type Service struct {
	store     dataStore
	cache     renderCache
	search    noteSearch
	publisher events.Publisher
	layout    layout.Options
	logger    *slog.Logger
}

type Option func(*Service)

// WithRenderCache caches rendered transcripts. A nil cache disables caching.
func WithRenderCache(c *cache.RenderCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) {
		if svc != nil {
			s.search = svc
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLayoutOptions(opts layout.Options) Option {
	return func(s *Service) { s.layout = opts }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(st *store.PostgresStore, opts ...Option) *Service {
	return newService(st, opts...)
}

func newService(st dataStore, opts ...Option) *Service {
	s := &Service{
		store:     st,
		publisher: events.Nop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports the state of each backing service. Only the database is
// required; the cache is optional.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{"database": map[string]any{"status": "ok"}}
	ready := true
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["redis"] = map[string]any{"status": "degraded", "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}
	return ready, checks
}

func (s *Service) CreateInterview(ctx context.Context, actor Actor, input CreateInterviewInput) (store.Interview, error) {
	if !rbac.Can(actor.Role, rbac.ActionWrite) {
		return store.Interview{}, errForbidden
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Interview{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	transcript, err := normalizeTranscript(input.Transcript)
	if err != nil {
		return store.Interview{}, err
	}
	created, err := s.store.CreateInterview(ctx, store.Interview{
		ID:          uuid.NewString(),
		Title:       title,
		Participant: strings.TrimSpace(input.Participant),
		Transcript:  transcript,
		UpdatedBy:   actor.UserID,
	})
	if err != nil {
		return store.Interview{}, err
	}
	s.logger.Info("interview created", "interview_id", created.ID, "actor", actor.UserID)
	return created, nil
}

// UpdateTranscript replaces the transcript document. Notes are kept; any
// whose comment mark disappeared fall back to their anchor text.
func (s *Service) UpdateTranscript(ctx context.Context, actor Actor, interviewID string, raw json.RawMessage) (store.Interview, error) {
	if !rbac.Can(actor.Role, rbac.ActionWrite) {
		return store.Interview{}, errForbidden
	}
	transcript, err := normalizeTranscript(raw)
	if err != nil {
		return store.Interview{}, err
	}
	updated, err := s.store.UpdateTranscript(ctx, interviewID, transcript, actor.UserID)
	if err != nil {
		return store.Interview{}, err
	}
	s.invalidate(ctx, interviewID)
	return updated, nil
}

func normalizeTranscript(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	doc, err := document.Parse(raw)
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_TRANSCRIPT", err.Error(), nil)
	}
	if doc.Type != document.TypeDoc {
		return nil, domainError(http.StatusBadRequest, "INVALID_TRANSCRIPT", "transcript root must be a doc node", nil)
	}
	return raw, nil
}

// Transcript renders an interview with its notes split into anchored and
// general threads.
func (s *Service) Transcript(ctx context.Context, actor Actor, interviewID string) (TranscriptView, error) {
	if !rbac.Can(actor.Role, rbac.ActionRead) {
		return TranscriptView{}, errForbidden
	}
	interview, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return TranscriptView{}, err
	}
	items, err := s.store.ListNotes(ctx, interviewID)
	if err != nil {
		return TranscriptView{}, err
	}
	markup, err := s.renderTranscript(ctx, interview, items)
	if err != nil {
		return TranscriptView{}, err
	}
	anchored, general := notes.Partition(items)
	return TranscriptView{
		InterviewID: interview.ID,
		Title:       interview.Title,
		Participant: interview.Participant,
		UpdatedBy:   interview.UpdatedBy,
		UpdatedAt:   interview.UpdatedAt,
		HTML:        markup,
		Anchored:    nonNilThreads(anchored),
		General:     nonNilThreads(general),
	}, nil
}

func (s *Service) renderTranscript(ctx context.Context, interview store.Interview, items []notes.Note) (string, error) {
	fingerprint := cache.Fingerprint(interview.Transcript, items)
	if s.cache != nil {
		markup, ok, err := s.cache.Get(ctx, interview.ID, fingerprint)
		if err != nil {
			s.logger.Warn("render cache read failed", "interview_id", interview.ID, "error", err)
		} else if ok {
			return markup, nil
		}
	}

	doc, err := document.Parse(interview.Transcript)
	if err != nil {
		return "", fmt.Errorf("parse transcript %s: %w", interview.ID, err)
	}
	markup := render.Render(doc, items)
	if s.cache != nil {
		if err := s.cache.Put(ctx, interview.ID, fingerprint, markup); err != nil {
			s.logger.Warn("render cache write failed", "interview_id", interview.ID, "error", err)
		}
	}
	return markup, nil
}

// Layout runs the position engine over geometry measured by the client.
func (s *Service) Layout(ctx context.Context, actor Actor, interviewID string, input LayoutInput) (layout.Snapshot, error) {
	if !rbac.Can(actor.Role, rbac.ActionRead) {
		return layout.Snapshot{}, errForbidden
	}
	items, err := s.store.ListNotes(ctx, interviewID)
	if err != nil {
		return layout.Snapshot{}, err
	}
	anchored, _ := notes.Partition(items)
	measurer := anchor.Static{ContainerRect: input.Container, Rects: input.Anchors}
	points := anchor.Resolve(anchored, input.Pending, measurer)

	opts := s.layout
	if input.CardLeft > 0 {
		opts.CardLeft = input.CardLeft
	}
	return layout.Layout(points, input.Heights, strings.TrimSpace(input.ActiveID), opts), nil
}

// ExportMaterial loads what the export service renders. Access checks happen
// at the HTTP layer before an export is started.
func (s *Service) ExportMaterial(ctx context.Context, interviewID string) (export.Material, error) {
	interview, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return export.Material{}, err
	}
	items, err := s.store.ListNotes(ctx, interviewID)
	if err != nil {
		return export.Material{}, err
	}
	doc, err := document.Parse(interview.Transcript)
	if err != nil {
		return export.Material{}, fmt.Errorf("%w: %v", export.ErrContentUnavailable, err)
	}
	return export.Material{
		Title:       interview.Title,
		Participant: interview.Participant,
		UpdatedBy:   interview.UpdatedBy,
		UpdatedAt:   interview.UpdatedAt,
		Transcript:  doc,
		Notes:       items,
	}, nil
}

// SearchNotes finds notes in one interview.
func (s *Service) SearchNotes(ctx context.Context, actor Actor, interviewID, text string, limit, offset int) (search.Response, error) {
	if !rbac.Can(actor.Role, rbac.ActionRead) {
		return search.Response{}, errForbidden
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "query is required", nil)
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(ctx, search.Query{
		Text:        text,
		InterviewID: interviewID,
		Limit:       limit,
		Offset:      offset,
	}), nil
}

func (s *Service) invalidate(ctx context.Context, interviewID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, interviewID); err != nil {
		s.logger.Warn("render cache invalidate failed", "interview_id", interviewID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, evt events.NoteEvent) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, events.ErrClosed) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "note event not published", "type", evt.Type, "note_id", evt.NoteID, "error", err)
	}
}

func nonNilThreads(threads []notes.Thread) []notes.Thread {
	if threads == nil {
		return []notes.Thread{}
	}
	return threads
}
