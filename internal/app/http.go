package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/auth"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/export"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
)

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type HTTPServer struct {
	service    *Service
	exports    exporter
	tokens     tokenParser
	corsOrigin string
	logger     *slog.Logger
	router     chi.Router
}

type ServerOption func(*HTTPServer)

// WithTokenVerifier makes the server authenticate callers with bearer tokens
// instead of trusting gateway identity headers.
func WithTokenVerifier(v *auth.Verifier) ServerOption {
	return func(s *HTTPServer) {
		if v != nil {
			s.tokens = v
		}
	}
}

// NewHTTPServer builds the API router. exports may be nil, in which case the
// export endpoint reports 503.
func NewHTTPServer(service *Service, exports exporter, corsOrigin string, logger *slog.Logger, opts ...ServerOption) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{service: service, exports: exports, corsOrigin: corsOrigin, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(corsMiddleware(s.corsOrigin))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Route("/api/interviews", func(r chi.Router) {
		r.Use(s.requireActor)
		r.Post("/", s.handleCreateInterview)
		r.Route("/{interviewID}", func(r chi.Router) {
			r.Get("/transcript", s.handleTranscript)
			r.Put("/transcript", s.handleUpdateTranscript)
			r.Post("/layout", s.handleLayout)
			r.Get("/notes", s.handleListNotes)
			r.Post("/notes", s.handleCreateNote)
			r.Get("/notes/search", s.handleSearchNotes)
			r.Put("/notes/{noteID}", s.handleUpdateNote)
			r.Delete("/notes/{noteID}", s.handleDeleteNote)
			r.Get("/export", s.handleExport)
		})
	})

	s.router = r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, checks := s.service.Readiness(ctx)
	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var body CreateInterviewInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateInterview(r.Context(), actorFrom(r.Context()), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          created.ID,
		"title":       created.Title,
		"participant": created.Participant,
		"createdAt":   created.CreatedAt,
	})
}

func (s *HTTPServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Transcript(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleUpdateTranscript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Transcript json.RawMessage `json:"transcript"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if len(body.Transcript) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "transcript is required", nil)
		return
	}
	updated, err := s.service.UpdateTranscript(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"), body.Transcript)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": updated.ID, "updatedAt": updated.UpdatedAt})
}

func (s *HTTPServer) handleLayout(w http.ResponseWriter, r *http.Request) {
	var body LayoutInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	snapshot, err := s.service.Layout(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *HTTPServer) handleListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListNotes(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": items})
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var body notes.CreateNoteIntent
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	note, err := s.service.CreateNote(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *HTTPServer) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	note, err := s.service.UpdateNote(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"), notes.UpdateNoteIntent{
		NoteID:  chi.URLParam(r, "noteID"),
		Content: body.Content,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.DeleteNote(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"), notes.DeleteNoteIntent{
		NoteID: chi.URLParam(r, "noteID"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

func (s *HTTPServer) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	resp, err := s.service.SearchNotes(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "interviewID"), query.Get("q"), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !rbac.Can(actor.Role, rbac.ActionExport) {
		s.fail(w, r, errForbidden)
		return
	}
	if s.exports == nil {
		writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
		return
	}
	query := r.URL.Query()
	format, ok := export.ParseFormat(query.Get("format"))
	if !ok {
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be pdf, docx or html", nil)
		return
	}
	result, err := s.exports.Export(r.Context(), export.Request{
		InterviewID:  chi.URLParam(r, "interviewID"),
		Format:       format,
		IncludeNotes: query.Get("notes") != "false",
		Archive:      query.Get("archive") == "true",
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if result.URL != "" {
		writeJSON(w, http.StatusOK, map[string]any{"url": result.URL, "filename": result.Filename})
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// fail maps err to a response and logs server errors.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
