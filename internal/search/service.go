package search

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const indexTimeout = 10 * time.Second

// Service is the facade that tries the search engine first and falls back
// to PG FTS.
type Service struct {
	engine   Engine
	fallback Searcher
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, fallback Searcher, logger *slog.Logger) *Service {
	if m, ok := engine.(*Meili); ok && m == nil {
		engine = nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, fallback: fallback, logger: logger}
}

// Search tries the engine if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search engine failed, falling back to postgres", "error", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote indexes a note in the background.
func (s *Service) IndexNote(record NoteRecord) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	s.background("index note", record.ID, func(ctx context.Context) error {
		return s.engine.IndexNotes(ctx, []NoteRecord{record})
	})
}

// DeleteNotes removes notes from the index in the background.
func (s *Service) DeleteNotes(ids []string) {
	if s.engine == nil || !s.engine.Healthy() || len(ids) == 0 {
		return
	}
	s.background("delete notes", ids[0], func(ctx context.Context) error {
		return s.engine.DeleteNotes(ctx, ids)
	})
}

// Reindex pushes every record to the engine. It runs synchronously; it is
// meant for startup.
func (s *Service) Reindex(ctx context.Context, records []NoteRecord) error {
	if s.engine == nil || !s.engine.Healthy() || len(records) == 0 {
		return nil
	}
	return s.engine.IndexNotes(ctx, records)
}

// Wait blocks until background index updates have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) background(op, id string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("search index update failed", "op", op, "id", id, "error", err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
