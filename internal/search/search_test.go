package search

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/store"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ Query) ([]Result, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

type fakeEngine struct {
	fakeSearcher
	mu      sync.Mutex
	indexed []NoteRecord
	deleted []string
}

func (f *fakeEngine) IndexNotes(_ context.Context, records []NoteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeEngine) DeleteNotes(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

func TestSearchPrefersHealthyEngine(t *testing.T) {
	engine := &fakeEngine{fakeSearcher: fakeSearcher{healthy: true, results: []Result{{NoteID: "n1"}}}}
	fallback := &fakeSearcher{healthy: true}
	s := NewService(engine, fallback, nil)

	resp := s.Search(context.Background(), Query{Text: "pricing"})
	if resp.Total != 1 || resp.Results[0].NoteID != "n1" || resp.Query != "pricing" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not be used")
	}
}

func TestSearchFallsBack(t *testing.T) {
	cases := []struct {
		name   string
		engine *fakeEngine
	}{
		{name: "unhealthy", engine: &fakeEngine{fakeSearcher: fakeSearcher{healthy: false}}},
		{name: "error", engine: &fakeEngine{fakeSearcher: fakeSearcher{healthy: true, err: errors.New("boom")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fallback := &fakeSearcher{healthy: true, results: []Result{{NoteID: "pg"}}}
			resp := NewService(tc.engine, fallback, nil).Search(context.Background(), Query{Text: "x"})
			if len(resp.Results) != 1 || resp.Results[0].NoteID != "pg" {
				t.Fatalf("expected the fallback result, got %+v", resp)
			}
		})
	}
}

func TestSearchNeverReturnsNilResults(t *testing.T) {
	fallback := &fakeSearcher{healthy: true, err: errors.New("db down")}
	resp := NewService(nil, fallback, nil).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected an empty slice, got %#v", resp.Results)
	}
	var nilMeili *Meili
	resp = NewService(nilMeili, nil, nil).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil {
		t.Fatal("expected an empty slice without any backend")
	}
}

func TestIndexAndDeleteInBackground(t *testing.T) {
	engine := &fakeEngine{fakeSearcher: fakeSearcher{healthy: true}}
	s := NewService(engine, nil, nil)
	s.IndexNote(NoteRecord{ID: "n1"})
	s.DeleteNotes([]string{"n2", "n3"})
	s.DeleteNotes(nil)
	s.Wait()

	if len(engine.indexed) != 1 || engine.indexed[0].ID != "n1" {
		t.Fatalf("unexpected indexed: %+v", engine.indexed)
	}
	if !reflect.DeepEqual(engine.deleted, []string{"n2", "n3"}) {
		t.Fatalf("unexpected deleted: %v", engine.deleted)
	}
}

func TestRecordFromNote(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	record := RecordFromNote(store.NoteRecord{
		ID:          "n1",
		InterviewID: "int-1",
		CommentID:   "c1",
		AnchorText:  "pricing",
		Content:     "<p>Check <strong>this</strong></p>",
		Author:      "ana",
		CreatedAt:   created,
	})
	if record.Content != "Check this" {
		t.Fatalf("content should be indexed as text, got %q", record.Content)
	}
	if record.CreatedAt != created.Unix() || record.InterviewID != "int-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestHitToResult(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	hit := meili.Hit{
		"id":          raw("n1"),
		"interviewId": raw("int-1"),
		"commentId":   raw("c1"),
		"content":     raw("we discussed pricing"),
		"_formatted":  raw(map[string]any{"content": "we discussed <mark>pricing</mark>", "createdAt": "1"}),
	}
	got := hitToResult(hit)
	want := Result{NoteID: "n1", InterviewID: "int-1", CommentID: "c1", Snippet: "we discussed <mark>pricing</mark>"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSearchRequest(t *testing.T) {
	sr := searchRequest(Query{Text: "x", InterviewID: "int-1", Offset: -5})
	if sr.Limit != 20 || sr.Offset != 0 {
		t.Fatalf("unexpected paging: %d/%d", sr.Limit, sr.Offset)
	}
	if sr.Filter != `interviewId = "int-1"` {
		t.Fatalf("unexpected filter: %v", sr.Filter)
	}
}

func TestFTSWhere(t *testing.T) {
	where, args := ftsWhere(Query{Text: "pricing", InterviewID: "int-1"})
	if where != "n.search_vector @@ plainto_tsquery('english', $1) AND n.interview_id = $2" {
		t.Fatalf("unexpected where: %s", where)
	}
	if !reflect.DeepEqual(args, []any{"pricing", "int-1"}) {
		t.Fatalf("unexpected args: %v", args)
	}
	if limit, offset := pageBounds(Query{Limit: 500, Offset: -1}); limit != 100 || offset != 0 {
		t.Fatalf("unexpected bounds: %d/%d", limit, offset)
	}
}
