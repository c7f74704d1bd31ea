package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

func setupTestCache(t *testing.T) (*RenderCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewRenderCache("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRenderCache failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestNewRenderCacheBadURL(t *testing.T) {
	if _, err := NewRenderCache("not a url", 0); err == nil {
		t.Fatal("expected an error for an invalid url")
	}
}

func TestPutGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "int-1", "abc"); err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "int-1", "abc", "<p>hi</p>\n"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	markup, ok, err := c.Get(ctx, "int-1", "abc")
	if err != nil || !ok || markup != "<p>hi</p>\n" {
		t.Fatalf("Get = %q, %v, %v", markup, ok, err)
	}
}

func TestEntriesExpire(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()
	if err := c.Put(ctx, "int-1", "abc", "<p>hi</p>"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "int-1", "abc"); ok {
		t.Fatal("expected the entry to expire")
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()
	for _, fp := range []string{"a", "b"} {
		if err := c.Put(ctx, "int-1", fp, "x"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := c.Put(ctx, "int-2", "a", "y"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := c.Invalidate(ctx, "int-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if s.Exists("render:int-1:a") || s.Exists("render:int-1:b") {
		t.Fatal("int-1 renders should be gone")
	}
	if !s.Exists("render:int-2:a") {
		t.Fatal("other interviews should be untouched")
	}
	if err := c.Invalidate(ctx, "int-3"); err != nil {
		t.Fatalf("Invalidate on an empty prefix failed: %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []notes.Note{
		{ID: "n2", CommentID: "c2", Content: "second", CreatedAt: at.Add(time.Minute)},
		{ID: "n1", CommentID: "c1", Content: "first", CreatedAt: at},
	}
	base := Fingerprint([]byte(`{"type":"doc"}`), items)

	reordered := []notes.Note{items[1], items[0]}
	if got := Fingerprint([]byte(`{"type":"doc"}`), reordered); got != base {
		t.Fatal("note order should not change the fingerprint")
	}

	edited := append([]notes.Note(nil), items...)
	edited[0].Content = "changed body"
	if got := Fingerprint([]byte(`{"type":"doc"}`), edited); got != base {
		t.Fatal("note content does not affect the render")
	}

	moved := append([]notes.Note(nil), items...)
	moved[0].CommentID = "c9"
	if got := Fingerprint([]byte(`{"type":"doc"}`), moved); got == base {
		t.Fatal("comment ids affect the render")
	}
	if got := Fingerprint([]byte(`{"type":"doc","content":[]}`), items); got == base {
		t.Fatal("transcript changes affect the render")
	}
}
