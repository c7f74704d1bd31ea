// Package cache keeps rendered transcripts in Redis so that repeated views of
// an unchanged interview skip rendering.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/notes"
)

// DefaultTTL bounds how long a rendered transcript is kept.
const DefaultTTL = 24 * time.Hour

// RenderCache stores rendered transcript HTML keyed by interview and a
// fingerprint of the inputs that produced it.
type RenderCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRenderCache connects to redisURL and verifies the connection.
func NewRenderCache(redisURL string, ttl time.Duration) (*RenderCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRenderCacheWithClient(client, ttl), nil
}

// NewRenderCacheWithClient wraps an existing client.
func NewRenderCacheWithClient(client *redis.Client, ttl time.Duration) *RenderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RenderCache{client: client, prefix: "render:", ttl: ttl}
}

func (c *RenderCache) key(interviewID, fingerprint string) string {
	return c.prefix + interviewID + ":" + fingerprint
}

// Get returns the cached markup. A miss is not an error.
func (c *RenderCache) Get(ctx context.Context, interviewID, fingerprint string) (string, bool, error) {
	markup, err := c.client.Get(ctx, c.key(interviewID, fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read render cache: %w", err)
	}
	return markup, true, nil
}

// Put stores markup for the fingerprint.
func (c *RenderCache) Put(ctx context.Context, interviewID, fingerprint, markup string) error {
	if err := c.client.Set(ctx, c.key(interviewID, fingerprint), markup, c.ttl).Err(); err != nil {
		return fmt.Errorf("write render cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached render of an interview.
func (c *RenderCache) Invalidate(ctx context.Context, interviewID string) error {
	iter := c.client.Scan(ctx, 0, c.key(interviewID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan render cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate render cache: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *RenderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RenderCache) Close() error {
	return c.client.Close()
}

// Fingerprint identifies the inputs of a render: the transcript JSON and
// the fields of each note that affect highlighting.
func Fingerprint(transcript []byte, items []notes.Note) string {
	type noteKey struct {
		ID         string `json:"i"`
		CommentID  string `json:"c,omitempty"`
		AnchorText string `json:"a,omitempty"`
		ParentID   string `json:"p,omitempty"`
		CreatedAt  int64  `json:"t"`
	}
	keys := make([]noteKey, 0, len(items))
	for _, n := range notes.SortByCreation(items) {
		keys = append(keys, noteKey{
			ID:         n.ID,
			CommentID:  n.CommentID,
			AnchorText: n.AnchorText,
			ParentID:   n.ParentID,
			CreatedAt:  n.CreatedAt.UnixNano(),
		})
	}
	h := sha256.New()
	h.Write(transcript)
	h.Write([]byte{0})
	_ = json.NewEncoder(h).Encode(keys)
	return hex.EncodeToString(h.Sum(nil))
}
