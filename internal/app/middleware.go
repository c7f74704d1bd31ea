package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/auth"
	"github.com/Chasonnnn/GenAI-assited-CRM-Tool-sub003/internal/rbac"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

type actorKey struct{}

var errMissingIdentity = errors.New("missing " + HeaderUserID + " header")

// RequestLogger logs one line per request.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(writer, r)
			log.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", writer.status,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, "+HeaderUserID+", "+HeaderRole)
			header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			header.Set("Cache-Control", "no-store")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type tokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// requireActor resolves the caller. With a token verifier configured only a
// valid bearer token is accepted; otherwise the identity headers set by the
// gateway are trusted. Unknown roles become viewers.
func (s *HTTPServer) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.authenticate(r)
		if err != nil {
			s.logger.Debug("unauthenticated request", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func (s *HTTPServer) authenticate(r *http.Request) (Actor, error) {
	if s.tokens != nil {
		raw, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			return Actor{}, err
		}
		claims, err := s.tokens.Parse(raw)
		if err != nil {
			return Actor{}, err
		}
		return Actor{UserID: claims.Subject, Role: rbac.Normalize(claims.Role)}, nil
	}
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Actor{}, errMissingIdentity
	}
	return Actor{UserID: userID, Role: rbac.Normalize(r.Header.Get(HeaderRole))}, nil
}

func actorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
