// Package admin exposes a small local HTTP surface for inspecting and
// nudging the assistant: status, manual connection retry, and recent
// session events.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/voxpilot/session"
	"github.com/hazyhaar/voxpilot/trace"
)

// StatusSource reports dispatcher state.
type StatusSource interface {
	Info() session.Info
}

// Retrier re-arms the realtime connection after exhaustion.
type Retrier interface {
	Retry(ctx context.Context) error
	LastError() error
}

// EventSource lists recent session events.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]trace.Event, error)
}

// Config carries the admin surface settings.
type Config struct {
	// TokenHash is the bcrypt hash of the bearer token. Empty disables
	// auth; only do that on loopback.
	TokenHash string
	Logger    *slog.Logger
}

// NewRouter builds the admin HTTP handler. events may be nil when no
// trace store is configured.
func NewRouter(cfg Config, status StatusSource, retrier Retrier, events EventSource) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.TokenHash == "" {
		log.Warn("admin: token auth disabled")
	}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireToken(cfg.TokenHash))

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			info := status.Info()
			resp := map[string]any{
				"url":          info.URL,
				"state":        info.State,
				"activated":    info.Activated,
				"recording":    info.Recording,
				"conversation": info.Conversation,
				"analyzed":     info.Analyzed,
			}
			if err := retrier.LastError(); err != nil {
				resp["last_connection_error"] = err.Error()
			}
			writeJSON(w, 200, resp)
		})

		r.Post("/connection/retry", func(w http.ResponseWriter, req *http.Request) {
			if err := retrier.Retry(req.Context()); err != nil {
				writeError(w, 409, err)
				return
			}
			writeJSON(w, 202, map[string]string{"status": "retrying"})
		})

		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			if events == nil {
				writeJSON(w, 200, []trace.Event{})
				return
			}
			limit := queryInt(req, "limit", 50)
			list, err := events.Recent(req.Context(), limit)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if list == nil {
				list = []trace.Event{}
			}
			writeJSON(w, 200, list)
		})
	})

	return r
}

// requireToken checks "Authorization: Bearer <token>" against the
// bcrypt hash. An empty hash lets everything through.
func requireToken(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				writeJSON(w, 401, map[string]string{"error": "missing bearer token"})
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				writeJSON(w, 401, map[string]string{"error": "invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
