package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/froglabs/folio/internal/completion"
	"github.com/froglabs/folio/internal/search"
	"github.com/froglabs/folio/internal/session"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Searcher abstracts semantic retrieval for the API layer.
type Searcher interface {
	Search(ctx context.Context, query string, mode search.Mode) search.Result
}

// Completer abstracts reply generation for the API layer.
type Completer interface {
	Complete(ctx context.Context, tag completion.Tag, input string, history []session.Turn, contextText string) (string, error)
}

// Deps holds dependencies for the HTTP handler.
type Deps struct {
	Search    Searcher
	Completer Completer
	Sessions  session.Store
	PublicDir string // optional; when set, unmatched paths serve static files
}

// NewHandler returns the site's http.Handler: the chat API plus static
// file serving for the portfolio pages.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/api/search", handleSearch(deps))
	r.Post("/api/complete", handleComplete(deps))

	if deps.PublicDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(deps.PublicDir)))
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		query := strings.TrimSpace(req.Query)
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		mode, err := search.ParseMode(req.Mode)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		result := deps.Search.Search(r.Context(), query, mode)
		if result.Sources == nil {
			result.Sources = []search.Match{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

type completeRequest struct {
	Input     string         `json:"input"`
	History   []session.Turn `json:"history"`
	SessionID string         `json:"sessionId"`
	Provider  string         `json:"provider"`
}

type completeResponse struct {
	Status    string   `json:"status"`
	Text      string   `json:"text"`
	SessionID string   `json:"sessionId"`
	Sources   []string `json:"sources"`
}

func handleComplete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req completeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		input := strings.TrimSpace(req.Input)
		if input == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "input is required")
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		history := deps.Sessions.GetOrCreate(sessionID)

		// A client-supplied history seeds sessions the store has no turns
		// for; once the store holds turns it stays canonical.
		if len(history) == 0 && len(req.History) > 0 {
			for _, turn := range req.History {
				deps.Sessions.Append(sessionID, turn.Role, turn.Text)
			}
			history = deps.Sessions.GetOrCreate(sessionID)
		}

		result := deps.Search.Search(r.Context(), input, search.ModeStandard)

		reply, err := deps.Completer.Complete(r.Context(), completion.Tag(req.Provider), input, history, result.ContextText)
		if err != nil {
			writeCompletionError(w, err)
			return
		}

		// History is recorded only after a successful completion so a failed
		// turn can be retried without duplicate entries.
		deps.Sessions.Append(sessionID, session.RoleUser, input)
		deps.Sessions.Append(sessionID, session.RoleAssistant, reply)

		sources := result.SourceLabels()
		if sources == nil {
			sources = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completeResponse{
			Status:    "complete",
			Text:      reply,
			SessionID: sessionID,
			Sources:   sources,
		})
	}
}

func writeCompletionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, completion.ErrUnknownProvider):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, completion.ErrRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limited", "the provider is rate limiting requests, try again shortly")
	case errors.Is(err, completion.ErrProviderUnavailable):
		httpError(w, http.StatusServiceUnavailable, "provider_unavailable", "the completion provider is unavailable")
	case errors.Is(err, completion.ErrEmptyCompletion):
		httpError(w, http.StatusBadGateway, "empty_completion", "the provider returned no usable text")
	default:
		httpError(w, http.StatusBadGateway, "api_error", "completion failed: %v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
