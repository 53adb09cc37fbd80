package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/personabot/internal/judge"
	"github.com/kalambet/personabot/internal/pipeline"
	"github.com/kalambet/personabot/internal/session"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SessionHeader optionally tags a chat request with a conversation id for
// the decision log.
const SessionHeader = "X-Session-ID"

// ChatRequest is the body of POST /api/chat. History is kept raw so that
// malformed items can be dropped one by one instead of failing the request.
type ChatRequest struct {
	Message string          `json:"message"`
	First   bool            `json:"first"`
	History json.RawMessage `json:"history"`
}

// ChatResponse is the success body of POST /api/chat.
type ChatResponse struct {
	Reply    string         `json:"reply"`
	Decision judge.Decision `json:"decision"`
}

// ChatDeps holds the dependencies of the public chat surface.
type ChatDeps struct {
	Governor       *pipeline.Governor
	AllowedOrigins []string
}

// NewChatHandler returns the public routes: the chat endpoint and health.
func NewChatHandler(deps ChatDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(CORS(deps.AllowedOrigins))
		r.Post("/api/chat", handleChat(deps))
		r.Options("/api/chat", handlePreflight)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func handleChat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			chatError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		ctx := pipeline.WithSession(r.Context(), r.Header.Get(SessionHeader))

		if req.First {
			res := deps.Governor.Welcome()
			deps.Governor.RecordWelcome(ctx, res)
			writeJSON(w, http.StatusOK, ChatResponse{Reply: res.Reply, Decision: res.Decision})
			return
		}

		message := strings.TrimSpace(req.Message)
		if message == "" {
			chatError(w, http.StatusBadRequest, "message required")
			return
		}

		res, err := deps.Governor.Respond(ctx, message, decodeHistory(req.History))
		if errors.Is(err, pipeline.ErrUpstream) {
			chatError(w, http.StatusBadGateway, "the assistant is unavailable right now, please try again")
			return
		}
		if err != nil {
			slog.Error("chat request failed", "error", err)
			chatError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{Reply: res.Reply, Decision: res.Decision})
	}
}

// decodeHistory accepts anything in the history field. Anything but an
// array counts as no history.
func decodeHistory(raw json.RawMessage) []session.Turn {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return session.Sanitize(items)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// chatError writes the flat {"error": "..."} body used by the chat endpoint.
func chatError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
