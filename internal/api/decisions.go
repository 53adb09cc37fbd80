package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/personabot/internal/storage"
)

// AppDeps holds the dependencies of the management API.
type AppDeps struct {
	Store *storage.Store
	Token string
}

// NewAppHandler returns the bearer-protected decision log routes. It is
// meant to be mounted under /decisions.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Get("/", handleListDecisions(deps))
	r.Get("/stats", handleDecisionStats(deps))
	r.Get("/{id}", handleGetDecision(deps))
	r.Delete("/{id}", handleDeleteDecision(deps))

	return r
}

func handleListDecisions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		records, err := deps.Store.ListDecisions(storage.ListFilter{
			Decision:  strings.ToUpper(strings.TrimSpace(q.Get("decision"))),
			SessionID: q.Get("session"),
			Limit:     parseIntParam(r, "limit", 20, 100),
			Offset:    parseIntParam(r, "offset", 0, 0),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list decisions: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, records)
	}
}

func handleDecisionStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := deps.Store.CountByDecision()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count decisions: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, counts)
	}
}

func handleGetDecision(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		record, err := deps.Store.GetDecision(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "decision not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get decision: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

func handleDeleteDecision(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteDecision(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "decision not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete decision: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// httpError writes the structured error body of the management API.
func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
