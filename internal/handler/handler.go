package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/eduquest/internal/events"
	"github.com/pavelanni/eduquest/internal/exam"
	appI18n "github.com/pavelanni/eduquest/internal/i18n"
	"github.com/pavelanni/eduquest/internal/insight"
	"github.com/pavelanni/eduquest/internal/model"
	"github.com/pavelanni/eduquest/internal/store"
)

// maxBodyBytes bounds JSON request bodies; bank uploads have their own limit.
const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	insights    *insight.Tracker
	events      events.Publisher
	sessions    *Registry
	config      model.ExamConfig
	uploadLimit int64
}

// New creates a new Handler. Call Close to stop the countdowns of live sessions.
func New(s *store.Store, tracker *insight.Tracker, pub events.Publisher, cfg model.ExamConfig) (*Handler, error) {
	if s == nil {
		return nil, errors.New("handler: store is required")
	}
	if tracker == nil {
		return nil, errors.New("handler: insight tracker is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Handler{
		store:       s,
		insights:    tracker,
		events:      pub,
		sessions:    NewRegistry(cfg.TickInterval),
		config:      cfg,
		uploadLimit: maxUploadBytes,
	}, nil
}

// Close stops every running countdown. Sessions still in progress stay in progress.
func (h *Handler) Close() {
	h.sessions.Close()
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(roleMiddleware)

		r.Get("/api/me/nav", h.handleNav)
		r.Get("/api/dashboard", h.handleDashboard)

		r.Get("/api/questions", h.handleListQuestions)
		r.Get("/api/questions/topics", h.handleListTopics)
		r.Post("/api/questions/import", h.handleImportQuestions)
		r.Get("/api/users", h.handleListUsers)

		r.Get("/api/tests", h.handleListTests)
		r.Post("/api/tests", h.handleComposeTest)
		r.Get("/api/tests/{testID}", h.handleGetTest)
		r.Post("/api/tests/{testID}/sessions", h.handleStartSession)

		r.Get("/api/sessions/{sessionID}", h.handleSessionView)
		r.Post("/api/sessions/{sessionID}/answer", h.handleAnswer)
		r.Post("/api/sessions/{sessionID}/navigate", h.handleNavigate)
		r.Post("/api/sessions/{sessionID}/submit", h.handleSubmit)

		r.Get("/api/results", h.handleListResults)
		r.Get("/api/results/{resultID}", h.handleGetResult)
		r.Get("/api/results/{resultID}/insight", h.handleGetInsight)
		r.Post("/api/results/{resultID}/insight", h.handleRequestInsight)
		r.Delete("/api/results/{resultID}/insight", h.handleDiscardInsight)

		r.Get("/results/{resultID}", h.handleResultPage)
	})
}

func (h *Handler) handleNav(w http.ResponseWriter, r *http.Request) {
	role := model.RoleFromContext(r.Context())
	caps, ok := model.CapabilitiesFor(role)
	if !ok {
		writeError(w, &exam.ValidationError{Field: "role", Message: "is not a known role", Value: role})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": caps,
		"labels":       appI18n.NavLabels(r.Context(), caps),
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	role := model.RoleFromContext(r.Context())
	stats, err := h.store.DashboardStats(role, r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, fmt.Errorf("dashboard stats: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type errorResponse struct {
	Error   string                 `json:"error"`
	Details []exam.ValidationError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Anything unknown is
// logged and reported as a 500 without its message.
func writeError(w http.ResponseWriter, err error) {
	var (
		one  *exam.ValidationError
		many exam.ValidationErrors
		st   *exam.StateError
		big  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &big):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: fmt.Sprintf("request body exceeds %d bytes", big.Limit)})
	case errors.As(err, &one):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Details: []exam.ValidationError{*one}})
	case errors.As(err, &many):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Details: many})
	case errors.Is(err, exam.ErrValidation), errors.Is(err, store.ErrInvalidBank):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &st):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &exam.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
