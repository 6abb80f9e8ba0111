package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/eduquest/internal/handler/views"
	"github.com/pavelanni/eduquest/internal/insight"
	"github.com/pavelanni/eduquest/internal/store"
)

// statusNone is reported for a result whose insight was never requested.
const statusNone insight.Status = "none"

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListResults(r.URL.Query().Get("student"))
	if err != nil {
		writeError(w, fmt.Errorf("list results: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.GetResult(chi.URLParam(r, "resultID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// insightState returns the tracked state of a result, or a none state.
func (h *Handler) insightState(resultID string) insight.State {
	st, ok := h.insights.Get(resultID)
	if !ok {
		return insight.State{ResultID: resultID, Status: statusNone}
	}
	return st
}

func (h *Handler) handleGetInsight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resultID")
	if _, err := h.store.GetResult(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.insightState(id))
}

// handleRequestInsight (re)generates the insight of a result. A newer request
// replaces the previous insight; the response is the pending state.
func (h *Handler) handleRequestInsight(w http.ResponseWriter, r *http.Request) {
	st, err := h.insights.RequestByID(h.store, chi.URLParam(r, "resultID"))
	if errors.Is(err, insight.ErrClosed) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// handleDiscardInsight is called when a result view is closed. Any running
// request for the result is cancelled and its insight forgotten.
func (h *Handler) handleDiscardInsight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "resultID")
	if _, err := h.store.GetResult(id); err != nil {
		writeError(w, err)
		return
	}
	h.insights.Discard(id)
	slog.Debug("discarded insight", "result_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResultPage(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.GetResult(chi.URLParam(r, "resultID"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to load result", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	t, err := h.store.GetTest(res.TestID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("failed to load test", "test_id", res.TestID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultPage(t, res, h.insightState(res.ID)).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
