package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/eduquest/internal/events"
	"github.com/pavelanni/eduquest/internal/exam"
	"github.com/pavelanni/eduquest/internal/model"
	"github.com/pavelanni/eduquest/internal/store"
)

type composeRequest struct {
	Title           string         `json:"title"`
	Type            model.TestType `json:"type"`
	DurationMinutes int            `json:"durationMinutes"`
	QuestionIDs     []string       `json:"questionIds"`
}

type startSessionRequest struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name,omitempty"`
}

type answerRequest struct {
	QuestionID  string `json:"questionId"`
	OptionIndex *int   `json:"optionIndex"`
}

// navigateRequest moves to TargetIndex, or one step when Direction is
// "next" or "previous".
type navigateRequest struct {
	TargetIndex *int   `json:"targetIndex,omitempty"`
	Direction   string `json:"direction,omitempty"`
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListTests()
	if err != nil {
		writeError(w, fmt.Errorf("list tests: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.GetTest(chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleComposeTest(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	questions, err := h.store.GetQuestions(req.QuestionIDs)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, &exam.ValidationError{Field: "questionIds", Message: err.Error()})
		return
	}
	if err != nil {
		writeError(w, fmt.Errorf("load questions: %w", err))
		return
	}

	t, err := exam.Compose(req.Title, req.Type, req.DurationMinutes, questions)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.SaveTest(t); err != nil {
		writeError(w, err)
		return
	}
	if h.events != nil {
		ev := events.TestComposedEvent{
			TestID:     t.ID,
			Title:      t.Title,
			TestType:   string(t.Type),
			Questions:  len(t.Questions),
			TotalMarks: t.TotalMarks,
		}
		if err := h.events.PublishTestComposed(r.Context(), ev); err != nil {
			slog.Warn("failed to publish test composed", "test_id", t.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.store.GetTest(chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, err)
		return
	}

	s, err := h.sessions.Start(t, req.StudentID, h.recordResult)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.store.EnsureUser(model.User{ID: req.StudentID, Name: req.Name, Role: model.UserRoleStudent}); err != nil {
		slog.Warn("failed to record student", "student_id", req.StudentID, "error", err)
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// recordResult appends a finalized result and announces it. It runs once per
// session, on whichever goroutine submitted it.
func (h *Handler) recordResult(s *exam.Session, res model.TestResult) {
	if err := h.store.AppendResult(res); err != nil {
		slog.Error("failed to store result", "session_id", s.ID(), "result_id", res.ID, "error", err)
		return
	}
	if h.events == nil {
		return
	}
	ev := events.ResultSubmittedEvent{
		ResultID:    res.ID,
		TestID:      res.TestID,
		StudentID:   res.StudentID,
		Score:       res.Score,
		MaxScore:    res.MaxScore,
		Reason:      string(s.Snapshot().SubmitReason),
		SubmittedAt: res.Timestamp,
	}
	if err := h.events.PublishResultSubmitted(context.Background(), ev); err != nil {
		slog.Warn("failed to publish result submitted", "result_id", res.ID, "error", err)
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*exam.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) handleSessionView(w http.ResponseWriter, r *http.Request) {
	if fs, ok := h.sessions.Finished(chi.URLParam(r, "sessionID")); ok {
		writeJSON(w, http.StatusOK, fs)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.OptionIndex == nil {
		writeError(w, &exam.ValidationError{Field: "optionIndex", Message: "is required"})
		return
	}
	if err := s.SelectAnswer(req.QuestionID, *req.OptionIndex); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var err error
	switch {
	case req.TargetIndex != nil:
		err = s.Navigate(*req.TargetIndex)
	case req.Direction == "next":
		err = s.Next()
	case req.Direction == "previous":
		err = s.Previous()
	default:
		err = &exam.ValidationError{Field: "direction", Message: "must be next or previous when targetIndex is absent", Value: req.Direction}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Submit()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
