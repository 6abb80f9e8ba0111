package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/eduquest/internal/exam"
	"github.com/pavelanni/eduquest/internal/model"
	"github.com/pavelanni/eduquest/internal/store"
)

// maxUploadBytes bounds question bank uploads.
const maxUploadBytes = 10 << 20

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.QuestionFilter{
		Subject:    model.Subject(q.Get("subject")),
		Difficulty: model.Difficulty(q.Get("difficulty")),
		Topic:      q.Get("topic"),
	}
	if f.Subject != "" && !f.Subject.Valid() {
		writeError(w, &exam.ValidationError{Field: "subject", Message: "is not a known subject", Value: f.Subject})
		return
	}
	if f.Difficulty != "" && !f.Difficulty.Valid() {
		writeError(w, &exam.ValidationError{Field: "difficulty", Message: "is not a known difficulty", Value: f.Difficulty})
		return
	}

	questions, err := h.store.ListQuestionsFiltered(f)
	if err != nil {
		writeError(w, fmt.Errorf("list questions: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.Topics()
	if err != nil {
		writeError(w, fmt.Errorf("list topics: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

// handleImportQuestions accepts a bank either as the questions_file field of a
// multipart form or as a raw JSON body named by the name query parameter.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	var (
		name string
		data []byte
		err  error
	)
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.uploadLimit); err != nil {
			var big *http.MaxBytesError
			if errors.As(err, &big) {
				writeError(w, err)
				return
			}
			writeError(w, &exam.ValidationError{Field: "questions_file", Message: "malformed multipart form"})
			return
		}
		file, header, err := r.FormFile("questions_file")
		if err != nil {
			writeError(w, &exam.ValidationError{Field: "questions_file", Message: "no file uploaded"})
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, fmt.Errorf("read upload: %w", err))
			return
		}
	} else {
		name = r.URL.Query().Get("name")
		if name == "" {
			writeError(w, &exam.ValidationError{Field: "name", Message: "is required"})
			return
		}
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeError(w, fmt.Errorf("read body: %w", err))
			return
		}
	}

	report, err := h.store.ImportQuestions(name, data, exam.ValidateQuestion)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("uploaded questions", "filename", name, "count", report.Imported, "unchanged", report.Unchanged)
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := model.UserRole(r.URL.Query().Get("filter"))
	if role != "" {
		if _, ok := model.CapabilitiesFor(role); !ok {
			writeError(w, &exam.ValidationError{Field: "filter", Message: "is not a known role", Value: role})
			return
		}
	}
	users, err := h.store.ListUsers(role)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
