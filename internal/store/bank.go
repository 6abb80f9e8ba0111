package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/eduquest/internal/model"
)

// ErrInvalidBank is wrapped when a question bank payload cannot be parsed or
// one of its questions is rejected.
var ErrInvalidBank = errors.New("invalid question bank")

// ImportReport describes the outcome of one bank import.
type ImportReport struct {
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	Imported  int    `json:"imported"`
	Unchanged bool   `json:"unchanged"`
}

// ImportQuestions loads a JSON array of questions stored under name. An
// identical payload imported before is skipped. A changed payload is imported
// again and replaces questions by id; composed tests keep their own copies.
// Every question must pass check before any is written.
func (s *Store) ImportQuestions(name string, data []byte, check func(model.Question) error) (ImportReport, error) {
	sum := sha256.Sum256(data)
	report := ImportReport{Name: name, Hash: hex.EncodeToString(sum[:])}

	stored, err := s.GetImportedFileHash(name)
	if err != nil {
		return report, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == report.Hash {
		report.Unchanged = true
		slog.Info("questions file unchanged, skipping", "path", name)
		return report, nil
	}
	if stored != "" {
		slog.Warn("questions file changed since last import, re-importing", "path", name)
	}

	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return report, fmt.Errorf("%w: parse %s: %w", ErrInvalidBank, name, err)
	}
	if check != nil {
		for i, q := range questions {
			if err := check(q); err != nil {
				return report, fmt.Errorf("%w: question %d (%s) in %s: %w", ErrInvalidBank, i, q.ID, name, err)
			}
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return report, err
	}
	defer tx.Rollback()
	for _, q := range questions {
		if err := insertQuestion(tx, q); err != nil {
			return report, fmt.Errorf("insert question %s from %s: %w", q.ID, name, err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		importKeyPrefix+name, report.Hash,
	); err != nil {
		return report, fmt.Errorf("record import for %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}

	report.Imported = len(questions)
	slog.Info("imported questions", "path", name, "count", report.Imported)
	return report, nil
}
