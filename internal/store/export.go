package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/eduquest/internal/model"
)

// ExportResults joins results with their tests for export. An empty studentID
// exports every result.
func (s *Store) ExportResults(studentID string) (model.ResultsExport, error) {
	results, err := s.ListResults(studentID)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list results: %w", err)
	}

	// Several results usually share a test.
	tests := make(map[string]model.Test)

	out := model.ResultsExport{
		GeneratedAt: time.Now().UTC(),
		NumResults:  len(results),
		Results:     make([]model.ResultExport, 0, len(results)),
	}
	for _, r := range results {
		t, ok := tests[r.TestID]
		if !ok {
			t, err = s.GetTest(r.TestID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return model.ResultsExport{}, fmt.Errorf("get test %s: %w", r.TestID, err)
			}
			tests[r.TestID] = t
		}

		re := model.ResultExport{
			ResultID:         r.ID,
			TestID:           r.TestID,
			TestTitle:        t.Title,
			TestType:         t.Type,
			StudentID:        r.StudentID,
			Score:            r.Score,
			MaxScore:         r.MaxScore,
			SubjectBreakdown: r.SubjectBreakdown,
			Answered:         len(r.Answers),
			SubmittedAt:      r.Timestamp,
		}
		if pct, ok := r.Percentage(); ok {
			re.Percentage = &pct
		}
		out.Results = append(out.Results, re)
	}
	return out, nil
}

// DashboardStats aggregates the counters shown on a role's dashboard. Students
// see their own results; every other role sees all of them. Results with a zero
// maximum are left out of the average.
func (s *Store) DashboardStats(role model.UserRole, userID string) (model.DashboardStats, error) {
	stats := model.DashboardStats{Role: role}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tests`).Scan(&stats.TestsCount); err != nil {
		return stats, err
	}
	var err error
	if stats.QuestionsInBank, err = s.QuestionCount(); err != nil {
		return stats, err
	}

	var results []model.TestResult
	switch {
	case role != model.UserRoleStudent:
		results, err = s.ListResults("")
	case userID != "":
		results, err = s.ListResults(userID)
	}
	if err != nil {
		return stats, err
	}
	stats.ResultsCount = len(results)

	taken := make(map[string]bool)
	var sum float64
	var n int
	for _, r := range results {
		taken[r.TestID] = true
		if pct, ok := r.Percentage(); ok {
			sum += pct
			n++
		}
	}
	if role == model.UserRoleStudent {
		stats.TestsTaken = len(taken)
	}
	if n > 0 {
		avg := sum / float64(n)
		stats.AveragePercent = &avg
	}
	return stats, nil
}
