package model

import "time"

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	NumResults  int            `json:"num_results"`
	Results     []ResultExport `json:"results"`
}

// ResultExport holds one submitted result joined with its test for export.
type ResultExport struct {
	ResultID         string          `json:"result_id"`
	TestID           string          `json:"test_id"`
	TestTitle        string          `json:"test_title"`
	TestType         TestType        `json:"test_type"`
	StudentID        string          `json:"student_id"`
	Score            int             `json:"score"`
	MaxScore         int             `json:"max_score"`
	Percentage       *float64        `json:"percentage,omitempty"`
	SubjectBreakdown map[Subject]int `json:"subject_breakdown"`
	Answered         int             `json:"answered"`
	SubmittedAt      time.Time       `json:"submitted_at"`
}

// DashboardStats is the aggregate shown on a role's dashboard.
type DashboardStats struct {
	Role            UserRole `json:"role"`
	TestsCount      int      `json:"testsCount"`
	ResultsCount    int      `json:"resultsCount"`
	TestsTaken      int      `json:"testsTaken,omitempty"`
	AveragePercent  *float64 `json:"averagePercent,omitempty"`
	QuestionsInBank int      `json:"questionsInBank"`
}
