package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of an event.
type EventType string

const (
	EventTestComposed    EventType = "test.composed"
	EventResultSubmitted EventType = "result.submitted"
)

const (
	eventSource  = "eduquest"
	eventVersion = "1.0"
)

// Event is the envelope every published message carries.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Data      json.RawMessage `json:"data"`
}

// ResultSubmittedEvent is published once per finalized exam session.
type ResultSubmittedEvent struct {
	ResultID    string    `json:"result_id"`
	TestID      string    `json:"test_id"`
	StudentID   string    `json:"student_id"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	Reason      string    `json:"reason"` // manual or timeout
	SubmittedAt time.Time `json:"submitted_at"`
}

// TestComposedEvent is published when a test is saved.
type TestComposedEvent struct {
	TestID     string `json:"test_id"`
	Title      string `json:"title"`
	TestType   string `json:"test_type"`
	Questions  int    `json:"questions"`
	TotalMarks int    `json:"total_marks"`
}
