package model

import (
	"context"
	"maps"
	"time"
)

// UserRole represents a user's access level on the dashboard.
type UserRole string

const (
	// UserRoleAdmin is an administrator.
	UserRoleAdmin UserRole = "admin"
	// UserRolePrincipal is a school principal.
	UserRolePrincipal UserRole = "principal"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
)

// User represents a dashboard user.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
	Email string   `json:"email"`
}

type roleCtxKey struct{}

// ContextWithRole stores the acting role in the request context.
func ContextWithRole(ctx context.Context, role UserRole) context.Context {
	return context.WithValue(ctx, roleCtxKey{}, role)
}

// RoleFromContext retrieves the acting role from context, defaulting to student.
func RoleFromContext(ctx context.Context) UserRole {
	r, ok := ctx.Value(roleCtxKey{}).(UserRole)
	if !ok || r == "" {
		return UserRoleStudent
	}
	return r
}

// Subject is the academic subject a question belongs to.
type Subject string

const (
	SubjectBiology     Subject = "Biology"
	SubjectPhysics     Subject = "Physics"
	SubjectChemistry   Subject = "Chemistry"
	SubjectMathematics Subject = "Mathematics"
	SubjectEnglish     Subject = "English"
	SubjectGeneral     Subject = "General"
)

// Subjects lists every known subject in display order.
var Subjects = []Subject{
	SubjectBiology,
	SubjectPhysics,
	SubjectChemistry,
	SubjectMathematics,
	SubjectEnglish,
	SubjectGeneral,
}

// Valid reports whether s is one of the known subjects.
func (s Subject) Valid() bool {
	for _, known := range Subjects {
		if s == known {
			return true
		}
	}
	return false
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// TestType selects the scoring rule of a test.
type TestType string

const (
	// TestTypeNEET awards +4 per correct answer and -1 per wrong attempt.
	TestTypeNEET TestType = "NEET"
	// TestTypeSchool awards +1 per correct answer.
	TestTypeSchool TestType = "SCHOOL"
	// TestTypeBoards awards +1 per correct answer.
	TestTypeBoards TestType = "BOARDS"
)

// Valid reports whether t is a known test type.
func (t TestType) Valid() bool {
	switch t {
	case TestTypeNEET, TestTypeSchool, TestTypeBoards:
		return true
	}
	return false
}

// PerQuestionMax returns the marks a single correct answer is worth.
func (t TestType) PerQuestionMax() int {
	if t == TestTypeNEET {
		return 4
	}
	return 1
}

// NegativeMarking reports whether wrong attempts subtract marks.
func (t TestType) NegativeMarking() bool {
	return t == TestTypeNEET
}

// Question is a single-best-answer multiple choice question from the bank.
type Question struct {
	ID                 string     `json:"id" validate:"required"`
	Subject            Subject    `json:"subject" validate:"subject"`
	Topic              string     `json:"topic"`
	Difficulty         Difficulty `json:"difficulty" validate:"difficulty"`
	Prompt             string     `json:"question" validate:"required"`
	Options            []string   `json:"options" validate:"min=2"`
	CorrectAnswerIndex int        `json:"correctAnswer" validate:"gte=0"`
	Explanation        string     `json:"explanation"`
}

// Test is a composed assessment. TotalMarks is derived at composition time.
type Test struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Type            TestType   `json:"type"`
	Questions       []Question `json:"questions"`
	DurationMinutes int        `json:"durationMinutes"`
	TotalMarks      int        `json:"totalMarks"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Subjects returns the distinct subjects of the test's questions in first-seen order.
func (t Test) Subjects() []Subject {
	seen := make(map[Subject]bool)
	var out []Subject
	for _, q := range t.Questions {
		if !seen[q.Subject] {
			seen[q.Subject] = true
			out = append(out, q.Subject)
		}
	}
	return out
}

// TestResult is the immutable outcome of one submitted exam session.
type TestResult struct {
	ID               string          `json:"id"`
	TestID           string          `json:"testId"`
	StudentID        string          `json:"studentId"`
	Score            int             `json:"score"`
	MaxScore         int             `json:"maxScore"`
	SubjectBreakdown map[Subject]int `json:"subjectBreakdown"`
	Timestamp        time.Time       `json:"timestamp"`
	Answers          map[string]int  `json:"answers"`
}

// Percentage returns Score/MaxScore*100. The second return is false when
// MaxScore is zero and the percentage is undefined.
func (r TestResult) Percentage() (float64, bool) {
	if r.MaxScore == 0 {
		return 0, false
	}
	return float64(r.Score) / float64(r.MaxScore) * 100, true
}

// Clone returns a deep copy of r.
func (r TestResult) Clone() TestResult {
	r.SubjectBreakdown = maps.Clone(r.SubjectBreakdown)
	r.Answers = maps.Clone(r.Answers)
	return r
}

// StudyTask is a single day of a generated study schedule.
type StudyTask struct {
	Day  string `json:"day"`
	Task string `json:"task"`
}

// AIInsight is a generated improvement plan. Its contents are passed through
// as received from the generator.
type AIInsight struct {
	OverallAssessment string      `json:"overallAssessment"`
	FocusTopics       []string    `json:"focusTopics"`
	StudySchedule     []StudyTask `json:"studySchedule"`
	Recommendations   []string    `json:"recommendations"`
}

// ExamConfig holds runtime parameters set via CLI flags.
type ExamConfig struct {
	Lang           string
	AutoInsight    bool          // request an insight for every new result
	InsightTimeout time.Duration // 0 means no timeout
	TickInterval   time.Duration // countdown resolution, one second in production
}
