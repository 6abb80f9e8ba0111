package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/eduquest/internal/model"
)

// State is the lifecycle state of an exam session.
type State string

const (
	StateInProgress State = "in_progress"
	StateSubmitted  State = "submitted"
)

// SubmitReason records what finalized a session.
type SubmitReason string

const (
	SubmitManual  SubmitReason = "manual"
	SubmitTimeout SubmitReason = "timeout"
)

// Session is one student's live run of a test. All transitions are serialized
// by the session's lock; a session produces at most one TestResult.
type Session struct {
	mu        sync.Mutex
	id        string
	test      model.Test
	studentID string
	startedAt time.Time

	state     State
	current   int
	answers   map[string]int
	remaining int
	result    *model.TestResult
	reason    SubmitReason
	done      chan struct{}

	onSubmit func(model.TestResult)
	now      func() time.Time
	newID    func() string
}

// Option configures a Session.
type Option func(*Session)

// WithOnSubmit registers fn to receive the result. It is called exactly once,
// outside the session lock, by whichever transition submits the session.
func WithOnSubmit(fn func(model.TestResult)) Option {
	return func(s *Session) { s.onSubmit = fn }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDFunc overrides the generator of session and result ids.
func WithIDFunc(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// NewSession starts a session in the in-progress state. A test without
// questions or without a positive duration cannot be started.
func NewSession(test model.Test, studentID string, opts ...Option) (*Session, error) {
	if studentID == "" {
		return nil, newValidationError("studentId", "is required", studentID)
	}
	if len(test.Questions) == 0 {
		return nil, newValidationError("questions", "must contain at least 1 items", 0)
	}
	if test.DurationMinutes <= 0 {
		return nil, newValidationError("durationMinutes", "must be greater than 0", test.DurationMinutes)
	}
	if test.DurationMinutes > MaxDurationMinutes {
		return nil, newValidationError("durationMinutes", fmt.Sprintf("must be at most %d", MaxDurationMinutes), test.DurationMinutes)
	}

	s := &Session{
		test:      test,
		studentID: studentID,
		state:     StateInProgress,
		answers:   make(map[string]int),
		remaining: test.DurationMinutes * 60,
		done:      make(chan struct{}),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.newID()
	s.startedAt = s.now().UTC()

	slog.Debug("session started", "session_id", s.id, "test_id", test.ID, "student_id", studentID,
		"remaining_seconds", s.remaining)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Test returns the test being taken.
func (s *Session) Test() model.Test { return s.test }

// StudentID returns the student taking the test.
func (s *Session) StudentID() string { return s.studentID }

// Done is closed when the session is submitted.
func (s *Session) Done() <-chan struct{} { return s.done }

// SelectAnswer records optionIndex for the question. A later selection for the
// same question replaces the earlier one; the current position is unchanged.
func (s *Session) SelectAnswer(questionID string, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return &StateError{Op: "select answer", State: s.state}
	}
	q, ok := s.question(questionID)
	if !ok {
		return newValidationError("questionId", "is not part of this test", questionID)
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return newValidationError("optionIndex", fmt.Sprintf("must be between 0 and %d", len(q.Options)-1), optionIndex)
	}
	s.answers[questionID] = optionIndex
	return nil
}

// Navigate moves to the question at target.
func (s *Session) Navigate(target int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigateLocked(target)
}

// Next moves one question forward.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigateLocked(s.current + 1)
}

// Previous moves one question back.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigateLocked(s.current - 1)
}

func (s *Session) navigateLocked(target int) error {
	if s.state != StateInProgress {
		return &StateError{Op: "navigate", State: s.state}
	}
	if target < 0 || target >= len(s.test.Questions) {
		return newValidationError("targetIndex", fmt.Sprintf("must be between 0 and %d", len(s.test.Questions)-1), target)
	}
	s.current = target
	return nil
}

// Tick consumes one second of the countdown. When the countdown reaches zero
// the session is submitted and the result is returned.
func (s *Session) Tick() (*model.TestResult, error) {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return nil, &StateError{Op: "tick", State: s.state}
	}
	s.remaining--
	if s.remaining > 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.remaining = 0
	res := s.submitLocked(SubmitTimeout)
	s.mu.Unlock()

	s.notify(res)
	return &res, nil
}

// Submit finalizes the session and scores it. A second call returns a StateError.
func (s *Session) Submit() (model.TestResult, error) {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return model.TestResult{}, &StateError{Op: "submit", State: s.state}
	}
	res := s.submitLocked(SubmitManual)
	s.mu.Unlock()

	s.notify(res)
	return res, nil
}

func (s *Session) submitLocked(reason SubmitReason) model.TestResult {
	answers := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	score, breakdown := Score(s.test, answers)

	res := model.TestResult{
		ID:               s.newID(),
		TestID:           s.test.ID,
		StudentID:        s.studentID,
		Score:            score,
		MaxScore:         s.test.TotalMarks,
		SubjectBreakdown: breakdown,
		Timestamp:        s.now().UTC(),
		Answers:          answers,
	}
	s.state = StateSubmitted
	s.reason = reason
	stored := res.Clone()
	s.result = &stored
	close(s.done)

	slog.Info("session submitted", "session_id", s.id, "result_id", res.ID, "test_id", res.TestID,
		"student_id", res.StudentID, "reason", reason, "score", res.Score, "max_score", res.MaxScore)
	return res
}

func (s *Session) notify(res model.TestResult) {
	if s.onSubmit != nil {
		s.onSubmit(res)
	}
}

// Result returns the submitted result, if any.
func (s *Session) Result() (model.TestResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.TestResult{}, false
	}
	return s.result.Clone(), true
}

// Run delivers ticks to the session until it is submitted or ctx is done.
func (s *Session) Run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticks:
			if _, err := s.Tick(); err != nil {
				if errors.Is(err, ErrSessionSubmitted) {
					return
				}
				slog.Warn("session tick failed", "session_id", s.id, "error", err)
			}
		}
	}
}

// StartCountdown ticks the session every interval in a new goroutine. The
// ticker is stopped as soon as the session is submitted or ctx is cancelled.
func (s *Session) StartCountdown(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.Run(ctx, ticker.C)
	}()
}

func (s *Session) question(id string) (model.Question, bool) {
	for _, q := range s.test.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// NavigatorCell describes one position of the question navigator.
type NavigatorCell struct {
	Index    int  `json:"index"`
	Answered bool `json:"answered"`
	Current  bool `json:"current"`
}

// QuestionView is a question as shown to the student, without its answer key.
type QuestionView struct {
	ID       string        `json:"id"`
	Subject  model.Subject `json:"subject"`
	Topic    string        `json:"topic"`
	Prompt   string        `json:"question"`
	Options  []string      `json:"options"`
	Selected *int          `json:"selected,omitempty"`
}

// View is a consistent snapshot of a session for display.
type View struct {
	SessionID        string            `json:"sessionId"`
	TestID           string            `json:"testId"`
	TestTitle        string            `json:"testTitle"`
	TestType         model.TestType    `json:"testType"`
	StudentID        string            `json:"studentId"`
	State            State             `json:"state"`
	SubmitReason     SubmitReason      `json:"submitReason,omitempty"`
	CurrentIndex     int               `json:"currentIndex"`
	Current          QuestionView      `json:"current"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Clock            string            `json:"clock"`
	Navigator        []NavigatorCell   `json:"navigator"`
	AnsweredCount    int               `json:"answeredCount"`
	IsLast           bool              `json:"isLast"`
	Result           *model.TestResult `json:"result,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	nav := make([]NavigatorCell, len(s.test.Questions))
	for i, q := range s.test.Questions {
		_, answered := s.answers[q.ID]
		nav[i] = NavigatorCell{Index: i, Answered: answered, Current: i == s.current}
	}

	cur := s.test.Questions[s.current]
	qv := QuestionView{
		ID:      cur.ID,
		Subject: cur.Subject,
		Topic:   cur.Topic,
		Prompt:  cur.Prompt,
		Options: append([]string(nil), cur.Options...),
	}
	if sel, ok := s.answers[cur.ID]; ok {
		qv.Selected = &sel
	}

	v := View{
		SessionID:        s.id,
		TestID:           s.test.ID,
		TestTitle:        s.test.Title,
		TestType:         s.test.Type,
		StudentID:        s.studentID,
		State:            s.state,
		SubmitReason:     s.reason,
		CurrentIndex:     s.current,
		Current:          qv,
		RemainingSeconds: s.remaining,
		Clock:            FormatClock(s.remaining),
		Navigator:        nav,
		AnsweredCount:    len(s.answers),
		IsLast:           s.current == len(s.test.Questions)-1,
		StartedAt:        s.startedAt,
	}
	if s.result != nil {
		res := s.result.Clone()
		v.Result = &res
	}
	return v
}

// FormatClock renders seconds as mm:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
