package exam

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/eduquest/internal/model"
)

// MaxDurationMinutes is the longest test that can be composed or started.
const MaxDurationMinutes = 24 * 60

// ComposeInput is everything a caller may supply when building a test.
// TotalMarks is deliberately absent: it is always derived.
type ComposeInput struct {
	Title           string           `json:"title" validate:"required"`
	Type            model.TestType   `json:"type" validate:"test_type"`
	DurationMinutes int              `json:"durationMinutes" validate:"gt=0,lte=1440"`
	Questions       []model.Question `json:"questions" validate:"min=1,dive"`
}

// Composer builds Test values.
type Composer struct {
	now   func() time.Time
	newID func() string
}

// NewComposer returns a Composer using wall-clock time and random UUIDs.
func NewComposer() *Composer {
	return &Composer{now: time.Now, newID: uuid.NewString}
}

// Compose validates the input and returns a new immutable Test. Questions are
// copied in order; repeated ids keep their first occurrence.
func (c *Composer) Compose(in ComposeInput) (model.Test, error) {
	in.Title = strings.TrimSpace(in.Title)

	var sel Selection
	for _, q := range in.Questions {
		if !sel.Add(q) {
			slog.Debug("dropped repeated question", "question_id", q.ID)
		}
	}
	if dropped := len(in.Questions) - sel.Len(); dropped > 0 {
		slog.Warn("compose input repeats questions", "title", in.Title, "dropped", dropped)
	}
	in.Questions = sel.Questions()

	if err := toValidationErrors(validatorInstance().Struct(in)); err != nil {
		return model.Test{}, err
	}

	t := model.Test{
		ID:              c.newID(),
		Title:           in.Title,
		Type:            in.Type,
		Questions:       in.Questions,
		DurationMinutes: in.DurationMinutes,
		TotalMarks:      TotalMarks(in.Type, len(in.Questions)),
		CreatedAt:       c.now().UTC(),
	}
	slog.Debug("composed test", "test_id", t.ID, "type", t.Type, "questions", len(t.Questions), "total_marks", t.TotalMarks)
	return t, nil
}

// Compose builds a test with the default composer.
func Compose(title string, testType model.TestType, durationMinutes int, questions []model.Question) (model.Test, error) {
	return NewComposer().Compose(ComposeInput{
		Title:           title,
		Type:            testType,
		DurationMinutes: durationMinutes,
		Questions:       questions,
	})
}

// TotalMarks is the maximum score of a test of the given type and size.
func TotalMarks(testType model.TestType, numQuestions int) int {
	return numQuestions * testType.PerQuestionMax()
}

// Selection is the ordered set of questions picked so far in the composer.
// The zero value is ready to use.
type Selection struct {
	questions []model.Question
	index     map[string]int
}

// Add appends q unless a question with the same id is already selected.
// It reports whether q was added.
func (s *Selection) Add(q model.Question) bool {
	if s.Contains(q.ID) {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[q.ID] = len(s.questions)
	s.questions = append(s.questions, cloneQuestion(q))
	return true
}

// Remove drops the question with the given id. It reports whether one was removed.
func (s *Selection) Remove(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.questions = append(s.questions[:i], s.questions[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.questions); j++ {
		s.index[s.questions[j].ID] = j
	}
	return true
}

// Contains reports whether a question id is selected.
func (s *Selection) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of selected questions.
func (s *Selection) Len() int { return len(s.questions) }

// Questions returns a copy of the selection in insertion order.
func (s *Selection) Questions() []model.Question {
	out := make([]model.Question, len(s.questions))
	for i, q := range s.questions {
		out[i] = cloneQuestion(q)
	}
	return out
}

func cloneQuestion(q model.Question) model.Question {
	if q.Options != nil {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		q.Options = opts
	}
	return q
}
