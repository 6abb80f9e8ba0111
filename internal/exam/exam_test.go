package exam

import (
	"fmt"
	"testing"
	"time"

	"github.com/pavelanni/eduquest/internal/model"
)

var fixedTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testQuestion(id string, subject model.Subject, correct int) model.Question {
	return model.Question{
		ID:                 id,
		Subject:            subject,
		Topic:              "topic " + id,
		Difficulty:         model.DifficultyMedium,
		Prompt:             "Question " + id + "?",
		Options:            []string{"A", "B", "C", "D"},
		CorrectAnswerIndex: correct,
		Explanation:        "because",
	}
}

func testComposer() *Composer {
	n := 0
	return &Composer{
		now: func() time.Time { return fixedTime },
		newID: func() string {
			n++
			return fmt.Sprintf("test-%d", n)
		},
	}
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func mustCompose(t testing.TB, testType model.TestType, minutes int, qs ...model.Question) model.Test {
	t.Helper()
	test, err := testComposer().Compose(ComposeInput{
		Title:           "Unit test",
		Type:            testType,
		DurationMinutes: minutes,
		Questions:       qs,
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return test
}
