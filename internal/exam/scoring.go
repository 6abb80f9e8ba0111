package exam

import "github.com/pavelanni/eduquest/internal/model"

// wrongPenalty is added for an attempted wrong answer under negative marking.
const wrongPenalty = -1

// Score totals a set of answers against a test. Every subject present in the
// test gets a breakdown entry, even when it accumulates nothing. The total may
// be negative for NEET tests and always equals the sum of the breakdown.
func Score(test model.Test, answers map[string]int) (int, map[model.Subject]int) {
	total := 0
	breakdown := make(map[model.Subject]int)

	for _, q := range test.Questions {
		selected, attempted := answers[q.ID]
		if _, ok := breakdown[q.Subject]; !ok {
			breakdown[q.Subject] = 0
		}

		delta := 0
		switch {
		case attempted && selected == q.CorrectAnswerIndex:
			delta = test.Type.PerQuestionMax()
		case attempted && test.Type.NegativeMarking():
			delta = wrongPenalty
		}

		total += delta
		breakdown[q.Subject] += delta
	}
	return total, breakdown
}
