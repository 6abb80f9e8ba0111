// Package views renders the server-side pages of the dashboard shell.
package views

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/eduquest/internal/i18n"
	"github.com/pavelanni/eduquest/internal/insight"
	"github.com/pavelanni/eduquest/internal/model"
)

// ResultPage renders a submitted result with its per-subject breakdown and the
// current state of its study plan. t may be the zero Test when the test is gone.
func ResultPage(t model.Test, res model.TestResult, st insight.State) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		title := appI18n.T(ctx, "ResultTitle")
		if t.Title != "" {
			title = t.Title
		}

		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		p.text(appI18n.T(ctx, "AppTitle") + " - " + title)
		p.raw(`</title></head><body><main class="result">`)
		p.raw(`<h1>`)
		p.text(title)
		p.raw(`</h1>`)
		if t.Type != "" {
			p.raw(`<p class="test-type">`)
			p.text(appI18n.TestTypeName(ctx, t.Type))
			p.raw(`</p>`)
		}

		scoreSection(ctx, p, t, res)
		breakdownSection(ctx, p, t, res)
		insightSection(ctx, p, res.ID, st)

		p.raw(`</main></body></html>`)
		return p.err
	})
}

func scoreSection(ctx context.Context, p *printer, t model.Test, res model.TestResult) {
	p.raw(`<section class="score"><h2>`)
	p.text(appI18n.T(ctx, "Score"))
	p.raw(`</h2><p class="score-value">`)
	p.text(appI18n.Td(ctx, "ScoreOutOf", map[string]any{"Score": res.Score, "MaxScore": res.MaxScore}))
	p.raw(`</p><p class="percentage">`)
	if pct, ok := res.Percentage(); ok {
		p.text(appI18n.Td(ctx, "PercentValue", map[string]any{"Percent": fmt.Sprintf("%.1f", pct)}))
	} else {
		p.text(appI18n.T(ctx, "NotScored"))
	}
	p.raw(`</p>`)
	if n := len(t.Questions); n > 0 {
		p.raw(`<p class="answered">`)
		p.text(appI18n.Td(ctx, "AnsweredOf", map[string]any{"Answered": len(res.Answers), "Total": n}))
		p.raw(`</p>`)
	}
	p.raw(`<p class="submitted">`)
	p.text(appI18n.Td(ctx, "SubmittedAt", map[string]any{"Time": res.Timestamp.Format("2006-01-02 15:04")}))
	p.raw(`</p></section>`)
}

func breakdownSection(ctx context.Context, p *printer, t model.Test, res model.TestResult) {
	subjects := t.Subjects()
	if len(subjects) == 0 {
		subjects = slices.Sorted(maps.Keys(res.SubjectBreakdown))
	}
	if len(subjects) == 0 {
		return
	}

	perQuestion := t.Type.PerQuestionMax()
	counts := make(map[model.Subject]int)
	for _, q := range t.Questions {
		counts[q.Subject]++
	}

	p.raw(`<section class="breakdown"><h2>`)
	p.text(appI18n.T(ctx, "SubjectBreakdown"))
	p.raw(`</h2><table><tbody>`)
	for _, s := range subjects {
		p.raw(`<tr><th scope="row">`)
		p.text(appI18n.SubjectName(ctx, s))
		p.raw(`</th><td class="subject-score">`)
		if n := counts[s]; n > 0 {
			p.text(appI18n.Td(ctx, "ScoreOutOf", map[string]any{"Score": res.SubjectBreakdown[s], "MaxScore": n * perQuestion}))
		} else {
			p.text(fmt.Sprint(res.SubjectBreakdown[s]))
		}
		p.raw(`</td>`)
		if n := counts[s]; n > 0 {
			p.raw(`<td class="subject-questions">`)
			p.text(appI18n.Tp(ctx, "QuestionsCount", n))
			p.raw(`</td>`)
		}
		p.raw(`</tr>`)
	}
	p.raw(`</tbody></table></section>`)
}

func insightSection(ctx context.Context, p *printer, resultID string, st insight.State) {
	p.raw(`<section class="insight" data-status="`)
	p.text(string(st.Status))
	p.raw(`"><h2>`)
	p.text(appI18n.T(ctx, "InsightHeading"))
	p.raw(`</h2>`)

	action := "InsightGenerate"
	switch st.Status {
	case insight.StatusPending:
		p.raw(`<p class="pending">`)
		p.text(appI18n.T(ctx, "InsightPending"))
		p.raw(`</p>`)
		action = ""
	case insight.StatusUnavailable:
		p.raw(`<p class="unavailable">`)
		p.text(appI18n.T(ctx, "InsightUnavailable"))
		p.raw(`</p>`)
	case insight.StatusReady:
		if st.Insight != nil {
			insightBody(ctx, p, *st.Insight)
		}
		action = "InsightRegenerate"
	default:
		p.raw(`<p class="none">`)
		p.text(appI18n.T(ctx, "InsightNotRequested"))
		p.raw(`</p>`)
	}

	if action != "" {
		p.raw(`<form method="post" action="/api/results/`)
		p.text(resultID)
		p.raw(`/insight"><button type="submit">`)
		p.text(appI18n.T(ctx, action))
		p.raw(`</button></form>`)
	}
	p.raw(`</section>`)
}

func insightBody(ctx context.Context, p *printer, in model.AIInsight) {
	p.raw(`<h3>`)
	p.text(appI18n.T(ctx, "OverallAssessment"))
	p.raw(`</h3><p class="assessment">`)
	p.text(in.OverallAssessment)
	p.raw(`</p>`)

	list(ctx, p, "FocusTopics", in.FocusTopics)

	p.raw(`<h3>`)
	p.text(appI18n.T(ctx, "StudySchedule"))
	p.raw(`</h3><ol class="schedule">`)
	for _, task := range in.StudySchedule {
		p.raw(`<li><strong>`)
		p.text(task.Day)
		p.raw(`</strong> `)
		p.text(task.Task)
		p.raw(`</li>`)
	}
	p.raw(`</ol>`)

	list(ctx, p, "Recommendations", in.Recommendations)
}

func list(ctx context.Context, p *printer, headingID string, items []string) {
	p.raw(`<h3>`)
	p.text(appI18n.T(ctx, headingID))
	p.raw(`</h3><ul>`)
	for _, it := range items {
		p.raw(`<li>`)
		p.text(it)
		p.raw(`</li>`)
	}
	p.raw(`</ul>`)
}

// printer writes markup and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}
