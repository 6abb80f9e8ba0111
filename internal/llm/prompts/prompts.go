package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/eduquest/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

const (
	systemFile = "templates/insight_system.txt"
	userFile   = "templates/insight_user.txt"

	// DefaultScheduleDays is the length of the generated study schedule.
	DefaultScheduleDays = 7

	maxFieldRunes = 200
)

var (
	resultTagRegex = regexp.MustCompile(`(?i)</?\s*test-result\b[^>]*>`)

	defaultOnce    sync.Once
	defaultBuilder *Builder
	defaultErr     error
)

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
}

// SubjectScore is one line of the subject breakdown shown to the model.
type SubjectScore struct {
	Subject model.Subject
	Score   int
	Max     int
}

// InsightData holds template data for insight prompts.
type InsightData struct {
	TestTitle    string
	TestType     model.TestType
	Score        int
	MaxScore     int
	Percentage   string
	Subjects     []SubjectScore
	MissedTopics []string
	Language     string
	ScheduleDays int

	// BreakdownJSON is the result's subject breakdown as a JSON object of
	// subject name to score.
	BreakdownJSON string
}

// NewInsightData describes result for the prompt. test supplies titles, topics
// and per-subject maxima; the breakdown itself comes from result unchanged.
func NewInsightData(test model.Test, result model.TestResult, lang string) InsightData {
	d := InsightData{
		TestTitle:    sanitize(test.Title),
		TestType:     test.Type,
		Score:        result.Score,
		MaxScore:     result.MaxScore,
		Language:     languageName(lang),
		ScheduleDays: DefaultScheduleDays,
	}
	if d.TestType == "" {
		d.TestType = model.TestTypeSchool
	}
	d.BreakdownJSON = breakdownJSON(result.SubjectBreakdown)
	if pct, ok := result.Percentage(); ok {
		d.Percentage = fmt.Sprintf("%.1f%%", pct)
	}

	perQuestion := test.Type.PerQuestionMax()
	maxBySubject := make(map[model.Subject]int)
	seenTopic := make(map[string]bool)
	for _, q := range test.Questions {
		maxBySubject[q.Subject] += perQuestion
		if ans, ok := result.Answers[q.ID]; ok && ans == q.CorrectAnswerIndex {
			continue
		}
		topic := sanitize(q.Topic)
		if topic != "" && !seenTopic[topic] {
			seenTopic[topic] = true
			d.MissedTopics = append(d.MissedTopics, topic)
		}
	}

	subjects := test.Subjects()
	if len(subjects) == 0 {
		for _, s := range model.Subjects {
			if _, ok := result.SubjectBreakdown[s]; ok {
				subjects = append(subjects, s)
			}
		}
	}
	for _, s := range subjects {
		d.Subjects = append(d.Subjects, SubjectScore{
			Subject: s,
			Score:   result.SubjectBreakdown[s],
			Max:     maxBySubject[s],
		})
	}
	return d
}

func breakdownJSON(breakdown map[model.Subject]int) string {
	if breakdown == nil {
		breakdown = map[model.Subject]int{}
	}
	// Map keys are marshalled in sorted order.
	data, err := json.Marshal(breakdown)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func languageName(lang string) string {
	if name, ok := languageNames[lang]; ok {
		return name
	}
	return languageNames["en"]
}

// Builder renders the insight prompts.
type Builder struct {
	system *template.Template
	user   *template.Template
}

// New parses the insight templates from fsys.
func New(fsys fs.FS) (*Builder, error) {
	system, err := parse(fsys, systemFile)
	if err != nil {
		return nil, err
	}
	user, err := parse(fsys, userFile)
	if err != nil {
		return nil, err
	}
	return &Builder{system: system, user: user}, nil
}

// Default returns the builder for the embedded templates. They are parsed once.
func Default() (*Builder, error) {
	defaultOnce.Do(func() {
		defaultBuilder, defaultErr = New(templateFS)
	})
	return defaultBuilder, defaultErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildInsight renders the system and user messages for an insight request.
func (b *Builder) BuildInsight(data InsightData) (system, user string, err error) {
	var buf bytes.Buffer
	if err := b.system.Execute(&buf, data); err != nil {
		return "", "", err
	}
	system = buf.String()

	buf.Reset()
	if err := b.user.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return system, buf.String(), nil
}

// sanitize strips delimiter tags and bounds the length of free text that ends
// up inside the prompt.
func sanitize(s string) string {
	s = resultTagRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes]) + "..."
	}
	return s
}
