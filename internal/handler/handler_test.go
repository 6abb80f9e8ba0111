package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/eduquest/internal/events"
	"github.com/pavelanni/eduquest/internal/exam"
	appI18n "github.com/pavelanni/eduquest/internal/i18n"
	"github.com/pavelanni/eduquest/internal/insight"
	"github.com/pavelanni/eduquest/internal/model"
	"github.com/pavelanni/eduquest/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, "i18n init:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

const bankJSON = `[
  {"id": "q1", "subject": "Physics", "topic": "Kinematics", "difficulty": "Easy",
   "question": "Unit of force?", "options": ["Joule", "Newton", "Watt", "Pascal"], "correctAnswer": 1},
  {"id": "q2", "subject": "Biology", "topic": "Genetics", "difficulty": "Medium",
   "question": "Father of genetics?", "options": ["Darwin", "Mendel", "Watson", "Crick"], "correctAnswer": 1}
]`

type stubGenerator struct {
	insight model.AIInsight
	err     error
}

func (g stubGenerator) GenerateInsight(context.Context, model.Test, model.TestResult) (model.AIInsight, error) {
	return g.insight, g.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	results  []events.ResultSubmittedEvent
	composed []events.TestComposedEvent
}

func (p *recordingPublisher) PublishResultSubmitted(_ context.Context, ev events.ResultSubmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, ev)
	return nil
}

func (p *recordingPublisher) PublishTestComposed(_ context.Context, ev events.TestComposedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.composed = append(p.composed, ev)
	return nil
}

func (p *recordingPublisher) submitted() []events.ResultSubmittedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ResultSubmittedEvent(nil), p.results...)
}

type fixture struct {
	h       *Handler
	store   *store.Store
	tracker *insight.Tracker
	pub     *recordingPublisher
	router  chi.Router
}

func newFixture(t *testing.T, gen insight.Generator, tick time.Duration) *fixture {
	t.Helper()
	s, err := store.New(store.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tracker := insight.NewTracker(gen, time.Second)
	t.Cleanup(tracker.Close)

	pub := &recordingPublisher{}
	h, err := New(s, tracker, pub, model.ExamConfig{Lang: "en", TickInterval: tick})
	require.NoError(t, err)
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)
	return &fixture{h: h, store: s, tracker: tracker, pub: pub, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) importBank(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/questions/import?name=bank.json", bankJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) composeNEET(t *testing.T) model.Test {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/tests", map[string]any{
		"title":           "NEET mock",
		"type":            "NEET",
		"durationMinutes": 1,
		"questionIds":     []string{"q1", "q2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Test](t, rec)
}

func (f *fixture) start(t *testing.T, testID, student string) exam.View {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/tests/"+testID+"/sessions", map[string]any{"studentId": student})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[exam.View](t, rec)
}

func TestExamFlow(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)
	f.importBank(t)

	test := f.composeNEET(t)
	assert.Equal(t, 8, test.TotalMarks)
	assert.Len(t, test.Questions, 2)

	view := f.start(t, test.ID, "alice")
	assert.Equal(t, 1, f.h.sessions.Len())
	assert.Equal(t, exam.StateInProgress, view.State)
	assert.Equal(t, 60, view.RemainingSeconds)
	assert.Equal(t, "01:00", view.Clock)
	assert.Equal(t, "q1", view.Current.ID)

	rec := f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/answer", map[string]any{"questionId": "q1", "optionIndex": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/navigate", map[string]any{"direction": "next"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[exam.View](t, rec)
	assert.Equal(t, 1, view.CurrentIndex)
	assert.True(t, view.IsLast)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/answer", map[string]any{"questionId": "q2", "optionIndex": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[exam.View](t, rec).AnsweredCount)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[model.TestResult](t, rec)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 8, res.MaxScore)
	assert.Equal(t, map[model.Subject]int{model.SubjectPhysics: 4, model.SubjectBiology: -1}, res.SubjectBreakdown)

	stored, err := f.store.GetResult(res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Score, stored.Score)

	pubs := f.pub.submitted()
	require.Len(t, pubs, 1)
	assert.Equal(t, res.ID, pubs[0].ResultID)
	assert.Equal(t, string(exam.SubmitManual), pubs[0].Reason)

	// A submitted session accepts no further transitions.
	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/answer", map[string]any{"questionId": "q1", "optionIndex": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/navigate", map[string]any{"targetIndex": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The submitted session is evicted; only its outcome remains.
	assert.Zero(t, f.h.sessions.Len())
	rec = f.do(t, http.MethodGet, "/api/sessions/"+view.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decode[FinishedSession](t, rec)
	assert.Equal(t, exam.StateSubmitted, final.State)
	assert.Equal(t, exam.SubmitManual, final.SubmitReason)
	assert.Equal(t, res.ID, final.ResultID)
	assert.Equal(t, "alice", final.StudentID)

	rec = f.do(t, http.MethodGet, "/api/results?student=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.TestResult](t, rec), 1)

	assert.Len(t, f.pub.composed, 1)
}

func TestComposeValidation(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)
	f.importBank(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"empty title", map[string]any{"title": "", "type": "NEET", "durationMinutes": 10, "questionIds": []string{"q1"}}, "title"},
		{"zero duration", map[string]any{"title": "T", "type": "NEET", "durationMinutes": 0, "questionIds": []string{"q1"}}, "durationMinutes"},
		{"huge duration", map[string]any{"title": "T", "type": "NEET", "durationMinutes": int64(math.MaxInt64), "questionIds": []string{"q1"}}, "durationMinutes"},
		{"no questions", map[string]any{"title": "T", "type": "SCHOOL", "durationMinutes": 10, "questionIds": []string{}}, "questions"},
		{"unknown type", map[string]any{"title": "T", "type": "QUIZ", "durationMinutes": 10, "questionIds": []string{"q1"}}, "type"},
		{"unknown question", map[string]any{"title": "T", "type": "NEET", "durationMinutes": 10, "questionIds": []string{"q1", "q9"}}, "questionIds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/tests", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[errorResponse](t, rec)
			require.NotEmpty(t, resp.Details)
			assert.Equal(t, tt.field, resp.Details[0].Field)
		})
	}

	rec := f.do(t, http.MethodPost, "/api/tests", `{"title": "T", "totalMarks": 100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "totalMarks is never accepted from callers")

	rec = f.do(t, http.MethodGet, "/api/tests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.Test](t, rec))
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)
	f.importBank(t)
	test := f.composeNEET(t)

	rec := f.do(t, http.MethodPost, "/api/tests/nope/sessions", map[string]any{"studentId": "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/tests/"+test.ID+"/sessions", map[string]any{"studentId": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	view := f.start(t, test.ID, "bob")
	base := "/api/sessions/" + view.SessionID

	rec = f.do(t, http.MethodPost, base+"/answer", map[string]any{"questionId": "q1", "optionIndex": 4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, base+"/answer", map[string]any{"questionId": "q1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, base+"/answer", map[string]any{"questionId": "q3", "optionIndex": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/navigate", map[string]any{"targetIndex": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, base+"/navigate", map[string]any{"direction": "previous"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, base+"/navigate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[exam.View](t, rec)
	assert.Equal(t, 0, v.CurrentIndex, "rejected transitions leave the session unchanged")
	assert.Zero(t, v.AnsweredCount)
}

func TestCountdownSubmitsOnce(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Millisecond)
	f.importBank(t)
	test := f.composeNEET(t)
	view := f.start(t, test.ID, "carol")

	// Eviction follows storing and publishing the result.
	require.Eventually(t, func() bool {
		return f.h.sessions.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)

	rec := f.do(t, http.MethodGet, "/api/sessions/"+view.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decode[FinishedSession](t, rec)
	assert.Equal(t, exam.StateSubmitted, final.State)
	assert.Equal(t, exam.SubmitTimeout, final.SubmitReason)
	assert.NotEmpty(t, final.ResultID)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	results, err := f.store.ListResults("carol")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	pubs := f.pub.submitted()
	require.Len(t, pubs, 1)
	assert.Equal(t, string(exam.SubmitTimeout), pubs[0].Reason)
}

func submitOne(t *testing.T, f *fixture) model.TestResult {
	t.Helper()
	f.importBank(t)
	test := f.composeNEET(t)
	view := f.start(t, test.ID, "alice")
	f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/answer", map[string]any{"questionId": "q1", "optionIndex": 1})
	rec := f.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[model.TestResult](t, rec)
}

func TestInsightLifecycle(t *testing.T) {
	plan := model.AIInsight{
		OverallAssessment: "Strong in physics.",
		FocusTopics:       []string{"Genetics"},
		StudySchedule:     []model.StudyTask{{Day: "Day 1", Task: "Revise Mendel"}},
		Recommendations:   []string{"NCERT"},
	}
	f := newFixture(t, stubGenerator{insight: plan}, time.Hour)
	res := submitOne(t, f)
	path := "/api/results/" + res.ID + "/insight"

	rec := f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, statusNone, decode[insight.State](t, rec).Status)

	rec = f.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, insight.StatusPending, decode[insight.State](t, rec).Status)
	f.tracker.Wait()

	rec = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[insight.State](t, rec)
	assert.Equal(t, insight.StatusReady, st.Status)
	require.NotNil(t, st.Insight)
	assert.Equal(t, plan, *st.Insight)

	rec = f.do(t, http.MethodGet, "/api/results/nope/insight", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/results/nope/insight", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInsightUnavailable(t *testing.T) {
	f := newFixture(t, stubGenerator{err: errors.New("missing studySchedule")}, time.Hour)
	res := submitOne(t, f)

	rec := f.do(t, http.MethodPost, "/api/results/"+res.ID+"/insight", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.tracker.Wait()

	rec = f.do(t, http.MethodGet, "/api/results/"+res.ID+"/insight", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[insight.State](t, rec)
	assert.Equal(t, insight.StatusUnavailable, st.Status)
	assert.Nil(t, st.Insight)

	rec = f.do(t, http.MethodGet, "/results/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The study plan is unavailable right now.")
	assert.Contains(t, rec.Body.String(), "Generate study plan")
}

func TestResultPage(t *testing.T) {
	plan := model.AIInsight{
		OverallAssessment: "Revise <genetics> & cells",
		FocusTopics:       []string{"Genetics"},
		StudySchedule:     []model.StudyTask{{Day: "Day 1", Task: "Punnett squares"}},
		Recommendations:   []string{},
	}
	f := newFixture(t, stubGenerator{insight: plan}, time.Hour)
	res := submitOne(t, f)

	rec := f.do(t, http.MethodGet, "/results/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "NEET mock")
	assert.Contains(t, body, "4 / 8")
	assert.Contains(t, body, "50.0%")
	assert.Contains(t, body, "Physics")
	assert.Contains(t, body, `<td class="subject-questions">1 question</td>`)
	assert.Contains(t, body, "No study plan has been requested yet.")

	_, err := f.tracker.Request(mustTest(t, f, res.TestID), res)
	require.NoError(t, err)
	f.tracker.Wait()

	rec = f.do(t, http.MethodGet, "/results/"+res.ID, nil)
	body = rec.Body.String()
	assert.Contains(t, body, "Revise &lt;genetics&gt; &amp; cells")
	assert.NotContains(t, body, "<genetics>")
	assert.Contains(t, body, "Punnett squares")
	assert.Contains(t, body, "Regenerate")

	rec = f.do(t, http.MethodGet, "/results/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func mustTest(t *testing.T, f *fixture, id string) model.Test {
	t.Helper()
	test, err := f.store.GetTest(id)
	require.NoError(t, err)
	return test
}

func TestImportQuestions(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)

	rec := f.do(t, http.MethodPost, "/api/questions/import?name=bank.json", bankJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[store.ImportReport](t, rec)
	assert.Equal(t, 2, report.Imported)
	assert.False(t, report.Unchanged)

	rec = f.do(t, http.MethodPost, "/api/questions/import?name=bank.json", bankJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[store.ImportReport](t, rec).Unchanged)

	rec = f.do(t, http.MethodPost, "/api/questions/import?name=broken.json", `[{"id": "x"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/questions/import?name=bad.json",
		`[{"id": "b1", "subject": "Art", "difficulty": "Easy", "question": "?", "options": ["a", "b"], "correctAnswer": 0}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "subject", decode[errorResponse](t, rec).Details[0].Field)

	rec = f.do(t, http.MethodPost, "/api/questions/import", bankJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a raw upload needs a name")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("questions_file", "upload.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(`[{"id": "q3", "subject": "Chemistry", "difficulty": "Hard", "question": "pH of water?", "options": ["5", "6", "7"], "correctAnswer": 2}]`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/questions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/questions?subject=Chemistry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	qs := decode[[]model.Question](t, rec)
	require.Len(t, qs, 1)
	assert.Equal(t, "q3", qs[0].ID)

	rec = f.do(t, http.MethodGet, "/api/questions", nil)
	assert.Len(t, decode[[]model.Question](t, rec), 3)
	rec = f.do(t, http.MethodGet, "/api/questions?difficulty=Impossible", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNavAndRoles(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)

	rec := f.do(t, http.MethodGet, "/api/me/nav?role=teacher", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nav struct {
		Capabilities model.Capabilities `json:"capabilities"`
		Labels       map[string]string  `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nav))
	assert.Equal(t, model.UserRoleTeacher, nav.Capabilities.Role)
	assert.True(t, nav.Capabilities.CanCompose)
	assert.Equal(t, "Test Generator", nav.Labels["generator"])

	var roleCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == roleCookieName {
			roleCookie = c
		}
	}
	require.NotNil(t, roleCookie)

	// The remembered role applies when no query is given.
	req := httptest.NewRequest(http.MethodGet, "/api/me/nav", nil)
	req.AddCookie(roleCookie)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nav))
	assert.Equal(t, model.UserRoleTeacher, nav.Capabilities.Role)

	rec = f.do(t, http.MethodGet, "/api/me/nav", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nav))
	assert.Equal(t, model.UserRoleStudent, nav.Capabilities.Role)
	assert.True(t, nav.Capabilities.CanTakeExam)
	assert.Contains(t, nav.Labels, "analytics")

	rec = f.do(t, http.MethodGet, "/api/me/nav?role=janitor", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/me/nav?role=student&lang=hi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &nav))
	assert.NotEqual(t, "Dashboard", nav.Labels["dashboard"])
}

func TestDashboardAndUsers(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)
	submitOne(t, f)

	rec := f.do(t, http.MethodGet, "/api/dashboard?role=student&user=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[model.DashboardStats](t, rec)
	assert.Equal(t, 1, stats.TestsCount)
	assert.Equal(t, 1, stats.TestsTaken)
	assert.Equal(t, 2, stats.QuestionsInBank)
	require.NotNil(t, stats.AveragePercent)
	assert.InDelta(t, 50.0, *stats.AveragePercent, 1e-9)

	rec = f.do(t, http.MethodGet, "/api/dashboard?role=admin", nil)
	stats = decode[model.DashboardStats](t, rec)
	assert.Equal(t, 1, stats.ResultsCount)
	assert.Zero(t, stats.TestsTaken)

	rec = f.do(t, http.MethodGet, "/api/users?filter=student", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]model.User](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].ID)

	rec = f.do(t, http.MethodGet, "/api/users?filter=janitor", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartSessionKeepsExistingUser(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)
	f.importBank(t)
	test := f.composeNEET(t)
	admin := model.User{ID: "admin", Name: "Administrator", Role: model.UserRoleAdmin, Email: "admin@example.com"}
	require.NoError(t, f.store.UpsertUser(admin))

	rec := f.do(t, http.MethodPost, "/api/tests/"+test.ID+"/sessions", map[string]any{"studentId": "admin", "name": ""})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got, err := f.store.GetUser("admin")
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	f.start(t, test.ID, "erin")
	rec = f.do(t, http.MethodGet, "/api/users?filter=student", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	students := decode[[]model.User](t, rec)
	require.Len(t, students, 1)
	assert.Equal(t, "erin", students[0].ID)
}

func TestImportQuestionsTooLarge(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)
	f.h.uploadLimit = 64
	require.Greater(t, len(bankJSON), 64)

	rec := f.do(t, http.MethodPost, "/api/questions/import?name=bank.json", bankJSON)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Contains(t, decode[errorResponse](t, rec).Error, "64 bytes")

	rec = f.do(t, http.MethodGet, "/api/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.Question](t, rec))

	f.h.uploadLimit = maxUploadBytes
	f.importBank(t)
}

// blockingGenerator holds every request until it is cancelled.
type blockingGenerator struct{}

func (blockingGenerator) GenerateInsight(ctx context.Context, _ model.Test, _ model.TestResult) (model.AIInsight, error) {
	<-ctx.Done()
	return model.AIInsight{}, ctx.Err()
}

func TestDiscardInsight(t *testing.T) {
	f := newFixture(t, blockingGenerator{}, time.Hour)
	res := submitOne(t, f)
	path := "/api/results/" + res.ID + "/insight"

	rec := f.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// The running request was cancelled, so Wait returns.
	f.tracker.Wait()
	rec = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, statusNone, decode[insight.State](t, rec).Status)

	rec = f.do(t, http.MethodDelete, "/api/results/nope/insight", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTopics(t *testing.T) {
	f := newFixture(t, stubGenerator{}, time.Hour)

	rec := f.do(t, http.MethodGet, "/api/questions/topics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	f.importBank(t)
	rec = f.do(t, http.MethodGet, "/api/questions/topics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Genetics", "Kinematics"}, decode[[]string](t, rec))
}
