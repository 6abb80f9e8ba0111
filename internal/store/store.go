package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/eduquest/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// MemoryDSN keeps the whole store in process memory; it is discarded on Close.
const MemoryDSN = ":memory:"

// Store is the process-scoped question bank and result store.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != MemoryDSN {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == MemoryDSN {
		// Every new connection to :memory: is a separate empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Debug("store opened", "path", dbPath)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		prompt TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer INTEGER NOT NULL,
		explanation TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		type TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		total_marks INTEGER NOT NULL,
		questions TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		test_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		max_score INTEGER NOT NULL,
		subject_breakdown TEXT NOT NULL,
		answers TEXT NOT NULL,
		submitted_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_student ON results(student_id);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

const questionColumns = `id, subject, topic, difficulty, prompt, options, correct_answer, explanation`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (model.Question, error) {
	var q model.Question
	var options string
	if err := row.Scan(&q.ID, &q.Subject, &q.Topic, &q.Difficulty, &q.Prompt, &options, &q.CorrectAnswerIndex, &q.Explanation); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of %s: %w", q.ID, err)
	}
	return q, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertQuestion stores a question, replacing any earlier version with the same id.
func (s *Store) InsertQuestion(q model.Question) error {
	return insertQuestion(s.db, q)
}

func insertQuestion(db execer, q model.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET subject = excluded.subject, topic = excluded.topic,
		   difficulty = excluded.difficulty, prompt = excluded.prompt, options = excluded.options,
		   correct_answer = excluded.correct_answer, explanation = excluded.explanation`,
		q.ID, q.Subject, q.Topic, q.Difficulty, q.Prompt, string(options), q.CorrectAnswerIndex, q.Explanation,
	)
	return err
}

// QuestionFilter narrows a bank listing. Empty fields mean no filtering on that field.
type QuestionFilter struct {
	Subject    model.Subject
	Difficulty model.Difficulty
	Topic      string
}

// ListQuestions returns all questions.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.ListQuestionsFiltered(QuestionFilter{})
}

// ListQuestionsFiltered returns questions matching the filter, ordered by id.
func (s *Store) ListQuestionsFiltered(f QuestionFilter) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if f.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, f.Subject)
	}
	if f.Difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, f.Difficulty)
	}
	if f.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, f.Topic)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return q, err
}

// GetQuestions returns the questions with the given ids in the order asked.
func (s *Store) GetQuestions(ids []string) ([]model.Question, error) {
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuestion(id)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// Topics returns the distinct topics in the bank.
func (s *Store) Topics() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT topic FROM questions WHERE topic != '' ORDER BY topic`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	topics := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// SaveTest stores a composed test.
func (s *Store) SaveTest(t model.Test) error {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO tests (id, title, type, duration_minutes, total_marks, questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Type, t.DurationMinutes, t.TotalMarks, string(questions), formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save test %s: %w", t.ID, err)
	}
	slog.Info("test saved", "test_id", t.ID, "type", t.Type, "questions", len(t.Questions), "total_marks", t.TotalMarks)
	return nil
}

const testColumns = `id, title, type, duration_minutes, total_marks, questions, created_at`

func scanTest(row rowScanner) (model.Test, error) {
	var t model.Test
	var questions, created string
	if err := row.Scan(&t.ID, &t.Title, &t.Type, &t.DurationMinutes, &t.TotalMarks, &questions, &created); err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return t, fmt.Errorf("decode questions of test %s: %w", t.ID, err)
	}
	var err error
	t.CreatedAt, err = parseTime(created)
	return t, err
}

// GetTest returns a test by ID.
func (s *Store) GetTest(id string) (model.Test, error) {
	t, err := scanTest(s.db.QueryRow(`SELECT `+testColumns+` FROM tests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("test %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTests returns all tests, newest first.
func (s *Store) ListTests() ([]model.Test, error) {
	rows, err := s.db.Query(`SELECT ` + testColumns + ` FROM tests ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tests := []model.Test{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// AppendResult stores a result. Results are never updated; a second append
// with the same id fails.
func (s *Store) AppendResult(r model.TestResult) error {
	breakdown, err := json.Marshal(r.SubjectBreakdown)
	if err != nil {
		return err
	}
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO results (id, test_id, student_id, score, max_score, subject_breakdown, answers, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TestID, r.StudentID, r.Score, r.MaxScore, string(breakdown), string(answers), formatTime(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append result %s: %w", r.ID, err)
	}
	return nil
}

const resultColumns = `id, test_id, student_id, score, max_score, subject_breakdown, answers, submitted_at`

func scanResult(row rowScanner) (model.TestResult, error) {
	var r model.TestResult
	var breakdown, answers, submitted string
	if err := row.Scan(&r.ID, &r.TestID, &r.StudentID, &r.Score, &r.MaxScore, &breakdown, &answers, &submitted); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(breakdown), &r.SubjectBreakdown); err != nil {
		return r, fmt.Errorf("decode breakdown of result %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return r, fmt.Errorf("decode answers of result %s: %w", r.ID, err)
	}
	var err error
	r.Timestamp, err = parseTime(submitted)
	return r, err
}

// GetResult returns a result by ID.
func (s *Store) GetResult(id string) (model.TestResult, error) {
	r, err := scanResult(s.db.QueryRow(`SELECT `+resultColumns+` FROM results WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListResults returns results in submission order. An empty studentID lists
// every student's results.
func (s *Store) ListResults(studentID string) ([]model.TestResult, error) {
	var where []string
	var args []any
	if studentID != "" {
		where = append(where, "student_id = ?")
		args = append(args, studentID)
	}
	query := `SELECT ` + resultColumns + ` FROM results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []model.TestResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
