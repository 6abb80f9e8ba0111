package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pavelanni/eduquest/internal/exam"
	"github.com/pavelanni/eduquest/internal/model"
	"github.com/pavelanni/eduquest/internal/store"
)

// defaultFinishedLimit caps how many submitted sessions the registry
// remembers after evicting them.
const defaultFinishedLimit = 4096

// FinishedSession is what remains of a session once it has been submitted and
// evicted. The full result lives in the store under ResultID.
type FinishedSession struct {
	SessionID    string            `json:"sessionId"`
	TestID       string            `json:"testId"`
	StudentID    string            `json:"studentId"`
	State        exam.State        `json:"state"`
	SubmitReason exam.SubmitReason `json:"submitReason"`
	ResultID     string            `json:"resultId"`
}

// Registry holds the live exam sessions of the process and drives their
// countdowns. A session is evicted as soon as its result has been handed to
// the submit callback; a bounded record of finished sessions is kept so late
// requests can be answered with a conflict instead of not found.
type Registry struct {
	tick time.Duration
	ctx  context.Context
	stop context.CancelFunc

	mu            sync.RWMutex
	sessions      map[string]*exam.Session
	finished      map[string]FinishedSession
	finishedOrder []string
	finishedLimit int
}

// NewRegistry creates a registry whose sessions tick every interval.
func NewRegistry(interval time.Duration) *Registry {
	ctx, stop := context.WithCancel(context.Background())
	return &Registry{
		tick:          interval,
		ctx:           ctx,
		stop:          stop,
		sessions:      make(map[string]*exam.Session),
		finished:      make(map[string]FinishedSession),
		finishedLimit: defaultFinishedLimit,
	}
}

// Start creates a session for test, registers it and starts its countdown.
// onSubmit receives the session's single result, whether the student submitted
// or the time ran out. The session is evicted once onSubmit returns.
func (r *Registry) Start(test model.Test, studentID string, onSubmit func(*exam.Session, model.TestResult)) (*exam.Session, error) {
	var s *exam.Session
	s, err := exam.NewSession(test, studentID, exam.WithOnSubmit(func(res model.TestResult) {
		if onSubmit != nil {
			onSubmit(s, res)
		}
		r.evict(s, res)
	}))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	s.StartCountdown(r.ctx, r.tick)
	return s, nil
}

func (r *Registry) evict(s *exam.Session, res model.TestResult) {
	fs := FinishedSession{
		SessionID:    s.ID(),
		TestID:       res.TestID,
		StudentID:    res.StudentID,
		State:        exam.StateSubmitted,
		SubmitReason: s.Snapshot().SubmitReason,
		ResultID:     res.ID,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, fs.SessionID)
	r.finished[fs.SessionID] = fs
	r.finishedOrder = append(r.finishedOrder, fs.SessionID)
	for len(r.finishedOrder) > r.finishedLimit {
		delete(r.finished, r.finishedOrder[0])
		r.finishedOrder = r.finishedOrder[1:]
	}
}

// Get returns a live session. A session that has already been submitted
// yields a *exam.StateError.
func (r *Registry) Get(id string) (*exam.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if _, ok := r.finished[id]; ok {
		return nil, &exam.StateError{Op: "access session", State: exam.StateSubmitted}
	}
	return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
}

// Finished returns the record of an evicted session.
func (r *Registry) Finished(id string) (FinishedSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fs, ok := r.finished[id]
	return fs, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops every countdown.
func (r *Registry) Close() {
	r.stop()
}
