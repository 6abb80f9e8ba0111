// Package insight tracks generated improvement plans per result. Only the most
// recent request for a result may change its state; replies to superseded or
// discarded requests are dropped.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/eduquest/internal/model"
)

// Status is the lifecycle of one result's insight.
type Status string

const (
	StatusPending     Status = "pending"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// Generator produces an insight for a result. Implementations must honor ctx.
type Generator interface {
	GenerateInsight(ctx context.Context, test model.Test, result model.TestResult) (model.AIInsight, error)
}

// ResultLookup resolves the records an insight is generated from.
type ResultLookup interface {
	GetResult(id string) (model.TestResult, error)
	GetTest(id string) (model.Test, error)
}

// State is the externally visible insight state of a result.
type State struct {
	ResultID    string           `json:"resultId"`
	Status      Status           `json:"status"`
	Insight     *model.AIInsight `json:"insight,omitempty"`
	Generation  uint64           `json:"generation"`
	RequestedAt time.Time        `json:"requestedAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type entry struct {
	state  State
	cancel context.CancelFunc
}

// Tracker runs insight requests and keeps their latest outcome.
type Tracker struct {
	gen     Generator
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64
	closed  bool

	base     context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup
}

// NewTracker creates a tracker. A zero timeout leaves requests bounded only by
// cancellation.
func NewTracker(gen Generator, timeout time.Duration) *Tracker {
	base, stop := context.WithCancel(context.Background())
	return &Tracker{
		gen:      gen,
		timeout:  timeout,
		now:      time.Now,
		entries:  make(map[string]*entry),
		base:     base,
		stopBase: stop,
	}
}

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("insight tracker closed")

// Request starts generating an insight for result and returns the pending
// state. An in-flight request for the same result is cancelled and its reply,
// should it still arrive, is ignored.
func (t *Tracker) Request(test model.Test, result model.TestResult) (State, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return State{}, ErrClosed
	}
	e, ok := t.entries[result.ID]
	if !ok {
		e = &entry{}
		t.entries[result.ID] = e
	}
	if e.cancel != nil {
		e.cancel()
	}

	t.nextGen++
	gen := t.nextGen
	var ctx context.Context
	var cancel context.CancelFunc
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(t.base, t.timeout)
	} else {
		ctx, cancel = context.WithCancel(t.base)
	}
	now := t.now().UTC()
	e.cancel = cancel
	e.state = State{
		ResultID:    result.ID,
		Status:      StatusPending,
		Generation:  gen,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	st := e.state
	t.wg.Add(1)
	t.mu.Unlock()

	slog.Debug("insight requested", "result_id", result.ID, "generation", gen)
	go t.run(ctx, cancel, gen, test, result.Clone())
	return st, nil
}

// RequestByID loads the result and its test through lookup, then calls Request.
func (t *Tracker) RequestByID(lookup ResultLookup, resultID string) (State, error) {
	result, err := lookup.GetResult(resultID)
	if err != nil {
		return State{}, fmt.Errorf("get result: %w", err)
	}
	test, err := lookup.GetTest(result.TestID)
	if err != nil {
		return State{}, fmt.Errorf("get test: %w", err)
	}
	return t.Request(test, result)
}

func (t *Tracker) run(ctx context.Context, cancel context.CancelFunc, gen uint64, test model.Test, result model.TestResult) {
	defer t.wg.Done()
	defer cancel()

	insight, err := t.gen.GenerateInsight(ctx, test, result)

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[result.ID]
	if !ok || e.state.Generation != gen {
		slog.Debug("discarding stale insight", "result_id", result.ID, "generation", gen)
		return
	}
	e.cancel = nil
	e.state.UpdatedAt = t.now().UTC()
	if err != nil {
		slog.Warn("insight unavailable", "result_id", result.ID, "error", err)
		e.state.Status = StatusUnavailable
		e.state.Insight = nil
		return
	}
	e.state.Status = StatusReady
	e.state.Insight = &insight
	slog.Info("insight ready", "result_id", result.ID, "generation", gen)
}

// Get returns the insight state of a result. The second return is false if no
// insight was ever requested for it.
func (t *Tracker) Get(resultID string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[resultID]
	if !ok {
		return State{}, false
	}
	st := e.state
	if st.Insight != nil {
		cp := cloneInsight(*st.Insight)
		st.Insight = &cp
	}
	return st, true
}

// Discard forgets a result's insight and cancels any request still running for it.
func (t *Tracker) Discard(resultID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[resultID]; ok {
		if e.cancel != nil {
			e.cancel()
		}
		delete(t.entries, resultID)
	}
}

// Wait blocks until no request is in flight.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close cancels every in-flight request and waits for them to return.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.stopBase()
	t.wg.Wait()
}

func cloneInsight(in model.AIInsight) model.AIInsight {
	in.FocusTopics = slices.Clone(in.FocusTopics)
	in.StudySchedule = slices.Clone(in.StudySchedule)
	in.Recommendations = slices.Clone(in.Recommendations)
	return in
}
