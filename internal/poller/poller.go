// Package poller drives providers that execute queries asynchronously:
// submit an execution, poll its status, then collect the rows.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"SupplySentinel/internal/fetcher"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/observability"
)

// Poll defaults.
const (
	DefaultInterval = time.Second
	DefaultMaxPolls = 30
)

var (
	// ErrJobTimedOut means the poll budget ran out before a terminal state.
	ErrJobTimedOut = errors.New("job timed out")

	// ErrNoFallbackResult means fallback mode was asked for but no execution
	// has completed in this process yet.
	ErrNoFallbackResult = errors.New("no completed result held in memory")
)

// JobFailedError is returned when the remote execution reports failure.
type JobFailedError struct {
	ExecutionID string
	State       model.JobState
	Diagnostics string
}

func (e *JobFailedError) Error() string {
	if e.Diagnostics == "" {
		return fmt.Sprintf("job %s failed with state %s", e.ExecutionID, e.State)
	}
	return fmt.Sprintf("job %s failed with state %s: %s", e.ExecutionID, e.State, e.Diagnostics)
}

// Mode selects between running a fresh execution and reusing the last one.
type Mode int

const (
	ModeFresh Mode = iota
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "fresh"
}

// Status is one status poll response.
type Status struct {
	State       model.JobState
	Diagnostics string
}

// ResultSet is the output of a completed execution.
type ResultSet struct {
	QueryID          string
	ExecutionID      string
	Rows             []model.EmissionRecord
	ExecutionEndedAt time.Time
}

func (r ResultSet) clone() ResultSet {
	rows := make([]model.EmissionRecord, len(r.Rows))
	copy(rows, r.Rows)
	r.Rows = rows
	return r
}

// Backend is a provider speaking the execute/status/results protocol.
type Backend interface {
	Execute(ctx context.Context, queryID string) (executionID string, err error)
	Status(ctx context.Context, executionID string) (Status, error)
	Results(ctx context.Context, executionID string) (ResultSet, error)
	LatestResults(ctx context.Context, queryID string) (ResultSet, error)
}

// Poller runs executions against one backend and remembers the last
// completed result set per query.
type Poller struct {
	Backend  Backend
	Interval time.Duration
	MaxPolls int
	Metrics  *observability.Metrics

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	mu   sync.RWMutex
	last map[string]ResultSet
}

// New creates a poller. Non-positive interval or budget fall back to the defaults.
func New(backend Backend, interval time.Duration, maxPolls int) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return &Poller{
		Backend:  backend,
		Interval: interval,
		MaxPolls: maxPolls,
		Sleep:    fetcher.SleepContext,
		Now:      time.Now,
		last:     make(map[string]ResultSet),
	}
}

// Submit triggers an execution of queryID.
func (p *Poller) Submit(ctx context.Context, queryID string) (*model.JobExecution, error) {
	id, err := p.Backend.Execute(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("submit query %s: %w", queryID, err)
	}
	if id == "" {
		return nil, fmt.Errorf("submit query %s: empty execution id", queryID)
	}
	log.Printf("[INFO] [query:%s] execution=%s status=submitted", queryID, id)
	return &model.JobExecution{
		ID:          id,
		QueryID:     queryID,
		State:       model.JobPending,
		SubmittedAt: p.Now(),
	}, nil
}

// AwaitCompletion polls exec until it completes, fails or the budget runs
// out. The interval is slept between polls only, so a completion on poll n
// costs n-1 waits.
func (p *Poller) AwaitCompletion(ctx context.Context, exec *model.JobExecution) (ResultSet, error) {
	for poll := 1; poll <= p.MaxPolls; poll++ {
		if poll > 1 {
			if err := p.Sleep(ctx, p.Interval); err != nil {
				return ResultSet{}, fmt.Errorf("poll execution %s: %w", exec.ID, err)
			}
		}

		st, err := p.Backend.Status(ctx, exec.ID)
		exec.Polls = poll
		p.Metrics.ObservePoll(exec.QueryID)
		if err != nil {
			return ResultSet{}, fmt.Errorf("poll execution %s (poll %d): %w", exec.ID, poll, err)
		}
		exec.State = st.State

		switch st.State {
		case model.JobCompleted:
			p.Metrics.ObserveJob(exec.QueryID, string(model.JobCompleted))
			rs, err := p.Backend.Results(ctx, exec.ID)
			if err != nil {
				return ResultSet{}, fmt.Errorf("results for execution %s: %w", exec.ID, err)
			}
			rs.QueryID = exec.QueryID
			rs.ExecutionID = exec.ID
			rs.Rows = model.SortByPeriodDesc(rs.Rows)
			log.Printf("[INFO] [query:%s] execution=%s status=completed polls=%d rows=%d",
				exec.QueryID, exec.ID, poll, len(rs.Rows))
			p.remember(rs)
			return rs.clone(), nil

		case model.JobFailed:
			p.Metrics.ObserveJob(exec.QueryID, string(model.JobFailed))
			log.Printf("[ERROR] [query:%s] execution=%s status=failed polls=%d diagnostics=%q",
				exec.QueryID, exec.ID, poll, st.Diagnostics)
			return ResultSet{}, &JobFailedError{ExecutionID: exec.ID, State: st.State, Diagnostics: st.Diagnostics}
		}
	}

	exec.State = model.JobTimedOut
	p.Metrics.ObserveJob(exec.QueryID, string(model.JobTimedOut))
	log.Printf("[WARN] [query:%s] execution=%s status=timed_out polls=%d", exec.QueryID, exec.ID, exec.Polls)
	return ResultSet{}, fmt.Errorf("execution %s after %d polls: %w", exec.ID, exec.Polls, ErrJobTimedOut)
}

// Run executes queryID in the given mode. Fallback mode never contacts the
// backend.
func (p *Poller) Run(ctx context.Context, queryID string, mode Mode) (ResultSet, error) {
	if mode == ModeFallback {
		rs, ok := p.Last(queryID)
		if !ok {
			return ResultSet{}, fmt.Errorf("query %s: %w", queryID, ErrNoFallbackResult)
		}
		return rs, nil
	}

	exec, err := p.Submit(ctx, queryID)
	if err != nil {
		return ResultSet{}, err
	}
	return p.AwaitCompletion(ctx, exec)
}

// Latest reads the result of the most recent execution the provider already
// stored, without triggering a new one.
func (p *Poller) Latest(ctx context.Context, queryID string) (ResultSet, error) {
	rs, err := p.Backend.LatestResults(ctx, queryID)
	if err != nil {
		return ResultSet{}, fmt.Errorf("latest results for query %s: %w", queryID, err)
	}
	rs.QueryID = queryID
	rs.Rows = model.SortByPeriodDesc(rs.Rows)
	if len(rs.Rows) > 0 {
		p.remember(rs)
	}
	return rs.clone(), nil
}

// Last returns a copy of the last completed result set held in memory.
func (p *Poller) Last(queryID string) (ResultSet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rs, ok := p.last[queryID]
	if !ok {
		return ResultSet{}, false
	}
	return rs.clone(), true
}

func (p *Poller) remember(rs ResultSet) {
	p.mu.Lock()
	p.last[rs.QueryID] = rs.clone()
	p.mu.Unlock()
}
