package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplySentinel/internal/model"
)

type fakeBackend struct {
	mu         sync.Mutex
	states     []Status
	statusCall int
	executes   int
	rows       []model.EmissionRecord
	latest     []model.EmissionRecord
	executeErr error
	statusErr  error
}

func (f *fakeBackend) Execute(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executes++
	if f.executeErr != nil {
		return "", f.executeErr
	}
	return "01HEXEC", nil
}

func (f *fakeBackend) Status(context.Context, string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return Status{}, f.statusErr
	}
	i := f.statusCall
	f.statusCall++
	if i >= len(f.states) {
		return Status{State: model.JobExecuting}, nil
	}
	return f.states[i], nil
}

func (f *fakeBackend) Results(context.Context, string) (ResultSet, error) {
	return ResultSet{Rows: f.rows, ExecutionEndedAt: time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC)}, nil
}

func (f *fakeBackend) LatestResults(context.Context, string) (ResultSet, error) {
	return ResultSet{Rows: f.latest}, nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestPoller(b Backend) (*Poller, *sleepRecorder) {
	p := New(b, time.Second, 30)
	rec := &sleepRecorder{}
	p.Sleep = rec.Sleep
	p.Now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return p, rec
}

func rec(day string, burnt float64) model.EmissionRecord {
	return model.EmissionRecord{Period: model.MustDate(day), BurntAmount: burnt}
}

func TestRun_CompletesOnThirdPoll(t *testing.T) {
	b := &fakeBackend{
		states: []Status{{State: model.JobPending}, {State: model.JobExecuting}, {State: model.JobCompleted}},
		rows:   []model.EmissionRecord{rec("2025-06-01", 50), rec("2025-06-02", 100)},
	}
	p, sleeps := newTestPoller(b)

	exec, err := p.Submit(context.Background(), "4740951")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, exec.State)

	rs, err := p.AwaitCompletion(context.Background(), exec)
	require.NoError(t, err)

	assert.Equal(t, 3, exec.Polls)
	assert.Equal(t, model.JobCompleted, exec.State)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps.waits)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, "2025-06-02", rs.Rows[0].Period.String())
	assert.Equal(t, "01HEXEC", rs.ExecutionID)
	assert.Equal(t, "4740951", rs.QueryID)
}

func TestAwaitCompletion_FailedOnFirstPoll(t *testing.T) {
	b := &fakeBackend{states: []Status{{State: model.JobFailed, Diagnostics: "line 3: column not found"}}}
	p, sleeps := newTestPoller(b)

	_, err := p.Run(context.Background(), "4740951", ModeFresh)
	require.Error(t, err)

	var jf *JobFailedError
	require.True(t, errors.As(err, &jf))
	assert.Equal(t, "01HEXEC", jf.ExecutionID)
	assert.Contains(t, jf.Diagnostics, "column not found")
	assert.Equal(t, 1, b.statusCall)
	assert.Empty(t, sleeps.waits)
	assert.False(t, errors.Is(err, ErrJobTimedOut))
}

func TestAwaitCompletion_TimesOutAfterBudget(t *testing.T) {
	b := &fakeBackend{}
	p, sleeps := newTestPoller(b)

	exec, err := p.Submit(context.Background(), "4740951")
	require.NoError(t, err)
	_, err = p.AwaitCompletion(context.Background(), exec)

	assert.ErrorIs(t, err, ErrJobTimedOut)
	assert.Equal(t, model.JobTimedOut, exec.State)
	assert.Equal(t, 30, exec.Polls)
	assert.Equal(t, 30, b.statusCall)
	assert.Len(t, sleeps.waits, 29)
}

func TestAwaitCompletion_StatusErrorStopsPolling(t *testing.T) {
	b := &fakeBackend{statusErr: errors.New("HTTP 401")}
	p, _ := newTestPoller(b)

	_, err := p.Run(context.Background(), "4740951", ModeFresh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestAwaitCompletion_CancelledWhileWaiting(t *testing.T) {
	b := &fakeBackend{}
	p, _ := newTestPoller(b)
	ctx, cancel := context.WithCancel(context.Background())
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := p.Run(ctx, "4740951", ModeFresh)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.statusCall)
}

func TestRun_FallbackModeReusesLastResult(t *testing.T) {
	b := &fakeBackend{
		states: []Status{{State: model.JobCompleted}},
		rows:   []model.EmissionRecord{rec("2025-06-01", 50)},
	}
	p, _ := newTestPoller(b)

	_, err := p.Run(context.Background(), "4740951", ModeFallback)
	assert.ErrorIs(t, err, ErrNoFallbackResult)

	_, err = p.Run(context.Background(), "4740951", ModeFresh)
	require.NoError(t, err)
	assert.Equal(t, 1, b.executes)

	rs, err := p.Run(context.Background(), "4740951", ModeFallback)
	require.NoError(t, err)
	assert.Equal(t, 1, b.executes, "fallback mode must not submit")
	require.Len(t, rs.Rows, 1)

	rs.Rows[0].BurntAmount = 999
	again, ok := p.Last("4740951")
	require.True(t, ok)
	assert.Equal(t, 50.0, again.Rows[0].BurntAmount)
}

func TestSubmit_ExecuteError(t *testing.T) {
	b := &fakeBackend{executeErr: errors.New("HTTP 402")}
	p, _ := newTestPoller(b)

	_, err := p.Submit(context.Background(), "4740951")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit query 4740951")
}

func TestLatest_SortsRowsDescending(t *testing.T) {
	b := &fakeBackend{latest: []model.EmissionRecord{
		rec("2025-05-30", 1),
		rec("2025-06-01", 3),
		rec("2025-05-31", 2),
		rec("2025-06-01", 9),
	}}
	p, _ := newTestPoller(b)

	rs, err := p.Latest(context.Background(), "4740951")
	require.NoError(t, err)
	require.Len(t, rs.Rows, 3)
	for i := 1; i < len(rs.Rows); i++ {
		assert.True(t, rs.Rows[i-1].Period.After(rs.Rows[i].Period.Time), "rows must be strictly descending")
	}
	assert.Equal(t, 3.0, rs.Rows[0].BurntAmount, "first duplicate wins")

	_, ok := p.Last("4740951")
	assert.True(t, ok)
}
