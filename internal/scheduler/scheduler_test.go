package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplySentinel/internal/aggregator"
	"SupplySentinel/internal/model"
)

type fakeService struct {
	report    *aggregator.RefreshReport
	backupErr error
	checks    []aggregator.SupplyCheck
	triggers  []string
	kinds     []model.InflationKind
	windows   []int
}

func (f *fakeService) ForceRefreshAll(_ context.Context, trigger string) *aggregator.RefreshReport {
	f.triggers = append(f.triggers, trigger)
	r := *f.report
	r.Trigger = trigger
	return &r
}

func (f *fakeService) SyncBackup(context.Context) (*model.BackupSnapshot, error) {
	if f.backupErr != nil {
		return nil, f.backupErr
	}
	return &model.BackupSnapshot{Emissions: make([]model.EmissionRecord, 3), Source: model.SourceLive}, nil
}

func (f *fakeService) CheckSupply(context.Context) []aggregator.SupplyCheck { return f.checks }

func (f *fakeService) Status() []aggregator.Metric {
	return []aggregator.Metric{{Key: "emissions"}}
}

func (f *fakeService) GetInflation(_ context.Context, days int, kind model.InflationKind) (*aggregator.InflationReport, error) {
	f.kinds = append(f.kinds, kind)
	f.windows = append(f.windows, days)
	return &aggregator.InflationReport{Kind: kind, Stats: &model.InflationStats{Period: "7d", AbsoluteIssuance: 70}}, nil
}

func (f *fakeService) GetInflationTable(_ context.Context, kind model.InflationKind) (*aggregator.InflationReport, error) {
	f.kinds = append(f.kinds, kind)
	return &aggregator.InflationReport{Kind: kind, Table: []model.InflationStats{{Period: "1d"}}}, nil
}

func (f *fakeService) GenesisInflation(context.Context) (*aggregator.InflationReport, error) {
	return nil, errors.New("dune <down>")
}

func (f *fakeService) GetAllChains(context.Context, ...string) *aggregator.ChainsReport {
	return &aggregator.ChainsReport{Chains: []aggregator.ChainReport{{ID: "solana", Error: "exhausted"}}}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func (n *recordingNotifier) SendWithRetry(ctx context.Context, text string, _ int) error {
	return n.Send(ctx, text)
}

func newTestScheduler(svc *fakeService) (*Scheduler, *recordingNotifier) {
	n := &recordingNotifier{}
	s := NewScheduler(context.Background(), svc, n)
	s.Now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return s, n
}

func healthyReport() *aggregator.RefreshReport {
	return &aggregator.RefreshReport{Metrics: []aggregator.MetricStatus{{Metric: aggregator.Metric{Key: "emissions"}}}}
}

func TestRegisterAll(t *testing.T) {
	s, _ := newTestScheduler(&fakeService{report: healthyReport()})

	require.NoError(t, s.RegisterAll(Schedule{Refresh: "0 */15 * * * *", SupplyCheck: "0 0 * * * *"}))
	assert.Len(t, s.Cron.Entries(), 2)

	err := s.RegisterAll(Schedule{Refresh: "every minute"})
	assert.ErrorContains(t, err, "register refresh task")
}

func TestRefresh_AlertsOnlyWhenDegraded(t *testing.T) {
	svc := &fakeService{report: healthyReport()}
	s, n := newTestScheduler(svc)

	report := s.RunRefreshNow()
	assert.Equal(t, "startup", report.Trigger)
	assert.Empty(t, n.sent)

	svc.report = &aggregator.RefreshReport{Failed: 1, Metrics: []aggregator.MetricStatus{
		{Metric: aggregator.Metric{Key: "emissions"}, Error: "exhausted"},
	}}
	s.refreshTask()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "emissions: exhausted")
	assert.Equal(t, []string{"startup", "cron"}, svc.triggers)
}

func TestBackupTask(t *testing.T) {
	svc := &fakeService{report: healthyReport(), backupErr: aggregator.ErrStaleEmissions}
	s, n := newTestScheduler(svc)

	s.backupTask()
	assert.Empty(t, n.sent, "stale series is skipped quietly")

	svc.backupErr = errors.New("redis down")
	s.backupTask()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "Backup sync failed: redis down")
}

func TestSupplyCheckTask(t *testing.T) {
	svc := &fakeService{report: healthyReport(), checks: []aggregator.SupplyCheck{{Token: "bera", Delta: 2}}}
	s, n := newTestScheduler(svc)

	s.supplyCheckTask()
	assert.Empty(t, n.sent)

	svc.checks = append(svc.checks, aggregator.SupplyCheck{Token: "bgt", Delta: 25, Mismatch: true})
	s.supplyCheckTask()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "BGT")
}

func TestHandleCommand(t *testing.T) {
	svc := &fakeService{report: healthyReport()}
	s, _ := newTestScheduler(svc)
	ctx := context.Background()

	assert.Contains(t, s.HandleCommand(ctx, "/status"), "emissions: not cached")
	assert.Contains(t, s.HandleCommand(ctx, "/refresh@sentinel_bot"), "Trigger: command")
	assert.Contains(t, s.HandleCommand(ctx, "/chains"), "solana: data unavailable")
	assert.Contains(t, s.HandleCommand(ctx, "/backup"), "Records: 3")
	assert.Contains(t, s.HandleCommand(ctx, "/genesis"), "dune &lt;down&gt;")
	assert.Contains(t, s.HandleCommand(ctx, "/supply"), "Supply consistent")
	assert.Contains(t, s.HandleCommand(ctx, "hello"), "Available commands")
	assert.Contains(t, s.HandleCommand(ctx, ""), "Available commands")
}

func TestHandleCommand_Inflation(t *testing.T) {
	svc := &fakeService{report: healthyReport()}
	s, _ := newTestScheduler(svc)
	ctx := context.Background()

	assert.Contains(t, s.HandleCommand(ctx, "/inflation"), "BERA inflation")
	assert.Contains(t, s.HandleCommand(ctx, "/inflation bgt 7"), "BGT inflation, 7d")
	assert.Contains(t, s.HandleCommand(ctx, "/inflation combined 0"), "invalid window")
	assert.Contains(t, s.HandleCommand(ctx, "/inflation doge"), "Unknown kind")

	assert.Equal(t, []model.InflationKind{model.KindBera, model.KindBGT}, svc.kinds)
	assert.Equal(t, []int{7}, svc.windows)
}
