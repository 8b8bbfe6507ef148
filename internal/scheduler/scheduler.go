package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"SupplySentinel/internal/aggregator"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/notifier"
)

// Aggregator is the part of aggregator.Service the scheduler drives.
type Aggregator interface {
	ForceRefreshAll(ctx context.Context, trigger string) *aggregator.RefreshReport
	SyncBackup(ctx context.Context) (*model.BackupSnapshot, error)
	CheckSupply(ctx context.Context) []aggregator.SupplyCheck
	Status() []aggregator.Metric
	GetInflation(ctx context.Context, windowDays int, kind model.InflationKind) (*aggregator.InflationReport, error)
	GetInflationTable(ctx context.Context, kind model.InflationKind) (*aggregator.InflationReport, error)
	GenesisInflation(ctx context.Context) (*aggregator.InflationReport, error)
	GetAllChains(ctx context.Context, exclude ...string) *aggregator.ChainsReport
}

var _ Aggregator = (*aggregator.Service)(nil)

// Schedule holds the cron expressions (with seconds). An empty expression
// disables the task.
type Schedule struct {
	Refresh     string
	BackupSync  string
	SupplyCheck string
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Service  Aggregator
	Notifier notifier.Notifier
	Ctx      context.Context
	Now      func() time.Time

	// AlertOnDegraded sends the refresh report when any metric is stale or failed.
	AlertOnDegraded bool
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, svc Aggregator, n notifier.Notifier) *Scheduler {
	return &Scheduler{
		Cron:            cron.New(cron.WithSeconds()),
		Service:         svc,
		Notifier:        n,
		Ctx:             ctx,
		Now:             time.Now,
		AlertOnDegraded: true,
	}
}

// RegisterAll registers the refresh, backup sync and supply check tasks.
func (s *Scheduler) RegisterAll(sched Schedule) error {
	tasks := []struct {
		name string
		spec string
		fn   func()
	}{
		{"refresh", sched.Refresh, s.refreshTask},
		{"backup sync", sched.BackupSync, s.backupTask},
		{"supply check", sched.SupplyCheck, s.supplyCheckTask},
	}
	for _, t := range tasks {
		if t.spec == "" {
			log.Printf("[INFO] %s task disabled", t.name)
			continue
		}
		if _, err := s.Cron.AddFunc(t.spec, t.fn); err != nil {
			return fmt.Errorf("register %s task: %w", t.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunRefreshNow executes a full refresh immediately (RUN_ON_START).
func (s *Scheduler) RunRefreshNow() *aggregator.RefreshReport {
	return s.refresh("startup")
}

func (s *Scheduler) refreshTask() {
	s.refresh("cron")
}

func (s *Scheduler) refresh(trigger string) *aggregator.RefreshReport {
	log.Printf("[INFO] running refresh task trigger=%s", trigger)
	report := s.Service.ForceRefreshAll(s.Ctx, trigger)
	if report.Degraded() && s.AlertOnDegraded {
		s.trySend(notifier.FormatRefreshReport(report))
	}
	return report
}

func (s *Scheduler) backupTask() {
	log.Println("[INFO] running backup sync")
	if _, err := s.Service.SyncBackup(s.Ctx); err != nil {
		if errors.Is(err, aggregator.ErrStaleEmissions) {
			return
		}
		log.Printf("[ERROR] backup sync: %v", err)
		s.trySend(failure("Backup sync failed", err))
	}
}

func (s *Scheduler) supplyCheckTask() {
	log.Println("[INFO] running supply check")
	if msg := notifier.FormatSupplyMismatch(s.Service.CheckSupply(s.Ctx)); msg != "" {
		s.trySend(msg)
	}
}

const helpText = `Available commands:
• /status - cache status of every metric
• /refresh - refresh all metrics now
• /inflation [bera|bgt|combined] [days] - inflation table or one window
• /genesis - BERA inflation since genesis
• /chains - tracked chain overview
• /backup - sync the emission backup
• /supply - compare cached and live supply`

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	name, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch name {
	case "/status":
		return notifier.FormatStatus(s.Service.Status(), s.Now())
	case "/refresh":
		return notifier.FormatRefreshReport(s.Service.ForceRefreshAll(ctx, "command"))
	case "/inflation":
		return s.inflation(ctx, args)
	case "/genesis":
		r, err := s.Service.GenesisInflation(ctx)
		if err != nil {
			return failure("Inflation unavailable", err)
		}
		return notifier.FormatInflation("BERA inflation since genesis", r)
	case "/chains":
		return notifier.FormatChains(s.Service.GetAllChains(ctx))
	case "/backup":
		snap, err := s.Service.SyncBackup(ctx)
		if err != nil {
			return failure("Backup not written", err)
		}
		return notifier.FormatBackup(snap)
	case "/supply":
		checks := s.Service.CheckSupply(ctx)
		if msg := notifier.FormatSupplyMismatch(checks); msg != "" {
			return msg
		}
		return fmt.Sprintf("✅ Supply consistent (%d checked)", len(checks))
	default:
		return helpText
	}
}

func (s *Scheduler) inflation(ctx context.Context, args []string) string {
	kind := model.KindBera
	if len(args) > 0 {
		k, err := model.ParseInflationKind(args[0])
		if err != nil {
			return failure("Unknown kind", err)
		}
		kind = k
	}
	if len(args) < 2 {
		r, err := s.Service.GetInflationTable(ctx, kind)
		if err != nil {
			return failure("Inflation unavailable", err)
		}
		return notifier.FormatInflationTable(r)
	}

	days, err := strconv.Atoi(args[1])
	if err != nil || days <= 0 {
		return fmt.Sprintf("❌ invalid window %q", html.EscapeString(args[1]))
	}
	r, err := s.Service.GetInflation(ctx, days, kind)
	if err != nil {
		return failure("Inflation unavailable", err)
	}
	return notifier.FormatInflation(fmt.Sprintf("%s inflation, %dd", kind, days), r)
}

func failure(what string, err error) string {
	return fmt.Sprintf("❌ %s: %s", what, html.EscapeString(err.Error()))
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
