package aggregator

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"SupplySentinel/internal/backup"
	"SupplySentinel/internal/collector"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/recorder"
	"SupplySentinel/internal/resolver"
)

// StaleChainsWarning is attached to GetAllChains when any chain is stale.
const StaleChainsWarning = "Some data may be out of date due to rate limiting or fetch error."

// MetricStatus is the outcome of one metric in a refresh cycle.
type MetricStatus struct {
	Metric
	Error string `json:"error,omitempty"`
}

// Failed reports whether the metric could not be served at all.
func (m MetricStatus) Failed() bool { return m.Error != "" }

// RefreshReport summarises a ForceRefreshAll call.
type RefreshReport struct {
	Trigger       string         `json:"trigger"`
	StartedAt     time.Time      `json:"startedAt"`
	Duration      time.Duration  `json:"duration"`
	Metrics       []MetricStatus `json:"metrics"`
	Stale         int            `json:"stale"`
	Failed        int            `json:"failed"`
	BackupWritten bool           `json:"backupWritten"`
	BackupError   string         `json:"backupError,omitempty"`
}

// Degraded reports whether any metric was stale or failed.
func (r *RefreshReport) Degraded() bool { return r.Stale > 0 || r.Failed > 0 }

// ForceRefreshAll refreshes every metric concurrently, bypassing TTLs but
// still sharing in-flight fetches, and returns once all have finished. A
// fresh emission series is written to the durable store.
func (s *Service) ForceRefreshAll(ctx context.Context, trigger string) *RefreshReport {
	start := s.now()
	report := &RefreshReport{Trigger: trigger, StartedAt: start, Metrics: make([]MetricStatus, len(s.keys))}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, key := range s.keys {
		i, key := i, key
		g.Go(func() error {
			m, err := s.resolve[key](ctx, true)
			st := MetricStatus{Metric: m}
			if err != nil {
				st.Error = err.Error()
			}
			report.Metrics[i] = st
			return nil
		})
	}
	g.Wait()

	emissionsLive := false
	for _, st := range report.Metrics {
		if st.Key == KeyEmissions {
			emissionsLive = !st.Failed() && !st.Stale && st.Source != SourceBackup && st.Source != collector.ProviderDuneMemory
		}
		switch {
		case st.Failed():
			report.Failed++
		case st.Stale:
			report.Stale++
		}
		evt := &recorder.MetricEvent{Key: st.Key, Source: st.Source, Stale: st.Stale, Warning: st.Warning, Error: st.Error}
		if err := s.rec.RecordMetric(evt); err != nil {
			log.Printf("[WARN] record metric %s: %v", st.Key, err)
		}
	}

	if e, ok := s.emissions.Peek(); ok && emissionsLive && s.store != nil {
		if err := s.writeBackup(ctx, e.Value); err != nil {
			report.BackupError = err.Error()
		} else {
			report.BackupWritten = true
		}
	}

	report.Duration = s.now().Sub(start)
	s.obs.ObserveRefresh(report.Duration.Seconds(), report.Stale+report.Failed, float64(s.now().Unix()))
	if err := s.rec.RecordRefresh(&recorder.RefreshRun{
		Trigger:       trigger,
		StartedAt:     start,
		Duration:      report.Duration,
		Metrics:       len(report.Metrics),
		Stale:         report.Stale,
		Failed:        report.Failed,
		BackupWritten: report.BackupWritten,
	}); err != nil {
		log.Printf("[WARN] record refresh: %v", err)
	}

	log.Printf("[INFO] refresh trigger=%s metrics=%d stale=%d failed=%d backup=%t duration=%s",
		trigger, len(report.Metrics), report.Stale, report.Failed, report.BackupWritten, report.Duration.Round(time.Millisecond))
	return report
}

// SyncBackup refreshes the emission series and writes it to the durable
// store. Nothing is written when only a stale series is available.
func (s *Service) SyncBackup(ctx context.Context) (*model.BackupSnapshot, error) {
	if s.store == nil {
		return nil, ErrNoBackup
	}
	r, err := s.emissions.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync backup: %w", err)
	}
	if r.Stale {
		log.Printf("[WARN] [%s] source=%s status=stale backup=skipped", KeyEmissions, r.Source)
		return nil, ErrStaleEmissions
	}
	snap := backup.NewSnapshot(r.Value, s.now())
	if err := s.store.Write(ctx, snap); err != nil {
		s.obs.ObserveBackupWrite("error")
		return nil, fmt.Errorf("sync backup: %w", err)
	}
	s.obs.ObserveBackupWrite("ok")
	log.Printf("[INFO] backup synced records=%d last_updated=%s", len(snap.Emissions), snap.LastUpdated.Format(time.RFC3339))
	return snap, nil
}

func (s *Service) writeBackup(ctx context.Context, series model.EmissionSeries) error {
	snap := backup.NewSnapshot(series, s.now())
	if err := s.store.Write(ctx, snap); err != nil {
		s.obs.ObserveBackupWrite("error")
		log.Printf("[ERROR] backup write failed: %v", err)
		return err
	}
	s.obs.ObserveBackupWrite("ok")
	return nil
}

// ChainReport is one entry of GetAllChains.
type ChainReport struct {
	ID     string                             `json:"id"`
	Result resolver.Result[model.ChainMarket] `json:"result"`
	Error  string                             `json:"error,omitempty"`
}

// ChainsReport is the combined view over all tracked chains.
type ChainsReport struct {
	Chains  []ChainReport `json:"chains"`
	Warning string        `json:"warning,omitempty"`
}

// GetAllChains resolves every tracked chain not in exclude concurrently. A
// failing chain is reported in its entry and never fails the whole call.
func (s *Service) GetAllChains(ctx context.Context, exclude ...string) *ChainsReport {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var ids []string
	for _, id := range s.chainIDs {
		if _, ok := skip[id]; !ok {
			ids = append(ids, id)
		}
	}

	out := &ChainsReport{Chains: make([]ChainReport, len(ids))}
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			r, err := s.chains[id].Resolve(ctx)
			entry := ChainReport{ID: id, Result: r}
			if err != nil {
				entry.Error = err.Error()
			}
			out.Chains[i] = entry
			return nil
		})
	}
	g.Wait()

	for _, c := range out.Chains {
		if c.Result.Stale {
			out.Warning = StaleChainsWarning
			break
		}
	}
	return out
}

// SupplyCheck compares a cached supply with a live re-fetch.
type SupplyCheck struct {
	Token    string  `json:"token"`
	Cached   float64 `json:"cached"`
	Live     float64 `json:"live"`
	Delta    float64 `json:"delta"`
	Mismatch bool    `json:"mismatch"`
}

// CheckSupply re-fetches BERA and BGT supply and reports circulating supply
// differences above the threshold. It is informational: the refreshed value
// simply replaces the cached one and no correction is attempted.
func (s *Service) CheckSupply(ctx context.Context) []SupplyCheck {
	var checks []SupplyCheck
	for _, token := range []string{collector.TokenBERA, collector.TokenBGT} {
		ch := s.supply[token]
		before, ok := ch.Peek()
		if !ok {
			continue
		}
		after, err := ch.Refresh(ctx)
		if err != nil || after.Stale {
			continue
		}

		c := SupplyCheck{
			Token:  token,
			Cached: before.Value.CirculatingSupply,
			Live:   after.Value.CirculatingSupply,
		}
		c.Delta = c.Live - c.Cached
		c.Mismatch = math.Abs(c.Delta) > s.threshold
		if c.Mismatch {
			log.Printf("[WARN] [supply:%s] mismatch cached=%.2f live=%.2f delta=%.2f", token, c.Cached, c.Live, c.Delta)
		}
		if err := s.rec.RecordSupplyCheck(&recorder.SupplyCheckEvent{
			Token: token, Cached: c.Cached, Live: c.Live, Delta: c.Delta, Mismatch: c.Mismatch,
		}); err != nil {
			log.Printf("[WARN] record supply check: %v", err)
		}
		checks = append(checks, c)
	}
	return checks
}
