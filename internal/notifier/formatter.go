package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"SupplySentinel/internal/aggregator"
	"SupplySentinel/internal/model"
)

// FormatRefreshReport formats a refresh cycle summary into a Telegram message.
func FormatRefreshReport(r *aggregator.RefreshReport) string {
	var b strings.Builder

	icon := "✅"
	if r.Degraded() {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>SupplySentinel refresh</b> | %s\n\n", icon, r.StartedAt.UTC().Format("2006-01-02 15:04 UTC")))
	b.WriteString(fmt.Sprintf("Trigger: %s | Metrics: %d | Stale: %d | Failed: %d\n",
		html.EscapeString(r.Trigger), len(r.Metrics), r.Stale, r.Failed))

	for _, m := range r.Metrics {
		switch {
		case m.Failed():
			b.WriteString(fmt.Sprintf("  ❌ %s: %s\n", m.Key, html.EscapeString(m.Error)))
		case m.Stale:
			b.WriteString(fmt.Sprintf("  🕒 %s: stale from %s (%s)\n", m.Key, m.Source, age(r.StartedAt, m.FetchedAt)))
		}
	}

	switch {
	case r.BackupWritten:
		b.WriteString("\nBackup: written")
	case r.BackupError != "":
		b.WriteString(fmt.Sprintf("\nBackup: failed (%s)", html.EscapeString(r.BackupError)))
	default:
		b.WriteString("\nBackup: skipped")
	}
	b.WriteString(fmt.Sprintf("\nDuration: %s", r.Duration.Round(time.Millisecond)))
	return b.String()
}

// FormatStatus formats the cache view of every metric.
func FormatStatus(metrics []aggregator.Metric, now time.Time) string {
	var b strings.Builder
	b.WriteString("📦 <b>Cache status</b>\n\n")
	for _, m := range metrics {
		if m.Source == "" {
			b.WriteString(fmt.Sprintf("▫️ %s: not cached\n", m.Key))
			continue
		}
		icon := "🟢"
		if m.Stale {
			icon = "🟡"
		}
		b.WriteString(fmt.Sprintf("%s %s: %s, %s old\n", icon, m.Key, m.Source, age(now, m.FetchedAt)))
	}
	return b.String()
}

// FormatInflationTable formats the per-window inflation rows of a report.
func FormatInflationTable(r *aggregator.InflationReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s inflation</b>\n\n", r.Kind))
	if len(r.Table) == 0 {
		b.WriteString("Not enough emission data yet.\n")
	}
	for _, st := range r.Table {
		b.WriteString(formatStats(st))
	}
	b.WriteString(formatSupply(r))
	return b.String()
}

// FormatInflation formats a single inflation figure, such as since genesis.
func FormatInflation(title string, r *aggregator.InflationReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b>\n\n", html.EscapeString(title)))
	if r.Stats == nil {
		b.WriteString("Not enough emission data yet.\n")
	} else {
		b.WriteString(formatStats(*r.Stats))
		b.WriteString(fmt.Sprintf("Days elapsed: %.0f\n", r.Stats.ActualDays))
	}
	b.WriteString(formatSupply(r))
	return b.String()
}

func formatStats(st model.InflationStats) string {
	return fmt.Sprintf("%-4s %14.2f | circ %.2f%% | total %.2f%%\n",
		st.Period, st.AbsoluteIssuance, st.InflationRateCirculating, st.InflationRateTotal)
}

func formatSupply(r *aggregator.InflationReport) string {
	s := fmt.Sprintf("\nCirculating: %.0f\nTotal: %.0f\n", r.Supply.CirculatingSupply, r.Supply.TotalSupply)
	if r.Stale {
		s += fmt.Sprintf("\n⚠️ %s\n", html.EscapeString(r.Warning))
	}
	return s
}

// FormatSupplyMismatch lists the supply checks that crossed the threshold.
// It returns "" when none did.
func FormatSupplyMismatch(checks []aggregator.SupplyCheck) string {
	var b strings.Builder
	for _, c := range checks {
		if !c.Mismatch {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("🔎 <b>Supply mismatch</b>\n\n")
		}
		b.WriteString(fmt.Sprintf("%s: cached %.2f, live %.2f (%+.2f)\n", strings.ToUpper(c.Token), c.Cached, c.Live, c.Delta))
	}
	return b.String()
}

// FormatChains formats the tracked chain overview.
func FormatChains(r *aggregator.ChainsReport) string {
	var b strings.Builder
	b.WriteString("🌐 <b>Tracked chains</b>\n\n")
	for _, c := range r.Chains {
		if c.Error != "" {
			b.WriteString(fmt.Sprintf("%s: data unavailable\n", c.ID))
			continue
		}
		m := c.Result.Value
		b.WriteString(fmt.Sprintf("%s: $%.4f | mcap $%.0f | circ %.0f\n", m.Symbol, m.Price, m.MarketCap, m.CirculatingSupply))
	}
	if r.Warning != "" {
		b.WriteString(fmt.Sprintf("\n⚠️ %s", r.Warning))
	}
	return b.String()
}

// FormatBackup confirms a backup sync.
func FormatBackup(snap *model.BackupSnapshot) string {
	return fmt.Sprintf("💾 <b>Backup synced</b>\n\nRecords: %d\nData as of: %s",
		len(snap.Emissions), snap.LastUpdated.UTC().Format("2006-01-02 15:04 UTC"))
}

func age(now, at time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	d := now.Sub(at)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}
