package recorder

import "time"

// RefreshRun summarises one refresh cycle.
type RefreshRun struct {
	Trigger       string // "cron", "startup", "command", "manual"
	StartedAt     time.Time
	Duration      time.Duration
	Metrics       int
	Stale         int
	Failed        int
	BackupWritten bool
}

// MetricEvent records how one metric was served during a refresh.
type MetricEvent struct {
	Key     string
	Source  string
	Stale   bool
	Warning string
	Error   string
}

// InflationSnapshot is one row of a computed inflation table.
type InflationSnapshot struct {
	Kind            string // "BERA", "BGT", "BERA+BGT"
	Period          string
	WindowDays      int
	Absolute        float64
	RateCirculating float64
	RateTotal       float64
}

// SupplyCheckEvent records a cached-vs-live supply comparison.
type SupplyCheckEvent struct {
	Token    string
	Cached   float64
	Live     float64
	Delta    float64
	Mismatch bool
}

// Recorder persists refresh history for later analysis.
type Recorder interface {
	RecordRefresh(run *RefreshRun) error
	RecordMetric(evt *MetricEvent) error
	RecordInflation(rows []InflationSnapshot) error
	RecordSupplyCheck(evt *SupplyCheckEvent) error
	Close() error
}
