package model

import "time"

// Backup sources.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// BackupSnapshot is the last known-good emission series kept on durable storage.
type BackupSnapshot struct {
	Emissions   []EmissionRecord `json:"emissions"`
	LastUpdated time.Time        `json:"lastUpdated"`
	LastSynced  time.Time        `json:"lastSynced"`
	Source      string           `json:"source"`
}

// Series converts the snapshot into an emission series.
func (b BackupSnapshot) Series() EmissionSeries {
	return NewEmissionSeries(b.Emissions, b.LastUpdated)
}
