// Package backup keeps the last known-good emission series on durable
// storage so it survives restarts and can be served when every live
// provider fails.
package backup

import (
	"context"
	"errors"
	"time"

	"SupplySentinel/internal/model"
)

// ErrEmptySnapshot is returned when asked to persist a snapshot without records.
var ErrEmptySnapshot = errors.New("refusing to back up an empty emission series")

// Store is a single durable cell holding one BackupSnapshot.
type Store interface {
	// Read returns the stored snapshot, or nil with no error when nothing
	// has been written yet.
	Read(ctx context.Context) (*model.BackupSnapshot, error)
	Write(ctx context.Context, snap *model.BackupSnapshot) error
}

// NewSnapshot builds a live snapshot of series synced at now.
func NewSnapshot(series model.EmissionSeries, now time.Time) *model.BackupSnapshot {
	updated := series.LastUpdated
	if updated.IsZero() {
		updated = now
	}
	return &model.BackupSnapshot{
		Emissions:   series.Clone().Records,
		LastUpdated: updated.UTC(),
		LastSynced:  now.UTC(),
		Source:      model.SourceLive,
	}
}

func validate(snap *model.BackupSnapshot) error {
	if snap == nil || len(snap.Emissions) == 0 {
		return ErrEmptySnapshot
	}
	return nil
}
