package calculator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"SupplySentinel/internal/model"
)

var (
	// ErrInsufficientData means the window holds too few points for a rate.
	ErrInsufficientData = errors.New("insufficient data for inflation calculation")
	// ErrInvalidWindow means a non-positive window was requested.
	ErrInvalidWindow = errors.New("window must be positive")
)

// DefaultWindows are the windows reported in the inflation table; a zero
// entry means all-time (the whole series).
var DefaultWindows = []int{1, 7, 30, 0}

// Annualize scales issuance over days to a yearly percentage of supply.
// A zero or non-finite supply yields 0.
func Annualize(issuance, supply, days float64) float64 {
	if days <= 0 || !finitePositive(supply) {
		return 0
	}
	rate := (issuance * (365 / days) / supply) * 100
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return rate
}

// LastCompleteDays returns up to days records starting from the most recent
// complete day. records must be ordered newest first; a record dated today
// is treated as incomplete and skipped.
func LastCompleteDays(records []model.EmissionRecord, days int, today time.Time) []model.EmissionRecord {
	if len(records) == 0 || days <= 0 {
		return nil
	}
	start := 0
	if records[0].Period.Equal(model.NewDate(today)) {
		start = 1
	}
	end := start + days
	if end > len(records) {
		end = len(records)
	}
	if start >= end {
		return nil
	}
	return records[start:end]
}

// ComputeInflation is the BERA issuance over the last windowDays complete
// days: the absolute burnt BGT, which is minted as BERA, annualised against
// the BERA supply.
func ComputeInflation(series model.EmissionSeries, supply model.SupplySnapshot, windowDays int, today time.Time) (*model.InflationStats, error) {
	return compute(series, supply, windowDays, today, beraIssuance)
}

// ComputeBGTInflation annualises the BGT daily emission against the BGT supply.
func ComputeBGTInflation(series model.EmissionSeries, supply model.SupplySnapshot, windowDays int, today time.Time) (*model.InflationStats, error) {
	return compute(series, supply, windowDays, today, bgtIssuance)
}

// ComputeCombinedInflation adds BERA issuance from burns and BGT emission,
// annualised against the summed BERA and BGT supplies.
func ComputeCombinedInflation(series model.EmissionSeries, bera, bgt model.SupplySnapshot, windowDays int, today time.Time) (*model.InflationStats, error) {
	return compute(series, bera.Add(bgt), windowDays, today, func(r model.EmissionRecord) float64 {
		return beraIssuance(r) + bgtIssuance(r)
	})
}

func beraIssuance(r model.EmissionRecord) float64 { return math.Abs(r.BurntAmount) }

func bgtIssuance(r model.EmissionRecord) float64 { return r.DailyEmission }

func compute(series model.EmissionSeries, supply model.SupplySnapshot, windowDays int, today time.Time, issued func(model.EmissionRecord) float64) (*model.InflationStats, error) {
	if windowDays <= 0 {
		return nil, ErrInvalidWindow
	}
	window := LastCompleteDays(series.Records, windowDays, today)
	if len(window) == 0 {
		return nil, fmt.Errorf("%dd window: %w", windowDays, ErrInsufficientData)
	}

	var absolute float64
	for _, r := range window {
		absolute += issued(r)
	}
	days := float64(windowDays)
	return &model.InflationStats{
		Period:                   fmt.Sprintf("%dd", windowDays),
		WindowDays:               windowDays,
		ActualDays:               float64(len(window)),
		AbsoluteIssuance:         absolute,
		InflationRateCirculating: Annualize(absolute, supply.CirculatingSupply, days),
		InflationRateTotal:       Annualize(absolute, supply.TotalSupply, days),
	}, nil
}

// ComputeGenesisInflation annualises BERA issuance from the first complete
// record on or after genesis to the most recent complete one, over the actual
// elapsed days rather than a fixed window.
func ComputeGenesisInflation(series model.EmissionSeries, supply model.SupplySnapshot, genesis, today time.Time) (*model.InflationStats, error) {
	complete := LastCompleteDays(series.Records, len(series.Records), today)

	var window []model.EmissionRecord
	for _, r := range complete {
		if r.Period.Before(genesis) {
			break
		}
		window = append(window, r)
	}
	if len(window) < 2 {
		return nil, fmt.Errorf("since genesis: %w", ErrInsufficientData)
	}

	first, last := window[len(window)-1], window[0]
	elapsed := first.Period.DaysUntil(last.Period)
	if elapsed < 1 {
		return nil, fmt.Errorf("since genesis: %w", ErrInsufficientData)
	}

	var absolute float64
	for _, r := range window {
		absolute += beraIssuance(r)
	}
	return &model.InflationStats{
		Period:                   "genesis",
		WindowDays:               len(window),
		ActualDays:               elapsed,
		AbsoluteIssuance:         absolute,
		InflationRateCirculating: Annualize(absolute, supply.CirculatingSupply, elapsed),
		InflationRateTotal:       Annualize(absolute, supply.TotalSupply, elapsed),
	}, nil
}

// StatsTable computes one row per window; a zero window means the whole
// series. Windows without data are left out.
func StatsTable(kind model.InflationKind, series model.EmissionSeries, bera, bgt model.SupplySnapshot, today time.Time, windows ...int) []model.InflationStats {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	rows := make([]model.InflationStats, 0, len(windows))
	for _, w := range windows {
		days := w
		if days == 0 {
			days = series.Len()
		}
		stats, err := ForKind(kind, series, bera, bgt, days, today)
		if err != nil {
			continue
		}
		if w == 0 {
			stats.Period = "all"
		}
		rows = append(rows, *stats)
	}
	return rows
}

// ForKind dispatches to the calculator for kind.
func ForKind(kind model.InflationKind, series model.EmissionSeries, bera, bgt model.SupplySnapshot, windowDays int, today time.Time) (*model.InflationStats, error) {
	switch kind {
	case model.KindBera:
		return ComputeInflation(series, bera, windowDays, today)
	case model.KindBGT:
		return ComputeBGTInflation(series, bgt, windowDays, today)
	case model.KindCombined:
		return ComputeCombinedInflation(series, bera, bgt, windowDays, today)
	default:
		return nil, fmt.Errorf("unknown inflation kind %q", kind)
	}
}

// BeraTotalSupply is the genesis BERA supply plus every BERA minted from
// burnt BGT in records.
func BeraTotalSupply(records []model.EmissionRecord, genesisSupply float64) float64 {
	total := genesisSupply
	for _, r := range records {
		total += math.Abs(r.BurntAmount)
	}
	return total
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
