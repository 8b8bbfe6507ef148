package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplySentinel/internal/model"
)

func day(s string) time.Time { return model.MustDate(s).Time }

func series(records ...model.EmissionRecord) model.EmissionSeries {
	return model.NewEmissionSeries(records, time.Time{})
}

func emission(period string, burnt, daily float64) model.EmissionRecord {
	return model.EmissionRecord{Period: model.MustDate(period), BurntAmount: burnt, DailyEmission: daily}
}

func TestComputeInflation_SkipsIncompleteToday(t *testing.T) {
	s := series(emission("2025-06-02", 100, 0), emission("2025-06-01", 50, 0))
	supply := model.SupplySnapshot{CirculatingSupply: 1000, TotalSupply: 2000}

	stats, err := ComputeInflation(s, supply, 1, day("2025-06-02").Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 50.0, stats.AbsoluteIssuance)
	assert.Equal(t, 1825.0, stats.InflationRateCirculating)
	assert.Equal(t, 912.5, stats.InflationRateTotal)
	assert.Equal(t, "1d", stats.Period)
}

func TestComputeInflation_LatestDayCompleteWhenNotToday(t *testing.T) {
	s := series(emission("2025-06-02", 100, 0), emission("2025-06-01", 50, 0))
	supply := model.SupplySnapshot{CirculatingSupply: 1000, TotalSupply: 2000}

	stats, err := ComputeInflation(s, supply, 1, day("2025-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.AbsoluteIssuance)
}

func TestComputeInflation_UsesAbsoluteBurnt(t *testing.T) {
	s := series(
		emission("2025-06-01", -30, 0),
		emission("2025-05-31", 20, 0),
		emission("2025-05-30", -10, 0),
	)
	supply := model.SupplySnapshot{CirculatingSupply: 365, TotalSupply: 730}

	stats, err := ComputeInflation(s, supply, 7, day("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 60.0, stats.AbsoluteIssuance)
	assert.Equal(t, 3.0, stats.ActualDays)
	assert.InDelta(t, (60*365.0/7)/365*100, stats.InflationRateCirculating, 1e-9)
}

func TestComputeInflation_EmptyWindowIsUnavailable(t *testing.T) {
	supply := model.SupplySnapshot{CirculatingSupply: 1000, TotalSupply: 2000}

	stats, err := ComputeInflation(series(), supply, 7, day("2025-06-02"))
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// Only today's incomplete record.
	stats, err = ComputeInflation(series(emission("2025-06-02", 100, 0)), supply, 1, day("2025-06-02"))
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeInflation_InvalidWindow(t *testing.T) {
	_, err := ComputeInflation(series(emission("2025-06-01", 1, 0)), model.SupplySnapshot{}, 0, day("2025-06-02"))
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestComputeInflation_ZeroOrNonFiniteSupplyYieldsZero(t *testing.T) {
	s := series(emission("2025-06-01", 50, 0))
	tests := []struct {
		name   string
		supply model.SupplySnapshot
	}{
		{"zero", model.SupplySnapshot{}},
		{"nan", model.SupplySnapshot{CirculatingSupply: math.NaN(), TotalSupply: math.NaN()}},
		{"inf", model.SupplySnapshot{CirculatingSupply: math.Inf(1), TotalSupply: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := ComputeInflation(s, tt.supply, 1, day("2025-06-02"))
			require.NoError(t, err)
			assert.Equal(t, 0.0, stats.InflationRateCirculating)
			assert.Equal(t, 0.0, stats.InflationRateTotal)
			assert.Equal(t, 50.0, stats.AbsoluteIssuance)
		})
	}
}

func TestComputeBGTInflation_SumsDailyEmission(t *testing.T) {
	s := series(emission("2025-06-01", 5, 40), emission("2025-05-31", 5, 60))
	supply := model.SupplySnapshot{CirculatingSupply: 10000, TotalSupply: 10000}

	stats, err := ComputeBGTInflation(s, supply, 2, day("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.AbsoluteIssuance)
	assert.InDelta(t, 182.5, stats.InflationRateCirculating, 1e-9)
}

func TestComputeCombinedInflation(t *testing.T) {
	s := series(emission("2025-06-01", -50, 100))
	bera := model.SupplySnapshot{CirculatingSupply: 1000, TotalSupply: 2000}
	bgt := model.SupplySnapshot{CirculatingSupply: 500, TotalSupply: 1000}

	stats, err := ComputeCombinedInflation(s, bera, bgt, 1, day("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 150.0, stats.AbsoluteIssuance)
	assert.InDelta(t, 150*365.0/1500*100, stats.InflationRateCirculating, 1e-9)
	assert.InDelta(t, 150*365.0/3000*100, stats.InflationRateTotal, 1e-9)
}

func TestComputeInflation_NegativeRatePassesThrough(t *testing.T) {
	assert.Less(t, Annualize(-10, 100, 10), 0.0)
}

func TestComputeGenesisInflation_UsesActualElapsedDays(t *testing.T) {
	s := series(
		emission("2025-01-31", 10, 0),
		emission("2025-01-25", 10, 0),
		emission("2025-01-21", 10, 0),
		emission("2025-01-20", 999, 0), // before 14:00 UTC genesis
		emission("2025-01-19", 999, 0),
	)
	supply := model.SupplySnapshot{CirculatingSupply: 1000, TotalSupply: 1000}

	stats, err := ComputeGenesisInflation(s, supply, model.BerachainGenesis, day("2025-02-10"))
	require.NoError(t, err)
	assert.Equal(t, 30.0, stats.AbsoluteIssuance)
	assert.Equal(t, 10.0, stats.ActualDays)
	assert.InDelta(t, 30*36.5/1000*100, stats.InflationRateCirculating, 1e-9)
}

func TestComputeGenesisInflation_SinglePointUnavailable(t *testing.T) {
	s := series(emission("2025-01-31", 10, 0), emission("2025-01-10", 10, 0))
	_, err := ComputeGenesisInflation(s, model.SupplySnapshot{CirculatingSupply: 1, TotalSupply: 1}, model.BerachainGenesis, day("2025-02-10"))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestStatsTable_AllTimeUsesSeriesLength(t *testing.T) {
	s := series(
		emission("2025-06-02", 100, 0),
		emission("2025-06-01", 50, 0),
		emission("2025-05-31", 50, 0),
	)
	supply := model.SupplySnapshot{CirculatingSupply: 1000, TotalSupply: 2000}

	rows := StatsTable(model.KindBera, s, supply, model.SupplySnapshot{}, day("2025-06-02"))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"1d", "7d", "30d", "all"}, []string{rows[0].Period, rows[1].Period, rows[2].Period, rows[3].Period})
	assert.Equal(t, 3, rows[3].WindowDays)
	assert.Equal(t, 100.0, rows[3].AbsoluteIssuance)
}

func TestStatsTable_SkipsUnavailableWindows(t *testing.T) {
	rows := StatsTable(model.KindBera, series(), model.SupplySnapshot{}, model.SupplySnapshot{}, day("2025-06-02"))
	assert.Empty(t, rows)
}

func TestForKind_Unknown(t *testing.T) {
	_, err := ForKind("DOGE", series(emission("2025-06-01", 1, 1)), model.SupplySnapshot{}, model.SupplySnapshot{}, 1, day("2025-06-02"))
	assert.Error(t, err)
}

func TestBeraTotalSupply(t *testing.T) {
	records := []model.EmissionRecord{emission("2025-06-01", -100, 0), emission("2025-05-31", 50, 0)}
	assert.Equal(t, 500_000_150.0, BeraTotalSupply(records, 500_000_000))
}
