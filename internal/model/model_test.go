package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_Layouts(t *testing.T) {
	for _, in := range []string{
		"2025-06-01",
		"2025-06-01 00:00:00.000 UTC",
		"2025-06-01 13:45:10 UTC",
		"2025-06-01 00:00:00",
		"2025-06-01T23:59:59Z",
	} {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2025-06-01", d.String(), in)
	}

	_, err := ParseDate("01/06/2025")
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	var r EmissionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"period":"2025-06-01 00:00:00.000 UTC","burnt_amount":-12.5}`), &r))
	assert.Equal(t, MustDate("2025-06-01"), r.Period)
	assert.Equal(t, -12.5, r.BurntAmount)

	out, err := json.Marshal(r.Period)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-06-01"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"period":20250601}`), &r))
}

func TestDate_DaysUntil(t *testing.T) {
	assert.Equal(t, 31.0, MustDate("2025-05-01").DaysUntil(MustDate("2025-06-01")))
	assert.Equal(t, -1.0, MustDate("2025-06-02").DaysUntil(MustDate("2025-06-01")))
}

func TestNewEmissionSeries_SortsAndDedupes(t *testing.T) {
	in := []EmissionRecord{
		{Period: MustDate("2025-05-30"), DailyEmission: 1},
		{Period: MustDate("2025-06-01"), DailyEmission: 3},
		{Period: MustDate("2025-05-31"), DailyEmission: 2},
		{Period: MustDate("2025-06-01"), DailyEmission: 99},
	}
	s := NewEmissionSeries(in, time.Time{})

	require.Equal(t, 3, s.Len())
	assert.Equal(t, "2025-06-01", s.Records[0].Period.String())
	assert.Equal(t, 3.0, s.Records[0].DailyEmission, "first occurrence wins")
	assert.Equal(t, "2025-05-30", s.Records[2].Period.String())
	assert.Equal(t, MustDate("2025-05-30"), in[0].Period, "input is not reordered")

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 3.0, latest.DailyEmission)

	_, ok = EmissionSeries{}.Latest()
	assert.False(t, ok)
}

func TestEmissionSeries_CloneIsIndependent(t *testing.T) {
	s := NewEmissionSeries([]EmissionRecord{{Period: MustDate("2025-06-01"), BurntAmount: -1}}, time.Time{})
	c := s.Clone()
	c.Records[0].BurntAmount = -100

	assert.Equal(t, -1.0, s.Records[0].BurntAmount)
}

func TestSupplySnapshot_Validate(t *testing.T) {
	assert.NoError(t, SupplySnapshot{CirculatingSupply: 1, TotalSupply: 2}.Validate())
	assert.Error(t, SupplySnapshot{CirculatingSupply: 0, TotalSupply: 2}.Validate())
	assert.Error(t, SupplySnapshot{CirculatingSupply: math.NaN(), TotalSupply: 2}.Validate())
	assert.Error(t, SupplySnapshot{CirculatingSupply: 1, TotalSupply: math.Inf(1)}.Validate())

	assert.ErrorIs(t, SupplySnapshot{CirculatingSupply: 3, TotalSupply: 2}.CheckInvariant(), ErrSupplyInvariant)
	assert.Equal(t, SupplySnapshot{CirculatingSupply: 4, TotalSupply: 6},
		SupplySnapshot{CirculatingSupply: 1, TotalSupply: 2}.Add(SupplySnapshot{CirculatingSupply: 3, TotalSupply: 4}))
}

func TestChainMarket_CloneIsIndependent(t *testing.T) {
	maxSupply := 21_000_000.0
	m := ChainMarket{MaxSupply: &maxSupply, SupplyHistory: []SupplyHistoryPoint{{Date: MustDate("2025-06-01"), Supply: 1}}}
	c := m.Clone()
	*c.MaxSupply = 1
	c.SupplyHistory[0].Supply = 2

	assert.Equal(t, 21_000_000.0, *m.MaxSupply)
	assert.Equal(t, 1.0, m.SupplyHistory[0].Supply)
}

func TestSortHistoryAsc(t *testing.T) {
	out := SortHistoryAsc([]SupplyHistoryPoint{
		{Date: MustDate("2025-06-02")},
		{Date: MustDate("2025-06-01")},
	})
	assert.Equal(t, "2025-06-01", out[0].Date.String())
}

func TestParseInflationKind(t *testing.T) {
	for in, want := range map[string]InflationKind{"bera": KindBera, "BGT": KindBGT, "combined": KindCombined, "bera+bgt": KindCombined} {
		got, err := ParseInflationKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseInflationKind("eth")
	assert.Error(t, err)
}

func TestJobState_Terminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobExecuting.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobTimedOut.Terminal())
}

func TestBackupSnapshot_Series(t *testing.T) {
	updated := time.Date(2025, 6, 2, 0, 10, 0, 0, time.UTC)
	snap := BackupSnapshot{
		Emissions:   []EmissionRecord{{Period: MustDate("2025-05-31")}, {Period: MustDate("2025-06-01")}},
		LastUpdated: updated,
	}
	s := snap.Series()
	assert.Equal(t, "2025-06-01", s.Records[0].Period.String())
	assert.Equal(t, updated, s.LastUpdated)
}
