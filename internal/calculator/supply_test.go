package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SupplySentinel/internal/model"
)

func point(date string, supply float64) model.SupplyHistoryPoint {
	return model.SupplyHistoryPoint{Date: model.MustDate(date), Supply: supply}
}

func TestComputeSupplyGrowthGenesis(t *testing.T) {
	history := []model.SupplyHistoryPoint{
		point("2025-01-31", 110),
		point("2025-01-15", 80),
		point("2025-01-21", 100),
		point("2025-01-26", 105),
	}

	g, err := ComputeSupplyGrowthGenesis(history, model.BerachainGenesis)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-21", g.StartDate.String())
	assert.Equal(t, "2025-01-31", g.EndDate.String())
	assert.Equal(t, 10.0, g.ActualDays)
	assert.InDelta(t, 365.0, g.AnnualizedRate, 1e-9)
}

func TestComputeSupplyGrowthGenesis_NoPointAfterGenesis(t *testing.T) {
	_, err := ComputeSupplyGrowthGenesis([]model.SupplyHistoryPoint{point("2025-01-10", 1), point("2025-01-15", 2)}, model.BerachainGenesis)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ComputeSupplyGrowthGenesis([]model.SupplyHistoryPoint{point("2025-01-10", 1), point("2025-01-25", 2)}, model.BerachainGenesis)
	assert.ErrorIs(t, err, ErrInsufficientData, "start is the last point")
}

func TestComputeSupplyGrowthWindow_NearestPointAtLeastNDaysBack(t *testing.T) {
	history := []model.SupplyHistoryPoint{
		point("2025-05-01", 900),
		point("2025-05-22", 950),
		point("2025-05-24", 990),
		point("2025-06-01", 1000),
	}

	g, err := ComputeSupplyGrowthWindow(history, 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-24", g.StartDate.String())
	assert.Equal(t, 8.0, g.ActualDays)
	assert.InDelta(t, (10*(365/8.0)/990)*100, g.AnnualizedRate, 1e-9)
}

func TestComputeSupplyGrowthWindow_NegativeGrowth(t *testing.T) {
	g, err := ComputeSupplyGrowthWindow([]model.SupplyHistoryPoint{point("2025-05-01", 100), point("2025-06-01", 90)}, 30)
	require.NoError(t, err)
	assert.Less(t, g.AnnualizedRate, 0.0)
}

func TestComputeSupplyGrowthWindow_Unavailable(t *testing.T) {
	_, err := ComputeSupplyGrowthWindow([]model.SupplyHistoryPoint{point("2025-06-01", 1)}, 1)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ComputeSupplyGrowthWindow([]model.SupplyHistoryPoint{point("2025-05-30", 1), point("2025-06-01", 2)}, 30)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ComputeSupplyGrowthWindow(nil, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
