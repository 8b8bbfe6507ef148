package calculator

import (
	"fmt"
	"time"

	"SupplySentinel/internal/model"
)

// ComputeSupplyGrowthGenesis annualises the change of an estimated supply
// history from the first point on or after genesis to the latest point.
func ComputeSupplyGrowthGenesis(history []model.SupplyHistoryPoint, genesis time.Time) (*model.SupplyGrowth, error) {
	points := model.SortHistoryAsc(history)
	start := -1
	for i, p := range points {
		if !p.Date.Before(genesis) {
			start = i
			break
		}
	}
	if start == -1 || start == len(points)-1 {
		return nil, fmt.Errorf("since genesis: %w", ErrInsufficientData)
	}
	return growth(points[start], points[len(points)-1])
}

// ComputeSupplyGrowthWindow annualises the change from the nearest point at
// least days before the latest one, over the days actually elapsed.
func ComputeSupplyGrowthWindow(history []model.SupplyHistoryPoint, days int) (*model.SupplyGrowth, error) {
	if days <= 0 {
		return nil, ErrInvalidWindow
	}
	points := model.SortHistoryAsc(history)
	if len(points) < 2 {
		return nil, fmt.Errorf("%dd window: %w", days, ErrInsufficientData)
	}
	latest := points[len(points)-1]
	for i := len(points) - 2; i >= 0; i-- {
		if points[i].Date.DaysUntil(latest.Date) >= float64(days) {
			return growth(points[i], latest)
		}
	}
	return nil, fmt.Errorf("%dd window: %w", days, ErrInsufficientData)
}

func growth(start, end model.SupplyHistoryPoint) (*model.SupplyGrowth, error) {
	elapsed := start.Date.DaysUntil(end.Date)
	if elapsed < 1 || !finitePositive(start.Supply) {
		return nil, ErrInsufficientData
	}
	return &model.SupplyGrowth{
		StartDate:      start.Date,
		EndDate:        end.Date,
		StartSupply:    start.Supply,
		EndSupply:      end.Supply,
		ActualDays:     elapsed,
		AnnualizedRate: Annualize(end.Supply-start.Supply, start.Supply, elapsed),
	}, nil
}
