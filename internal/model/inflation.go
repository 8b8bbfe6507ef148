package model

import (
	"fmt"
	"time"
)

// InflationKind selects which supply the inflation figures are computed for.
type InflationKind string

const (
	KindBera     InflationKind = "BERA"
	KindBGT      InflationKind = "BGT"
	KindCombined InflationKind = "BERA+BGT"
)

// ParseInflationKind maps user input to an InflationKind.
func ParseInflationKind(s string) (InflationKind, error) {
	switch s {
	case "bera", "BERA":
		return KindBera, nil
	case "bgt", "BGT":
		return KindBGT, nil
	case "bera-bgt", "bera+bgt", "BERA+BGT", "combined":
		return KindCombined, nil
	default:
		return "", fmt.Errorf("unknown inflation kind %q", s)
	}
}

// InflationStats is the annualised issuance over a window of complete days.
type InflationStats struct {
	Period                   string  `json:"period"`
	WindowDays               int     `json:"windowDays"`
	ActualDays               float64 `json:"actualDays"`
	AbsoluteIssuance         float64 `json:"absolute"`
	InflationRateCirculating float64 `json:"inflationCirculating"`
	InflationRateTotal       float64 `json:"inflationTotal"`
}

// SupplyGrowth is the annualised change of an estimated supply history
// between two dates.
type SupplyGrowth struct {
	StartDate      Date    `json:"startDate"`
	EndDate        Date    `json:"endDate"`
	StartSupply    float64 `json:"startSupply"`
	EndSupply      float64 `json:"endSupply"`
	ActualDays     float64 `json:"actualDays"`
	AnnualizedRate float64 `json:"annualizedRate"`
}

// BerachainGenesis is the launch time used to anchor all-time figures.
var BerachainGenesis = time.Date(2025, time.January, 20, 14, 0, 0, 0, time.UTC)
