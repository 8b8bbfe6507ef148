package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"SupplySentinel/internal/calculator"
	"SupplySentinel/internal/collector"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/recorder"
)

// InflationReport carries computed inflation together with the freshness of
// its inputs. Stats is nil when there is not enough data.
type InflationReport struct {
	Kind    model.InflationKind    `json:"kind"`
	Stats   *model.InflationStats  `json:"stats,omitempty"`
	Table   []model.InflationStats `json:"table,omitempty"`
	Supply  model.SupplySnapshot   `json:"supply"`
	Sources map[string]string      `json:"sources"`
	Stale   bool                   `json:"stale"`
	Warning string                 `json:"warning,omitempty"`
}

type inflationInputs struct {
	series    model.EmissionSeries
	bera, bgt model.SupplySnapshot
	report    *InflationReport
}

// inputs resolves the emission series plus the supplies kind needs.
func (s *Service) inputs(ctx context.Context, kind model.InflationKind) (*inflationInputs, error) {
	in := &inflationInputs{report: &InflationReport{Kind: kind, Sources: map[string]string{}}}

	em, err := s.emissions.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	in.series = em.Value
	in.note(KeyEmissions, em.Source, em.Stale, em.Warning)

	if kind == model.KindBera || kind == model.KindCombined {
		r, err := s.supply[collector.TokenBERA].Resolve(ctx)
		if err != nil {
			return nil, err
		}
		in.bera = r.Value
		in.note(KeyBeraSupply, r.Source, r.Stale, r.Warning)
	}
	if kind == model.KindBGT || kind == model.KindCombined {
		r, err := s.supply[collector.TokenBGT].Resolve(ctx)
		if err != nil {
			return nil, err
		}
		in.bgt = r.Value
		in.note(KeyBGTSupply, r.Source, r.Stale, r.Warning)
	}

	switch kind {
	case model.KindBera:
		in.report.Supply = in.bera
	case model.KindBGT:
		in.report.Supply = in.bgt
	default:
		in.report.Supply = in.bera.Add(in.bgt)
	}
	return in, nil
}

func (in *inflationInputs) note(key, source string, stale bool, warning string) {
	in.report.Sources[key] = source
	if stale {
		in.report.Stale = true
		if in.report.Warning == "" {
			in.report.Warning = warning
		}
	}
}

func validKind(kind model.InflationKind) error {
	switch kind {
	case model.KindBera, model.KindBGT, model.KindCombined:
		return nil
	}
	return fmt.Errorf("unknown inflation kind %q", kind)
}

// GetInflation computes annualised inflation of kind over the last
// windowDays complete days.
func (s *Service) GetInflation(ctx context.Context, windowDays int, kind model.InflationKind) (*InflationReport, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	in, err := s.inputs(ctx, kind)
	if err != nil {
		return nil, err
	}
	stats, err := calculator.ForKind(kind, in.series, in.bera, in.bgt, windowDays, s.now())
	if err != nil && !errors.Is(err, calculator.ErrInsufficientData) {
		return nil, err
	}
	in.report.Stats = stats
	return in.report, nil
}

// GetInflationTable computes the 1d/7d/30d/all-time rows for kind and
// records them.
func (s *Service) GetInflationTable(ctx context.Context, kind model.InflationKind) (*InflationReport, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	in, err := s.inputs(ctx, kind)
	if err != nil {
		return nil, err
	}
	in.report.Table = calculator.StatsTable(kind, in.series, in.bera, in.bgt, s.now())

	rows := make([]recorder.InflationSnapshot, 0, len(in.report.Table))
	for _, st := range in.report.Table {
		rows = append(rows, recorder.InflationSnapshot{
			Kind:            string(kind),
			Period:          st.Period,
			WindowDays:      st.WindowDays,
			Absolute:        st.AbsoluteIssuance,
			RateCirculating: st.InflationRateCirculating,
			RateTotal:       st.InflationRateTotal,
		})
	}
	if err := s.rec.RecordInflation(rows); err != nil {
		log.Printf("[WARN] record inflation %s: %v", kind, err)
	}
	return in.report, nil
}

// GenesisInflation computes BERA inflation since Berachain genesis over the
// actual elapsed days.
func (s *Service) GenesisInflation(ctx context.Context) (*InflationReport, error) {
	in, err := s.inputs(ctx, model.KindBera)
	if err != nil {
		return nil, err
	}
	stats, err := calculator.ComputeGenesisInflation(in.series, in.bera, model.BerachainGenesis, s.now())
	if err != nil && !errors.Is(err, calculator.ErrInsufficientData) {
		return nil, err
	}
	in.report.Stats = stats
	return in.report, nil
}

// GrowthReport is the supply growth of one chain's estimated supply history.
type GrowthReport struct {
	ID      string              `json:"id"`
	Growth  *model.SupplyGrowth `json:"growth,omitempty"`
	Source  string              `json:"source"`
	Stale   bool                `json:"stale"`
	Warning string              `json:"warning,omitempty"`
}

// ChainGrowth annualises the estimated supply change of a tracked chain over
// days, or since Berachain genesis when days is 0. BERA uses its dedicated
// long-lived history series.
func (s *Service) ChainGrowth(ctx context.Context, coinID string, days int) (*GrowthReport, error) {
	rep := &GrowthReport{ID: coinID}
	var history []model.SupplyHistoryPoint

	if coinID == collector.CoinBERA {
		r, err := s.BeraHistory(ctx)
		if err != nil {
			return nil, err
		}
		history, rep.Source, rep.Stale, rep.Warning = r.Value, r.Source, r.Stale, r.Warning
	} else {
		r, err := s.GetChain(ctx, coinID)
		if err != nil {
			return nil, err
		}
		history, rep.Source, rep.Stale, rep.Warning = r.Value.SupplyHistory, r.Source, r.Stale, r.Warning
	}

	var (
		g   *model.SupplyGrowth
		err error
	)
	if days == 0 {
		g, err = calculator.ComputeSupplyGrowthGenesis(history, model.BerachainGenesis)
	} else {
		g, err = calculator.ComputeSupplyGrowthWindow(history, days)
	}
	if err != nil && !errors.Is(err, calculator.ErrInsufficientData) {
		return nil, err
	}
	rep.Growth = g
	return rep, nil
}
