// Package collector adapts the upstream data providers (CoinGecko, the
// Berachain supply API and Dune) into resolver providers, selected by name
// from configuration.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"SupplySentinel/internal/calculator"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/poller"
	"SupplySentinel/internal/resolver"
)

// Provider names usable in the metrics section of the configuration.
const (
	ProviderCoinGeckoSimple = "coingecko-simple"
	ProviderCoinGeckoCoin   = "coingecko-coin"
	ProviderCoinGeckoChart  = "coingecko-chart"
	ProviderCoinGecko       = "coingecko"
	ProviderBerachain       = "berachain-supply"
	ProviderDuneExecute     = "dune-execute"
	ProviderDuneResults     = "dune-results"
	ProviderDuneMemory      = "dune-memory"
)

// CoinGecko ids of the Berachain tokens.
const (
	CoinBERA = "berachain-bera"
	CoinBGT  = "berachain-bgt"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyResult     = errors.New("provider returned no rows")
)

// Collector builds provider lists for every logical metric.
type Collector struct {
	CoinGecko *CoinGecko
	Berachain *Berachain
	Jobs      *poller.Poller
	QueryID   string

	// Emissions supplies the series BERA total supply is derived from.
	// In-process, so no HTTP hop back into this service.
	Emissions func(ctx context.Context) (model.EmissionSeries, error)
	Now       func() time.Time
}

// NewCollector wires the provider clients together.
func NewCollector(cg *CoinGecko, bera *Berachain, jobs *poller.Poller, queryID string) *Collector {
	if queryID == "" {
		queryID = DefaultEmissionsQuery
	}
	return &Collector{CoinGecko: cg, Berachain: bera, Jobs: jobs, QueryID: queryID, Now: time.Now}
}

// build resolves names against table. Names listed in fallback serve
// previously fetched data and are marked as degraded providers.
func build[T any](metric string, names []string, table map[string]func(ctx context.Context) (T, error), fallback ...string) ([]resolver.Provider[T], error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: no providers configured", metric)
	}
	out := make([]resolver.Provider[T], 0, len(names))
	for _, name := range names {
		fn, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w %q", metric, ErrUnknownProvider, name)
		}
		out = append(out, resolver.ProviderFunc[T]{ID: name, Fn: fn, Fallback: slices.Contains(fallback, name)})
	}
	return out, nil
}

// PriceProviders returns the price providers for coinID in the given order.
func (c *Collector) PriceProviders(coinID string, names []string) ([]resolver.Provider[model.TokenPrice], error) {
	return build("price:"+coinID, names, map[string]func(context.Context) (model.TokenPrice, error){
		ProviderCoinGeckoSimple: func(ctx context.Context) (model.TokenPrice, error) {
			return c.CoinGecko.SimplePrice(ctx, coinID)
		},
		ProviderCoinGeckoCoin: func(ctx context.Context) (model.TokenPrice, error) {
			m, err := c.CoinGecko.CoinMarket(ctx, coinID)
			if err != nil {
				return model.TokenPrice{}, err
			}
			return model.TokenPrice{USD: m.Price}, nil
		},
	})
}

// SupplyProviders returns the supply providers for token (TokenBERA or TokenBGT).
func (c *Collector) SupplyProviders(token string, names []string) ([]resolver.Provider[model.SupplySnapshot], error) {
	coinID := CoinBGT
	if token == TokenBERA {
		coinID = CoinBERA
	}
	return build("supply:"+token, names, map[string]func(context.Context) (model.SupplySnapshot, error){
		ProviderBerachain: func(ctx context.Context) (model.SupplySnapshot, error) {
			if token == TokenBERA {
				return c.beraSupply(ctx)
			}
			return c.Berachain.Supply(ctx, token)
		},
		ProviderCoinGeckoCoin: func(ctx context.Context) (model.SupplySnapshot, error) {
			m, err := c.CoinGecko.CoinMarket(ctx, coinID)
			if err != nil {
				return model.SupplySnapshot{}, err
			}
			s := m.Supply()
			if err := s.Validate(); err != nil {
				return model.SupplySnapshot{}, fmt.Errorf("coin %s: %w", coinID, err)
			}
			return s, nil
		},
	})
}

// beraSupply takes circulating supply from the supply API and derives total
// supply as genesis supply plus every BERA minted from burnt BGT.
func (c *Collector) beraSupply(ctx context.Context) (model.SupplySnapshot, error) {
	circulating, reported, err := c.Berachain.Stats(ctx, TokenBERA)
	if err != nil {
		return model.SupplySnapshot{}, err
	}
	if !validSupply(circulating) {
		return model.SupplySnapshot{}, fmt.Errorf("bera supply: invalid circulatingSupply %v", circulating)
	}

	s := model.SupplySnapshot{CirculatingSupply: circulating, TotalSupply: reported}
	if c.Emissions != nil {
		series, err := c.Emissions(ctx)
		if err == nil {
			s.TotalSupply = calculator.BeraTotalSupply(series.Records, BeraGenesisSupply)
		} else {
			log.Printf("[WARN] [supply:bera] total supply from burns unavailable, using reported: %v", err)
		}
	}
	if err := s.Validate(); err != nil {
		return model.SupplySnapshot{}, fmt.Errorf("bera supply: %w", err)
	}
	if err := s.CheckInvariant(); err != nil {
		log.Printf("[WARN] [supply:bera] %v", err)
	}
	return s, nil
}

// HistoryProviders returns supply history providers for coinID.
func (c *Collector) HistoryProviders(coinID string, names []string) ([]resolver.Provider[[]model.SupplyHistoryPoint], error) {
	return build("history:"+coinID, names, map[string]func(context.Context) ([]model.SupplyHistoryPoint, error){
		ProviderCoinGeckoChart: func(ctx context.Context) ([]model.SupplyHistoryPoint, error) {
			return c.CoinGecko.MarketChart(ctx, coinID, HistoryDays)
		},
	})
}

// ChainProviders returns market overview providers for a tracked chain.
func (c *Collector) ChainProviders(coinID string, names []string) ([]resolver.Provider[model.ChainMarket], error) {
	return build("chain:"+coinID, names, map[string]func(context.Context) (model.ChainMarket, error){
		ProviderCoinGecko: func(ctx context.Context) (model.ChainMarket, error) {
			return c.CoinGecko.ChainMarket(ctx, coinID)
		},
		ProviderCoinGeckoCoin: func(ctx context.Context) (model.ChainMarket, error) {
			m, err := c.CoinGecko.CoinMarket(ctx, coinID)
			if err != nil {
				return model.ChainMarket{}, err
			}
			m.LastUpdated = c.Now().UTC()
			return m, nil
		},
	})
}

// EmissionProviders returns the emission series providers: a fresh query
// execution, the last result Dune stored, or the last result held in memory.
// The in-memory result is served as degraded data.
func (c *Collector) EmissionProviders(names []string) ([]resolver.Provider[model.EmissionSeries], error) {
	return build("emissions", names, map[string]func(context.Context) (model.EmissionSeries, error){
		ProviderDuneExecute: func(ctx context.Context) (model.EmissionSeries, error) {
			return c.series(c.Jobs.Run(ctx, c.QueryID, poller.ModeFresh))
		},
		ProviderDuneResults: func(ctx context.Context) (model.EmissionSeries, error) {
			return c.series(c.Jobs.Latest(ctx, c.QueryID))
		},
		ProviderDuneMemory: func(ctx context.Context) (model.EmissionSeries, error) {
			return c.series(c.Jobs.Run(ctx, c.QueryID, poller.ModeFallback))
		},
	}, ProviderDuneMemory)
}

func (c *Collector) series(rs poller.ResultSet, err error) (model.EmissionSeries, error) {
	if err != nil {
		return model.EmissionSeries{}, err
	}
	if len(rs.Rows) == 0 {
		return model.EmissionSeries{}, fmt.Errorf("query %s: %w", c.QueryID, ErrEmptyResult)
	}
	updated := rs.ExecutionEndedAt
	if updated.IsZero() {
		updated = c.Now().UTC()
	}
	return model.NewEmissionSeries(rs.Rows, updated), nil
}
