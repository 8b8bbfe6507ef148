// Package aggregator owns the caches and fallback chains for every tracked
// metric and is the single entry point for consumers of the aggregated data.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"SupplySentinel/internal/backup"
	"SupplySentinel/internal/cache"
	"SupplySentinel/internal/collector"
	"SupplySentinel/internal/model"
	"SupplySentinel/internal/observability"
	"SupplySentinel/internal/recorder"
	"SupplySentinel/internal/resolver"
)

// Metric keys.
const (
	KeyPrice      = "price:" + collector.CoinBERA
	KeyBeraSupply = "supply:" + collector.TokenBERA
	KeyBGTSupply  = "supply:" + collector.TokenBGT
	KeyEmissions  = "emissions"
	KeyHistory    = "history:" + collector.CoinBERA
	chainPrefix   = "chain:"
)

// SourceBackup tags values served from the durable store.
const SourceBackup = "backup"

// DefaultMismatchThreshold is the supply difference, in tokens, reported by CheckSupply.
const DefaultMismatchThreshold = 10.0

var (
	ErrUnknownMetric  = errors.New("unknown metric")
	ErrNoBackup       = errors.New("no backup available")
	ErrStaleEmissions = errors.New("emission series is stale; backup not written")
)

// ChainKey returns the metric key of a tracked chain.
func ChainKey(coinID string) string { return chainPrefix + coinID }

// ProviderLists is the ordered provider names per logical metric.
type ProviderLists struct {
	Price      []string
	BeraSupply []string
	BGTSupply  []string
	Emissions  []string
	History    []string
	Chain      []string
}

// TTLs per data type; zero values take the cache defaults.
type TTLs struct {
	Price     time.Duration
	Supply    time.Duration
	Emissions time.Duration
	History   time.Duration
	Market    time.Duration
}

// Options configures a Service.
type Options struct {
	Chains            []string
	Providers         ProviderLists
	TTL               TTLs
	Concurrency       int
	MismatchThreshold float64
	Store             backup.Store
	Recorder          recorder.Recorder
	Metrics           *observability.Metrics
	Now               func() time.Time
}

// Metric is what consumers receive for one key.
type Metric struct {
	Key       string    `json:"key"`
	Value     any       `json:"value,omitempty"`
	Source    string    `json:"source,omitempty"`
	Stale     bool      `json:"stale"`
	Warning   string    `json:"warning,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func toMetric[T any](r resolver.Result[T]) Metric {
	return Metric{
		Key:       r.Key,
		Value:     r.Value,
		Source:    r.Source,
		Stale:     r.Stale,
		Warning:   r.Warning,
		FetchedAt: r.FetchedAt,
	}
}

type metricFunc func(ctx context.Context, force bool) (Metric, error)

type peekFunc func() (Metric, bool)

// Service aggregates every tracked metric.
type Service struct {
	price     *resolver.Chain[model.TokenPrice]
	supply    map[string]*resolver.Chain[model.SupplySnapshot]
	emissions *resolver.Chain[model.EmissionSeries]
	history   *resolver.Chain[[]model.SupplyHistoryPoint]
	chains    map[string]*resolver.Chain[model.ChainMarket]
	chainIDs  []string

	keys    []string
	resolve map[string]metricFunc
	peek    map[string]peekFunc

	store       backup.Store
	rec         recorder.Recorder
	obs         *observability.Metrics
	now         func() time.Time
	concurrency int
	threshold   float64
}

// NewService builds one fallback chain per metric from the collector's
// providers. col.Emissions is wired to the service's own emission chain.
func NewService(col *collector.Collector, opts Options) (*Service, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MismatchThreshold <= 0 {
		opts.MismatchThreshold = DefaultMismatchThreshold
	}
	ttl := withDefaultTTLs(opts.TTL)

	s := &Service{
		supply:      make(map[string]*resolver.Chain[model.SupplySnapshot]),
		chains:      make(map[string]*resolver.Chain[model.ChainMarket]),
		resolve:     make(map[string]metricFunc),
		peek:        make(map[string]peekFunc),
		store:       opts.Store,
		rec:         opts.Recorder,
		obs:         opts.Metrics,
		now:         opts.Now,
		concurrency: opts.Concurrency,
		threshold:   opts.MismatchThreshold,
	}
	cacheOpts := func(name string) []cache.Option {
		return []cache.Option{cache.WithName(name), cache.WithClock(opts.Now), cache.WithMetrics(opts.Metrics)}
	}

	priceCache := cache.New[model.TokenPrice](cacheOpts("price")...)
	supplyCache := cache.New[model.SupplySnapshot](cacheOpts("supply")...)
	emissionCache := cache.New[model.EmissionSeries](cacheOpts("emissions")...).WithCloner(model.EmissionSeries.Clone)
	historyCache := cache.New[[]model.SupplyHistoryPoint](cacheOpts("history")...).WithCloner(cloneHistory)
	chainCache := cache.New[model.ChainMarket](cacheOpts("chain")...).WithCloner(model.ChainMarket.Clone)

	emissionProviders, err := col.EmissionProviders(opts.Providers.Emissions)
	if err != nil {
		return nil, err
	}
	s.emissions = resolver.NewChain(KeyEmissions, ttl.Emissions, emissionCache, emissionProviders...)
	s.emissions.Validate = func(v model.EmissionSeries) error {
		if v.Len() == 0 {
			return collector.ErrEmptyResult
		}
		return nil
	}
	s.emissions.LastResort = s.fromBackup
	register(s, s.emissions, opts.Metrics)
	col.Emissions = func(ctx context.Context) (model.EmissionSeries, error) {
		r, err := s.emissions.Resolve(ctx)
		return r.Value, err
	}

	priceProviders, err := col.PriceProviders(collector.CoinBERA, opts.Providers.Price)
	if err != nil {
		return nil, err
	}
	s.price = resolver.NewChain(KeyPrice, ttl.Price, priceCache, priceProviders...)
	s.price.Validate = func(p model.TokenPrice) error {
		if !(p.USD > 0) {
			return fmt.Errorf("invalid usd price %v", p.USD)
		}
		return nil
	}
	register(s, s.price, opts.Metrics)

	for token, names := range map[string][]string{
		collector.TokenBERA: opts.Providers.BeraSupply,
		collector.TokenBGT:  opts.Providers.BGTSupply,
	} {
		providers, err := col.SupplyProviders(token, names)
		if err != nil {
			return nil, err
		}
		ch := resolver.NewChain("supply:"+token, ttl.Supply, supplyCache, providers...)
		ch.Validate = model.SupplySnapshot.Validate
		s.supply[token] = ch
	}
	register(s, s.supply[collector.TokenBERA], opts.Metrics)
	register(s, s.supply[collector.TokenBGT], opts.Metrics)

	historyProviders, err := col.HistoryProviders(collector.CoinBERA, opts.Providers.History)
	if err != nil {
		return nil, err
	}
	s.history = resolver.NewChain(KeyHistory, ttl.History, historyCache, historyProviders...)
	register(s, s.history, opts.Metrics)

	for _, id := range opts.Chains {
		if _, dup := s.chains[id]; dup {
			continue
		}
		providers, err := col.ChainProviders(id, opts.Providers.Chain)
		if err != nil {
			return nil, err
		}
		ch := resolver.NewChain(ChainKey(id), ttl.Market, chainCache, providers...)
		s.chains[id] = ch
		s.chainIDs = append(s.chainIDs, id)
		register(s, ch, opts.Metrics)
	}

	return s, nil
}

func withDefaultTTLs(t TTLs) TTLs {
	if t.Price <= 0 {
		t.Price = cache.TTLPrice
	}
	if t.Supply <= 0 {
		t.Supply = cache.TTLMarket
	}
	if t.Emissions <= 0 {
		t.Emissions = cache.TTLMarket
	}
	if t.History <= 0 {
		t.History = cache.TTLHistory
	}
	if t.Market <= 0 {
		t.Market = cache.TTLMarket
	}
	return t
}

func register[T any](s *Service, ch *resolver.Chain[T], m *observability.Metrics) {
	ch.Metrics = m
	s.keys = append(s.keys, ch.Key)
	log.Printf("[INFO] [%s] providers=%s ttl=%s", ch.Key, strings.Join(ch.ProviderNames(), ","), ch.TTL)
	s.resolve[ch.Key] = func(ctx context.Context, force bool) (Metric, error) {
		var (
			r   resolver.Result[T]
			err error
		)
		if force {
			r, err = ch.Refresh(ctx)
		} else {
			r, err = ch.Resolve(ctx)
		}
		if err != nil {
			return Metric{Key: ch.Key}, err
		}
		return toMetric(r), nil
	}
	s.peek[ch.Key] = func() (Metric, bool) {
		e, ok := ch.Peek()
		if !ok {
			return Metric{Key: ch.Key}, false
		}
		return Metric{Key: ch.Key, Value: e.Value, Source: e.Source, Stale: e.Stale, FetchedAt: e.FetchedAt}, true
	}
}

func cloneHistory(h []model.SupplyHistoryPoint) []model.SupplyHistoryPoint {
	if h == nil {
		return nil
	}
	out := make([]model.SupplyHistoryPoint, len(h))
	copy(out, h)
	return out
}

// fromBackup is the emission chain's last resort.
func (s *Service) fromBackup(ctx context.Context) (model.EmissionSeries, string, time.Time, error) {
	if s.store == nil {
		return model.EmissionSeries{}, "", time.Time{}, ErrNoBackup
	}
	snap, err := s.store.Read(ctx)
	if err != nil {
		return model.EmissionSeries{}, "", time.Time{}, fmt.Errorf("read backup: %w", err)
	}
	if snap == nil || len(snap.Emissions) == 0 {
		return model.EmissionSeries{}, "", time.Time{}, ErrNoBackup
	}
	snap.Source = model.SourceFallback
	log.Printf("[WARN] [%s] serving backup records=%d synced_at=%s source=%s",
		KeyEmissions, len(snap.Emissions), snap.LastSynced.Format(time.RFC3339), snap.Source)
	return snap.Series(), SourceBackup, snap.LastSynced, nil
}

// Keys lists every metric key in registration order.
func (s *Service) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// GetMetric resolves one metric by key.
func (s *Service) GetMetric(ctx context.Context, key string) (Metric, error) {
	fn, ok := s.resolve[key]
	if !ok {
		return Metric{}, fmt.Errorf("%w %q", ErrUnknownMetric, key)
	}
	return fn(ctx, false)
}

// Price resolves the BERA spot price.
func (s *Service) Price(ctx context.Context) (resolver.Result[model.TokenPrice], error) {
	return s.price.Resolve(ctx)
}

// Supply resolves the supply of token (collector.TokenBERA or collector.TokenBGT).
func (s *Service) Supply(ctx context.Context, token string) (resolver.Result[model.SupplySnapshot], error) {
	ch, ok := s.supply[token]
	if !ok {
		return resolver.Result[model.SupplySnapshot]{}, fmt.Errorf("%w %q", ErrUnknownMetric, "supply:"+token)
	}
	return ch.Resolve(ctx)
}

// Emissions resolves the emission series, newest record first.
func (s *Service) Emissions(ctx context.Context) (resolver.Result[model.EmissionSeries], error) {
	return s.emissions.Resolve(ctx)
}

// BeraHistory resolves the estimated BERA supply history.
func (s *Service) BeraHistory(ctx context.Context) (resolver.Result[[]model.SupplyHistoryPoint], error) {
	return s.history.Resolve(ctx)
}

// GetChain resolves the market overview of one tracked chain.
func (s *Service) GetChain(ctx context.Context, coinID string) (resolver.Result[model.ChainMarket], error) {
	ch, ok := s.chains[coinID]
	if !ok {
		return resolver.Result[model.ChainMarket]{}, fmt.Errorf("%w %q", ErrUnknownMetric, ChainKey(coinID))
	}
	return ch.Resolve(ctx)
}

// Status returns what is cached for every metric without fetching.
func (s *Service) Status() []Metric {
	out := make([]Metric, 0, len(s.keys))
	for _, k := range s.keys {
		m, _ := s.peek[k]()
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
