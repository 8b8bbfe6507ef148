package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SupplySentinel/internal/fetcher"
	"SupplySentinel/internal/model"
)

// DefaultCoinGeckoURL is the public CoinGecko v3 API.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// HistoryDays is how far back the daily market chart is requested.
const HistoryDays = 365

// CoinGecko talks to the CoinGecko REST API.
type CoinGecko struct {
	BaseURL string
	APIKey  string
	HTTP    *fetcher.Fetcher
}

// NewCoinGecko creates a CoinGecko client. An empty baseURL uses the public API.
func NewCoinGecko(baseURL, apiKey string, f *fetcher.Fetcher) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGecko{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, HTTP: f}
}

func (c *CoinGecko) Name() string { return "coingecko" }

func (c *CoinGecko) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if c.APIKey != "" {
		h.Set("x-cg-demo-api-key", c.APIKey)
	}
	return h
}

type simplePriceResponse map[string]struct {
	USD *float64 `json:"usd"`
	BTC *float64 `json:"btc"`
}

// SimplePrice returns the USD and BTC spot price of coinID.
func (c *CoinGecko) SimplePrice(ctx context.Context, coinID string) (model.TokenPrice, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd,btc", c.BaseURL, url.QueryEscape(coinID))
	var resp simplePriceResponse
	if err := c.HTTP.GetJSON(ctx, endpoint, c.header(), &resp); err != nil {
		return model.TokenPrice{}, fmt.Errorf("simple price %s: %w", coinID, err)
	}
	quote, ok := resp[coinID]
	if !ok || quote.USD == nil {
		return model.TokenPrice{}, fmt.Errorf("simple price %s: %w: usd price missing", coinID, fetcher.ErrMalformedPayload)
	}
	price := model.TokenPrice{USD: *quote.USD}
	if quote.BTC != nil {
		price.BTC = *quote.BTC
	}
	return price, nil
}

type coinResponse struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	MarketData *struct {
		CurrentPrice      map[string]float64 `json:"current_price"`
		MarketCap         map[string]float64 `json:"market_cap"`
		CirculatingSupply *float64           `json:"circulating_supply"`
		TotalSupply       *float64           `json:"total_supply"`
		MaxSupply         *float64           `json:"max_supply"`
	} `json:"market_data"`
}

// CoinMarket returns the current market overview of coinID without history.
func (c *CoinGecko) CoinMarket(ctx context.Context, coinID string) (model.ChainMarket, error) {
	endpoint := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&market_data=true&community_data=false&developer_data=false",
		c.BaseURL, url.PathEscape(coinID))
	var resp coinResponse
	if err := c.HTTP.GetJSON(ctx, endpoint, c.header(), &resp); err != nil {
		return model.ChainMarket{}, fmt.Errorf("coin %s: %w", coinID, err)
	}
	md := resp.MarketData
	if md == nil {
		return model.ChainMarket{}, fmt.Errorf("coin %s: %w: market_data missing", coinID, fetcher.ErrMalformedPayload)
	}
	price, ok := md.CurrentPrice["usd"]
	if !ok {
		return model.ChainMarket{}, fmt.Errorf("coin %s: %w: usd price missing", coinID, fetcher.ErrMalformedPayload)
	}

	m := model.ChainMarket{
		ID:        coinID,
		Symbol:    strings.ToUpper(resp.Symbol),
		Price:     price,
		MarketCap: md.MarketCap["usd"],
		MaxSupply: md.MaxSupply,
	}
	if m.Symbol == "" {
		m.Symbol = strings.ToUpper(coinID)
	}
	if md.CirculatingSupply != nil {
		m.CirculatingSupply = *md.CirculatingSupply
	}
	if md.TotalSupply != nil {
		m.TotalSupply = *md.TotalSupply
	}
	return m, nil
}

type marketChartResponse struct {
	Prices     [][]*float64 `json:"prices"`
	MarketCaps [][]*float64 `json:"market_caps"`
}

// MarketChart estimates the daily supply of coinID as market cap / price.
// Days with a missing or non-positive price or market cap are skipped.
func (c *CoinGecko) MarketChart(ctx context.Context, coinID string, days int) ([]model.SupplyHistoryPoint, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d&interval=daily",
		c.BaseURL, url.PathEscape(coinID), days)
	var resp marketChartResponse
	if err := c.HTTP.GetJSON(ctx, endpoint, c.header(), &resp); err != nil {
		return nil, fmt.Errorf("market chart %s: %w", coinID, err)
	}
	points := SupplyHistory(resp.Prices, resp.MarketCaps)
	if len(points) == 0 && len(resp.Prices) > 0 {
		return nil, fmt.Errorf("market chart %s: %w: no usable points", coinID, fetcher.ErrMalformedPayload)
	}
	return points, nil
}

// SupplyHistory pairs price and market cap samples by index.
func SupplyHistory(prices, caps [][]*float64) []model.SupplyHistoryPoint {
	points := make([]model.SupplyHistoryPoint, 0, len(prices))
	for i, p := range prices {
		if len(p) < 2 || p[0] == nil || p[1] == nil || *p[1] <= 0 {
			continue
		}
		if i >= len(caps) || len(caps[i]) < 2 || caps[i][1] == nil || *caps[i][1] <= 0 {
			continue
		}
		ts := time.UnixMilli(int64(*p[0]))
		points = append(points, model.SupplyHistoryPoint{
			Date:   model.NewDate(ts),
			Supply: *caps[i][1] / *p[1],
		})
	}
	return points
}

// ChainMarket returns the market overview of coinID with its supply history.
func (c *CoinGecko) ChainMarket(ctx context.Context, coinID string) (model.ChainMarket, error) {
	m, err := c.CoinMarket(ctx, coinID)
	if err != nil {
		return model.ChainMarket{}, err
	}
	history, err := c.MarketChart(ctx, coinID, HistoryDays)
	if err != nil {
		return model.ChainMarket{}, err
	}
	m.SupplyHistory = history
	m.LastUpdated = c.HTTP.Now().UTC()
	return m, nil
}
