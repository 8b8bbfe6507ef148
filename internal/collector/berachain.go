package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"SupplySentinel/internal/fetcher"
	"SupplySentinel/internal/model"
)

// DefaultBerachainURL is the public Berachain supply API.
const DefaultBerachainURL = "https://supply-api.berachain.com"

// BeraGenesisSupply is the BERA minted at genesis.
const BeraGenesisSupply = 500_000_000

// Token names understood by the supply API.
const (
	TokenBERA = "bera"
	TokenBGT  = "bgt"
)

// flexFloat decodes a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = flexFloat(math.NaN())
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type supplyStats struct {
	CirculatingSupply *flexFloat `json:"circulatingSupply"`
	TotalSupply       *flexFloat `json:"totalSupply"`
}

// Berachain reads circulating and total supply from the Berachain supply API.
type Berachain struct {
	BaseURL string
	HTTP    *fetcher.Fetcher
}

// NewBerachain creates a supply API client. An empty baseURL uses the public API.
func NewBerachain(baseURL string, f *fetcher.Fetcher) *Berachain {
	if baseURL == "" {
		baseURL = DefaultBerachainURL
	}
	return &Berachain{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: f}
}

func (b *Berachain) Name() string { return "berachain" }

// Stats returns the raw figures for token. Either may be NaN when absent.
func (b *Berachain) Stats(ctx context.Context, token string) (circulating, total float64, err error) {
	endpoint := fmt.Sprintf("%s/api/stats/%s", b.BaseURL, token)
	var resp supplyStats
	if err := b.HTTP.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return 0, 0, fmt.Errorf("%s supply: %w", token, err)
	}
	circulating, total = math.NaN(), math.NaN()
	if resp.CirculatingSupply != nil {
		circulating = float64(*resp.CirculatingSupply)
	}
	if resp.TotalSupply != nil {
		total = float64(*resp.TotalSupply)
	}
	return circulating, total, nil
}

// Supply returns both figures of token, each finite and positive.
func (b *Berachain) Supply(ctx context.Context, token string) (model.SupplySnapshot, error) {
	circulating, total, err := b.Stats(ctx, token)
	if err != nil {
		return model.SupplySnapshot{}, err
	}
	s := model.SupplySnapshot{CirculatingSupply: circulating, TotalSupply: total}
	if err := s.Validate(); err != nil {
		return model.SupplySnapshot{}, fmt.Errorf("%s supply: %w: %v", token, fetcher.ErrMalformedPayload, err)
	}
	return s, nil
}

func validSupply(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
