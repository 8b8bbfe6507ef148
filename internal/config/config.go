package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultChains are the CoinGecko ids tracked for the multi-chain overview.
var DefaultChains = []string{
	"bitcoin", "ethereum", "solana", "sui", "avalanche-2", "binancecoin",
	"sei-network", "near", "aptos", "berachain-bera", "berachain-bgt",
}

// Provider is one upstream API.
type Provider struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Delay   time.Duration `yaml:"delay"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds all application configuration.
type Config struct {
	Providers struct {
		CoinGecko Provider `yaml:"coingecko"`
		Berachain Provider `yaml:"berachain"`
		Dune      Provider `yaml:"dune"`
	} `yaml:"providers"`
	Cache struct {
		PriceTTL     time.Duration `yaml:"price_ttl"`
		SupplyTTL    time.Duration `yaml:"supply_ttl"`
		EmissionsTTL time.Duration `yaml:"emissions_ttl"`
		MarketTTL    time.Duration `yaml:"market_ttl"`
		HistoryTTL   time.Duration `yaml:"history_ttl"`
	} `yaml:"cache"`
	Retry struct {
		MaxRetries int `yaml:"max_retries"`
	} `yaml:"retry"`
	Poll struct {
		QueryID  string        `yaml:"query_id"`
		Interval time.Duration `yaml:"interval"`
		MaxPolls int           `yaml:"max_polls"`
	} `yaml:"poll"`
	Chains  []string `yaml:"chains"`
	Metrics struct {
		Price      []string `yaml:"price"`
		BeraSupply []string `yaml:"bera_supply"`
		BGTSupply  []string `yaml:"bgt_supply"`
		Emissions  []string `yaml:"emissions"`
		History    []string `yaml:"history"`
		Chain      []string `yaml:"chain"`
	} `yaml:"metrics"`
	Refresh struct {
		Concurrency       int     `yaml:"concurrency"`
		MismatchThreshold float64 `yaml:"mismatch_threshold"`
	} `yaml:"refresh"`
	Schedule struct {
		RefreshCron     string `yaml:"refresh_cron"`
		BackupCron      string `yaml:"backup_cron"`
		SupplyCheckCron string `yaml:"supply_check_cron"`
	} `yaml:"schedule"`
	Backup struct {
		Path      string `yaml:"path"`
		RedisAddr string `yaml:"redis_addr"`
		RedisKey  string `yaml:"redis_key"`
	} `yaml:"backup"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"telegram"`
	Observability struct {
		MetricsAddr string `yaml:"metrics_addr"`
		Namespace   string `yaml:"namespace"`
	} `yaml:"observability"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then a .env file next to the process,
// then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"COINGECKO_API_KEY":  &c.Providers.CoinGecko.APIKey,
		"COINGECKO_BASE_URL": &c.Providers.CoinGecko.BaseURL,
		"BERACHAIN_BASE_URL": &c.Providers.Berachain.BaseURL,
		"DUNE_API_KEY":       &c.Providers.Dune.APIKey,
		"DUNE_BASE_URL":      &c.Providers.Dune.BaseURL,
		"DUNE_QUERY_ID":      &c.Poll.QueryID,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"BACKUP_PATH":        &c.Backup.Path,
		"REDIS_ADDR":         &c.Backup.RedisAddr,
		"METRICS_ADDR":       &c.Observability.MetricsAddr,
		"CRON_REFRESH":       &c.Schedule.RefreshCron,
		"CRON_BACKUP":        &c.Schedule.BackupCron,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for name, dst := range overrides {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxRetries = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Providers.CoinGecko.BaseURL == "" {
		c.Providers.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Providers.CoinGecko.Delay == 0 {
		c.Providers.CoinGecko.Delay = 2 * time.Second
	}
	if c.Providers.Berachain.BaseURL == "" {
		c.Providers.Berachain.BaseURL = "https://supply-api.berachain.com"
	}
	if c.Providers.Dune.BaseURL == "" {
		c.Providers.Dune.BaseURL = "https://api.dune.com/api/v1"
	}
	for _, p := range []*Provider{&c.Providers.CoinGecko, &c.Providers.Berachain, &c.Providers.Dune} {
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
	}

	if c.Cache.PriceTTL == 0 {
		c.Cache.PriceTTL = 5 * time.Minute
	}
	if c.Cache.SupplyTTL == 0 {
		c.Cache.SupplyTTL = 60 * time.Minute
	}
	if c.Cache.EmissionsTTL == 0 {
		c.Cache.EmissionsTTL = 60 * time.Minute
	}
	if c.Cache.MarketTTL == 0 {
		c.Cache.MarketTTL = 60 * time.Minute
	}
	if c.Cache.HistoryTTL == 0 {
		c.Cache.HistoryTTL = 24 * time.Hour
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Poll.QueryID == "" {
		c.Poll.QueryID = "4740951"
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = time.Second
	}
	if c.Poll.MaxPolls == 0 {
		c.Poll.MaxPolls = 30
	}
	if len(c.Chains) == 0 {
		c.Chains = append([]string(nil), DefaultChains...)
	}

	if len(c.Metrics.Price) == 0 {
		c.Metrics.Price = []string{"coingecko-simple", "coingecko-coin"}
	}
	if len(c.Metrics.BeraSupply) == 0 {
		c.Metrics.BeraSupply = []string{"berachain-supply", "coingecko-coin"}
	}
	if len(c.Metrics.BGTSupply) == 0 {
		c.Metrics.BGTSupply = []string{"berachain-supply", "coingecko-coin"}
	}
	if len(c.Metrics.Emissions) == 0 {
		c.Metrics.Emissions = []string{"dune-execute", "dune-results", "dune-memory"}
	}
	if len(c.Metrics.History) == 0 {
		c.Metrics.History = []string{"coingecko-chart"}
	}
	if len(c.Metrics.Chain) == 0 {
		c.Metrics.Chain = []string{"coingecko", "coingecko-coin"}
	}

	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = 4
	}
	if c.Refresh.MismatchThreshold == 0 {
		c.Refresh.MismatchThreshold = 10
	}
	if c.Schedule.RefreshCron == "" {
		c.Schedule.RefreshCron = "0 */15 * * * *"
	}
	if c.Schedule.BackupCron == "" {
		c.Schedule.BackupCron = "0 5 * * * *"
	}
	if c.Schedule.SupplyCheckCron == "" {
		c.Schedule.SupplyCheckCron = "0 30 */6 * * *"
	}
	if c.Backup.Path == "" && c.Backup.RedisAddr == "" {
		c.Backup.Path = "data/emissions_backup.json"
	}
	if c.Backup.RedisKey == "" {
		c.Backup.RedisKey = "supply-sentinel:backup:emissions"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/supply_sentinel.db"
	}
	if c.Observability.Namespace == "" {
		c.Observability.Namespace = "supply_sentinel"
	}
}

// TelegramEnabled reports whether alerts and commands go through Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.TelegramEnabled() && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Telegram.ChatID != "" {
		if _, err := strconv.ParseInt(c.Telegram.ChatID, 10, 64); err != nil {
			return fmt.Errorf("telegram.chat_id must be numeric: %q", c.Telegram.ChatID)
		}
	}
	if c.Providers.Dune.APIKey == "" {
		return fmt.Errorf("providers.dune.api_key is required")
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}
	if c.Poll.Interval <= 0 || c.Poll.MaxPolls < 1 {
		return fmt.Errorf("poll.interval and poll.max_polls must be positive")
	}
	if c.Refresh.Concurrency < 1 {
		return fmt.Errorf("refresh.concurrency must be at least 1")
	}
	if c.Refresh.MismatchThreshold < 0 {
		return fmt.Errorf("refresh.mismatch_threshold must not be negative")
	}
	for _, ttl := range []time.Duration{c.Cache.PriceTTL, c.Cache.SupplyTTL, c.Cache.EmissionsTTL, c.Cache.MarketTTL, c.Cache.HistoryTTL} {
		if ttl < 0 {
			return fmt.Errorf("cache TTLs must not be negative")
		}
	}
	return nil
}
