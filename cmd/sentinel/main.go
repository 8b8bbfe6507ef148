package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"SupplySentinel/internal/aggregator"
	"SupplySentinel/internal/backup"
	"SupplySentinel/internal/collector"
	"SupplySentinel/internal/config"
	"SupplySentinel/internal/fetcher"
	"SupplySentinel/internal/notifier"
	"SupplySentinel/internal/observability"
	"SupplySentinel/internal/poller"
	"SupplySentinel/internal/recorder"
	"SupplySentinel/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] SupplySentinel starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(cfg.Observability.Namespace, reg)

	// Init fetchers, one per provider so throttling stays per provider
	newFetcher := func(name string, p config.Provider) *fetcher.Fetcher {
		f := fetcher.NewFetcher(name, fetcher.NewHTTPClient(p.Timeout, cfg.Proxy), cfg.Retry.MaxRetries)
		f.Metrics = metrics
		if p.Delay > 0 {
			f.Throttle = fetcher.NewThrottle(p.Delay)
		}
		return f
	}
	cg := collector.NewCoinGecko(cfg.Providers.CoinGecko.BaseURL, cfg.Providers.CoinGecko.APIKey,
		newFetcher("coingecko", cfg.Providers.CoinGecko))
	bera := collector.NewBerachain(cfg.Providers.Berachain.BaseURL, newFetcher("berachain", cfg.Providers.Berachain))
	dune := collector.NewDune(cfg.Providers.Dune.BaseURL, cfg.Providers.Dune.APIKey, newFetcher("dune", cfg.Providers.Dune))

	jobs := poller.New(dune, cfg.Poll.Interval, cfg.Poll.MaxPolls)
	jobs.Metrics = metrics
	col := collector.NewCollector(cg, bera, jobs, cfg.Poll.QueryID)

	// Init durable store
	var store backup.Store
	if cfg.Backup.RedisAddr != "" {
		rs := backup.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.Backup.RedisAddr}), cfg.Backup.RedisKey)
		defer rs.Close()
		store = rs
		log.Printf("[INFO] backup store: redis %s key=%s", cfg.Backup.RedisAddr, cfg.Backup.RedisKey)
	} else {
		store = backup.NewFileStore(cfg.Backup.Path)
		log.Printf("[INFO] backup store: file %s", cfg.Backup.Path)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	svc, err := aggregator.NewService(col, aggregator.Options{
		Chains: cfg.Chains,
		Providers: aggregator.ProviderLists{
			Price:      cfg.Metrics.Price,
			BeraSupply: cfg.Metrics.BeraSupply,
			BGTSupply:  cfg.Metrics.BGTSupply,
			Emissions:  cfg.Metrics.Emissions,
			History:    cfg.Metrics.History,
			Chain:      cfg.Metrics.Chain,
		},
		TTL: aggregator.TTLs{
			Price:     cfg.Cache.PriceTTL,
			Supply:    cfg.Cache.SupplyTTL,
			Emissions: cfg.Cache.EmissionsTTL,
			History:   cfg.Cache.HistoryTTL,
			Market:    cfg.Cache.MarketTTL,
		},
		Concurrency:       cfg.Refresh.Concurrency,
		MismatchThreshold: cfg.Refresh.MismatchThreshold,
		Store:             store,
		Recorder:          rec,
		Metrics:           metrics,
	})
	if err != nil {
		log.Fatalf("[FATAL] init aggregator: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init notifier
	var (
		n  notifier.Notifier = notifier.LogNotifier{}
		tn *notifier.TelegramNotifier
	)
	if cfg.TelegramEnabled() {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Endpoint, cfg.Proxy)
		if err != nil {
			log.Printf("[WARN] init telegram failed, alerts go to the log: %v", err)
		} else {
			n = tn
		}
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, svc, n)
	if err := sched.RegisterAll(scheduler.Schedule{
		Refresh:     cfg.Schedule.RefreshCron,
		BackupSync:  cfg.Schedule.BackupCron,
		SupplyCheck: cfg.Schedule.SupplyCheckCron,
	}); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Metrics endpoint
	var srv *http.Server
	if cfg.Observability.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		srv = &http.Server{Addr: cfg.Observability.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[ERROR] metrics server: %v", err)
			}
		}()
		log.Printf("[INFO] metrics listening on %s", cfg.Observability.MetricsAddr)
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing refresh now")
		go sched.RunRefreshNow()
	}

	log.Println("[INFO] SupplySentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] metrics server shutdown: %v", err)
		}
	}
	log.Println("[INFO] SupplySentinel stopped")
}
