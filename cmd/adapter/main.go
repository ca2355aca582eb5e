package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/algo-trading/tastytrade/internal/brokerage"
	"github.com/algo-trading/tastytrade/internal/config"
	"github.com/algo-trading/tastytrade/internal/domain"
	"github.com/algo-trading/tastytrade/internal/eventbus"
	"github.com/algo-trading/tastytrade/internal/marketdata"
	"github.com/algo-trading/tastytrade/internal/monitor"
	"github.com/algo-trading/tastytrade/internal/persistence"
	"github.com/algo-trading/tastytrade/internal/stream"
	"github.com/algo-trading/tastytrade/internal/symbols"
	"github.com/algo-trading/tastytrade/internal/tastytrade"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	confirmProduction := flag.Bool("confirm-production", false, "Confirm production trading environment")
	flag.Parse()

	logger := initLogger("INFO")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = initLogger(cfg.System.LogLevel)
	logger.Info("configuration loaded",
		"instance_id", cfg.System.InstanceID,
		"environment", cfg.System.Environment,
	)

	env := domain.Environment(cfg.System.Environment)
	if env == domain.EnvironmentProduction {
		if !*confirmProduction {
			logger.Error("PRODUCTION environment requires --confirm-production flag")
			os.Exit(1)
		}
		logger.Warn("=== PRODUCTION TRADING ACTIVE ===")
	} else {
		logger.Info("running against sandbox")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer)

	tracerShutdown, err := monitor.InitTracer(cfg.System.InstanceID, logger)
	if err != nil {
		logger.Warn("failed to initialize tracer", "error", err)
	}

	bus := eventbus.New(1024, logger)

	alertMgr := monitor.NewAlertManager(cfg.Monitoring.AlertChannels, logger)
	go alertMgr.WatchBrokerageEvents(bus.SubscribeBrokerageEvents())

	sqliteStore, err := persistence.NewSQLiteStore(cfg.Persistence.JournalDB, logger)
	if err != nil {
		logger.Error("failed to initialize SQLite journal", "error", err)
		os.Exit(1)
	}
	defer sqliteStore.Close()

	pgStore, err := persistence.NewPostgresStore(ctx, cfg.Persistence.ColdStoreDSN, cfg.Persistence.ColdStorePoolSize, logger)
	if err != nil {
		logger.Warn("PostgreSQL cold store unavailable, continuing without it", "error", err)
	} else if pgStore != nil {
		defer pgStore.Close()
		if err := pgStore.RunMigrations(ctx); err != nil {
			logger.Error("failed to run PostgreSQL migrations", "error", err)
		}
	}

	asyncWriter := persistence.NewAsyncWriter(sqliteStore, pgStore, cfg.Persistence.WriterBufferSize, logger)
	asyncWriter.Run()

	var journalWG sync.WaitGroup
	journalWG.Add(2)
	go func() {
		defer journalWG.Done()
		journalOrderEvents(bus.SubscribeOrderEvents(), asyncWriter)
	}()
	go func() {
		defer journalWG.Done()
		journalStreamEvents(bus.SubscribeBrokerageEvents(), asyncWriter)
	}()

	rateLimiter := tastytrade.NewRateLimiter()
	for category, rl := range cfg.RateLimits {
		rateLimiter.AddBucket(domain.EndpointCategory(category), rl.Capacity, rl.RefillPerSecond)
	}

	var oauth *tastytrade.OAuthHandler
	if cfg.Credentials.UsesOAuth() {
		oauth = tastytrade.NewOAuthHandler(tastytrade.OAuthConfig{
			ClientID:     cfg.Credentials.ClientID,
			ClientSecret: cfg.Credentials.ClientSecret,
			RedirectURI:  cfg.Credentials.RedirectURI,
			RefreshToken: cfg.Credentials.RefreshToken,
			Environment:  env,
			Logger:       logger,
		})
	}

	client := tastytrade.NewClient(tastytrade.ClientConfig{
		BaseURL:      tastytrade.BaseURL(env),
		AccountID:    cfg.Credentials.AccountID,
		SessionToken: cfg.Credentials.SessionToken,
		OAuth:        oauth,
		RateLimiter:  rateLimiter,
		Recorder:     metrics,
		Logger:       logger,
	})

	if oauth == nil && cfg.Credentials.SessionToken == "" {
		if err := client.Authenticate(ctx, cfg.Credentials.Username, cfg.Credentials.Password); err != nil {
			logger.Error("venue authentication failed", "error", err)
			os.Exit(1)
		}
		logger.Info("venue session established")
	}

	mapper := symbols.NewMapper()

	mdService := marketdata.NewService(bus, cfg.Monitoring.DataStaleAfter(), logger)

	coordinator := stream.NewCoordinator(
		stream.CoordinatorConfig{
			MaxReconnectAttempts: cfg.Streaming.MaxReconnectAttempts,
			ReconnectBase:        cfg.Streaming.ReconnectBase(),
			ReconnectMax:         cfg.Streaming.ReconnectMax(),
			HandshakeTimeout:     cfg.Streaming.HandshakeTimeout(),
			CloseTimeout:         cfg.Streaming.CloseTimeout(),
			SerializePush:        cfg.Streaming.SerializePush,
		},
		client,
		mapper,
		mdService,
		&brokerage.BusNotifier{Bus: bus},
		metrics,
		logger,
	)

	broker := brokerage.New(client, mapper, coordinator, bus, metrics, logger)

	for _, raw := range cfg.Streaming.Symbols {
		symbol := parseStreamSymbol(raw)
		if !broker.Subscribe(symbol) {
			logger.Warn("initial subscription failed", "symbol", raw)
		}
	}

	go mdService.RunHeartbeatMonitor(ctx)
	go startMetricsServer(cfg.Monitoring.MetricsAddr, logger)

	if err := config.WatchAndReload(*configPath, func(newCfg *config.Config) {
		logger.Info("configuration reloaded")
	}); err != nil {
		logger.Warn("config hot-reload setup failed", "error", err)
	}

	logger.Info("adapter started",
		"instance_id", cfg.System.InstanceID,
		"environment", cfg.System.Environment,
		"symbols", len(cfg.Streaming.Symbols),
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	broker.Close()
	bus.Close()
	// The journal forwarders exit once the bus channels close; the writer
	// must outlive them or buffered order events are lost.
	journalWG.Wait()
	asyncWriter.Stop()

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracer", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func initLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseStreamSymbol reads a configured symbol string. A leading slash marks
// a futures contract; everything else is an equity ticker.
func parseStreamSymbol(raw string) domain.Symbol {
	if strings.HasPrefix(raw, "/") {
		return domain.Symbol{
			Ticker:       strings.TrimPrefix(raw, "/"),
			SecurityType: domain.SecurityFuture,
		}
	}
	return domain.NewEquity(raw)
}

func journalOrderEvents(events <-chan domain.OrderEvent, writer *persistence.AsyncWriter) {
	for ev := range events {
		writer.WriteOrderEvent(ev)
	}
}

func journalStreamEvents(events <-chan domain.BrokerageEvent, writer *persistence.AsyncWriter) {
	for ev := range events {
		writer.WriteStreamEvent(ev)
	}
}

func startMetricsServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.MetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	logger.Info("metrics server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}
