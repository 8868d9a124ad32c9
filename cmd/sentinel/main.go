package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leejoonhun/sentinel-vault/internal/config"
	"github.com/leejoonhun/sentinel-vault/internal/engine"
	"github.com/leejoonhun/sentinel-vault/internal/handler"
	"github.com/leejoonhun/sentinel-vault/internal/journal"
	"github.com/leejoonhun/sentinel-vault/internal/keeper"
	"github.com/leejoonhun/sentinel-vault/internal/metrics"
	"github.com/leejoonhun/sentinel-vault/internal/oracle"
	"github.com/leejoonhun/sentinel-vault/internal/state"
	"github.com/leejoonhun/sentinel-vault/internal/store"
	"github.com/leejoonhun/sentinel-vault/internal/swap"
	"github.com/leejoonhun/sentinel-vault/internal/token"
	"github.com/leejoonhun/sentinel-vault/internal/vault"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger runtime and commit hooks.
	rt := state.NewRuntime(time.Now)
	events := store.NewEventStore()
	rt.OnCommit(events.Append)

	met := metrics.New(prometheus.DefaultRegisterer)
	rt.OnCommit(met.ObserveEvent)

	if cfg.DatabaseURL != "" {
		db, err := journal.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open journal", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()

		j := journal.New(db)
		if err := j.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare journal", slog.String("error", err.Error()))
			os.Exit(1)
		}
		last, err := j.LastSeq(ctx)
		if err != nil {
			logger.Error("failed to read journal position", slog.String("error", err.Error()))
			os.Exit(1)
		}
		rt.Resume(last)

		w := journal.NewWriter(j, journal.DefaultBuffer, cfg.JournalTimeout, logger.With(slog.String("component", "journal")))
		w.Start()
		defer w.Close()
		rt.OnCommit(w.Hook)
		logger.Info("journal enabled", slog.Uint64("last_seq", last))
	}

	// Tokens.
	tokens := token.NewRegistry()
	for _, spec := range cfg.Tokens {
		if err := tokens.Register(token.New(rt, spec.Address, spec.Symbol, spec.Decimals)); err != nil {
			logger.Error("failed to register token", slog.String("symbol", spec.Symbol), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if _, err := tokens.Get(token.NativeAddress); err != nil {
		_ = tokens.Register(token.New(rt, token.NativeAddress, "ETH", 18))
	}

	// Oracle, vault, swap target and order module.
	feed := oracle.NewFeed(time.Now)
	prices := oracle.NewRegistry()
	prices.Add(cfg.OracleAddress, feed)

	v := vault.New(rt, cfg.VaultAddress, cfg.AdminAddress, tokens, logger)
	v.RegisterTarget(cfg.SwapTarget, swap.NewPool(cfg.SwapTarget, tokens, prices, cfg.OracleAddress))

	orders := store.NewOrderStore()
	module := engine.NewModule(rt, cfg.OrderModuleAddress, cfg.AdminAddress, v, prices, orders, logger)

	if err := v.SetModule(ctx, cfg.AdminAddress, cfg.OrderModuleAddress, true); err != nil {
		logger.Error("failed to authorize order module", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := module.SetKeeper(ctx, cfg.AdminAddress, cfg.KeeperAddress, true); err != nil {
		logger.Error("failed to register keeper", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := &keeper.StaticRouter{
		Target:    cfg.SwapTarget,
		Recipient: cfg.VaultAddress,
		Tokens:    tokens,
		Prices:    prices,
	}

	// Background workers.
	expiryMgr := engine.NewExpiryManager(cfg.ExpirationInterval, module, orders, logger)
	expiryMgr.Start(ctx)

	if cfg.KeeperEnabled {
		svc := keeper.NewService(keeper.Config{
			Keeper:    cfg.KeeperAddress,
			Orders:    module,
			Prices:    prices,
			Router:    router,
			Interval:  cfg.PollInterval,
			BatchSize: cfg.KeeperBatchSize,
			Now:       rt.Now,
			Metrics:   met,
			Logger:    logger.With(slog.String("component", "keeper")),
		})
		go svc.Run(ctx)
	}

	// HTTP server.
	mux := handler.NewRouter(handler.Deps{
		Vault:   v,
		Orders:  module,
		Tokens:  tokens,
		Events:  events,
		Router:  router,
		Metrics: promhttp.Handler(),
		Admin:   cfg.AdminAddress,
		Feed:    feed,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("vault", cfg.VaultAddress.Hex()),
			slog.String("order_module", cfg.OrderModuleAddress.Hex()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, then cancel the workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config) *slog.Logger {
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
