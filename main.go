package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/config"
	"alpha_gateway/controllers"
	"alpha_gateway/middleware"
	"alpha_gateway/routes"
	"alpha_gateway/scheduler"
	"alpha_gateway/services/analysis"
	"alpha_gateway/services/cache"
	"alpha_gateway/services/dailyupdate"
	"alpha_gateway/services/datafetcher"
	"alpha_gateway/services/history"
	"alpha_gateway/services/pricestore"
	"alpha_gateway/services/realtime"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	logger := applog.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	store, err := pricestore.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open price store")
		os.Exit(1)
	}

	appConfig := config.NewAppConfigStore(cfg.AppConfigPath, cfg.AuditLogPath, cfg.Alpha.APIKey, cfg.AllowedIPs, logger)
	if appConfig.AlphaKey() == "" {
		logger.Warn().Msg("no Alpha Vantage key configured; upstream calls will fail until one is set via POST /config")
	}

	fetcher := datafetcher.NewDataFetcher(datafetcher.Options{
		BaseURL:       cfg.Alpha.BaseURL,
		QuoteTimeout:  cfg.Alpha.QuoteTimeout,
		SeriesTimeout: cfg.Alpha.SeriesTimeout,
	}, appConfig, cache.New(cfg.CacheTTL), logger)
	chain := history.NewChain(fetcher, store, logger)
	analyzer := analysis.NewAnalyzer(fetcher, chain, cfg.Policy, logger)

	launcher := dailyupdate.NewLauncher(dailyupdate.LauncherConfig{
		Binary:      cfg.Updater.Binary,
		SymbolsFile: cfg.Updater.SymbolsFile,
		LogsDir:     cfg.Updater.LogsDir,
		Sleep:       cfg.Updater.Sleep,
	}, logger)
	jobScheduler := scheduler.NewScheduler(launcher, time.Local, logger)
	jobScheduler.Start()

	streamer := realtime.NewQuoteStreamer(fetcher, cfg.StreamInterval, logger)

	limiter := middleware.NewSlidingWindowLimiter()
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(time.Minute, time.Minute, stopCleanup)

	router := routes.NewRouter(routes.Dependencies{
		Data:             controllers.NewDataController(fetcher, chain, store, analyzer, filepath.Join(cfg.DataDir, "import"), logger),
		Config:           controllers.NewConfigController(appConfig, logger),
		Update:           controllers.NewUpdateController(launcher, jobScheduler, logger),
		Streamer:         streamer,
		AllowList:        appConfig,
		Limiter:          limiter,
		ConfigWriteLimit: cfg.ConfigWriteLimit,
		Logger:           logger,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store.Driver).
			Dur("cache_ttl", cfg.CacheTTL).
			Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed to start")
			os.Exit(1)
		}
	}()

	gracefulShutdown(server, jobScheduler, streamer, store, stopCleanup, logger)
}

// gracefulShutdown waits for a signal, then stops background work before closing the store
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, streamer *realtime.QuoteStreamer, store pricestore.PriceStore, stopCleanup chan struct{}, logger *applog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	jobScheduler.Stop()
	close(stopCleanup)
	streamer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	if err := store.Close(); err != nil {
		logger.Warn().Err(err).Msg("price store close failed")
	}
	logger.Info().Msg("shutdown complete")
}
