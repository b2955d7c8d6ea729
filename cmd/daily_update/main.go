// Command daily_update refreshes the local price store from Alpha Vantage.
// The gateway launches it through /data/run_daily_update or its scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/config"
	"alpha_gateway/services/cache"
	"alpha_gateway/services/dailyupdate"
	"alpha_gateway/services/datafetcher"
	"alpha_gateway/services/pricestore"
)

type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var (
		file        string
		symbols     listFlag
		sleepSec    int
		summaryPath string
		logPath     string
	)
	flag.StringVar(&file, "f", cfg.Updater.SymbolsFile, "symbols file, one per line")
	flag.StringVar(&file, "file", cfg.Updater.SymbolsFile, "symbols file, one per line")
	flag.Var(&symbols, "s", "comma separated symbols (repeatable)")
	flag.Var(&symbols, "symbols", "comma separated symbols (repeatable)")
	flag.IntVar(&sleepSec, "sleep", int(cfg.Updater.Sleep/time.Second), "seconds to pause between symbols")
	flag.StringVar(&summaryPath, "summary", filepath.Join(cfg.Updater.LogsDir, dailyupdate.SummaryFile), "summary JSON output path")
	flag.StringVar(&logPath, "log", "", "log file path managed by the launcher")
	flag.Parse()
	symbols = append(symbols, flag.Args()...)

	// the launcher already captures stderr into logPath
	logger := applog.New(cfg.LogLevel, "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger, file, symbols, time.Duration(sleepSec)*time.Second, summaryPath, logPath))
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger, file string, args []string, sleep time.Duration, summaryPath, logPath string) int {
	keys := config.NewAppConfigStore(cfg.AppConfigPath, cfg.AuditLogPath, cfg.Alpha.APIKey, cfg.AllowedIPs, logger)
	if keys.AlphaKey() == "" {
		logger.Error().Msg("missing ALPHAVANTAGE_API_KEY and no alphaKey in app config")
		return 1
	}

	symbols, err := dailyupdate.LoadSymbols(file, args)
	if err != nil {
		logger.Error().Err(err).Str("file", file).Msg("failed to read symbols")
		return 1
	}
	if len(symbols) == 0 {
		logger.Warn().Str("file", file).Msg("no symbols given; add them to the symbols file or pass -s")
		return 0
	}

	store, err := pricestore.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open price store")
		return 1
	}
	defer store.Close()

	fetcher := datafetcher.NewDataFetcher(datafetcher.Options{
		BaseURL:       cfg.Alpha.BaseURL,
		QuoteTimeout:  cfg.Alpha.QuoteTimeout,
		SeriesTimeout: cfg.Alpha.SeriesTimeout,
	}, keys, cache.New(cfg.CacheTTL), logger)

	runner := dailyupdate.NewRunner(fetcher, store, logger)
	sum, err := runner.Run(ctx, dailyupdate.Options{
		Symbols:     symbols,
		Sleep:       sleep,
		SummaryPath: summaryPath,
		LogPath:     logPath,
		DBPath:      storeLocation(cfg.Store),
	})
	if err != nil {
		logger.Error().Err(err).Msg("daily update interrupted")
		return 1
	}
	logger.Info().Int("ok", sum.OK).Int("fail", sum.Fail).Str("summary", summaryPath).Msg("done")
	return 0
}

func storeLocation(s config.StoreConfig) string {
	switch s.Driver {
	case "postgres":
		return config.MaskDSN(s.PostgresDSN)
	case "mongo", "mongodb":
		return config.MaskDSN(s.MongoURI) + "/" + s.MongoDatabase
	default:
		return s.SQLitePath
	}
}
