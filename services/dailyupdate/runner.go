// Package dailyupdate refreshes the local price store from the upstream
// provider. The job runs as its own process; the gateway starts it with a
// Launcher and reads the summary file it leaves behind.
package dailyupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/config"
	"alpha_gateway/models"
	"alpha_gateway/services/pricestore"

	"github.com/google/uuid"
)

// SummaryFile is the name of the status file written after each run
const SummaryFile = "daily_update-last.json"

// Failure reasons recorded in the summary.
const (
	ReasonQuota   = "quota"
	ReasonNetwork = "network"
	ReasonStore   = "store"
	ReasonOther   = "other"
)

// SeriesFetcher fetches the adjusted daily series of one symbol
type SeriesFetcher interface {
	DailyAdjusted(ctx context.Context, symbol string) (*models.DailySeries, error)
}

// Options control one run
type Options struct {
	Symbols     []string
	Sleep       time.Duration
	SummaryPath string
	LogPath     string
	DBPath      string
}

// Failure describes one symbol that could not be refreshed
type Failure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Summary is the status document written at the end of a run
type Summary struct {
	RunID    string    `json:"run_id"`
	StartTS  int64     `json:"start_ts"`
	EndTS    int64     `json:"end_ts"`
	OK       int       `json:"ok"`
	Fail     int       `json:"fail"`
	Sleep    int       `json:"sleep"`
	Symbols  []string  `json:"symbols"`
	Failures []Failure `json:"failures"`
	LogPath  string    `json:"log_path"`
	DBPath   string    `json:"db_path"`
}

// Runner fetches and stores each symbol in turn
type Runner struct {
	fetcher SeriesFetcher
	store   pricestore.PriceStore
	logger  *applog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner
func NewRunner(fetcher SeriesFetcher, store pricestore.PriceStore, logger *applog.Logger) *Runner {
	return &Runner{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Run refreshes every symbol, pausing opts.Sleep between upstream calls, and
// writes the summary when opts.SummaryPath is set. Individual failures are
// counted, not returned; a cancelled context stops the run early.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{
		RunID:    uuid.NewString(),
		StartTS:  r.now().Unix(),
		Sleep:    int(opts.Sleep / time.Second),
		Symbols:  opts.Symbols,
		Failures: []Failure{},
		LogPath:  opts.LogPath,
		DBPath:   opts.DBPath,
	}
	log := r.logger.WithCorrelationId(sum.RunID)
	log.Info().Int("symbols", len(opts.Symbols)).Dur("sleep", opts.Sleep).Msg("daily update started")

	var runErr error
	for i, code := range opts.Symbols {
		log.Info().Msgf("(%d/%d) fetching %s", i+1, len(opts.Symbols), code)
		if f := r.refresh(ctx, code); f != nil {
			sum.Fail++
			sum.Failures = append(sum.Failures, *f)
			log.Warn().Str("symbol", code).Str("reason", f.Reason).Msg(f.Error)
		} else {
			sum.OK++
		}

		if i < len(opts.Symbols)-1 {
			if err := r.sleep(ctx, opts.Sleep); err != nil {
				runErr = err
				break
			}
		}
	}

	sum.EndTS = r.now().Unix()
	log.Info().Int("ok", sum.OK).Int("fail", sum.Fail).Str("db", sum.DBPath).Msg("daily update finished")

	if opts.SummaryPath != "" {
		if err := WriteSummary(opts.SummaryPath, sum); err != nil {
			return sum, err
		}
	}
	return sum, runErr
}

func (r *Runner) refresh(ctx context.Context, code string) *Failure {
	sym := models.NormalizeSymbol(code)
	series, err := r.fetcher.DailyAdjusted(ctx, sym)
	if err != nil {
		return &Failure{Symbol: sym, Reason: classify(err), Error: err.Error()}
	}
	if err := r.store.Upsert(ctx, sym, series.Rows); err != nil {
		return &Failure{Symbol: sym, Reason: ReasonStore, Error: err.Error()}
	}
	r.logger.Info().Str("symbol", sym).Int("rows", len(series.Rows)).Msg("stored")
	return nil
}

func classify(err error) string {
	switch apperror.KindOf(err) {
	case apperror.QuotaExceeded:
		return ReasonQuota
	case apperror.UpstreamTimeout, apperror.UpstreamUnreachable:
		return ReasonNetwork
	default:
		return ReasonOther
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteSummary replaces the summary file atomically
func WriteSummary(path string, sum *Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return config.WriteFileAtomic(path, data)
}

// ReadSummary loads the last summary; a missing file is NotFound("no summary")
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperror.NewNotFound("no summary")
		}
		return nil, apperror.Wrap(apperror.Internal, "failed to read summary", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "summary is not valid JSON", err)
	}
	return &sum, nil
}
