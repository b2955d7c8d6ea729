// Package history resolves a daily price series from the upstream provider,
// falling back to the local store when the provider cannot answer.
package history

import (
	"context"
	"errors"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/models"
	"alpha_gateway/services/pricestore"
)

// ErrNotPersistable marks a series that must not be written to the store.
var ErrNotPersistable = errors.New("series is not primary daily data")

// DailySource is the upstream side of the chain
type DailySource interface {
	DailySeries(ctx context.Context, symbol string) (*models.DailySeries, error)
}

// Chain tries upstream first and substitutes local history on quota,
// timeout or unreachable failures. Series are always ascending by date.
type Chain struct {
	upstream DailySource
	store    pricestore.PriceStore
	logger   *applog.Logger
}

// NewChain creates a fallback chain
func NewChain(upstream DailySource, store pricestore.PriceStore, logger *applog.Logger) *Chain {
	return &Chain{upstream: upstream, store: store, logger: logger}
}

// Daily returns the upstream series, or local history tagged fallback_local.
// When neither source has rows the upstream error is returned, or NoHistory
// if upstream succeeded with an empty series.
func (c *Chain) Daily(ctx context.Context, symbol string) (*models.DailySeries, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}

	series, err := c.upstream.DailySeries(ctx, sym)
	if err == nil && len(series.Rows) > 0 {
		return series, nil
	}
	if err != nil && !apperror.Recoverable(err) {
		return nil, err
	}

	local, lerr := c.Local(ctx, sym, pricestore.DefaultQueryLimit)
	if lerr != nil {
		c.logger.Warn().Str("symbol", sym).Err(lerr).Msg("local history unavailable")
	}
	if lerr == nil && len(local.Rows) > 0 {
		c.logger.Info().
			Str("symbol", sym).
			Int("rows", len(local.Rows)).
			Str("upstream", apperror.KindOf(err).String()).
			Msg("serving local history")
		local.Note = models.NoteLocalFallback
		return local, nil
	}

	if err != nil {
		return nil, err
	}
	return nil, apperror.NewNoHistory("empty series")
}

// Local reads up to limit stored rows for symbol, oldest first
func (c *Chain) Local(ctx context.Context, symbol string, limit int) (*models.DailySeries, error) {
	sym := models.NormalizeSymbol(symbol)
	rows, err := c.store.Query(ctx, sym, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "local store read failed", err)
	}
	return models.NewDailySeries(sym, pricestore.Ascending(rows), ""), nil
}

// Save persists a primary upstream series. Intraday and local substitutes are refused.
func (c *Chain) Save(ctx context.Context, series *models.DailySeries) error {
	if series == nil || series.Note != "" {
		return ErrNotPersistable
	}
	return c.store.Upsert(ctx, models.NormalizeSymbol(series.Symbol), series.Rows)
}
