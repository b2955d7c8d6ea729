// Package analysis computes technical indicators over daily closes and
// evaluates screening conditions against them.
package analysis

import (
	"context"
	"fmt"
	"strconv"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/config"
	"alpha_gateway/models"
	"alpha_gateway/services/pricestore"

	"github.com/shopspring/decimal"
)

// Data sources accepted by Analyze.
const (
	SourceAlpha = "alpha"
	SourceLocal = "local"
)

// Check names reported in AnalysisResult.Checks.
const (
	CheckPriceLower = "Price≥lower"
	CheckPriceUpper = "Price≤upper"
	CheckPE         = "PE≤threshold"
	CheckDividend   = "DividendYield≥threshold"
	CheckRSI        = "RSI≥threshold"
	CheckVolatility = "Volatility≤threshold"
)

// MarketSource supplies the live quote and fundamentals
type MarketSource interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Overview(ctx context.Context, symbol string) (*models.Fundamentals, error)
}

// SeriesSource supplies daily history, upstream-with-fallback or local only
type SeriesSource interface {
	Daily(ctx context.Context, symbol string) (*models.DailySeries, error)
	Local(ctx context.Context, symbol string, limit int) (*models.DailySeries, error)
}

// Request is one analyze call
type Request struct {
	Symbol     string
	Source     string
	Conditions models.Conditions
}

// Analyzer combines quote, history and fundamentals into an AnalysisResult
type Analyzer struct {
	market MarketSource
	series SeriesSource
	policy config.PolicyConfig
	logger *applog.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(market MarketSource, series SeriesSource, policy config.PolicyConfig, logger *applog.Logger) *Analyzer {
	return &Analyzer{market: market, series: series, policy: policy, logger: logger}
}

type inputs struct {
	series *models.DailySeries
	quote  *models.Quote
	funda  *models.Fundamentals
	source string
}

// Analyze runs the full analysis for req.Symbol
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*models.AnalysisResult, error) {
	sym := models.NormalizeSymbol(req.Symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}

	in, err := a.gather(ctx, sym, req.Source)
	if err != nil {
		return nil, err
	}

	closes := in.series.Closes()
	if len(closes) == 0 {
		return nil, apperror.NewNoHistory("no usable closes")
	}

	last := closes[len(closes)-1]
	if in.quote != nil && in.quote.Price > 0 {
		last = in.quote.Price
	}

	result := a.evaluate(sym, last, closes, in.funda, req.Conditions)
	result.Source = in.source
	result.Note = in.series.Note

	a.logger.Debug().
		Str("symbol", sym).
		Str("source", in.source).
		Int("closes", len(closes)).
		Float64("last", result.Last).
		Str("momentum", result.Momentum).
		Msg("analysis complete")
	return result, nil
}

func (a *Analyzer) gather(ctx context.Context, sym, source string) (*inputs, error) {
	if source == SourceLocal {
		series, err := a.series.Local(ctx, sym, pricestore.DefaultQueryLimit)
		if err != nil {
			return nil, err
		}
		return &inputs{series: series, source: SourceLocal}, nil
	}

	in := &inputs{source: SourceAlpha}

	quote, err := a.market.Quote(ctx, sym)
	switch {
	case err == nil:
		in.quote = quote
	case apperror.Recoverable(err):
		a.logger.Warn().Str("symbol", sym).Err(err).Msg("quote unavailable, using last close")
	default:
		return nil, err
	}

	series, err := a.series.Daily(ctx, sym)
	if err != nil {
		if apperror.Recoverable(err) {
			return nil, apperror.NewNoHistory(err.Error())
		}
		return nil, err
	}
	in.series = series

	funda, err := a.market.Overview(ctx, sym)
	switch {
	case err == nil:
		in.funda = funda
	case apperror.Recoverable(err):
		a.logger.Warn().Str("symbol", sym).Err(err).Msg("fundamentals unavailable")
	default:
		return nil, err
	}
	return in, nil
}

func (a *Analyzer) evaluate(sym string, last float64, closes []float64, funda *models.Fundamentals, conds models.Conditions) *models.AnalysisResult {
	p20 := SMAOr(closes, 20, last)
	p60 := SMAOr(closes, 60, last)
	e20 := EMAOr(closes, 20, last)
	rsi := RSIOr(closes, 14)
	vol := VolatilityOr(closes)
	low, high := Band(closes)

	chg := 0.0
	if p60 != 0 {
		chg = (last - p60) / p60 * 100
	}

	pe := funda.PE()
	div := funda.Dividend()

	used := models.Conditions{
		Low:    orDefault(conds.Low, low),
		High:   orDefault(conds.High, high),
		MaxPE:  conds.MaxPE,
		MinDiv: conds.MinDiv,
		MinRSI: orDefault(conds.MinRSI, a.policy.MinRSI),
		MaxVol: orDefault(conds.MaxVol, a.policy.MaxVol),
	}

	checks := []models.Check{
		{Name: CheckPriceLower, OK: last >= *used.Low, Detail: fmt.Sprintf("last=%.2f, low=%.2f", last, *used.Low)},
		{Name: CheckPriceUpper, OK: last <= *used.High, Detail: fmt.Sprintf("last=%.2f, high=%.2f", last, *used.High)},
	}
	if used.MaxPE != nil {
		checks = append(checks, models.Check{
			Name: CheckPE, OK: pe <= *used.MaxPE,
			Detail: fmt.Sprintf("PE=%s, max=%s", num(pe), num(*used.MaxPE)),
		})
	}
	if used.MinDiv != nil {
		checks = append(checks, models.Check{
			Name: CheckDividend, OK: div >= *used.MinDiv,
			Detail: fmt.Sprintf("Div=%s, min=%s", num(div), num(*used.MinDiv)),
		})
	}
	checks = append(checks,
		models.Check{Name: CheckRSI, OK: rsi >= *used.MinRSI, Detail: fmt.Sprintf("RSI14=%.1f, min=%s", rsi, num(*used.MinRSI))},
		models.Check{Name: CheckVolatility, OK: vol <= *used.MaxVol, Detail: fmt.Sprintf("Vol=%.3f, max=%s", vol, num(*used.MaxVol))},
	)

	momentum := "weak"
	if last > p60 {
		momentum = "strong"
	}
	position := a.policy.PositionWeak
	switch {
	case last > e20 && last > p60:
		position = a.policy.PositionStrong
	case last > e20:
		position = a.policy.PositionEMA
	}

	return &models.AnalysisResult{
		Symbol: sym,
		Last:   Round(last, 2),
		Indicators: models.Indicators{
			SMA20:         Round(p20, 2),
			SMA60:         Round(p60, 2),
			EMA20:         Round(e20, 2),
			RSI14:         Round(rsi, 1),
			Volatility:    vol,
			BandLow:       Round(low, 2),
			BandHigh:      Round(high, 2),
			ChangeVsSMA60: Round(chg, 2),
		},
		Fundamentals: models.FundamentalSnapshot{PE: pe, DividendYield: div},
		Summary:      summarize(last, chg, vol, momentum, position, low, high),
		Checks:       checks,
		Conditions:   used,
		Momentum:     momentum,
		Position:     position,
	}
}

func summarize(last, chg, vol float64, momentum string, position, low, high float64) string {
	fixed := func(v float64, places int32) string {
		return decimal.NewFromFloat(v).StringFixed(places)
	}
	return fmt.Sprintf("Price %s, %s%% vs SMA60, volatility %s%%. Momentum %s. Suggested position %d%%. Watch band %s~%s.",
		fixed(last, 2), fixed(chg, 2), fixed(vol*100, 1), momentum,
		int(decimal.NewFromFloat(position).Mul(decimal.NewFromInt(100)).IntPart()),
		fixed(low, 2), fixed(high, 2))
}

func orDefault(v *float64, def float64) *float64 {
	if v != nil {
		return v
	}
	return &def
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
