package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/models"
	"alpha_gateway/services/cache"
)

const (
	DefaultBaseURL       = "https://www.alphavantage.co/query"
	DefaultQuoteTimeout  = 20 * time.Second
	DefaultSeriesTimeout = 30 * time.Second

	maxErrorBody = 64 * 1024
)

// KeySource resolves the provider API key at call time so key changes apply
// without a restart.
type KeySource interface {
	AlphaKey() string
}

// StaticKey is a fixed API key.
type StaticKey string

func (k StaticKey) AlphaKey() string { return string(k) }

// Options configures the upstream endpoint and per-call timeouts
type Options struct {
	BaseURL       string
	QuoteTimeout  time.Duration
	SeriesTimeout time.Duration
}

// DataFetcher calls Alpha Vantage, classifies failures and caches successes
type DataFetcher struct {
	baseURL       string
	keys          KeySource
	cache         *cache.TTLCache
	httpClient    *http.Client
	quoteTimeout  time.Duration
	seriesTimeout time.Duration
	logger        *applog.Logger
}

// NewDataFetcher creates a new data fetcher instance
func NewDataFetcher(opts Options, keys KeySource, c *cache.TTLCache, logger *applog.Logger) *DataFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = DefaultQuoteTimeout
	}
	if opts.SeriesTimeout <= 0 {
		opts.SeriesTimeout = DefaultSeriesTimeout
	}
	if c == nil {
		c = cache.New(cache.DefaultTTL)
	}
	return &DataFetcher{
		baseURL:       opts.BaseURL,
		keys:          keys,
		cache:         c,
		httpClient:    &http.Client{},
		quoteTimeout:  opts.QuoteTimeout,
		seriesTimeout: opts.SeriesTimeout,
		logger:        logger,
	}
}

// Quote fetches the latest quote (GLOBAL_QUOTE)
func (df *DataFetcher) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}
	key := cache.Key(cache.KindQuote, sym)
	if v, ok := df.cache.Get(key); ok {
		return v.(*models.Quote), nil
	}

	body, err := df.call(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {sym}}, df.quoteTimeout)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if gq, ok := body["Global Quote"]; ok {
		if err := json.Unmarshal(gq, &raw); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "decode quote", err)
		}
	}

	q := &models.Quote{
		Symbol:        raw["01. symbol"],
		Open:          models.ParseFloat(raw["02. open"]),
		High:          models.ParseFloat(raw["03. high"]),
		Low:           models.ParseFloat(raw["04. low"]),
		Price:         models.ParseFloat(raw["05. price"]),
		Volume:        models.ParseInt(raw["06. volume"]),
		LatestDay:     raw["07. latest trading day"],
		PrevClose:     models.ParseFloat(raw["08. previous close"]),
		Change:        models.ParseFloat(raw["09. change"]),
		ChangePercent: raw["10. change percent"],
	}
	if q.Symbol == "" {
		q.Symbol = sym
	}

	df.cache.Set(key, q)
	return q, nil
}

// DailySeries fetches TIME_SERIES_DAILY. On a quota notice it retries once
// against 60-minute intraday data and tags the result; if the retry fails the
// original quota error is returned.
func (df *DataFetcher) DailySeries(ctx context.Context, symbol string) (*models.DailySeries, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}
	key := cache.Key(cache.KindDaily, sym)
	if v, ok := df.cache.Get(key); ok {
		return v.(*models.DailySeries), nil
	}

	body, err := df.call(ctx, url.Values{"function": {"TIME_SERIES_DAILY"}, "symbol": {sym}}, df.seriesTimeout)
	if err != nil {
		if !apperror.Is(err, apperror.QuotaExceeded) {
			return nil, err
		}
		series, ierr := df.intraday(ctx, sym)
		if ierr != nil {
			df.logger.Warn().Str("symbol", sym).Err(ierr).Msg("intraday fallback failed")
			return nil, err
		}
		df.cache.Set(key, series)
		return series, nil
	}

	rows, err := parseSeries(body, "Time Series (Daily)", "4. close", "5. volume")
	if err != nil {
		return nil, err
	}
	series := models.NewDailySeries(sym, rows, "")
	df.cache.Set(key, series)
	return series, nil
}

func (df *DataFetcher) intraday(ctx context.Context, sym string) (*models.DailySeries, error) {
	body, err := df.call(ctx, url.Values{
		"function": {"TIME_SERIES_INTRADAY"},
		"symbol":   {sym},
		"interval": {"60min"},
	}, df.seriesTimeout)
	if err != nil {
		return nil, err
	}
	rows, err := parseSeries(body, "Time Series (60min)", "4. close", "5. volume")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperror.NewNoHistory("empty intraday series")
	}
	return models.NewDailySeries(sym, rows, models.NoteIntradayFallback), nil
}

// DailyAdjusted fetches TIME_SERIES_DAILY_ADJUSTED using the adjusted close.
// Used by the daily update job; there is no intraday retry.
func (df *DataFetcher) DailyAdjusted(ctx context.Context, symbol string) (*models.DailySeries, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}
	key := cache.Key(cache.KindDailyAdjusted, sym)
	if v, ok := df.cache.Get(key); ok {
		return v.(*models.DailySeries), nil
	}

	body, err := df.call(ctx, url.Values{"function": {"TIME_SERIES_DAILY_ADJUSTED"}, "symbol": {sym}}, df.seriesTimeout)
	if err != nil {
		return nil, err
	}
	rows, err := parseSeries(body, "Time Series (Daily)", "5. adjusted close", "6. volume")
	if err != nil {
		return nil, err
	}
	series := models.NewDailySeries(sym, rows, "")
	df.cache.Set(key, series)
	return series, nil
}

// Overview fetches company fundamentals (OVERVIEW)
func (df *DataFetcher) Overview(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}
	key := cache.Key(cache.KindOverview, sym)
	if v, ok := df.cache.Get(key); ok {
		return v.(*models.Fundamentals), nil
	}

	body, err := df.call(ctx, url.Values{"function": {"OVERVIEW"}, "symbol": {sym}}, df.quoteTimeout)
	if err != nil {
		return nil, err
	}

	f := &models.Fundamentals{
		Symbol:               rawString(body["Symbol"]),
		Name:                 rawString(body["Name"]),
		Sector:               rawString(body["Sector"]),
		Industry:             rawString(body["Industry"]),
		MarketCapitalization: rawString(body["MarketCapitalization"]),
		PERatio:              rawString(body["PERatio"]),
		EPS:                  rawString(body["EPS"]),
		DividendYield:        rawString(body["DividendYield"]),
		ROE:                  rawString(body["ReturnOnEquityTTM"]),
		DebtToEquity:         rawString(body["QuarterlyDebtToEquity"]),
	}
	df.cache.Set(key, f)
	return f, nil
}

type newsFeedItem struct {
	Title         string          `json:"title"`
	Summary       string          `json:"summary"`
	URL           string          `json:"url"`
	TimePublished string          `json:"time_published"`
	Sentiment     json.RawMessage `json:"overall_sentiment_score"`
	Source        string          `json:"source"`
}

// News fetches NEWS_SENTIMENT, keeping at most models.MaxNewsItems items
func (df *DataFetcher) News(ctx context.Context, symbol string) (*models.NewsResult, error) {
	sym := models.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, apperror.NewValidation("missing symbol")
	}
	key := cache.Key(cache.KindNews, sym)
	if v, ok := df.cache.Get(key); ok {
		return v.(*models.NewsResult), nil
	}

	body, err := df.call(ctx, url.Values{"function": {"NEWS_SENTIMENT"}, "tickers": {sym}}, df.quoteTimeout)
	if err != nil {
		return nil, err
	}

	var feed []newsFeedItem
	if raw, ok := body["feed"]; ok {
		if err := json.Unmarshal(raw, &feed); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "decode news feed", err)
		}
	}
	if len(feed) > models.MaxNewsItems {
		feed = feed[:models.MaxNewsItems]
	}

	items := make([]models.NewsItem, 0, len(feed))
	for _, it := range feed {
		items = append(items, models.NewsItem{
			Title:         it.Title,
			Summary:       it.Summary,
			URL:           it.URL,
			TimePublished: it.TimePublished,
			Sentiment:     models.ParseFloat(rawString(it.Sentiment)),
			Source:        it.Source,
		})
	}
	result := &models.NewsResult{Symbol: sym, Items: items, Count: len(items)}
	df.cache.Set(key, result)
	return result, nil
}

// call performs one upstream request and converts every failure into an apperror kind
func (df *DataFetcher) call(ctx context.Context, params url.Values, timeout time.Duration) (map[string]json.RawMessage, error) {
	apiKey := ""
	if df.keys != nil {
		apiKey = df.keys.AlphaKey()
	}
	if apiKey == "" {
		return nil, apperror.NewValidation("missing ALPHAVANTAGE_API_KEY")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, df.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "build request", err)
	}

	start := time.Now()
	resp, err := df.httpClient.Do(req)
	if err != nil {
		df.logger.Warn().Str("function", params.Get("function")).Err(err).Msg("upstream request failed")
		if isTimeout(err) {
			return nil, apperror.NewTimeout(err)
		}
		return nil, apperror.NewUnreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperror.NewUpstreamHTTP(resp.StatusCode, string(raw))
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if isTimeout(err) {
			return nil, apperror.NewTimeout(err)
		}
		return nil, apperror.Wrap(apperror.Internal, "decode upstream response", err)
	}

	df.logger.Debug().
		Str("function", params.Get("function")).
		Str("symbol", params.Get("symbol")+params.Get("tickers")).
		Dur("elapsed", time.Since(start)).
		Msg("upstream response")

	if note := firstString(body, "Note", "Information"); note != "" {
		return nil, apperror.NewQuota(note)
	}
	if msg := firstString(body, "Error Message"); msg != "" {
		return nil, &apperror.Error{Kind: apperror.Validation, Message: "upstream rejected request", Reason: msg}
	}
	return body, nil
}

// parseSeries decodes a provider time series into ascending bars
func parseSeries(body map[string]json.RawMessage, seriesKey, closeField, volumeField string) ([]models.DailyBar, error) {
	raw, ok := body[seriesKey]
	if !ok {
		return []models.DailyBar{}, nil
	}
	var series map[string]map[string]string
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "decode "+seriesKey, err)
	}

	dates := make([]string, 0, len(series))
	for d := range series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	rows := make([]models.DailyBar, 0, len(dates))
	for _, d := range dates {
		v := series[d]
		closeVal := v[closeField]
		if closeVal == "" {
			closeVal = v["4. close"]
		}
		volume := v[volumeField]
		if volume == "" {
			volume = v["5. volume"]
		}
		rows = append(rows, models.DailyBar{
			Date:   d,
			Open:   models.ParseFloat(v["1. open"]),
			High:   models.ParseFloat(v["2. high"]),
			Low:    models.ParseFloat(v["3. low"]),
			Close:  models.ParseFloat(closeVal),
			Volume: models.ParseInt(volume),
		})
	}
	return rows, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstString(body map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s := rawString(body[k]); s != "" {
			return s
		}
	}
	return ""
}

// rawString returns a JSON string or number as text; anything else is empty.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
