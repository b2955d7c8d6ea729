package models

import (
	"strconv"
	"strings"
)

// Series notes set when data did not come from the primary daily endpoint.
const (
	NoteIntradayFallback = "fallback_intraday_60min"
	NoteLocalFallback    = "fallback_local"
)

// MaxNewsItems caps a news query result.
const MaxNewsItems = 50

// Quote is the latest trading snapshot for a symbol
type Quote struct {
	Symbol        string  `json:"symbol"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Price         float64 `json:"price"`
	Volume        int64   `json:"volume"`
	LatestDay     string  `json:"latest_day"`
	PrevClose     float64 `json:"prev_close"`
	Change        float64 `json:"change"`
	ChangePercent string  `json:"change_percent"`
}

// DailyBar is one trading day of OHLCV data
type DailyBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// DailySeries holds bars in ascending date order.
type DailySeries struct {
	Symbol string     `json:"symbol"`
	Rows   []DailyBar `json:"rows"`
	Count  int        `json:"count"`
	Note   string     `json:"note,omitempty"`
}

// NewDailySeries builds a series and keeps Count in step with Rows.
func NewDailySeries(symbol string, rows []DailyBar, note string) *DailySeries {
	if rows == nil {
		rows = []DailyBar{}
	}
	return &DailySeries{Symbol: symbol, Rows: rows, Count: len(rows), Note: note}
}

// Closes returns the strictly positive closing prices in order.
func (s *DailySeries) Closes() []float64 {
	out := make([]float64, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.Close > 0 {
			out = append(out, r.Close)
		}
	}
	return out
}

// Fundamentals carries company overview fields as the provider reports them.
type Fundamentals struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Sector               string `json:"Sector"`
	Industry             string `json:"Industry"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	EPS                  string `json:"EPS"`
	DividendYield        string `json:"DividendYield"`
	ROE                  string `json:"ROE"`
	DebtToEquity         string `json:"DebtToEquity"`
}

// PE returns the numeric PE ratio, 0 when absent or malformed.
func (f *Fundamentals) PE() float64 {
	if f == nil {
		return 0
	}
	return ParseFloat(f.PERatio)
}

// Dividend returns the numeric dividend yield, 0 when absent or malformed.
func (f *Fundamentals) Dividend() float64 {
	if f == nil {
		return 0
	}
	return ParseFloat(f.DividendYield)
}

// NewsItem is a single news headline with its sentiment score
type NewsItem struct {
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	URL           string  `json:"url"`
	TimePublished string  `json:"time_published"`
	Sentiment     float64 `json:"sentiment"`
	Source        string  `json:"source"`
}

// NewsResult is the response shape of a news query
type NewsResult struct {
	Symbol string     `json:"symbol"`
	Items  []NewsItem `json:"items"`
	Count  int        `json:"count"`
}

// ParseFloat is lenient: empty, "None", "-" and malformed values yield 0.
// A trailing percent sign is ignored.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" || s == "None" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseInt is lenient like ParseFloat and truncates fractional values.
func ParseInt(s string) int64 {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return int64(ParseFloat(s))
}
