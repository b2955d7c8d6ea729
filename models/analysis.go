package models

// Conditions are the optional screening thresholds of an analysis request.
// Nil means the caller did not supply a value.
type Conditions struct {
	Low    *float64 `json:"low"`
	High   *float64 `json:"high"`
	MaxPE  *float64 `json:"max_pe"`
	MinDiv *float64 `json:"min_div"`
	MinRSI *float64 `json:"min_rsi"`
	MaxVol *float64 `json:"max_vol"`
}

// Indicators are the rounded indicator values reported with an analysis
type Indicators struct {
	SMA20         float64 `json:"p20"`
	SMA60         float64 `json:"p60"`
	EMA20         float64 `json:"e20"`
	RSI14         float64 `json:"rsi14"`
	Volatility    float64 `json:"vol"`
	BandLow       float64 `json:"low"`
	BandHigh      float64 `json:"high"`
	ChangeVsSMA60 float64 `json:"chg_pct_vs_p60"`
}

// Check is one evaluated screening condition
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// FundamentalSnapshot is the subset of fundamentals used by the checks
type FundamentalSnapshot struct {
	PE            float64 `json:"PE"`
	DividendYield float64 `json:"DividendYield"`
}

// AnalysisResult is the full output of an analyze request
type AnalysisResult struct {
	Symbol       string              `json:"symbol"`
	Last         float64             `json:"last"`
	Indicators   Indicators          `json:"indicators"`
	Fundamentals FundamentalSnapshot `json:"fundamentals"`
	Summary      string              `json:"summary"`
	Checks       []Check             `json:"checks"`
	Conditions   Conditions          `json:"conditions"`
	Momentum     string              `json:"momentum"`
	Position     float64             `json:"position"`
	Source       string              `json:"source"`
	Note         string              `json:"note,omitempty"`
}
