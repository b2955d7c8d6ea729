package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/config"
	"alpha_gateway/controllers"
	"alpha_gateway/middleware"
	"alpha_gateway/models"
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

type gateway struct {
	router *gin.Engine
	store  *pricestore.SQLiteStore
	dir    string
}

func quotaUpstream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
}

func newGateway(t *testing.T, upstream http.HandlerFunc, allowed []string) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	logger := applog.NewSilent()

	alpha := httptest.NewServer(upstream)
	t.Cleanup(alpha.Close)

	store, err := pricestore.OpenSQLite(filepath.Join(dir, "stocks.db"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	appConfig := config.NewAppConfigStore(filepath.Join(dir, "app.json"), filepath.Join(dir, "audit.log"), "test-key", allowed, logger)
	fetcher := datafetcher.NewDataFetcher(datafetcher.Options{
		BaseURL:       alpha.URL,
		QuoteTimeout:  2 * time.Second,
		SeriesTimeout: 2 * time.Second,
	}, appConfig, cache.New(time.Minute), logger)
	chain := history.NewChain(fetcher, store, logger)
	analyzer := analysis.NewAnalyzer(fetcher, chain, config.Default().Policy, logger)

	launcher := dailyupdate.NewLauncher(dailyupdate.LauncherConfig{
		Binary:  filepath.Join(dir, "missing-binary"),
		LogsDir: filepath.Join(dir, "logs"),
		Sleep:   time.Second,
	}, logger)
	sched := scheduler.NewScheduler(launcher, time.UTC, logger)
	sched.Start()
	t.Cleanup(sched.Stop)

	streamer := realtime.NewQuoteStreamer(fetcher, time.Second, logger)
	t.Cleanup(streamer.Shutdown)

	router := NewRouter(Dependencies{
		Data:             controllers.NewDataController(fetcher, chain, store, analyzer, filepath.Join(dir, "import"), logger),
		Config:           controllers.NewConfigController(appConfig, logger),
		Update:           controllers.NewUpdateController(launcher, sched, logger),
		Streamer:         streamer,
		AllowList:        appConfig,
		Limiter:          middleware.NewSlidingWindowLimiter(),
		ConfigWriteLimit: 10,
		Logger:           logger,
	})
	return &gateway{router: router, store: store, dir: dir}
}

func (g *gateway) do(method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	var out map[string]any
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (g *gateway) seed(t *testing.T, symbol string, n int) {
	t.Helper()
	rows := make([]models.DailyBar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = models.DailyBar{
			Date:   start.AddDate(0, 0, i).Format("2006-01-02"),
			Close:  100 + float64(i),
			Volume: 1000,
		}
	}
	if err := g.store.Upsert(context.Background(), symbol, rows); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAnalyze_QuotaWithoutLocalIsNoHistory(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)
	w, body := g.do(http.MethodGet, "/data/analyze?symbol=IBM", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["error"] != "no history" {
		t.Errorf("body = %v", body)
	}
}

func TestAnalyze_QuotaFallsBackToLocal(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)
	g.seed(t, "IBM", 60)

	w, body := g.do(http.MethodGet, "/data/analyze?symbol=IBM&min_rsi=40", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["note"] != models.NoteLocalFallback {
		t.Errorf("note = %v", body["note"])
	}
	if body["last"] != 159.0 {
		t.Errorf("last = %v", body["last"])
	}
	if !strings.Contains(body["summary"].(string), "159.00") {
		t.Errorf("summary = %v", body["summary"])
	}

	found := false
	for _, raw := range body["checks"].([]any) {
		check := raw.(map[string]any)
		if check["name"] == analysis.CheckRSI {
			found = true
			if check["ok"] != true {
				t.Errorf("RSI check failed: %v", check)
			}
		}
	}
	if !found {
		t.Error("RSI check missing")
	}
	conds := body["conditions"].(map[string]any)
	if conds["min_rsi"] != 40.0 || conds["max_pe"] != nil {
		t.Errorf("conditions = %v", conds)
	}
}

func TestAnalyze_LocalSourceIgnoresUpstream(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for source=local")
		quotaUpstream(w, r)
	}, nil)
	g.seed(t, "600519.SHH", 30)

	w, body := g.do(http.MethodGet, "/data/analyze?symbol=600519&source=local&min_rsi=abc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["symbol"] != "600519.SHH" || body["source"] != analysis.SourceLocal {
		t.Errorf("body = %v", body)
	}
	if conds := body["conditions"].(map[string]any); conds["min_rsi"] != 45.0 {
		t.Errorf("malformed min_rsi should use the default, got %v", conds["min_rsi"])
	}
}

func TestAnalyze_NonFiniteThresholdsUseDefaults(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)
	g.seed(t, "IBM", 60)

	w, body := g.do(http.MethodGet, "/data/analyze?symbol=IBM&source=local&min_rsi=NaN&low=-Inf&max_vol=inf", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body == nil {
		t.Fatalf("body is not JSON: %q", w.Body.String())
	}
	conds := body["conditions"].(map[string]any)
	if conds["min_rsi"] != 45.0 || conds["max_vol"] != 0.5 {
		t.Errorf("conditions = %v", conds)
	}
	if low, ok := conds["low"].(float64); !ok || low <= 0 {
		t.Errorf("low should default to the band, got %v", conds["low"])
	}
}

func TestMissingSymbol(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)
	for _, path := range []string{"/data/quote", "/data/history", "/data/analyze", "/data/news", "/data/history_local"} {
		w, body := g.do(http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest || body["error"] != "missing symbol" {
			t.Errorf("%s: %d %v", path, w.Code, body)
		}
	}
}

func TestQuote_QuotaIs429WithNote(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)
	w, body := g.do(http.MethodGet, "/data/quote?symbol=IBM", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(fmt.Sprint(body["note"]), "rate limit") {
		t.Errorf("quota note missing: %v", body)
	}
}

func TestHistory_SaveAndLocal(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Time Series (Daily)": {
			"2024-01-02": {"1. open": "1", "2. high": "2", "3. low": "1", "4. close": "1.5", "5. volume": "10"},
			"2024-01-03": {"1. open": "1", "2. high": "2", "3. low": "1", "4. close": "1.7", "5. volume": "11"}
		}}`)
	}, nil)

	w, body := g.do(http.MethodGet, "/data/history?symbol=ibm&save=yes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["saved"] != true || body["count"] != 2.0 {
		t.Errorf("body = %v", body)
	}

	w, body = g.do(http.MethodGet, "/data/history_local?symbol=IBM&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	rows := body["rows"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["date"] != "2024-01-03" {
		t.Errorf("history_local should return newest first: %v", rows)
	}
}

func TestImportCSV(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)

	w, body := g.do(http.MethodPost, "/data/import_csv?symbol=IBM", `{}`)
	if w.Code != http.StatusBadRequest || body["error"] != "missing content" {
		t.Errorf("missing content: %d %v", w.Code, body)
	}

	w, body = g.do(http.MethodPost, "/data/import_csv?symbol=ibm", `{"content":"date,close\n2024-01-02,10\n2024-01-03,11\n"}`)
	if w.Code != http.StatusOK || body["imported"] != 2.0 || body["symbol"] != "IBM" {
		t.Errorf("import: %d %v", w.Code, body)
	}

	w, body = g.do(http.MethodGet, "/data/import_csv?symbol=AAPL", "")
	if w.Code != http.StatusNotFound || !strings.HasPrefix(fmt.Sprint(body["error"]), "csv not found: ") {
		t.Errorf("missing file: %d %v", w.Code, body)
	}
}

func TestConfig_MaskedReadAndWrite(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)

	w, body := g.do(http.MethodPost, "/config", `{"alphaKey":"abcdef","llmModel":"m1","unknown":"x"}`)
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("write: %d %v", w.Code, body)
	}

	w, body = g.do(http.MethodGet, "/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("read: %d", w.Code)
	}
	if body["alphaKey_mask"] != "******" || body["llmModel"] != "m1" {
		t.Errorf("body = %v", body)
	}
	if strings.Contains(w.Body.String(), "abcdef") {
		t.Error("secret leaked in GET /config")
	}
}

func TestConfig_Forbidden(t *testing.T) {
	g := newGateway(t, quotaUpstream, []string{"10.9.9.9"})
	w, body := g.do(http.MethodGet, "/config", "")
	if w.Code != http.StatusForbidden || body["error"] != "forbidden" || body["ip"] != "192.0.2.1" {
		t.Errorf("%d %v", w.Code, body)
	}
}

func TestConfig_WriteRateLimit(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)
	for i := 0; i < 10; i++ {
		if w, _ := g.do(http.MethodPost, "/config", `{"llmModel":"m"}`); w.Code != http.StatusOK {
			t.Fatalf("write %d: %d", i+1, w.Code)
		}
	}
	w, body := g.do(http.MethodPost, "/config", `{"llmModel":"m"}`)
	if w.Code != http.StatusTooManyRequests || body["error"] != "rate limit" {
		t.Errorf("11th write: %d %v", w.Code, body)
	}
	if w, _ := g.do(http.MethodGet, "/config", ""); w.Code != http.StatusOK {
		t.Errorf("reads should not be rate limited: %d", w.Code)
	}
}

func TestDailyUpdateEndpoints(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)

	w, body := g.do(http.MethodGet, "/data/daily_update_status", "")
	if w.Code != http.StatusNotFound || body["error"] != "no summary" {
		t.Errorf("status without summary: %d %v", w.Code, body)
	}

	dailyupdate.WriteSummary(filepath.Join(g.dir, "logs", dailyupdate.SummaryFile), &dailyupdate.Summary{OK: 3, Symbols: []string{"IBM"}})
	w, body = g.do(http.MethodGet, "/data/daily_update_status", "")
	if w.Code != http.StatusOK || body["ok"] != 3.0 {
		t.Errorf("status: %d %v", w.Code, body)
	}

	w, _ = g.do(http.MethodGet, "/data/run_daily_update?symbols=IBM", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("missing binary should fail to start: %d", w.Code)
	}
}

func TestScheduleEndpoints(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)

	w, body := g.do(http.MethodGet, "/data/schedule/toggle?time=07:45", "")
	if w.Code != http.StatusOK || body["enabled"] != true || body["time"] != "07:45" {
		t.Errorf("enable: %d %v", w.Code, body)
	}
	w, body = g.do(http.MethodGet, "/data/schedule/status", "")
	if body["enabled"] != true {
		t.Errorf("status: %v", body)
	}
	w, _ = g.do(http.MethodGet, "/data/schedule/toggle?time=99:00", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid time: %d", w.Code)
	}
	w, body = g.do(http.MethodGet, "/data/schedule/toggle?enable=false", "")
	if w.Code != http.StatusOK || body["enabled"] != false {
		t.Errorf("disable: %d %v", w.Code, body)
	}
}

func TestHealthCORSAndNoRoute(t *testing.T) {
	g := newGateway(t, quotaUpstream, nil)

	w, body := g.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health: %d %v", w.Code, body)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}

	w, body = g.do(http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound || body["error"] != "Not Found" {
		t.Errorf("no route: %d %v", w.Code, body)
	}
}
