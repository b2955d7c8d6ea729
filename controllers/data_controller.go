package controllers

import (
	"context"
	"net/http"
	"path/filepath"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/models"
	"alpha_gateway/services/analysis"
	"alpha_gateway/services/csvimport"
	"alpha_gateway/services/pricestore"

	"github.com/gin-gonic/gin"
)

// MarketData is the upstream side used by the data endpoints
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Overview(ctx context.Context, symbol string) (*models.Fundamentals, error)
	News(ctx context.Context, symbol string) (*models.NewsResult, error)
}

// SeriesChain resolves daily history with local fallback
type SeriesChain interface {
	Daily(ctx context.Context, symbol string) (*models.DailySeries, error)
	Save(ctx context.Context, series *models.DailySeries) error
}

// DataController handles the /data endpoints
type DataController struct {
	market    MarketData
	chain     SeriesChain
	store     pricestore.PriceStore
	analyzer  *analysis.Analyzer
	importDir string
	logger    *applog.Logger
}

// NewDataController creates a data controller
func NewDataController(market MarketData, chain SeriesChain, store pricestore.PriceStore, analyzer *analysis.Analyzer, importDir string, logger *applog.Logger) *DataController {
	return &DataController{
		market:    market,
		chain:     chain,
		store:     store,
		analyzer:  analyzer,
		importDir: importDir,
		logger:    logger,
	}
}

// GetQuote returns the latest quote
// GET /data/quote?symbol=
func (dc *DataController) GetQuote(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	quote, err := dc.market.Quote(c.Request.Context(), sym)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type historyResponse struct {
	*models.DailySeries
	Saved     *bool  `json:"saved,omitempty"`
	SaveError string `json:"save_error,omitempty"`
}

// GetHistory returns the daily series, optionally persisting it
// GET /data/history?symbol=&save=
func (dc *DataController) GetHistory(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	series, err := dc.chain.Daily(c.Request.Context(), sym)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}

	resp := historyResponse{DailySeries: series}
	if boolParam(c, "save", false) {
		saved := true
		if err := dc.chain.Save(c.Request.Context(), series); err != nil {
			saved = false
			resp.SaveError = err.Error()
		}
		resp.Saved = &saved
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistoryLocal returns stored rows newest first
// GET /data/history_local?symbol=&limit=
func (dc *DataController) GetHistoryLocal(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	sym = models.NormalizeSymbol(sym)
	rows, err := dc.store.Query(c.Request.Context(), sym, intParam(c, "limit", pricestore.DefaultQueryLimit))
	if err != nil {
		respondError(c, dc.logger, apperror.Wrap(apperror.Internal, "local store read failed", err))
		return
	}
	c.JSON(http.StatusOK, models.NewDailySeries(sym, rows, ""))
}

// GetFundamentals returns the company overview
// GET /data/fundamentals?symbol=
func (dc *DataController) GetFundamentals(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	f, err := dc.market.Overview(c.Request.Context(), sym)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// GetNews returns recent headlines with sentiment
// GET /data/news?symbol=
func (dc *DataController) GetNews(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	news, err := dc.market.News(c.Request.Context(), sym)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, news)
}

// Analyze runs indicators and screening checks
// GET /data/analyze?symbol=&source=&low=&high=&max_pe=&min_div=&min_rsi=&max_vol=
func (dc *DataController) Analyze(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	result, err := dc.analyzer.Analyze(c.Request.Context(), analysis.Request{
		Symbol: sym,
		Source: c.DefaultQuery("source", analysis.SourceAlpha),
		Conditions: models.Conditions{
			Low:    floatParam(c, "low"),
			High:   floatParam(c, "high"),
			MaxPE:  floatParam(c, "max_pe"),
			MinDiv: floatParam(c, "min_div"),
			MinRSI: floatParam(c, "min_rsi"),
			MaxVol: floatParam(c, "max_vol"),
		},
	})
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ImportCSVFile imports a CSV from disk
// GET /data/import_csv?symbol=&file=
func (dc *DataController) ImportCSVFile(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	path := c.Query("file")
	if path == "" {
		path = filepath.Join(dc.importDir, sym+".csv")
	}
	res, err := csvimport.ImportFile(c.Request.Context(), dc.store, sym, path)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type importContentRequest struct {
	Content string `json:"content"`
}

// ImportCSVContent imports CSV text posted in the body
// POST /data/import_csv?symbol=  {"content": "..."}
func (dc *DataController) ImportCSVContent(c *gin.Context) {
	sym, err := requireSymbol(c)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	var req importContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, dc.logger, apperror.NewValidation("missing content"))
		return
	}
	res, err := csvimport.ImportContent(c.Request.Context(), dc.store, sym, req.Content)
	if err != nil {
		respondError(c, dc.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
