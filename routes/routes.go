package routes

import (
	"net/http"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/controllers"
	"alpha_gateway/middleware"
	"alpha_gateway/services/realtime"

	"github.com/gin-gonic/gin"
)

const configWriteWindow = 60 * time.Second

// Dependencies are the handlers and gates mounted by SetupRoutes
type Dependencies struct {
	Data     *controllers.DataController
	Config   *controllers.ConfigController
	Update   *controllers.UpdateController
	Streamer *realtime.QuoteStreamer

	AllowList        middleware.AllowListSource
	Limiter          *middleware.SlidingWindowLimiter
	ConfigWriteLimit int
	Logger           *applog.Logger
}

// NewRouter builds the gin engine with the global middleware chain
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	// ClientIP is the socket peer; X-Forwarded-For is not trusted
	router.SetTrustedProxies(nil)

	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(deps.Logger))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes sets up all gateway routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	data := router.Group("/data")
	{
		data.GET("/quote", deps.Data.GetQuote)
		data.GET("/history", deps.Data.GetHistory)
		data.GET("/history_local", deps.Data.GetHistoryLocal)
		data.GET("/fundamentals", deps.Data.GetFundamentals)
		data.GET("/news", deps.Data.GetNews)
		data.GET("/analyze", deps.Data.Analyze)
		data.GET("/import_csv", deps.Data.ImportCSVFile)
		data.POST("/import_csv", deps.Data.ImportCSVContent)

		// Daily update job
		data.GET("/run_daily_update", deps.Update.RunDailyUpdate)
		data.GET("/daily_update_status", deps.Update.DailyUpdateStatus)
		data.GET("/schedule/toggle", deps.Update.ToggleSchedule)
		data.GET("/schedule/status", deps.Update.ScheduleStatus)
	}

	cfg := router.Group("/config", middleware.IPAllowList(deps.AllowList))
	{
		cfg.GET("", deps.Config.GetConfig)
		cfg.POST("",
			middleware.RateLimit(deps.Limiter, middleware.BucketConfigWrite, deps.ConfigWriteLimit, configWriteWindow),
			deps.Config.UpdateConfig)
	}

	router.GET("/ws/quote", deps.Streamer.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"streams": deps.Streamer.ClientCount(),
		})
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})
}
