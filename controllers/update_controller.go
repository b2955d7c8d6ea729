package controllers

import (
	"net/http"
	"strings"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/scheduler"
	"alpha_gateway/services/dailyupdate"

	"github.com/gin-gonic/gin"
)

// UpdateController triggers and reports on the daily update job
type UpdateController struct {
	launcher  *dailyupdate.Launcher
	scheduler *scheduler.Scheduler
	logger    *applog.Logger
}

// NewUpdateController creates an update controller
func NewUpdateController(launcher *dailyupdate.Launcher, sched *scheduler.Scheduler, logger *applog.Logger) *UpdateController {
	return &UpdateController{launcher: launcher, scheduler: sched, logger: logger}
}

// RunDailyUpdate spawns the update process and returns immediately
// GET /data/run_daily_update?file=&symbols=&sleep=
func (uc *UpdateController) RunDailyUpdate(c *gin.Context) {
	opts := dailyupdate.StartOptions{
		File:    strings.TrimSpace(c.Query("file")),
		Symbols: strings.TrimSpace(c.Query("symbols")),
	}
	if n := intParam(c, "sleep", 0); n > 0 {
		opts.Sleep = time.Duration(n) * time.Second
	}
	res, err := uc.launcher.Start(opts)
	if err != nil {
		respondError(c, uc.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DailyUpdateStatus returns the last run summary
// GET /data/daily_update_status
func (uc *UpdateController) DailyUpdateStatus(c *gin.Context) {
	sum, err := dailyupdate.ReadSummary(uc.launcher.SummaryPath())
	if err != nil {
		respondError(c, uc.logger, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ToggleSchedule enables or disables the daily trigger
// GET /data/schedule/toggle?enable=&time=
func (uc *UpdateController) ToggleSchedule(c *gin.Context) {
	if !boolParam(c, "enable", true) {
		c.JSON(http.StatusOK, uc.scheduler.Disable())
		return
	}
	st, err := uc.scheduler.Enable(strings.TrimSpace(c.DefaultQuery("time", scheduler.DefaultTime)))
	if err != nil {
		respondError(c, uc.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ScheduleStatus reports the daily trigger
// GET /data/schedule/status
func (uc *UpdateController) ScheduleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, uc.scheduler.Status())
}
