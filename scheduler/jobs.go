package scheduler

import (
	"sync"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
	"alpha_gateway/services/dailyupdate"

	"github.com/go-co-op/gocron"
)

const (
	// DailyUpdateTag identifies the daily update job
	DailyUpdateTag = "daily_update"
	// DefaultTime is used when a toggle request names no time
	DefaultTime = "09:00"
)

// Launcher starts the daily update process
type Launcher interface {
	Start(opts dailyupdate.StartOptions) (*dailyupdate.StartResult, error)
}

// Status reports whether the daily job is registered and when it fires next
type Status struct {
	Enabled bool       `json:"enabled"`
	Time    string     `json:"time,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// Scheduler manages the daily update job
type Scheduler struct {
	cron     *gocron.Scheduler
	launcher Launcher
	logger   *applog.Logger

	mu  sync.Mutex
	job *gocron.Job
	at  string
}

// NewScheduler creates a scheduler in the given location
func NewScheduler(launcher Launcher, loc *time.Location, logger *applog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()
	return &Scheduler{cron: cron, launcher: launcher, logger: logger}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info().Msg("scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
}

// Enable (re)registers the daily job at HH:mm, replacing any previous registration.
func (s *Scheduler) Enable(at string) (Status, error) {
	if at == "" {
		at = DefaultTime
	}
	if _, err := time.Parse("15:04", at); err != nil {
		return Status{}, apperror.NewValidation("invalid time, expected HH:mm")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked()
	job, err := s.cron.Every(1).Day().At(at).Tag(DailyUpdateTag).Do(s.runDailyUpdate)
	if err != nil {
		return Status{}, apperror.Wrap(apperror.Validation, "failed to schedule daily update", err)
	}
	s.job = job
	s.at = at

	s.logger.Info().Str("time", at).Msg("daily update scheduled")
	return s.statusLocked(), nil
}

// Disable removes the daily job if it is registered
func (s *Scheduler) Disable() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		s.logger.Info().Str("time", s.at).Msg("daily update unscheduled")
	}
	s.removeLocked()
	return s.statusLocked()
}

// Status returns the current registration
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) removeLocked() {
	if s.job == nil {
		return
	}
	if err := s.cron.RemoveByTag(DailyUpdateTag); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remove daily update job")
	}
	s.job = nil
	s.at = ""
}

func (s *Scheduler) statusLocked() Status {
	if s.job == nil {
		return Status{Enabled: false}
	}
	st := Status{Enabled: true, Time: s.at}
	if next := s.job.NextRun(); !next.IsZero() {
		st.NextRun = &next
	}
	return st
}

// runDailyUpdate launches the job with the configured defaults
func (s *Scheduler) runDailyUpdate() {
	res, err := s.launcher.Start(dailyupdate.StartOptions{})
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled daily update failed to start")
		return
	}
	s.logger.Info().Int("pid", res.PID).Str("log_path", res.LogPath).Msg("scheduled daily update started")
}
