package dailyupdate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"
)

// StartOptions are the per-run overrides accepted by the gateway
type StartOptions struct {
	File    string
	Symbols string
	Sleep   time.Duration
}

// StartResult is returned as soon as the job process has been spawned
type StartResult struct {
	Status      string `json:"status"`
	PID         int    `json:"pid"`
	LogPath     string `json:"log_path"`
	SummaryPath string `json:"summary_path"`
}

// LauncherConfig configures where the job binary and its files live
type LauncherConfig struct {
	Binary      string
	SymbolsFile string
	LogsDir     string
	Sleep       time.Duration
}

// Launcher spawns the daily update process without waiting for it
type Launcher struct {
	cfg    LauncherConfig
	logger *applog.Logger
	now    func() time.Time
}

// NewLauncher creates a launcher
func NewLauncher(cfg LauncherConfig, logger *applog.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger, now: time.Now}
}

// SummaryPath is where the job writes its last summary
func (l *Launcher) SummaryPath() string {
	return filepath.Join(l.cfg.LogsDir, SummaryFile)
}

// Start spawns the job with stdout and stderr captured in a fresh log file
func (l *Launcher) Start(opts StartOptions) (*StartResult, error) {
	file := opts.File
	if file == "" {
		file = l.cfg.SymbolsFile
	}
	sleep := opts.Sleep
	if sleep <= 0 {
		sleep = l.cfg.Sleep
	}

	if err := os.MkdirAll(l.cfg.LogsDir, 0755); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "failed to create logs dir", err)
	}
	logPath := filepath.Join(l.cfg.LogsDir, fmt.Sprintf("daily_update-%s.log", l.now().Format("20060102-150405")))
	summaryPath := l.SummaryPath()

	args := []string{"-f", file, "--sleep", strconv.Itoa(int(sleep / time.Second))}
	if opts.Symbols != "" {
		args = append(args, "-s", opts.Symbols)
	}
	args = append(args, "--summary", summaryPath, "--log", logPath)

	out, err := os.Create(logPath)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "failed to create log file", err)
	}

	cmd := exec.Command(l.cfg.Binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, apperror.Wrap(apperror.Internal, "failed to start daily update", err)
	}

	pid := cmd.Process.Pid
	l.logger.Info().Int("pid", pid).Str("log_path", logPath).Str("symbols_file", file).Msg("daily update started")

	go func() {
		err := cmd.Wait()
		out.Close()
		if err != nil {
			l.logger.Warn().Int("pid", pid).Err(err).Msg("daily update exited with error")
			return
		}
		l.logger.Info().Int("pid", pid).Msg("daily update exited")
	}()

	return &StartResult{Status: "started", PID: pid, LogPath: logPath, SummaryPath: summaryPath}, nil
}
