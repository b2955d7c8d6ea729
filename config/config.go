package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/gateway.yaml"

// StoreConfig selects and configures the local price store backend
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// AlphaConfig configures the upstream market-data provider
type AlphaConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	QuoteTimeout  time.Duration `yaml:"quote_timeout"`
	SeriesTimeout time.Duration `yaml:"series_timeout"`
}

// UpdaterConfig configures the out-of-process daily update job
type UpdaterConfig struct {
	Binary      string        `yaml:"binary"`
	SymbolsFile string        `yaml:"symbols_file"`
	Sleep       time.Duration `yaml:"sleep"`
	LogsDir     string        `yaml:"logs_dir"`
}

// PolicyConfig holds the analysis defaults and position heuristics
type PolicyConfig struct {
	MinRSI         float64 `yaml:"min_rsi"`
	MaxVol         float64 `yaml:"max_vol"`
	PositionStrong float64 `yaml:"position_strong"`
	PositionEMA    float64 `yaml:"position_ema"`
	PositionWeak   float64 `yaml:"position_weak"`
}

// Config is the gateway process configuration
type Config struct {
	Port          string `yaml:"port"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	DataDir       string `yaml:"data_dir"`
	AppConfigPath string `yaml:"app_config_path"`
	AuditLogPath  string `yaml:"audit_log_path"`

	Store   StoreConfig   `yaml:"store"`
	Alpha   AlphaConfig   `yaml:"alpha"`
	Updater UpdaterConfig `yaml:"updater"`
	Policy  PolicyConfig  `yaml:"policy"`

	CacheTTL         time.Duration `yaml:"cache_ttl"`
	StreamInterval   time.Duration `yaml:"stream_interval"`
	AllowedIPs       []string      `yaml:"allowed_ips"`
	ConfigWriteLimit int           `yaml:"config_write_limit"`

	// Warnings collects non-fatal problems found while loading, logged by the caller.
	Warnings []string `yaml:"-"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:          "8788",
		Environment:   "development",
		LogLevel:      "info",
		DataDir:       "data",
		AppConfigPath: "config/app.json",
		AuditLogPath:  filepath.Join("data", "logs", "config_audit.log"),
		Store: StoreConfig{
			Driver:        "sqlite",
			SQLitePath:    filepath.Join("data", "stocks.db"),
			MongoDatabase: "market_gateway",
		},
		Alpha: AlphaConfig{
			BaseURL:       "https://www.alphavantage.co/query",
			QuoteTimeout:  20 * time.Second,
			SeriesTimeout: 30 * time.Second,
		},
		Updater: UpdaterConfig{
			Binary:      defaultUpdaterBinary(),
			SymbolsFile: filepath.Join("data", "symbols.txt"),
			Sleep:       15 * time.Second,
			LogsDir:     filepath.Join("data", "logs"),
		},
		Policy: PolicyConfig{
			MinRSI:         45,
			MaxVol:         0.50,
			PositionStrong: 0.7,
			PositionEMA:    0.5,
			PositionWeak:   0.3,
		},
		CacheTTL:         60 * time.Second,
		StreamInterval:   2 * time.Second,
		ConfigWriteLimit: 10,
	}
}

// LoadConfig loads defaults, then the optional YAML file, then .env and the environment
func LoadConfig() (*Config, error) {
	cfg := Default()

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil {
		cfg.Warnings = append(cfg.Warnings, "no .env file found, using environment variables")
	}

	path := os.Getenv("GATEWAY_CONFIG")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	if err := loadYAML(cfg, path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return cfg, err
		}
	}

	overrideFromEnv(cfg)
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// overrideFromEnv applies environment overrides on top of file values
func overrideFromEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFile, "LOG_FILE")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.AppConfigPath, "APP_CONFIG_PATH")
	setString(&cfg.AuditLogPath, "AUDIT_LOG_PATH")

	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setString(&cfg.Store.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Store.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.Store.MongoURI, "MONGODB_URI")
	setString(&cfg.Store.MongoDatabase, "MONGODB_DATABASE")

	setString(&cfg.Alpha.BaseURL, "ALPHA_BASE_URL")
	setString(&cfg.Alpha.APIKey, "ALPHAVANTAGE_API_KEY")
	cfg.setDuration(&cfg.Alpha.QuoteTimeout, "ALPHA_QUOTE_TIMEOUT")
	cfg.setDuration(&cfg.Alpha.SeriesTimeout, "ALPHA_SERIES_TIMEOUT")

	setString(&cfg.Updater.Binary, "UPDATER_BIN")
	setString(&cfg.Updater.SymbolsFile, "SYMBOLS_FILE")
	setString(&cfg.Updater.LogsDir, "UPDATER_LOGS_DIR")
	cfg.setDuration(&cfg.Updater.Sleep, "UPDATER_SLEEP")

	cfg.setFloat(&cfg.Policy.MinRSI, "POLICY_MIN_RSI")
	cfg.setFloat(&cfg.Policy.MaxVol, "POLICY_MAX_VOL")
	cfg.setFloat(&cfg.Policy.PositionStrong, "POLICY_POS_STRONG")
	cfg.setFloat(&cfg.Policy.PositionEMA, "POLICY_POS_EMA")
	cfg.setFloat(&cfg.Policy.PositionWeak, "POLICY_POS_WEAK")

	cfg.setDuration(&cfg.CacheTTL, "CACHE_TTL")
	cfg.setDuration(&cfg.StreamInterval, "STREAM_INTERVAL")

	if env := os.Getenv("ALLOWED_IPS"); env != "" {
		cfg.AllowedIPs = SplitList(env)
	}
	if env := os.Getenv("CONFIG_WRITE_LIMIT"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			cfg.ConfigWriteLimit = n
		} else {
			cfg.warnf("ignoring CONFIG_WRITE_LIMIT=%q", env)
		}
	}
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// setDuration accepts Go durations ("20s") or plain seconds ("20")
func (c *Config) setDuration(dst *time.Duration, key string) {
	env := os.Getenv(key)
	if env == "" {
		return
	}
	if d, err := time.ParseDuration(env); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(env); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
		return
	}
	c.warnf("ignoring %s=%q", key, env)
}

func (c *Config) setFloat(dst *float64, key string) {
	env := os.Getenv(key)
	if env == "" {
		return
	}
	v, err := strconv.ParseFloat(env, 64)
	if err != nil {
		c.warnf("ignoring %s=%q", key, env)
		return
	}
	*dst = v
}

func setString(dst *string, key string) {
	if env := os.Getenv(key); env != "" {
		*dst = env
	}
}

// MaskDSN masks credentials in a connection string for logging
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if len(dsn) <= 3 {
		return "***"
	}
	if len(dsn) <= 15 {
		return dsn[:3] + "***"
	}
	return dsn[:8] + "***" + dsn[len(dsn)-10:]
}

func defaultUpdaterBinary() string {
	exe, err := os.Executable()
	if err != nil {
		return "daily_update"
	}
	return filepath.Join(filepath.Dir(exe), "daily_update")
}
