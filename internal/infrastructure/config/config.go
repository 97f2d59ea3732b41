package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"mt5rtd/internal/domain"
)

// DefaultWatchlist is the mandatory set used when none is configured.
var DefaultWatchlist = []string{
	"VALE3", "PETR4", "ITUB4", "BBDC4", "ABEV3",
	"MGLU3", "WEGE3", "RENT3", "LREN3", "BOVA11",
}

type Config struct {
	App struct {
		LogLevel string `toml:"log_level"`
		HTTPAddr string `toml:"http_addr"`
		// AutoStart starts the worker when the process boots.
		AutoStart bool `toml:"auto_start"`
	} `toml:"app"`

	MT5 struct {
		BridgeURL      string `toml:"bridge_url"`
		Login          int64  `toml:"login"`
		Password       string `toml:"password"`
		Server         string `toml:"server"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"mt5"`

	RTD struct {
		PollIntervalSeconds  float64 `toml:"poll_interval_seconds"`
		RetryDelaySeconds    float64 `toml:"retry_delay_seconds"`
		MaxActivationRetries int     `toml:"max_activation_retries"`
		SymbolTimeoutSeconds float64 `toml:"symbol_timeout_seconds"`
		StopTimeoutSeconds   float64 `toml:"stop_timeout_seconds"`
	} `toml:"rtd"`

	Symbols struct {
		List []string `toml:"list"`
	} `toml:"symbols"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		TTLSeconds int    `toml:"ttl_seconds"`
	} `toml:"redis"`

	Websocket struct {
		Enabled bool `toml:"enabled"`
	} `toml:"websocket"`
}

// Load reads an optional .env file, the TOML file at path (skipped when path
// is empty), then environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := env("MT5_LOGIN"); ok {
		login, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MT5_LOGIN: %w", err)
		}
		cfg.MT5.Login = login
	}
	setString(&cfg.MT5.Password, "MT5_PASSWORD")
	setString(&cfg.MT5.Server, "MT5_SERVER")
	setString(&cfg.MT5.BridgeURL, "MT5_BRIDGE_URL")

	for key, dst := range map[string]*float64{
		"RTD_POLL_INTERVAL_SECONDS": &cfg.RTD.PollIntervalSeconds,
		"RTD_RETRY_DELAY_SECONDS":   &cfg.RTD.RetryDelaySeconds,
	} {
		if v, ok := env(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}
	if v, ok := env("RTD_MAX_ACTIVATION_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RTD_MAX_ACTIVATION_RETRIES: %w", err)
		}
		cfg.RTD.MaxActivationRetries = n
	}

	if v, ok := env("DATABASE_URL"); ok {
		cfg.Postgres.Enabled = true
		cfg.Postgres.DSN = v
	} else if host, ok := env("DB_HOST"); ok {
		cfg.Postgres.Enabled = true
		cfg.Postgres.DSN = postgresDSN(host)
	}

	if v, ok := env("REDIS_ADDR"); ok {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	setString(&cfg.App.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	return nil
}

func postgresDSN(host string) string {
	port, _ := env("DB_PORT")
	if port == "" {
		port = "5432"
	}
	name, _ := env("DB_NAME")
	user, _ := env("DB_USER")
	pass, _ := env("DB_PASSWORD")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	return u.String()
}

func env(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := env(key); ok {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = ":8080"
	}
	if cfg.MT5.BridgeURL == "" {
		cfg.MT5.BridgeURL = "http://127.0.0.1:8765"
	}
	if cfg.MT5.TimeoutSeconds <= 0 {
		cfg.MT5.TimeoutSeconds = 10
	}
	if cfg.RTD.PollIntervalSeconds <= 0 {
		cfg.RTD.PollIntervalSeconds = 1
	}
	if cfg.RTD.RetryDelaySeconds <= 0 {
		cfg.RTD.RetryDelaySeconds = 30
	}
	if cfg.RTD.MaxActivationRetries <= 0 {
		cfg.RTD.MaxActivationRetries = 3
	}
	if cfg.RTD.StopTimeoutSeconds <= 0 {
		cfg.RTD.StopTimeoutSeconds = cfg.RTD.PollIntervalSeconds + float64(cfg.MT5.TimeoutSeconds)
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/rtd.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "rtd"
	}
	cfg.Symbols.List = domain.NormalizeSymbols(cfg.Symbols.List)
	if len(cfg.Symbols.List) == 0 {
		cfg.Symbols.List = append([]string(nil), DefaultWatchlist...)
	}
}

func validate(cfg *Config) error {
	if _, err := url.ParseRequestURI(cfg.MT5.BridgeURL); err != nil {
		return fmt.Errorf("mt5.bridge_url invalid: %w", err)
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	if cfg.Postgres.Enabled && cfg.SQLite.Enabled {
		return errors.New("postgres and sqlite are both enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}
