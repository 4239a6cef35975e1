package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend kinds.
const (
	BackendREST   = "rest"   // /caldav/ endpoints of the REST backend
	BackendLegacy = "legacy" // /tasks/ endpoints of the REST backend
	BackendCalDAV = "caldav" // a CalDAV server, without the REST backend
)

type Config struct {
	Backend    string `yaml:"backend"`
	APIURL     string `yaml:"api_url"`
	IncludeAll bool   `yaml:"include_all"`

	CalDAVURL        string `yaml:"caldav_url"`
	CalDAVUsername   string `yaml:"caldav_username"`
	CalDAVPassword   string `yaml:"caldav_password"`
	CalDAVCalendarID string `yaml:"caldav_calendar"`

	DatabasePath string         `yaml:"database_path"`
	TimezoneName string         `yaml:"timezone"`
	Timezone     *time.Location `yaml:"-"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SyncSchedule    string `yaml:"sync_schedule"`
	RefreshSchedule string `yaml:"refresh_schedule"`
	Prefetch        bool   `yaml:"prefetch"`
	ServerPort      string `yaml:"server_port"`

	TelegramToken   string `yaml:"telegram_token"`
	OwnerTelegramID int64  `yaml:"owner_telegram_id"`
}

func defaults() Config {
	return Config{
		Backend:         BackendREST,
		APIURL:          "http://localhost:8000/api",
		DatabasePath:    "./data/taskcal.db",
		TimezoneName:    "Europe/Paris",
		LogLevel:        "info",
		LogFormat:       "text",
		SyncSchedule:    "*/15 * * * *",
		RefreshSchedule: "0 * * * *",
		Prefetch:        true,
		ServerPort:      "9090",
	}
}

// Load reads .env if present, then the YAML file at path (optional, may be
// empty), then the environment. Environment values win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TASKCAL_BACKEND":    &c.Backend,
		"TASKCAL_API_URL":    &c.APIURL,
		"CALDAV_URL":         &c.CalDAVURL,
		"CALDAV_USERNAME":    &c.CalDAVUsername,
		"CALDAV_PASSWORD":    &c.CalDAVPassword,
		"CALDAV_CALENDAR":    &c.CalDAVCalendarID,
		"DATABASE_PATH":      &c.DatabasePath,
		"TIMEZONE":           &c.TimezoneName,
		"LOG_LEVEL":          &c.LogLevel,
		"LOG_FORMAT":         &c.LogFormat,
		"SYNC_SCHEDULE":      &c.SyncSchedule,
		"REFRESH_SCHEDULE":   &c.RefreshSchedule,
		"SERVER_PORT":        &c.ServerPort,
		"TELEGRAM_BOT_TOKEN": &c.TelegramToken,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"TASKCAL_INCLUDE_ALL": &c.IncludeAll,
		"TASKCAL_PREFETCH":    &c.Prefetch,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s must be a boolean", key)
			}
			*dst = b
		}
	}

	if v := os.Getenv("OWNER_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OWNER_TELEGRAM_ID must be a number")
		}
		c.OwnerTelegramID = id
	}
	return nil
}

func (c *Config) normalize() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendREST, BackendLegacy:
		if c.APIURL == "" {
			return fmt.Errorf("api_url is required for the %s backend", c.Backend)
		}
	case BackendCalDAV:
		if c.CalDAVURL == "" {
			return fmt.Errorf("CALDAV_URL is required for the caldav backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")

	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	c.Timezone = tz

	if c.TelegramToken != "" && c.OwnerTelegramID == 0 {
		return fmt.Errorf("OWNER_TELEGRAM_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// NotificationsEnabled reports whether a Telegram chat is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramToken != "" && c.OwnerTelegramID != 0
}
