package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"klinikcal/internal/slot"
)

// SlotsConfig is the geometry of the working day.
type SlotsConfig struct {
	FirstHour   int `yaml:"first_hour" json:"first_hour" env:"KLINIKCAL_FIRST_HOUR"`
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes" env:"KLINIKCAL_SLOT_MINUTES"`
	SlotsPerDay int `yaml:"slots_per_day" json:"slots_per_day" env:"KLINIKCAL_SLOTS_PER_DAY"`
}

// BackendConfig points at the appointment persistence API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url" env:"KLINIKCAL_BACKEND_URL"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"KLINIKCAL_BACKEND_TIMEOUT"`
	// Token is sent as a bearer token when set.
	Token string `yaml:"token,omitempty" json:"-" env:"KLINIKCAL_BACKEND_TOKEN"`
}

// RedisConfig enables the shared response cache. An empty Addr keeps the
// cache in process memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr" env:"KLINIKCAL_REDIS_ADDR"`
	Password string        `yaml:"password,omitempty" json:"-" env:"KLINIKCAL_REDIS_PASSWORD"`
	DB       int           `yaml:"db" json:"db" env:"KLINIKCAL_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" env:"KLINIKCAL_REDIS_TTL"`
}

// LogFileConfig enables a rotated log file in addition to stderr.
type LogFileConfig struct {
	Path       string `yaml:"path" json:"path" env:"KLINIKCAL_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// AuthConfig holds the secret shared with the identity provider.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"-" env:"KLINIKCAL_JWT_SECRET"`
}

// Config is the top-level application configuration.
type Config struct {
	// Env is "local" or "prod"; it selects the log encoder.
	Env string `yaml:"env" json:"env" env:"KLINIKCAL_ENV"`

	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen" env:"KLINIKCAL_LISTEN"`

	LogLevel string        `yaml:"log_level" json:"log_level" env:"KLINIKCAL_LOG_LEVEL"`
	LogFile  LogFileConfig `yaml:"log_file" json:"log_file"`

	// Timezone is the clinic's IANA timezone. Grid positions are wall-clock
	// positions in this zone.
	Timezone string `yaml:"timezone" json:"timezone" env:"KLINIKCAL_TIMEZONE"`

	// WeekStart is fixed to "monday"; other values are rewritten by Normalize.
	WeekStart string `yaml:"week_start" json:"week_start"`

	Slots   SlotsConfig   `yaml:"slots" json:"slots"`
	Backend BackendConfig `yaml:"backend" json:"backend"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`

	// RefreshCron is the schedule on which open calendars are refetched.
	RefreshCron string `yaml:"refresh" json:"refresh" env:"KLINIKCAL_REFRESH"`

	// SessionIdle evicts calendars not viewed for this long.
	SessionIdle time.Duration `yaml:"session_idle" json:"session_idle" env:"KLINIKCAL_SESSION_IDLE"`

	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins" env:"KLINIKCAL_CORS_ORIGINS" env-separator:","`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env:       "local",
		Listen:    "127.0.0.1:8080",
		LogLevel:  "info",
		Timezone:  "Europe/Istanbul",
		WeekStart: "monday",
		Slots: SlotsConfig{
			FirstHour:   slot.DefaultFirstHour,
			SlotMinutes: slot.DefaultSlotMinutes,
			SlotsPerDay: slot.DefaultSlotsPerDay,
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:5000/api",
			Timeout: 15 * time.Second,
		},
		LogFile:     LogFileConfig{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 28},
		Redis:       RedisConfig{TTL: 10 * time.Minute},
		RefreshCron: "*/5 * * * *",
		SessionIdle: 30 * time.Minute,
		CORSOrigins: []string{},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Env == "" {
		c.Env = def.Env
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogFile.MaxSizeMB <= 0 {
		c.LogFile.MaxSizeMB = def.LogFile.MaxSizeMB
	}
	// The grid is Monday-based.
	c.WeekStart = "monday"

	if c.Slots.FirstHour == 0 && c.Slots.SlotMinutes == 0 && c.Slots.SlotsPerDay == 0 {
		c.Slots = def.Slots
	}
	if c.Slots.SlotMinutes == 0 {
		c.Slots.SlotMinutes = def.Slots.SlotMinutes
	}
	if c.Slots.SlotsPerDay == 0 {
		c.Slots.SlotsPerDay = def.Slots.SlotsPerDay
	}

	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = def.Backend.Timeout
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = def.Redis.TTL
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = def.SessionIdle
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if err := c.grid(time.UTC).Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	return errors.Join(errs...)
}

// Location returns the clinic timezone, falling back to UTC when it cannot
// be loaded. Validate reports that case.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Grid returns the slot grid in the clinic timezone.
func (c *Config) Grid() slot.Grid {
	return c.grid(c.Location())
}

func (c *Config) grid(loc *time.Location) slot.Grid {
	return slot.Grid{
		FirstHour:   c.Slots.FirstHour,
		SlotMinutes: c.Slots.SlotMinutes,
		SlotsPerDay: c.Slots.SlotsPerDay,
		Location:    loc,
	}
}

// Load loads configuration from the given YAML path and applies KLINIKCAL_*
// environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned (environment overrides still apply).
//   - Otherwise the YAML is read, overridden from the environment and
//     normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return cfg, fmt.Errorf("read environment: %w", err)
		}
		cfg.Normalize()
		return cfg, nil
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The parent
// directory is created 0700 and the file ends up 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".klinikcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
