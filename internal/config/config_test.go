package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Istanbul", cfg.Timezone)
	assert.Equal(t, 48, cfg.Slots.SlotsPerDay)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Backend, again.Backend)
	assert.Equal(t, 30*time.Minute, again.SessionIdle)
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
timezone: Europe/Istanbul
week_start: sunday
slots:
  first_hour: 8
  slot_minutes: 30
  slots_per_day: 20
backend:
  base_url: https://api.example.com/v1/
  timeout: 5s
refresh: "*/10 * * * *"
`), 0o600))

	t.Setenv("KLINIKCAL_JWT_SECRET", "s3cret")
	t.Setenv("KLINIKCAL_LISTEN", ":7070")
	t.Setenv("KLINIKCAL_CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, "https://api.example.com/v1", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "*/10 * * * *", cfg.RefreshCron)

	g := cfg.Grid()
	assert.Equal(t, 8, g.FirstHour)
	assert.Equal(t, 30, g.SlotMinutes)
	assert.Equal(t, "Europe/Istanbul", g.Location.String())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"day past midnight", func(c *Config) { c.Slots.FirstHour = 20 }, "passes midnight"},
		{"uneven slot", func(c *Config) { c.Slots.SlotMinutes = 7 }, "divide an hour"},
		{"bad cron", func(c *Config) { c.RefreshCron = "every minute" }, "refresh"},
		{"no backend", func(c *Config) { c.Backend.BaseURL = "" }, "base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	c := DefaultConfig()
	c.Timezone = "Nowhere/Special"
	assert.Equal(t, time.UTC, c.Location())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := DefaultConfig()
	c.Redis.Addr = "127.0.0.1:6379"
	c.SessionIdle = 45 * time.Minute
	require.NoError(t, c.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", got.Redis.Addr)
	assert.Equal(t, 45*time.Minute, got.SessionIdle)

	assert.Error(t, Save("", c))
	assert.Error(t, Save(path, nil))
}
