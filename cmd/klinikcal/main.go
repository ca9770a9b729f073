package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"klinikcal/internal/appointment"
	"klinikcal/internal/backend"
	"klinikcal/internal/cache"
	"klinikcal/internal/calendar"
	"klinikcal/internal/config"
	appLog "klinikcal/internal/log"
	"klinikcal/internal/metrics"
	"klinikcal/internal/model"
	"klinikcal/internal/scheduler"
	"klinikcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	doctorID   string
	date       string
}

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("failed to read .env", "error", err.Error())
	}

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.Setup(conf.Env, appLog.ParseLevel(conf.LogLevel), appLog.File{
		Path:       conf.LogFile.Path,
		MaxSizeMB:  conf.LogFile.MaxSizeMB,
		MaxBackups: conf.LogFile.MaxBackups,
		MaxAgeDays: conf.LogFile.MaxAgeDays,
		Compress:   conf.LogFile.Compress,
	})
	defer appLog.Sync()

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("klinikcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"backend", conf.Backend.BaseURL,
		"redis", conf.Redis.Addr != "",
		"refresh", conf.RefreshCron,
		"session_idle", conf.SessionIdle.String(),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("klinikcal stopped with error", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("klinikcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCalendarMetrics(reg)

	var (
		store   cache.Store
		sweeper scheduler.Sweeper
	)
	if conf.Redis.Addr != "" {
		r, err := cache.NewRedis(cache.RedisConfig{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
			TTL:      conf.Redis.TTL,
		})
		if err != nil {
			return err
		}
		store = r
	} else {
		mem := cache.NewMemory(conf.Redis.TTL)
		store, sweeper = mem, mem
	}
	defer store.Close()

	client, err := backend.New(backend.Options{
		BaseURL: conf.Backend.BaseURL,
		Token:   conf.Backend.Token,
		Timeout: conf.Backend.Timeout,
		Cache:   store,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	grid := conf.Grid()
	validator := appointment.NewValidator()
	newCalendar := func(u model.User) *calendar.Calendar {
		return calendar.New(calendar.Options{
			Grid:      grid,
			Backend:   client,
			Catalog:   client,
			Validator: validator,
			Metrics:   m,
			User:      u,
		})
	}

	if flags.once {
		return printWeek(ctx, newCalendar, grid.Location, flags)
	}

	sessions := calendar.NewSessions(newCalendar, conf.SessionIdle, m)
	sched, err := scheduler.New(conf.RefreshCron, sessions, sweeper, conf.Backend.Timeout*2)
	if err != nil {
		return err
	}
	sched.Start(ctx)

	srv := web.NewServer(web.Deps{
		Sessions:    sessions,
		Catalog:     client,
		Grid:        grid,
		Metrics:     m,
		Gatherer:    reg,
		JWTSecret:   conf.Auth.JWTSecret,
		CORSOrigins: conf.CORSOrigins,
	})
	if conf.Auth.JWTSecret == "" {
		appLog.Warn("auth.jwt_secret is empty; every /api request will be rejected")
	}

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return web.Serve(ctx, httpSrv, 15*time.Second)
}

// printWeek loads one week for -doctor and prints it as JSON. Without a
// doctor it only checks the configuration.
func printWeek(ctx context.Context, newCalendar func(model.User) *calendar.Calendar, loc *time.Location, flags flagConfig) error {
	if flags.doctorID == "" {
		appLog.Info("config OK; pass -doctor to fetch a week")
		return nil
	}
	cal := newCalendar(model.User{ID: "cli", Name: "cli"})
	if err := cal.SelectDoctor(model.Doctor{ID: flags.doctorID}); err != nil {
		return err
	}
	if flags.date != "" {
		d, err := time.ParseInLocation(time.DateOnly, flags.date, loc)
		if err != nil {
			return fmt.Errorf("parse -date: %w", err)
		}
		cal.GoTo(d)
	}
	if err := cal.Refresh(ctx); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cal.View())
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/klinikcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch one week (see -doctor) or just check the config, then exit")
	flag.StringVar(&cfg.doctorID, "doctor", "", "Doctor id for -once")
	flag.StringVar(&cfg.date, "date", "", "Any day of the week to print with -once (YYYY-MM-DD)")

	flag.Parse()

	return cfg
}
