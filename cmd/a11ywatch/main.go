package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"a11ywatch/internal/api"
	"a11ywatch/internal/checker"
	"a11ywatch/internal/config"
	"a11ywatch/internal/pipeline"
	"a11ywatch/internal/result"
	"a11ywatch/internal/runlog"
	"a11ywatch/internal/scheduler"
	"a11ywatch/internal/storage/backend"
	"a11ywatch/internal/task"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers command-line flags over config.Resolve.
func loadConfig(args []string) (config.Config, error) {
	flags := flag.NewFlagSet("a11ywatch", flag.ContinueOnError)
	configPath := flags.StringP("config", "c", os.Getenv("CONFIG_FILE"), "JSON or JSONC config file")
	driver := flags.String("db-driver", "", "database driver: sqlite, postgres or mysql")
	dbURL := flags.String("db-url", "", "database file, URL or DSN")
	host := flags.String("host", "", "HTTP listen host")
	port := flags.StringP("port", "p", "", "HTTP listen port")
	interval := flags.Duration("interval", 0, "run every task this often (0 disables)")
	workers := flags.Int("workers", 0, "concurrent checker runs")
	checkerCmd := flags.String("checker", "", "checker executable")
	redisAddr := flags.String("redis", "", "redis address for run logs")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.Changed("db-driver") {
		cfg.DatabaseDriver = *driver
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = *dbURL
	}
	if flags.Changed("host") {
		cfg.HTTPHost = *host
	}
	if flags.Changed("port") {
		cfg.HTTPPort = *port
	}
	if flags.Changed("interval") {
		cfg.RunInterval = config.Duration(*interval)
	}
	if flags.Changed("workers") {
		cfg.MaxConcurrency = *workers
	}
	if flags.Changed("checker") {
		cfg.CheckerCommand = *checkerCmd
	}
	if flags.Changed("redis") {
		cfg.RedisAddr = *redisAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	return cfg, cfg.Validate()
}

func openRunLog(ctx context.Context, cfg config.Config, logger *slog.Logger) (runlog.Recorder, func()) {
	if cfg.RedisAddr == "" {
		return runlog.NewMemory(cfg.RunLogLines), func() {}
	}
	rec, err := runlog.NewRedis(ctx, runlog.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		MaxLines: cfg.RunLogLines,
	})
	if err != nil {
		logger.Warn("redis unavailable, keeping run logs in memory", "addr", cfg.RedisAddr, "err", err)
		return runlog.NewMemory(cfg.RunLogLines), func() {}
	}
	return rec, func() { rec.Close() }
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("initializing database connection", "driver", cfg.DatabaseDriver)
	store, err := backend.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	runLog, closeRunLog := openRunLog(ctx, cfg, logger)
	defer closeRunLog()

	tasks := task.New(store, logger)
	results := result.New(store, logger)
	runs := pipeline.New(tasks, results, checker.NewCLI(cfg.CheckerCommand), runLog, logger)

	sched := scheduler.New(tasks, runs, logger, scheduler.Config{
		Interval:    time.Duration(cfg.RunInterval),
		Workers:     cfg.MaxConcurrency,
		QueueSize:   cfg.QueueSize,
		StopTimeout: time.Duration(cfg.ShutdownGrace),
	})
	handlers := api.NewHandlers(tasks, results, sched, runLog, logger)
	server := api.NewServer(cfg.Addr(), handlers, api.RouterConfig{CORSOrigins: cfg.CORSOrigins})

	logger.Info("a11ywatch started",
		"addr", cfg.Addr(),
		"database", cfg.DatabaseDriver,
		"workers", cfg.MaxConcurrency,
		"interval", time.Duration(cfg.RunInterval).String(),
		"checker", cfg.CheckerCommand,
		"run_log", runLogKind(runLog),
	)

	sched.Start()
	serverErr := server.Start()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, starting graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			sched.Stop()
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	if err := shutdown(sched, server, time.Duration(cfg.ShutdownGrace)); err != nil {
		return err
	}
	logger.Info("application shut down gracefully")
	return nil
}

type stopper interface {
	Stop()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops the scheduler before draining HTTP requests. Each step gets
// its own grace period.
func shutdown(sched stopper, server shutdowner, grace time.Duration) error {
	// no new runs while requests drain
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown error: %w", err)
	}
	return nil
}

func runLogKind(r runlog.Recorder) string {
	if _, ok := r.(*runlog.Redis); ok {
		return "redis"
	}
	return "memory"
}
