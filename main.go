package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CruGlobal/scoreboard/scoreboard"
	"github.com/CruGlobal/scoreboard/scoreboard/database"
	"github.com/CruGlobal/scoreboard/scoreboard/logger"
	"github.com/CruGlobal/scoreboard/scoreboard/services"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize custom logger
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Scoreboard",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldAudit := flag.Bool("audit", false, "Run a full audit pass on startup")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := scoreboard.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Convert scoreboard.DBConfig to database.DBConfig
	dbConfig := database.DBConfig{
		Host:         cfg.DB.Host,
		Port:         cfg.DB.Port,
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Database:     cfg.DB.Database,
		PoolSize:     cfg.DB.PoolSize,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxLifetime:  cfg.DB.MaxLifetime,
	}

	db, err := database.New(ctx, dbConfig)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	defer db.Close()

	app := scoreboard.New(*cfg, version, commit)
	app.DB = db

	if err := app.SetupServices(); err != nil {
		slog.Error("Failed to set up services", slog.Any("error", err))
		os.Exit(-1)
	}

	if err := app.OnReady(ctx); err != nil {
		slog.Error("Failed to align quarter state", slog.Any("error", err))
		os.Exit(-1)
	}

	if *shouldAudit {
		slog.Info("Running startup audit pass...")
		if _, err := app.AuditService.Run(ctx); err != nil {
			slog.Error("Startup audit failed", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	// Background maintenance loops. Event ingestion is driven by the
	// embedding platform client through app.EventService; these loops
	// cover the time-based transitions events alone cannot trigger.
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()

	if app.EventSource != nil {
		poller := services.NewPoller(app.EventSource, app.EventService, cfg.Maint.PollInterval)
		go poller.Run(loopCtx)
		slog.Info("Polling for platform events",
			slog.String("repository", cfg.Platform.Owner+"/"+cfg.Platform.Repo),
			slog.Duration("interval", cfg.Maint.PollInterval))
	}

	go func() {
		ticker := time.NewTicker(cfg.Maint.QuarterCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tickCtx, tickCancel := context.WithTimeout(context.Background(), time.Minute)
				if err := app.QuarterService.EnsureCurrent(tickCtx, time.Now()); err != nil {
					slog.Error("Quarter check failed", slog.Any("error", err))
				}
				tickCancel()
			case <-loopCtx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.Maint.ChallengeSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tickCtx, tickCancel := context.WithTimeout(context.Background(), time.Minute)
				if err := app.ChallengeService.ExpireSweep(tickCtx, time.Now()); err != nil {
					slog.Error("Challenge sweep failed", slog.Any("error", err))
				}
				tickCancel()
			case <-loopCtx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.Maint.AuditInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tickCtx, tickCancel := context.WithTimeout(context.Background(), 30*time.Minute)
				if _, err := app.AuditService.Run(tickCtx); err != nil {
					slog.Error("Scheduled audit failed", slog.Any("error", err))
				}
				tickCancel()
			case <-loopCtx.Done():
				return
			}
		}
	}()

	slog.Info("Scoreboard is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down scoreboard...")
}
