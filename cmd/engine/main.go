// Package main implements the entry point for the pitchside prediction
// engine, which orchestrates schedule collection, LLM score prediction,
// result recording, and accuracy tracking on a persisted timetable.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/pitchside/internal/collector"
	"github.com/phrazzld/pitchside/internal/config"
	"github.com/phrazzld/pitchside/internal/events"
	"github.com/phrazzld/pitchside/internal/platform/gemini"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/platform/sqlite"
	"github.com/phrazzld/pitchside/internal/predictor"
	"github.com/phrazzld/pitchside/internal/scheduler"
	"github.com/phrazzld/pitchside/internal/scrape"
	"github.com/phrazzld/pitchside/internal/service"
	"github.com/phrazzld/pitchside/internal/task"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("engine exited with error: %v", err)
	}
}

// run wires every component together and drives the scheduler loop until
// the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("engine configuration loaded",
		"log_level", cfg.Server.LogLevel,
		"database_path", cfg.Database.Path,
		"scraper_base_url", cfg.Scraper.BaseURL,
		"model", cfg.LLM.ModelName)

	db, err := sqlite.Open(cfg.Database.Path, appLogger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := sqlite.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Stores and events.
	matchStore := sqlite.NewSQLiteMatchStore(db, appLogger)
	predictionStore := sqlite.NewSQLitePredictionStore(db, appLogger)
	accuracyStore := sqlite.NewSQLiteAccuracyStore(db, appLogger)
	configStore := sqlite.NewSQLiteScheduleConfigStore(db, appLogger)
	emitter := events.NewInMemoryEventEmitter(appLogger)

	tracker := service.NewAccuracyTracker(matchStore, predictionStore, accuracyStore,
		cfg.Engine.AccuracyLookbackDays, appLogger)
	emitter.RegisterHandler(tracker)

	predictions := service.NewPredictionService(db, matchStore, predictionStore, emitter, appLogger)

	// External capabilities: the scraper bridge and the LLM.
	bridge := scrape.NewBridgeClient(cfg.Scraper.BaseURL,
		time.Duration(cfg.Scraper.TimeoutSeconds)*time.Second, appLogger)

	completer, err := gemini.NewGeminiCompleter(ctx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	sources := []collector.Source{
		collector.NewOfficialSource(bridge),
		collector.NewWebSearchSource(completer),
		collector.NewScreenshotSource(cfg.Scraper.ScreenshotDir, completer),
	}
	intel := collector.New(sources, cfg.Engine.CollectorAttempts, appLogger)

	quick := predictor.NewQuickPredictor(completer, appLogger)
	deep := predictor.NewDeepAnalyzer(intel, completer, appLogger)

	// Orchestration.
	manager := task.NewManager(time.Duration(cfg.Engine.TaskTTLMinutes)*time.Minute, appLogger)
	admission := task.NewAdmissionQueue(cfg.Engine.QuickCapacity, cfg.Engine.DeepCapacity)

	engine := service.NewEngine(cfg.Engine, manager, admission, predictions, tracker,
		quick, deep, bridge, bridge, configStore, appLogger)

	sched := scheduler.New(engine, time.Duration(cfg.Engine.TickSeconds)*time.Second, appLogger)
	engine.SetScheduler(sched)
	if err := engine.ReloadSchedule(ctx); err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}

	appLogger.Info("engine started",
		"quick_capacity", cfg.Engine.QuickCapacity,
		"deep_capacity", cfg.Engine.DeepCapacity,
		"tick_seconds", cfg.Engine.TickSeconds)

	sched.RunLoop(ctx)

	appLogger.Info("shutdown signal received, waiting for running tasks")
	waitForTasks(manager, appLogger, 30*time.Second)

	appLogger.Info("engine stopped")
	return nil
}

// waitForTasks gives running tasks a bounded grace period to finish after
// the scheduler loop stops.
func waitForTasks(manager *task.Manager, log *slog.Logger, grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		running := 0
		for _, snap := range manager.List() {
			if !snap.Status.Terminal() {
				running++
			}
		}
		if running == 0 {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	log.Warn("grace period elapsed with tasks still running")
}
