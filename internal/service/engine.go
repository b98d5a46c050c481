package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/phrazzld/pitchside/internal/config"
	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/scheduler"
	"github.com/phrazzld/pitchside/internal/scrape"
	"github.com/phrazzld/pitchside/internal/store"
	"github.com/phrazzld/pitchside/internal/task"
)

// QuickPredictor generates a quick-tier prediction for one match.
type QuickPredictor interface {
	Predict(ctx context.Context, match domain.Match) (*domain.Prediction, error)
}

// DeepAnalyzer generates a deep-tier prediction for one match.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, match domain.Match) (*domain.Prediction, error)
}

// Engine is the orchestration facade: it owns the pipeline stages, the
// task machinery they run on, and the schedule that fires them. It is the
// single entry point callers and the scheduler go through.
type Engine struct {
	cfg config.EngineConfig

	manager   *task.Manager
	admission *task.AdmissionQueue
	sched     *scheduler.Scheduler

	predictions *PredictionService
	tracker     *AccuracyTracker
	quick       QuickPredictor
	deep        DeepAnalyzer

	scheduleSource scrape.ScheduleSource
	resultSource   scrape.ResultSource
	configStore    store.ScheduleConfigStore

	logger *slog.Logger
}

// NewEngine creates an Engine over its collaborators. The scheduler is
// attached separately with SetScheduler because it dispatches back into
// the engine. If logger is nil, a default logger will be used.
func NewEngine(
	cfg config.EngineConfig,
	manager *task.Manager,
	admission *task.AdmissionQueue,
	predictions *PredictionService,
	tracker *AccuracyTracker,
	quick QuickPredictor,
	deep DeepAnalyzer,
	scheduleSource scrape.ScheduleSource,
	resultSource scrape.ResultSource,
	configStore store.ScheduleConfigStore,
	logger *slog.Logger,
) *Engine {
	if manager == nil {
		panic("manager cannot be nil")
	}
	if admission == nil {
		panic("admission cannot be nil")
	}
	if predictions == nil {
		panic("predictions cannot be nil")
	}
	if tracker == nil {
		panic("tracker cannot be nil")
	}
	if quick == nil {
		panic("quick predictor cannot be nil")
	}
	if deep == nil {
		panic("deep analyzer cannot be nil")
	}
	if scheduleSource == nil {
		panic("scheduleSource cannot be nil")
	}
	if resultSource == nil {
		panic("resultSource cannot be nil")
	}
	if configStore == nil {
		panic("configStore cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:            cfg,
		manager:        manager,
		admission:      admission,
		predictions:    predictions,
		tracker:        tracker,
		quick:          quick,
		deep:           deep,
		scheduleSource: scheduleSource,
		resultSource:   resultSource,
		configStore:    configStore,
		logger:         logger.With(slog.String("component", "engine")),
	}
}

// SetScheduler attaches the scheduler the engine rebuilds on config
// changes.
func (e *Engine) SetScheduler(sched *scheduler.Scheduler) {
	e.sched = sched
}

// Ensure the scheduler can dispatch into the engine
var _ scheduler.Dispatcher = (*Engine)(nil)

// Dispatch implements scheduler.Dispatcher: it starts the pipeline stage
// the due schedule config names.
func (e *Engine) Dispatch(ctx context.Context, cfg domain.ScheduleConfig) error {
	switch e.kindForTaskKey(cfg.TaskKey) {
	case task.KindScheduleCollection:
		_, err := e.StartScheduleCollection(ctx)
		return err
	case task.KindResultCollection:
		_, err := e.StartResultCollection(ctx)
		return err
	case task.KindQuickPredictionBatch:
		_, err := e.StartQuickBatch(ctx)
		return err
	case task.KindDeepAnalysisSelection:
		_, err := e.StartDeepSelection(ctx, deepSelectionSize(cfg))
		return err
	case task.KindDeepAnalysisBatch:
		_, err := e.StartDeepBatch(ctx)
		return err
	case task.KindAccuracyUpdate:
		_, err := e.StartAccuracyUpdate(ctx)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStage, cfg.TaskKey)
	}
}

// kindForTaskKey maps a persisted schedule task key to its task kind.
func (e *Engine) kindForTaskKey(taskKey string) task.Kind {
	switch taskKey {
	case "schedule_collection":
		return task.KindScheduleCollection
	case "result_collection":
		return task.KindResultCollection
	case "quick_prediction":
		return task.KindQuickPredictionBatch
	case "deep_analysis_selection":
		return task.KindDeepAnalysisSelection
	case "deep_analysis_generation":
		return task.KindDeepAnalysisBatch
	case "accuracy_update":
		return task.KindAccuracyUpdate
	default:
		return task.Kind("")
	}
}

// deepSelectionSize reads the selection size override from a schedule
// config's extra payload.
func deepSelectionSize(cfg domain.ScheduleConfig) int {
	if raw, ok := cfg.Extra["selection_size"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultDeepSelectionSize
}

// TaskStatus returns the snapshot for a task ID.
func (e *Engine) TaskStatus(id uuid.UUID) (task.Snapshot, error) {
	return e.manager.Status(id)
}

// Tasks returns snapshots of every tracked task.
func (e *Engine) Tasks() []task.Snapshot {
	return e.manager.List()
}

// InterruptTask requests cooperative cancellation of a running task.
// Returns true only when the task was running.
func (e *Engine) InterruptTask(id uuid.UUID) bool {
	return e.manager.Interrupt(id)
}

// ScheduleConfigs returns the persisted schedule configuration.
func (e *Engine) ScheduleConfigs(ctx context.Context) ([]domain.ScheduleConfig, error) {
	configs, err := e.configStore.GetAll(ctx)
	if err != nil {
		return nil, NewServiceError("schedule_configs", "failed to load configs", err)
	}
	return configs, nil
}

// SaveScheduleConfigs validates and persists schedule configs, then
// rebuilds the scheduler's job table so the change takes effect without a
// restart.
func (e *Engine) SaveScheduleConfigs(ctx context.Context, configs []domain.ScheduleConfig) error {
	if err := e.configStore.SaveAll(ctx, configs); err != nil {
		return NewServiceError("save_schedule_configs", "failed to save configs", err)
	}
	return e.ReloadSchedule(ctx)
}

// ReloadSchedule rebuilds the scheduler job table from the persisted
// configs.
func (e *Engine) ReloadSchedule(ctx context.Context) error {
	if e.sched == nil {
		return nil
	}
	configs, err := e.configStore.GetAll(ctx)
	if err != nil {
		return NewServiceError("reload_schedule", "failed to load configs", err)
	}
	e.sched.Rebuild(configs)
	return nil
}

// Accuracy returns the stored per-tier accuracy records.
func (e *Engine) Accuracy(ctx context.Context) (map[domain.Tier]domain.AccuracyRecord, error) {
	return e.tracker.Records(ctx)
}

// StartQuickBatch admits and spawns a quick-prediction batch over every
// match in the upcoming window. Returns ErrQueueFull when the quick tier
// is at capacity and ErrNoMatchesInWindow when there is nothing to do.
func (e *Engine) StartQuickBatch(ctx context.Context) (uuid.UUID, error) {
	matches, err := e.predictions.MatchesWithinWindow(ctx, e.cfg.PredictionWindowHours)
	if err != nil {
		return uuid.Nil, err
	}
	if len(matches) == 0 {
		return uuid.Nil, ErrNoMatchesInWindow
	}

	if err := e.admission.TryAdmit(task.KindQuickPredictionBatch); err != nil {
		return uuid.Nil, err
	}

	id, err := task.Spawn(ctx, e.manager, task.KindQuickPredictionBatch, len(matches),
		func(ctx context.Context, progress *task.Progress) error {
			defer e.admission.Release(task.KindQuickPredictionBatch)
			return e.runQuickBatch(ctx, progress, matches)
		})
	if err != nil {
		e.admission.Release(task.KindQuickPredictionBatch)
		return uuid.Nil, err
	}
	return id, nil
}

// runQuickBatch is the body of one quick-prediction batch. Individual
// match failures are logged and skipped; the batch fails only when every
// match failed.
func (e *Engine) runQuickBatch(ctx context.Context, progress *task.Progress, matches []domain.Match) error {
	log := logger.FromContextOrDefault(ctx, e.logger)

	failures := 0
	for i, match := range matches {
		if progress.Interrupted() {
			log.Info("quick batch interrupted",
				"completed", i,
				"total", len(matches))
			return nil
		}

		prediction, err := e.quick.Predict(ctx, match)
		if err != nil {
			failures++
			log.Warn("quick prediction failed",
				"code", match.Code,
				"error", err)
			progress.Record(task.ItemResult{Code: match.Code, Detail: err.Error()})
		} else if written, err := e.predictions.SavePrediction(ctx, prediction); err != nil {
			failures++
			log.Warn("quick prediction save failed",
				"code", match.Code,
				"error", err)
			progress.Record(task.ItemResult{Code: match.Code, Detail: err.Error()})
		} else if !written {
			progress.Record(task.ItemResult{Code: match.Code, Success: true,
				Detail: "deep analysis kept"})
		} else {
			progress.Record(task.ItemResult{Code: match.Code, Success: true,
				Detail: strings.Join(prediction.Scores, ", ")})
		}

		progress.Update(i+1, fmt.Sprintf("%d/%d matches", i+1, len(matches)))
	}

	if failures == len(matches) {
		return fmt.Errorf("%w: all %d matches failed", domain.ErrPredictionFailed, failures)
	}
	return nil
}

// StartDeepBatch admits and spawns a deep-analysis batch over the current
// selection.
func (e *Engine) StartDeepBatch(ctx context.Context) (uuid.UUID, error) {
	matches, err := e.predictions.DeepSelection(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if len(matches) == 0 {
		return uuid.Nil, ErrNoMatchesInWindow
	}

	if err := e.admission.TryAdmit(task.KindDeepAnalysisBatch); err != nil {
		return uuid.Nil, err
	}

	id, err := task.Spawn(ctx, e.manager, task.KindDeepAnalysisBatch, len(matches),
		func(ctx context.Context, progress *task.Progress) error {
			defer e.admission.Release(task.KindDeepAnalysisBatch)
			return e.runDeepBatch(ctx, progress, matches)
		})
	if err != nil {
		e.admission.Release(task.KindDeepAnalysisBatch)
		return uuid.Nil, err
	}
	return id, nil
}

func (e *Engine) runDeepBatch(ctx context.Context, progress *task.Progress, matches []domain.Match) error {
	log := logger.FromContextOrDefault(ctx, e.logger)

	failures := 0
	for i, match := range matches {
		if progress.Interrupted() {
			log.Info("deep batch interrupted",
				"completed", i,
				"total", len(matches))
			return nil
		}

		prediction, err := e.deep.Analyze(ctx, match)
		if err != nil {
			failures++
			log.Warn("deep analysis failed",
				"code", match.Code,
				"error", err)
			progress.Record(task.ItemResult{Code: match.Code, Detail: err.Error()})
		} else if _, err := e.predictions.SavePrediction(ctx, prediction); err != nil {
			failures++
			log.Warn("deep analysis save failed",
				"code", match.Code,
				"error", err)
			progress.Record(task.ItemResult{Code: match.Code, Detail: err.Error()})
		} else {
			progress.Record(task.ItemResult{Code: match.Code, Success: true,
				Detail: strings.Join(prediction.Scores, ", ")})
		}

		progress.Update(i+1, fmt.Sprintf("%d/%d matches", i+1, len(matches)))
	}

	if failures == len(matches) {
		return fmt.Errorf("%w: all %d matches failed", domain.ErrPredictionFailed, failures)
	}
	return nil
}

// StartScheduleCollection spawns a schedule scrape-and-ingest task.
func (e *Engine) StartScheduleCollection(ctx context.Context) (uuid.UUID, error) {
	return task.Spawn(ctx, e.manager, task.KindScheduleCollection, 0,
		func(ctx context.Context, progress *task.Progress) error {
			matches, err := e.scheduleSource.FetchSchedule(ctx)
			if err != nil {
				return NewServiceError("schedule_collection", "schedule scrape failed", err)
			}

			count, err := e.predictions.IngestSchedule(ctx, matches)
			if err != nil {
				return err
			}
			progress.Update(count, fmt.Sprintf("%d matches ingested", count))
			return nil
		})
}

// StartResultCollection spawns a result scrape-and-record task.
func (e *Engine) StartResultCollection(ctx context.Context) (uuid.UUID, error) {
	return task.Spawn(ctx, e.manager, task.KindResultCollection, 0,
		func(ctx context.Context, progress *task.Progress) error {
			results, err := e.resultSource.FetchResults(ctx, e.cfg.AccuracyLookbackDays)
			if err != nil {
				return NewServiceError("result_collection", "result scrape failed", err)
			}

			recorded, err := e.predictions.IngestResults(ctx, results)
			if err != nil {
				return err
			}
			progress.Update(recorded, fmt.Sprintf("%d results recorded", recorded))
			return nil
		})
}

// StartDeepSelection spawns the selection stage that picks matches for the
// next deep-analysis batch.
func (e *Engine) StartDeepSelection(ctx context.Context, n int) (uuid.UUID, error) {
	return task.Spawn(ctx, e.manager, task.KindDeepAnalysisSelection, 0,
		func(ctx context.Context, progress *task.Progress) error {
			selected, err := e.predictions.SelectForDeepAnalysis(ctx, e.cfg.PredictionWindowHours, n)
			if err != nil {
				return err
			}
			progress.Update(len(selected), fmt.Sprintf("%d matches selected", len(selected)))
			return nil
		})
}

// StartAccuracyUpdate spawns a full accuracy recompute.
func (e *Engine) StartAccuracyUpdate(ctx context.Context) (uuid.UUID, error) {
	return task.Spawn(ctx, e.manager, task.KindAccuracyUpdate, 0,
		func(ctx context.Context, progress *task.Progress) error {
			return e.tracker.Recompute(ctx)
		})
}
