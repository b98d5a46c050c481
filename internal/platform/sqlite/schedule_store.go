package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/store"
)

// SQLiteScheduleConfigStore implements the store.ScheduleConfigStore
// interface using the embedded SQLite database as the storage backend.
type SQLiteScheduleConfigStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLiteScheduleConfigStore creates a new SQLite implementation of the
// ScheduleConfigStore interface. If logger is nil, a default logger will
// be used.
func NewSQLiteScheduleConfigStore(db store.DBTX, logger *slog.Logger) *SQLiteScheduleConfigStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteScheduleConfigStore{
		db:     db,
		logger: logger.With(slog.String("component", "schedule_config_store")),
	}
}

// Ensure SQLiteScheduleConfigStore implements store.ScheduleConfigStore interface
var _ store.ScheduleConfigStore = (*SQLiteScheduleConfigStore)(nil)

// GetAll implements store.ScheduleConfigStore.GetAll.
func (s *SQLiteScheduleConfigStore) GetAll(ctx context.Context) ([]domain.ScheduleConfig, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_key, name, enabled, schedule_type, time_points_json,
			weekdays_json, extra_json, updated_at
		FROM schedule_configs
		ORDER BY task_key ASC
	`)
	if err != nil {
		log.Error("failed to query schedule configs", "error", err)
		return nil, store.NewStoreError("schedule_config", "get_all", "failed to query schedule configs", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []domain.ScheduleConfig
	for rows.Next() {
		var c domain.ScheduleConfig
		var scheduleType, timePointsJSON, weekdaysJSON, extraJSON string

		err := rows.Scan(&c.TaskKey, &c.Name, &c.Enabled, &scheduleType,
			&timePointsJSON, &weekdaysJSON, &extraJSON, &c.UpdatedAt)
		if err != nil {
			log.Error("failed to scan schedule config row", "error", err)
			return nil, store.NewStoreError("schedule_config", "get_all", "failed to scan schedule config row", err)
		}

		c.ScheduleType = domain.ScheduleType(scheduleType)
		if err := json.Unmarshal([]byte(timePointsJSON), &c.TimePoints); err != nil {
			return nil, store.NewStoreError("schedule_config", "get_all",
				"malformed time points for "+c.TaskKey, err)
		}
		if err := json.Unmarshal([]byte(weekdaysJSON), &c.Weekdays); err != nil {
			return nil, store.NewStoreError("schedule_config", "get_all",
				"malformed weekdays for "+c.TaskKey, err)
		}
		if err := json.Unmarshal([]byte(extraJSON), &c.Extra); err != nil {
			return nil, store.NewStoreError("schedule_config", "get_all",
				"malformed extra payload for "+c.TaskKey, err)
		}

		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating schedule config rows", "error", err)
		return nil, store.NewStoreError("schedule_config", "get_all", "error iterating schedule config rows", err)
	}

	return configs, nil
}

// SaveAll implements store.ScheduleConfigStore.SaveAll.
// Every config is validated before anything is written, so one bad time
// point rejects the whole batch.
func (s *SQLiteScheduleConfigStore) SaveAll(ctx context.Context, configs []domain.ScheduleConfig) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for i := range configs {
		if err := configs[i].Validate(); err != nil {
			log.Warn("rejected schedule config batch",
				"task_key", configs[i].TaskKey, "error", err)
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	query := `
		INSERT INTO schedule_configs (task_key, name, enabled, schedule_type,
			time_points_json, weekdays_json, extra_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_key) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			schedule_type = excluded.schedule_type,
			time_points_json = excluded.time_points_json,
			weekdays_json = excluded.weekdays_json,
			extra_json = excluded.extra_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	for _, c := range configs {
		timePointsJSON, err := json.Marshal(c.TimePoints)
		if err != nil {
			return store.NewStoreError("schedule_config", "save_all", "failed to encode time points", err)
		}
		weekdaysJSON, err := json.Marshal(c.Weekdays)
		if err != nil {
			return store.NewStoreError("schedule_config", "save_all", "failed to encode weekdays", err)
		}
		extra := c.Extra
		if extra == nil {
			extra = map[string]string{}
		}
		extraJSON, err := json.Marshal(extra)
		if err != nil {
			return store.NewStoreError("schedule_config", "save_all", "failed to encode extra payload", err)
		}

		err = withBusyRetry(ctx, func() error {
			_, execErr := s.db.ExecContext(ctx, query,
				c.TaskKey,
				c.Name,
				c.Enabled,
				string(c.ScheduleType),
				string(timePointsJSON),
				string(weekdaysJSON),
				string(extraJSON),
				now,
			)
			return execErr
		})
		if err != nil {
			log.Error("failed to save schedule config",
				"task_key", c.TaskKey, "error", err)
			return store.NewStoreError("schedule_config", "save_all",
				"failed to save config "+c.TaskKey, err)
		}
	}

	log.Info("schedule configs saved", "count", len(configs))
	return nil
}

// SQLiteAccuracyStore implements the store.AccuracyStore interface using
// the embedded SQLite database as the storage backend.
type SQLiteAccuracyStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLiteAccuracyStore creates a new SQLite implementation of the
// AccuracyStore interface. If logger is nil, a default logger will be used.
func NewSQLiteAccuracyStore(db store.DBTX, logger *slog.Logger) *SQLiteAccuracyStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteAccuracyStore{
		db:     db,
		logger: logger.With(slog.String("component", "accuracy_store")),
	}
}

// Ensure SQLiteAccuracyStore implements store.AccuracyStore interface
var _ store.AccuracyStore = (*SQLiteAccuracyStore)(nil)

// Upsert implements store.AccuracyStore.Upsert.
func (s *SQLiteAccuracyStore) Upsert(ctx context.Context, record domain.AccuracyRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO accuracy (tier, total, hits, direction_hits, hit_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tier) DO UPDATE SET
			total = excluded.total,
			hits = excluded.hits,
			direction_hits = excluded.direction_hits,
			hit_rate = excluded.hit_rate,
			updated_at = excluded.updated_at
	`

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			string(record.Tier),
			record.Total,
			record.Hits,
			record.DirectionHits,
			record.HitRate,
			record.LastUpdated.UTC(),
		)
		return execErr
	})
	if err != nil {
		log.Error("failed to upsert accuracy record",
			"tier", record.Tier, "error", err)
		return store.NewStoreError("accuracy", "upsert", "failed to upsert accuracy record", err)
	}

	return nil
}

// GetAll implements store.AccuracyStore.GetAll.
func (s *SQLiteAccuracyStore) GetAll(ctx context.Context) (map[domain.Tier]domain.AccuracyRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx,
		"SELECT tier, total, hits, direction_hits, hit_rate, updated_at FROM accuracy")
	if err != nil {
		log.Error("failed to query accuracy records", "error", err)
		return nil, store.NewStoreError("accuracy", "get_all", "failed to query accuracy records", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[domain.Tier]domain.AccuracyRecord)
	for rows.Next() {
		var r domain.AccuracyRecord
		var tier string

		err := rows.Scan(&tier, &r.Total, &r.Hits, &r.DirectionHits, &r.HitRate, &r.LastUpdated)
		if err != nil {
			log.Error("failed to scan accuracy row", "error", err)
			return nil, store.NewStoreError("accuracy", "get_all", "failed to scan accuracy row", err)
		}

		r.Tier = domain.Tier(tier)
		records[r.Tier] = r
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating accuracy rows", "error", err)
		return nil, store.NewStoreError("accuracy", "get_all", "error iterating accuracy rows", err)
	}

	return records, nil
}
