package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/store"
)

func TestScheduleConfigSeedDefaults(t *testing.T) {
	t.Parallel()

	cfgStore := NewSQLiteScheduleConfigStore(newTestDB(t), nil)

	configs, err := cfgStore.GetAll(context.Background())
	require.NoError(t, err)

	byKey := make(map[string]domain.ScheduleConfig, len(configs))
	for _, c := range configs {
		byKey[c.TaskKey] = c
	}

	expected := map[string][]string{
		"schedule_collection":      {"11:00"},
		"result_collection":        {"10:30"},
		"quick_prediction":         {"11:10"},
		"deep_analysis_selection":  {"11:20"},
		"deep_analysis_generation": {"11:30"},
		"accuracy_update":          {"10:45"},
	}

	for key, times := range expected {
		cfg, ok := byKey[key]
		require.True(t, ok, "seed migration should create config %q", key)
		assert.True(t, cfg.Enabled, "seeded config %q should start enabled", key)
		assert.Equal(t, times, cfg.TimePoints)
		assert.Equal(t, domain.AllWeekdays(), cfg.Weekdays)
	}
}

func TestScheduleConfigSaveAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("round-trips edited configs", func(t *testing.T) {
		t.Parallel()

		cfgStore := NewSQLiteScheduleConfigStore(newTestDB(t), nil)

		edited := []domain.ScheduleConfig{{
			TaskKey:      "quick_prediction",
			Name:         "Quick predictions",
			Enabled:      true,
			ScheduleType: domain.ScheduleWeekly,
			TimePoints:   []string{"9:05", "08:00", "9:05"},
			Weekdays:     []string{"sat", "sun"},
			Extra:        map[string]string{"model": "flash"},
		}}

		require.NoError(t, cfgStore.SaveAll(ctx, edited))

		configs, err := cfgStore.GetAll(ctx)
		require.NoError(t, err)

		var got *domain.ScheduleConfig
		for i := range configs {
			if configs[i].TaskKey == "quick_prediction" {
				got = &configs[i]
			}
		}
		require.NotNil(t, got)

		assert.Equal(t, domain.ScheduleWeekly, got.ScheduleType)
		assert.Equal(t, []string{"08:00", "09:05"}, got.TimePoints,
			"time points are normalized, deduplicated and sorted at save time")
		assert.Equal(t, []string{"sat", "sun"}, got.Weekdays)
		assert.Equal(t, "flash", got.Extra["model"])
	})

	t.Run("one invalid time point rejects the whole batch", func(t *testing.T) {
		t.Parallel()

		cfgStore := NewSQLiteScheduleConfigStore(newTestDB(t), nil)

		batch := []domain.ScheduleConfig{
			{TaskKey: "result_collection", TimePoints: []string{"07:00"}},
			{TaskKey: "quick_prediction", TimePoints: []string{"25:99"}},
		}

		err := cfgStore.SaveAll(ctx, batch)
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrInvalidTimePoint)

		configs, err := cfgStore.GetAll(ctx)
		require.NoError(t, err)
		for _, c := range configs {
			if c.TaskKey == "result_collection" {
				assert.NotEqual(t, []string{"07:00"}, c.TimePoints,
					"valid sibling must not be written when the batch is rejected")
			}
		}
	})
}

func TestAccuracyStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	accStore := NewSQLiteAccuracyStore(newTestDB(t), nil)

	t.Run("empty store returns no records", func(t *testing.T) {
		records, err := accStore.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("upsert replaces the per-tier record", func(t *testing.T) {
		require.NoError(t, accStore.Upsert(ctx,
			domain.NewAccuracyRecord(domain.TierQuick, 10, 3, 6)))
		require.NoError(t, accStore.Upsert(ctx,
			domain.NewAccuracyRecord(domain.TierDeep, 4, 2, 3)))

		// Recompute over more data replaces, never accumulates.
		require.NoError(t, accStore.Upsert(ctx,
			domain.NewAccuracyRecord(domain.TierQuick, 20, 5, 11)))

		records, err := accStore.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)

		quick := records[domain.TierQuick]
		assert.Equal(t, 20, quick.Total)
		assert.Equal(t, 5, quick.Hits)
		assert.Equal(t, 11, quick.DirectionHits)
		assert.InDelta(t, 25.0, quick.HitRate, 0.001)

		deep := records[domain.TierDeep]
		assert.Equal(t, 4, deep.Total)
		assert.InDelta(t, 50.0, deep.HitRate, 0.001)
	})
}
