package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/store"
)

// SQLiteMatchStore implements the store.MatchStore interface using the
// embedded SQLite database as the storage backend.
type SQLiteMatchStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLiteMatchStore creates a new SQLite implementation of the MatchStore
// interface. It accepts a database connection or transaction that should be
// initialized and managed by the caller. If logger is nil, a default logger
// will be used.
func NewSQLiteMatchStore(db store.DBTX, logger *slog.Logger) *SQLiteMatchStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteMatchStore{
		db:     db,
		logger: logger.With(slog.String("component", "match_store")),
	}
}

// Ensure SQLiteMatchStore implements store.MatchStore interface
var _ store.MatchStore = (*SQLiteMatchStore)(nil)

// UpsertSchedule implements store.MatchStore.UpsertSchedule.
// Matches absent from the batch are deactivated, not deleted, so their
// resolved history stays available for accuracy accounting. The caller is
// expected to run this inside a transaction via WithTx; the statements
// assume they execute against a consistent snapshot.
func (s *SQLiteMatchStore) UpsertSchedule(ctx context.Context, matches []domain.Match) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for i := range matches {
		if err := matches[i].Validate(); err != nil {
			log.Warn("rejected schedule batch with invalid match",
				"code", matches[i].Code,
				"error", err)
			return 0, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
	}

	// Deactivate every previously active match missing from this batch.
	codes := make([]string, 0, len(matches))
	args := make([]interface{}, 0, len(matches)+1)
	args = append(args, time.Now().UTC())
	for _, m := range matches {
		codes = append(codes, "?")
		args = append(args, m.Code)
	}

	deactivate := "UPDATE matches SET active = 0, updated_at = ? WHERE active = 1"
	if len(codes) > 0 {
		deactivate += " AND code NOT IN (" + strings.Join(codes, ", ") + ")"
	}

	var deactivated int64
	err := withBusyRetry(ctx, func() error {
		result, execErr := s.db.ExecContext(ctx, deactivate, args...)
		if execErr != nil {
			return execErr
		}
		deactivated, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		log.Error("failed to deactivate stale matches", "error", err)
		return 0, store.NewStoreError("match", "upsert_schedule", "failed to deactivate stale matches", err)
	}

	upsert := `
		INSERT INTO matches (code, home_team, away_team, league, kickoff_time,
			group_key, active, actual_score, half_score, group_completed,
			deep_selected, scraped_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, '', '', 0, 0, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			home_team = excluded.home_team,
			away_team = excluded.away_team,
			league = excluded.league,
			kickoff_time = excluded.kickoff_time,
			group_key = excluded.group_key,
			active = 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	for _, m := range matches {
		err := withBusyRetry(ctx, func() error {
			_, execErr := s.db.ExecContext(ctx, upsert,
				m.Code,
				m.HomeTeam,
				m.AwayTeam,
				m.League,
				m.KickoffTime.UTC(),
				m.GroupKey,
				m.ScrapedAt.UTC(),
				now,
			)
			return execErr
		})
		if err != nil {
			log.Error("failed to upsert match", "code", m.Code, "error", err)
			return 0, store.NewStoreError("match", "upsert_schedule", "failed to upsert match "+m.Code, err)
		}
	}

	if err := s.recomputeGroupCompletion(ctx, matches); err != nil {
		log.Error("failed to recompute group completion", "error", err)
		return 0, store.NewStoreError("match", "upsert_schedule", "failed to recompute group completion", err)
	}

	log.Info("schedule batch upserted",
		"matches", len(matches),
		"deactivated", deactivated)

	return len(matches), nil
}

// recomputeGroupCompletion refreshes the group_completed flag for every
// group touched by a schedule batch. Re-listing a match into a previously
// completed group must reopen it, so the flag is derived from the current
// active rows rather than carried over.
func (s *SQLiteMatchStore) recomputeGroupCompletion(ctx context.Context, matches []domain.Match) error {
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	placeholders := make([]string, 0, len(matches))
	args := make([]interface{}, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.GroupKey]; ok {
			continue
		}
		seen[m.GroupKey] = struct{}{}
		placeholders = append(placeholders, "?")
		args = append(args, m.GroupKey)
	}

	query := `
		UPDATE matches SET group_completed = NOT EXISTS (
			SELECT 1 FROM matches pending
			WHERE pending.group_key = matches.group_key
			  AND pending.active = 1
			  AND pending.actual_score = ''
		)
		WHERE group_key IN (` + strings.Join(placeholders, ", ") + `)
	`

	return withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// RecordResult implements store.MatchStore.RecordResult.
// Group completion is evaluated over active matches only, and the returned
// ResultUpdate reports the false-to-true transition exactly once.
func (s *SQLiteMatchStore) RecordResult(ctx context.Context, code, score, halfScore string) (store.ResultUpdate, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var groupKey string
	var wasCompleted bool
	row := s.db.QueryRowContext(ctx,
		"SELECT group_key, group_completed FROM matches WHERE code = ?", code)
	if err := row.Scan(&groupKey, &wasCompleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ResultUpdate{}, store.ErrMatchNotFound
		}
		log.Error("failed to look up match for result", "code", code, "error", err)
		return store.ResultUpdate{}, store.NewStoreError("match", "record_result", "failed to look up match", err)
	}

	normalized := domain.NormalizeScore(score)
	normalizedHalf := domain.NormalizeScore(halfScore)

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			"UPDATE matches SET actual_score = ?, half_score = ?, updated_at = ? WHERE code = ?",
			normalized, normalizedHalf, time.Now().UTC(), code)
		return execErr
	})
	if err != nil {
		log.Error("failed to record result", "code", code, "error", err)
		return store.ResultUpdate{}, store.NewStoreError("match", "record_result", "failed to update score", err)
	}

	// A group is complete when every active match in it has a final score.
	var pending int
	row = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM matches WHERE group_key = ? AND active = 1 AND actual_score = ''",
		groupKey)
	if err := row.Scan(&pending); err != nil {
		log.Error("failed to evaluate group completion", "group_key", groupKey, "error", err)
		return store.ResultUpdate{}, store.NewStoreError("match", "record_result", "failed to evaluate group completion", err)
	}

	completedNow := pending == 0
	if completedNow != wasCompleted {
		err := withBusyRetry(ctx, func() error {
			_, execErr := s.db.ExecContext(ctx,
				"UPDATE matches SET group_completed = ?, updated_at = ? WHERE group_key = ?",
				completedNow, time.Now().UTC(), groupKey)
			return execErr
		})
		if err != nil {
			log.Error("failed to update group completion flag", "group_key", groupKey, "error", err)
			return store.ResultUpdate{}, store.NewStoreError("match", "record_result", "failed to update group completion", err)
		}
	}

	update := store.ResultUpdate{
		GroupKey:       groupKey,
		GroupCompleted: completedNow && !wasCompleted,
	}

	if update.GroupCompleted {
		log.Info("betting group completed", "group_key", groupKey)
	}

	return update, nil
}

// ArchiveResult implements store.MatchStore.ArchiveResult.
func (s *SQLiteMatchStore) ArchiveResult(ctx context.Context, result domain.Result) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO results (code, home_team, away_team, league, score, half_score, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			score = excluded.score,
			half_score = excluded.half_score,
			scraped_at = excluded.scraped_at
	`

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			result.Code,
			result.HomeTeam,
			result.AwayTeam,
			result.League,
			domain.NormalizeScore(result.Score),
			domain.NormalizeScore(result.HalfScore),
			result.ScrapedAt.UTC(),
		)
		return execErr
	})
	if err != nil {
		log.Error("failed to archive result", "code", result.Code, "error", err)
		return store.NewStoreError("result", "archive", "failed to archive result", err)
	}

	return nil
}

// MarkDeepSelection implements store.MatchStore.MarkDeepSelection.
// The previous selection is cleared first, so the new set fully replaces
// it.
func (s *SQLiteMatchStore) MarkDeepSelection(ctx context.Context, codes []string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			"UPDATE matches SET deep_selected = 0, updated_at = ? WHERE deep_selected = 1",
			time.Now().UTC())
		return execErr
	})
	if err != nil {
		log.Error("failed to clear deep selection", "error", err)
		return store.NewStoreError("match", "mark_deep_selection", "failed to clear previous selection", err)
	}

	if len(codes) == 0 {
		return nil
	}

	placeholders := make([]string, len(codes))
	args := make([]interface{}, 0, len(codes)+1)
	args = append(args, time.Now().UTC())
	for i, code := range codes {
		placeholders[i] = "?"
		args = append(args, code)
	}

	err = withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			"UPDATE matches SET deep_selected = 1, updated_at = ? WHERE code IN ("+
				strings.Join(placeholders, ", ")+")",
			args...)
		return execErr
	})
	if err != nil {
		log.Error("failed to mark deep selection", "error", err)
		return store.NewStoreError("match", "mark_deep_selection", "failed to mark selection", err)
	}

	log.Info("deep analysis selection updated", "count", len(codes))
	return nil
}

// Query implements store.MatchStore.Query.
func (s *SQLiteMatchStore) Query(ctx context.Context, filter store.MatchFilter) ([]domain.Match, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT code, home_team, away_team, league, kickoff_time, group_key,
			active, actual_score, half_score, group_completed, deep_selected,
			scraped_at, updated_at
		FROM matches
	`

	var conditions []string
	var args []interface{}

	if filter.GroupKey != "" {
		conditions = append(conditions, "group_key = ?")
		args = append(args, filter.GroupKey)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "active = 1")
	}
	if !filter.KickoffAfter.IsZero() {
		conditions = append(conditions, "kickoff_time >= ?")
		args = append(args, filter.KickoffAfter.UTC())
	}
	if !filter.KickoffBefore.IsZero() {
		conditions = append(conditions, "kickoff_time < ?")
		args = append(args, filter.KickoffBefore.UTC())
	}
	if filter.UnresolvedOnly {
		conditions = append(conditions, "actual_score = ''")
	}
	if filter.DeepSelectedOnly {
		conditions = append(conditions, "deep_selected = 1")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY kickoff_time ASC, code ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query matches", "error", err)
		return nil, store.NewStoreError("match", "query", "failed to query matches", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []domain.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			log.Error("failed to scan match row", "error", err)
			return nil, store.NewStoreError("match", "query", "failed to scan match row", err)
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating match rows", "error", err)
		return nil, store.NewStoreError("match", "query", "error iterating match rows", err)
	}

	return matches, nil
}

// GetByCode implements store.MatchStore.GetByCode.
func (s *SQLiteMatchStore) GetByCode(ctx context.Context, code string) (*domain.Match, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, `
		SELECT code, home_team, away_team, league, kickoff_time, group_key,
			active, actual_score, half_score, group_completed, deep_selected,
			scraped_at, updated_at
		FROM matches
		WHERE code = ?
	`, code)

	match, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMatchNotFound
		}
		log.Error("failed to get match", "code", code, "error", err)
		return nil, store.NewStoreError("match", "get_by_code", "failed to get match", err)
	}

	return match, nil
}

// WithTx implements store.MatchStore.WithTx.
// It returns a new MatchStore instance that uses the provided transaction,
// allowing multiple store operations to be part of the same transaction.
func (s *SQLiteMatchStore) WithTx(tx *sql.Tx) store.MatchStore {
	return &SQLiteMatchStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*domain.Match, error) {
	var m domain.Match
	err := row.Scan(
		&m.Code,
		&m.HomeTeam,
		&m.AwayTeam,
		&m.League,
		&m.KickoffTime,
		&m.GroupKey,
		&m.Active,
		&m.ActualScore,
		&m.HalfScore,
		&m.GroupCompleted,
		&m.DeepSelected,
		&m.ScrapedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
