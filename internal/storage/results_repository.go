package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/north-cloud/huv-matcher/internal/domain"
)

// ResultsRepository keeps the latest result per source item in match_results.
type ResultsRepository struct {
	db *sqlx.DB
}

// NewResultsRepository creates a new repository.
func NewResultsRepository(db *sqlx.DB) *ResultsRepository {
	return &ResultsRepository{db: db}
}

type resultRow struct {
	SourceID   string    `db:"source_id"`
	BatchID    string    `db:"batch_id"`
	TargetID   string    `db:"target_id"`
	Confidence float64   `db:"confidence"`
	Strategy   string    `db:"strategy"`
	Method     string    `db:"method"`
	Reason     string    `db:"reason"`
	Error      string    `db:"error"`
	RunnerUps  string    `db:"runner_ups"`
	Warnings   string    `db:"warnings"`
	MatchedAt  time.Time `db:"matched_at"`
}

// SaveRun upserts every result of run in one transaction.
func (r *ResultsRepository) SaveRun(ctx context.Context, run *domain.BatchRun) error {
	if len(run.Results) == 0 {
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO match_results
			(source_id, batch_id, target_id, confidence, strategy, method, reason, error, runner_ups, warnings, matched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			target_id = excluded.target_id,
			confidence = excluded.confidence,
			strategy = excluded.strategy,
			method = excluded.method,
			reason = excluded.reason,
			error = excluded.error,
			runner_ups = excluded.runner_ups,
			warnings = excluded.warnings,
			matched_at = excluded.matched_at`)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range run.Results {
		res := &run.Results[i]
		runnerUps, err := json.Marshal(nonNil(res.RunnerUps))
		if err != nil {
			return fmt.Errorf("encode runner-ups for %s: %w", res.SourceID, err)
		}
		warnings, err := json.Marshal(nonNil(res.Warnings))
		if err != nil {
			return fmt.Errorf("encode warnings for %s: %w", res.SourceID, err)
		}
		_, err = tx.ExecContext(ctx, query,
			res.SourceID, run.ID, res.TargetID, res.Confidence, res.Strategy, string(res.Method),
			res.Reason, res.Error, string(runnerUps), string(warnings), res.MatchedAt,
		)
		if err != nil {
			return fmt.Errorf("save result %s: %w", res.SourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

// ListUnmatchedSourceIDs returns up to limit source ids whose latest
// result has no target, oldest first.
func (r *ResultsRepository) ListUnmatchedSourceIDs(ctx context.Context, limit int) ([]string, error) {
	query := r.db.Rebind(`
		SELECT source_id FROM match_results
		WHERE target_id = ''
		ORDER BY matched_at ASC, source_id ASC
		LIMIT ?`)

	ids := make([]string, 0, limit)
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("list unmatched: %w", err)
	}
	return ids, nil
}

// GetResult returns the stored result for sourceID or domain.ErrNotFound.
// Diagnostics are not stored.
func (r *ResultsRepository) GetResult(ctx context.Context, sourceID string) (*domain.MatchResult, error) {
	query := r.db.Rebind(`
		SELECT source_id, batch_id, target_id, confidence, strategy, method, reason, error, runner_ups, warnings, matched_at
		FROM match_results WHERE source_id = ?`)

	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, query, sourceID); err != nil {
		return nil, fmt.Errorf("get result %s: %w", sourceID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("result %s: %w", sourceID, domain.ErrNotFound)
	}

	row := rows[0]
	res := &domain.MatchResult{
		SourceID:   row.SourceID,
		TargetID:   row.TargetID,
		Confidence: row.Confidence,
		Strategy:   row.Strategy,
		Method:     domain.Method(row.Method),
		Reason:     row.Reason,
		Error:      row.Error,
		MatchedAt:  row.MatchedAt,
	}
	if err := json.Unmarshal([]byte(row.RunnerUps), &res.RunnerUps); err != nil {
		return nil, fmt.Errorf("decode runner-ups for %s: %w", sourceID, err)
	}
	if err := json.Unmarshal([]byte(row.Warnings), &res.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings for %s: %w", sourceID, err)
	}
	return res, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
