package reference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/north-cloud/huv-matcher/infrastructure/retry"
	"github.com/north-cloud/huv-matcher/internal/domain"
)

const tagSeparator = ","

type sourceRow struct {
	ID          string `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	Hierarchy   string `db:"hierarchy"`
	Description string `db:"description"`
}

type candidateRow struct {
	ID        string `db:"id"`
	Code      string `db:"code"`
	Name      string `db:"name"`
	Hierarchy string `db:"hierarchy"`
	Tags      string `db:"tags"`
}

// SQLProvider reads huv_sources and huv_candidates through sqlx. Queries
// are written with '?' and rebound for the connection's driver.
type SQLProvider struct {
	db    *sqlx.DB
	retry retry.Config
}

// NewSQLProvider returns a provider over db. Transient read errors are
// retried with retryCfg.
func NewSQLProvider(db *sqlx.DB, retryCfg retry.Config) *SQLProvider {
	return &SQLProvider{db: db, retry: retryCfg}
}

// GetSourceItem implements Provider.
func (p *SQLProvider) GetSourceItem(ctx context.Context, id string) (*domain.SourceItem, error) {
	query := p.db.Rebind(`SELECT id, code, name, hierarchy, description FROM huv_sources WHERE id = ?`)

	row, err := retry.Value(ctx, p.retry, func() (sourceRow, error) {
		var r sourceRow
		err := p.db.GetContext(ctx, &r, query, id)
		return r, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}

	return &domain.SourceItem{
		ID:          row.ID,
		Code:        row.Code,
		Name:        row.Name,
		Hierarchy:   domain.ParseHierarchy(row.Hierarchy),
		Description: row.Description,
	}, nil
}

// ListCandidates implements Provider. Branch and tag filters are applied
// after the read so they compare the same way as MemoryProvider.
func (p *SQLProvider) ListCandidates(ctx context.Context, filter Filter) ([]domain.CandidateTarget, error) {
	query := `SELECT id, code, name, hierarchy, tags FROM huv_candidates ORDER BY id`

	rows, err := retry.Value(ctx, p.retry, func() ([]candidateRow, error) {
		var rs []candidateRow
		err := p.db.SelectContext(ctx, &rs, query)
		return rs, err
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	out := make([]domain.CandidateTarget, 0, len(rows))
	for _, r := range rows {
		c := domain.CandidateTarget{
			ID:        r.ID,
			Code:      r.Code,
			Name:      r.Name,
			Hierarchy: domain.ParseHierarchy(r.Hierarchy),
			Tags:      splitTags(r.Tags),
		}
		if !filter.matches(&c) {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// ListSourceIDs returns every source id in id order.
func (p *SQLProvider) ListSourceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := p.db.SelectContext(ctx, &ids, `SELECT id FROM huv_sources ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list source ids: %w", err)
	}
	return ids, nil
}

// SnapshotVersion implements Provider. It combines the candidate count
// with the latest update time, so any insert or update yields a new version.
func (p *SQLProvider) SnapshotVersion(ctx context.Context) (string, error) {
	var (
		count  int64
		latest sql.NullString
	)
	row := p.db.QueryRowxContext(ctx, `SELECT COUNT(*), MAX(updated_at) FROM huv_candidates`)
	if err := row.Scan(&count, &latest); err != nil {
		return "", fmt.Errorf("snapshot version: %w", err)
	}
	return fmt.Sprintf("sql-%d-%s", count, latest.String), nil
}

// UpsertSource stores a source item.
func (p *SQLProvider) UpsertSource(ctx context.Context, s *domain.SourceItem) error {
	if err := s.Validate(); err != nil {
		return err
	}
	query := p.db.Rebind(`
		INSERT INTO huv_sources (id, code, name, hierarchy, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			hierarchy = excluded.hierarchy,
			description = excluded.description`)
	if _, err := p.db.ExecContext(ctx, query, s.ID, s.Code, s.Name, s.Hierarchy.String(), s.Description); err != nil {
		return fmt.Errorf("upsert source %s: %w", s.ID, err)
	}
	return nil
}

// UpsertCandidate stores a candidate target and bumps its updated_at.
func (p *SQLProvider) UpsertCandidate(ctx context.Context, c *domain.CandidateTarget) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: candidate id is empty", domain.ErrInvalidInput)
	}
	query := p.db.Rebind(`
		INSERT INTO huv_candidates (id, code, name, hierarchy, tags, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			hierarchy = excluded.hierarchy,
			tags = excluded.tags,
			updated_at = CURRENT_TIMESTAMP`)
	_, err := p.db.ExecContext(ctx, query, c.ID, c.Code, c.Name, c.Hierarchy.String(), strings.Join(c.Tags, tagSeparator))
	if err != nil {
		return fmt.Errorf("upsert candidate %s: %w", c.ID, err)
	}
	return nil
}

func splitTags(s string) []string {
	var tags []string
	for part := range strings.SplitSeq(s, tagSeparator) {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
