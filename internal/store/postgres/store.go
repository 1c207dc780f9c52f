// Package postgres persists research jobs in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rivalscope/research/internal/research"
)

// Config controls the connection pool for the job store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements research.JobStore on a pgx pool. One row per
// competitor; terminal rows are overwritten by the next submission.
type Store struct {
	pool db
}

// NewStore connects a pool from the config.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewStoreWithPool(pool db) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateJob records a new pending job. The conflict guard makes the
// in-flight check and the insert one atomic statement: a row stuck in
// pending or processing blocks resubmission.
func (s *Store) CreateJob(ctx context.Context, job research.ResearchJob) error {
	query := `
		INSERT INTO research_jobs (competitor_id, website, display_name, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (competitor_id) DO UPDATE
		SET website = EXCLUDED.website,
		    display_name = EXCLUDED.display_name,
		    status = EXCLUDED.status,
		    error_text = NULL,
		    intel = NULL,
		    brand = NULL,
		    raw_content_meta = NULL,
		    last_researched_at = NULL,
		    submitted_at = EXCLUDED.submitted_at,
		    started_at = NULL,
		    finished_at = NULL
		WHERE research_jobs.status NOT IN ($6, $7);
	`
	tag, err := s.pool.Exec(ctx, query,
		job.CompetitorID, job.Website, job.DisplayName, research.StatusPending, job.SubmittedAt,
		research.StatusPending, research.StatusProcessing)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return research.ErrJobInFlight
	}
	return nil
}

// SetProcessing transitions a pending job to processing.
func (s *Store) SetProcessing(ctx context.Context, competitorID string, startedAt time.Time) error {
	query := `
		UPDATE research_jobs
		SET status = $1, started_at = $2
		WHERE competitor_id = $3 AND status = $4;
	`
	tag, err := s.pool.Exec(ctx, query, research.StatusProcessing, startedAt, competitorID, research.StatusPending)
	if err != nil {
		return fmt.Errorf("set processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return research.ErrNotFound
	}
	return nil
}

// SetCompleted writes the finished record in one statement, so a reader
// never sees intel without its completed status. The processing guard
// keeps a stale worker from overwriting a reaped or resubmitted row.
func (s *Store) SetCompleted(ctx context.Context, competitorID string, outcome research.JobOutcome) error {
	intel, err := json.Marshal(outcome.Intel)
	if err != nil {
		return fmt.Errorf("encode intel: %w", err)
	}
	var brand []byte
	if outcome.Brand != nil {
		if brand, err = json.Marshal(outcome.Brand); err != nil {
			return fmt.Errorf("encode brand: %w", err)
		}
	}
	meta, err := json.Marshal(outcome.Meta)
	if err != nil {
		return fmt.Errorf("encode content meta: %w", err)
	}

	query := `
		UPDATE research_jobs
		SET status = $1, intel = $2, brand = $3, raw_content_meta = $4,
		    error_text = NULL, finished_at = $5, last_researched_at = $5
		WHERE competitor_id = $6 AND status = $7;
	`
	tag, err := s.pool.Exec(ctx, query, research.StatusCompleted, intel, brand, meta, outcome.FinishedAt, competitorID,
		research.StatusProcessing)
	if err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return research.ErrNotFound
	}
	return nil
}

// SetError marks a processing job failed. An error row never carries
// intel; whatever meta the failed run produced is stored as-is.
func (s *Store) SetError(ctx context.Context, competitorID string, errText string, meta *research.RawContentMeta, finishedAt time.Time) error {
	var metaJSON []byte
	if meta != nil {
		var err error
		if metaJSON, err = json.Marshal(meta); err != nil {
			return fmt.Errorf("encode content meta: %w", err)
		}
	}
	query := `
		UPDATE research_jobs
		SET status = $1, error_text = $2, intel = NULL, brand = NULL,
		    raw_content_meta = $3, finished_at = $4, last_researched_at = NULL
		WHERE competitor_id = $5 AND status = $6;
	`
	tag, err := s.pool.Exec(ctx, query, research.StatusError, errText, metaJSON, finishedAt, competitorID,
		research.StatusProcessing)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return research.ErrNotFound
	}
	return nil
}

// GetJob loads the row for one competitor.
func (s *Store) GetJob(ctx context.Context, competitorID string) (research.ResearchJob, error) {
	query := `
		SELECT competitor_id, website, display_name, status, error_text,
		       intel, brand, raw_content_meta,
		       submitted_at, started_at, finished_at, last_researched_at
		FROM research_jobs
		WHERE competitor_id = $1;
	`
	var (
		job       research.ResearchJob
		errText   *string
		intelJSON []byte
		brandJSON []byte
		metaJSON  []byte
	)
	err := s.pool.QueryRow(ctx, query, competitorID).Scan(
		&job.CompetitorID, &job.Website, &job.DisplayName, &job.Status, &errText,
		&intelJSON, &brandJSON, &metaJSON,
		&job.SubmittedAt, &job.StartedAt, &job.FinishedAt, &job.LastResearchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return research.ResearchJob{}, research.ErrNotFound
	}
	if err != nil {
		return research.ResearchJob{}, fmt.Errorf("get job: %w", err)
	}
	if errText != nil {
		job.ErrorText = *errText
	}
	if len(intelJSON) > 0 {
		job.Intel = &research.Intel{}
		if err := json.Unmarshal(intelJSON, job.Intel); err != nil {
			return research.ResearchJob{}, fmt.Errorf("decode intel: %w", err)
		}
	}
	if len(brandJSON) > 0 {
		job.Brand = &research.Brand{}
		if err := json.Unmarshal(brandJSON, job.Brand); err != nil {
			return research.ResearchJob{}, fmt.Errorf("decode brand: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		job.RawContentMeta = &research.RawContentMeta{}
		if err := json.Unmarshal(metaJSON, job.RawContentMeta); err != nil {
			return research.ResearchJob{}, fmt.Errorf("decode content meta: %w", err)
		}
	}
	return job, nil
}

// ReapStale fails processing rows whose start predates the cutoff and
// pending rows submitted before it that never reached a worker, so
// neither a crashed worker nor a lost queue item can wedge a competitor.
func (s *Store) ReapStale(ctx context.Context, cutoff time.Time, finishedAt time.Time) (int, error) {
	query := `
		UPDATE research_jobs
		SET status = $1, error_text = $2, finished_at = $3
		WHERE (status = $4 AND started_at < $5)
		   OR (status = $6 AND submitted_at < $5);
	`
	tag, err := s.pool.Exec(ctx, query,
		research.StatusError, "research timed out", finishedAt,
		research.StatusProcessing, cutoff, research.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
