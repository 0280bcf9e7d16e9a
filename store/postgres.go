// Package store persists scored deals to PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	deal_id               TEXT PRIMARY KEY,
	origin                TEXT NOT NULL,
	destination           TEXT NOT NULL,
	region                TEXT NOT NULL,
	outbound_date         DATE NOT NULL,
	return_date           DATE NOT NULL,
	reference_price       INTEGER NOT NULL,
	status                TEXT NOT NULL,
	discount_amount       INTEGER NOT NULL,
	estimated_usual_price INTEGER NOT NULL,
	discount_pct          DOUBLE PRECISION NOT NULL,
	flex_count            INTEGER NOT NULL,
	score                 DOUBLE PRECISION NOT NULL,
	is_valid              BOOLEAN NOT NULL,
	is_featured           BOOLEAN NOT NULL,
	first_flex_date       DATE NOT NULL,
	last_flex_date        DATE NOT NULL,
	similar_dates         JSONB NOT NULL,
	tolerance             DOUBLE PRECISION NOT NULL,
	expanded_at           TIMESTAMPTZ NOT NULL
)`

const upsertDeal = `
INSERT INTO deals
	(deal_id, origin, destination, region, outbound_date, return_date, reference_price, status,
	 discount_amount, estimated_usual_price, discount_pct, flex_count, score, is_valid, is_featured,
	 first_flex_date, last_flex_date, similar_dates, tolerance, expanded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (deal_id) DO UPDATE SET
	reference_price       = EXCLUDED.reference_price,
	status                = EXCLUDED.status,
	discount_amount       = EXCLUDED.discount_amount,
	estimated_usual_price = EXCLUDED.estimated_usual_price,
	discount_pct          = EXCLUDED.discount_pct,
	flex_count            = EXCLUDED.flex_count,
	score                 = EXCLUDED.score,
	is_valid              = EXCLUDED.is_valid,
	is_featured           = EXCLUDED.is_featured,
	first_flex_date       = EXCLUDED.first_flex_date,
	last_flex_date        = EXCLUDED.last_flex_date,
	similar_dates         = EXCLUDED.similar_dates,
	tolerance             = EXCLUDED.tolerance,
	expanded_at           = EXCLUDED.expanded_at`

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore upserts deals keyed by deal_id. It satisfies pipeline.OutputWriter.
type PostgresStore struct {
	pool    Pool
	timeout time.Duration
	written int
}

// NewPostgresStore wraps pool. Each Write runs under its own timeout.
func NewPostgresStore(pool Pool, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PostgresStore{pool: pool, timeout: timeout}
}

// EnsureSchema creates the deals table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create deals table: %w", err)
	}
	return nil
}

// Write upserts deals in a single batch.
func (s *PostgresStore) Write(deals []*models.ScoredDeal) error {
	if len(deals) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	b := &pgx.Batch{}
	count := 0
	for _, deal := range deals {
		args, err := dealArgs(deal)
		if err != nil {
			return err
		}
		b.Queue(upsertDeal, args...)
		count++
	}

	br := s.pool.SendBatch(ctx, b)
	for k := 0; k < count; k++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert deal %s: %w", deals[k].DealID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	s.written += count
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Validate checks the database is still reachable.
func (s *PostgresStore) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Written returns how many deals were upserted.
func (s *PostgresStore) Written() int {
	return s.written
}

func dealArgs(d *models.ScoredDeal) ([]any, error) {
	similar, err := json.Marshal(d.SimilarDates)
	if err != nil {
		return nil, fmt.Errorf("encode similar dates for %s: %w", d.DealID, err)
	}
	return []any{
		d.DealID,
		d.Origin,
		d.Destination,
		d.Region,
		d.OutboundDate.Time,
		d.ReturnDate.Time,
		d.ReferencePrice,
		string(d.Status),
		d.DiscountAmount,
		d.EstimatedUsualPrice,
		d.DiscountPct,
		d.FlexCount,
		d.Score,
		d.IsValid,
		d.IsFeatured,
		d.FirstFlexDate.Time,
		d.LastFlexDate.Time,
		similar,
		d.Tolerance,
		d.ExpandedAt,
	}, nil
}
