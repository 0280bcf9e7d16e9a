// Package pipeline drives candidates through expansion, scoring and output in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-fare-expander/cache"
	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/aluiziolira/go-fare-expander/parser"
	"github.com/aluiziolira/go-fare-expander/scoring"
	"github.com/aluiziolira/go-fare-expander/wire"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrInvalidConfig wraps configuration problems found when the coordinator is built.
var ErrInvalidConfig = errors.New("pipeline: invalid configuration")

// highFailureRate is the share of failed expansions in a batch that gets flagged.
const highFailureRate = 0.5

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(deals []*models.ScoredDeal) error
	Close() error
	Validate() error
}

// ExpansionRunner expands a stream of candidates. scraper.Pool satisfies it.
type ExpansionRunner interface {
	Run(ctx context.Context, candidates <-chan models.DealCandidate) <-chan models.ExpansionResult
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithResolver sets the destination resolver.
func WithResolver(r Resolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithClaims sets the cross-run claim store.
func WithClaims(p cache.Provider) Option {
	return func(c *Coordinator) { c.claims = p }
}

// WithClock overrides the time source used to stamp deals.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns batching, cooldowns, scoring and output.
type Coordinator struct {
	cfg      *config.Config
	runner   ExpansionRunner
	writer   OutputWriter
	resolver Resolver
	claims   cache.Provider
	seen     *lru.Cache[string, struct{}]
	links    scoring.Links
	now      func() time.Time
}

// NewCoordinator validates cfg and wires the coordinator.
func NewCoordinator(cfg *config.Config, runner ExpansionRunner, writer OutputWriter, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if runner == nil || writer == nil {
		return nil, fmt.Errorf("%w: runner and writer are required", ErrInvalidConfig)
	}
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("%w: dedupe cache: %w", ErrInvalidConfig, err)
	}

	c := &Coordinator{
		cfg:      cfg,
		runner:   runner,
		writer:   writer,
		resolver: NewStaticResolver(cfg.Destinations),
		claims:   cache.NoopProvider{},
		seen:     seen,
		links: scoring.Links{
			SearchBase: cfg.SearchURL,
			Language:   cfg.Language,
			Currency:   cfg.Currency,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run processes candidates to completion or until ctx is done. Only writer failures
// are returned as errors; everything else lands in the report.
func (c *Coordinator) Run(ctx context.Context, candidates []models.DealCandidate) (*models.RunReport, error) {
	report := &models.RunReport{StartTime: c.now()}
	defer func() { report.EndTime = c.now() }()

	queue := c.admit(ctx, candidates, report)
	slog.Info("candidates admitted",
		slog.Int("received", len(candidates)),
		slog.Int("queued", len(queue)),
		slog.Int("rejected", len(report.Rejected)),
		slog.Int("skipped", report.Skipped),
	)

	for start, index := 0, 0; start < len(queue); start, index = start+c.cfg.BatchSize, index+1 {
		end := min(start+c.cfg.BatchSize, len(queue))
		if index > 0 {
			slog.Info("batch cooldown", slog.Duration("pause", c.cfg.BatchCooldown))
			if err := sleepContext(ctx, c.cfg.BatchCooldown); err != nil {
				c.requeue(report, queue[start:])
				break
			}
		}
		if ctx.Err() != nil {
			c.requeue(report, queue[start:])
			break
		}

		batch, err := c.runBatch(ctx, index, queue[start:end], report)
		report.Batches = append(report.Batches, batch)
		if err != nil {
			c.requeue(report, queue[end:])
			return report, err
		}
	}
	return report, nil
}

func (c *Coordinator) admit(ctx context.Context, candidates []models.DealCandidate, report *models.RunReport) []models.DealCandidate {
	queue := make([]models.DealCandidate, 0, len(candidates))
	for _, cand := range candidates {
		cand.Origin = parser.NormalizeCode(cand.Origin)
		cand.Region = parser.NormalizeRegion(cand.Region)
		if err := parser.ValidateCandidate(cand); err != nil {
			report.Rejected = append(report.Rejected, models.Rejection{Candidate: cand, Reason: err.Error()})
			continue
		}

		code, err := c.resolver.Resolve(cand.Destination)
		if err != nil {
			report.Rejected = append(report.Rejected, models.Rejection{Candidate: cand, Reason: err.Error()})
			continue
		}
		cand.Destination = code

		key := cand.Key()
		if c.seen.Contains(key) {
			report.Skipped++
			continue
		}
		c.seen.Add(key, struct{}{})

		claimed, err := c.claims.SetNX(ctx, claimKey(key), []byte(c.now().UTC().Format(time.RFC3339)), c.cfg.ClaimTTL)
		if err != nil {
			slog.Warn("claim store unavailable, expanding anyway",
				slog.String("candidate", cand.String()),
				slog.Any("error", err),
			)
		} else if !claimed {
			report.Skipped++
			continue
		}
		queue = append(queue, cand)
	}
	return queue
}

func (c *Coordinator) runBatch(ctx context.Context, index int, batch []models.DealCandidate, report *models.RunReport) (models.BatchReport, error) {
	started := time.Now()
	br := models.BatchReport{Index: index, Candidates: len(batch)}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan models.DealCandidate)
	go func() {
		defer close(in)
		for _, cand := range batch {
			select {
			case in <- cand:
			case <-batchCtx.Done():
				return
			}
		}
	}()

	returned := make(map[string]struct{}, len(batch))
	pending := make([]*models.ScoredDeal, 0, c.cfg.FlushSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := c.writer.Write(pending); err != nil {
			return fmt.Errorf("write deals: %w", err)
		}
		pending = pending[:0]
		return nil
	}

	var writeErr error
	for res := range c.runner.Run(batchCtx, in) {
		if writeErr != nil {
			continue
		}
		returned[res.Candidate.Key()] = struct{}{}

		deal := scoring.Evaluate(res, c.cfg.Scoring, c.links, c.now())
		report.Deals = append(report.Deals, deal)

		switch res.Status {
		case models.StatusCompleted:
			br.Completed++
		case models.StatusPartiallyFailed:
			br.PartiallyFailed++
		case models.StatusFailed:
			br.Failed++
			slog.Warn("expansion failed",
				slog.String("candidate", res.Candidate.String()),
				slog.Any("error", res.Err),
			)
		}
		if deal.IsFeatured {
			br.Featured++
		}

		var encErr *wire.EncodeError
		switch {
		case deal.IsValid:
			br.Valid++
			report.Accepted = append(report.Accepted, deal)
			pending = append(pending, deal)
			if len(pending) >= c.cfg.FlushSize {
				if err := flush(); err != nil {
					writeErr = err
					cancel()
				}
			}
		case errors.As(res.Err, &encErr):
			c.reject(report, res.Candidate, encErr)
		case res.Status != models.StatusCompleted:
			c.requeue(report, []models.DealCandidate{res.Candidate})
		}
	}
	if writeErr == nil {
		writeErr = flush()
	}

	var abandoned []models.DealCandidate
	for _, cand := range batch {
		if _, ok := returned[cand.Key()]; !ok {
			abandoned = append(abandoned, cand)
		}
	}
	c.requeue(report, abandoned)

	br.Duration = time.Since(started)
	attrs := []any{
		slog.Int("batch", index),
		slog.Int("candidates", br.Candidates),
		slog.Int("completed", br.Completed),
		slog.Int("partially_failed", br.PartiallyFailed),
		slog.Int("failed", br.Failed),
		slog.Int("valid", br.Valid),
		slog.Int("featured", br.Featured),
		slog.Duration("duration", br.Duration),
	}
	if br.FailedRate() >= highFailureRate {
		slog.Warn("batch mostly failed, endpoint may be blocking", attrs...)
	} else {
		slog.Info("batch complete", attrs...)
	}
	return br, writeErr
}

// requeue records candidates for a later run and releases their claims.
func (c *Coordinator) requeue(report *models.RunReport, candidates []models.DealCandidate) {
	for _, cand := range candidates {
		report.Requeue = append(report.Requeue, cand)
		c.seen.Remove(cand.Key())
		// The run context may already be cancelled here.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.claims.Del(releaseCtx, claimKey(cand.Key())); err != nil {
			slog.Warn("release claim", slog.String("candidate", cand.String()), slog.Any("error", err))
		}
		cancel()
	}
}

// reject records a candidate that can never be expanded. It stays in the dedup cache so the
// same run does not try it again, but its claim is released.
func (c *Coordinator) reject(report *models.RunReport, cand models.DealCandidate, err error) {
	report.Rejected = append(report.Rejected, models.Rejection{Candidate: cand, Reason: err.Error()})
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.claims.Del(releaseCtx, claimKey(cand.Key())); err != nil {
		slog.Warn("release claim", slog.String("candidate", cand.String()), slog.Any("error", err))
	}
}

func claimKey(candidateKey string) string {
	return "claim:" + candidateKey
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
