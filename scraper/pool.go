package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/models"
)

// Stats is a snapshot of pool telemetry.
type Stats struct {
	Expanded        int
	Completed       int
	PartiallyFailed int
	Failed          int
	Discarded       int
	Cooldowns       int
	LastRequest     time.Time
}

// Pool fans candidates out to a fixed number of workers.
type Pool struct {
	cfg          *config.Config
	newTransport TransportFactory
	gate         *RateGate
	Metrics      *Metrics

	mu    sync.Mutex
	stats Stats
}

// NewPool builds a pool whose workers share one gate. A nil gate is built from cfg.
func NewPool(cfg *config.Config, factory TransportFactory, gate *RateGate, metrics *Metrics) *Pool {
	if gate == nil {
		gate = NewRateGate(cfg.MinRequestInterval, cfg.BlockedThreshold, cfg.BlockedCooldown, metrics)
	}
	return &Pool{
		cfg:          cfg,
		newTransport: factory,
		gate:         gate,
		Metrics:      metrics,
	}
}

// Run expands everything received on candidates until it is closed or ctx is done. The
// returned channel is closed once all workers have exited.
func (p *Pool) Run(ctx context.Context, candidates <-chan models.DealCandidate) <-chan models.ExpansionResult {
	workers := p.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	results := make(chan models.ExpansionResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id, candidates, results)
		}(i)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func (p *Pool) worker(ctx context.Context, id int, in <-chan models.DealCandidate, out chan<- models.ExpansionResult) {
	var expander *Expander
	transport, err := p.newTransport(id)
	if err != nil {
		slog.Error("worker transport unavailable", slog.Int("worker", id), slog.Any("error", err))
	} else {
		expander = NewExpander(p.cfg, transport, p.gate, p.Metrics)
	}

	if err := sleepContext(ctx, time.Duration(id)*p.cfg.StaggerOffset); err != nil {
		return
	}

	first := true
	for {
		var c models.DealCandidate
		select {
		case <-ctx.Done():
			return
		case next, ok := <-in:
			if !ok {
				return
			}
			c = next
		}

		if !first {
			if err := sleepContext(ctx, p.cfg.InterCandidateDelay); err != nil {
				p.discard(c)
				return
			}
		}
		first = false

		var res models.ExpansionResult
		if expander == nil {
			res = models.ExpansionResult{
				Candidate: c,
				Samples:   []models.PriceSample{},
				Status:    models.StatusFailed,
				Err:       fmt.Errorf("worker %d transport: %w", id, err),
			}
		} else {
			res = expander.Expand(ctx, c)
		}

		if ctx.Err() != nil {
			p.discard(c)
			return
		}
		p.record(res)

		select {
		case out <- res:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) record(res models.ExpansionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Expanded++
	switch res.Status {
	case models.StatusCompleted:
		p.stats.Completed++
	case models.StatusPartiallyFailed:
		p.stats.PartiallyFailed++
	case models.StatusFailed:
		p.stats.Failed++
	}
}

func (p *Pool) discard(c models.DealCandidate) {
	p.mu.Lock()
	p.stats.Discarded++
	p.mu.Unlock()
	slog.Debug("expansion abandoned", slog.String("candidate", c.String()))
}

// Stats returns a snapshot of pool telemetry.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	p.mu.Unlock()
	s.Cooldowns = p.gate.Cooldowns()
	s.LastRequest = p.gate.LastRequest()
	return s
}
