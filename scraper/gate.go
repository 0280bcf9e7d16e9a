package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGate is shared by every worker of a pool. It spaces window requests and pauses all
// of them once the service has pushed back too many times in a row.
type RateGate struct {
	limiter   *rate.Limiter
	threshold int
	cooldown  time.Duration
	metrics   *Metrics

	mu          sync.Mutex
	consecutive int
	pausedUntil time.Time
	lastRequest time.Time
	cooldowns   int
}

// NewRateGate builds a gate allowing one request per interval. A zero interval disables
// spacing and a zero threshold disables cooldowns.
func NewRateGate(interval time.Duration, threshold int, cooldown time.Duration, metrics *Metrics) *RateGate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateGate{
		limiter:   rate.NewLimiter(limit, 1),
		threshold: threshold,
		cooldown:  cooldown,
		metrics:   metrics,
	}
}

// Wait blocks until a request may be issued or ctx is done.
func (g *RateGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		pause := time.Until(g.pausedUntil)
		g.mu.Unlock()
		if pause <= 0 {
			break
		}
		if err := sleepContext(ctx, pause); err != nil {
			return err
		}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.lastRequest = time.Now()
	g.mu.Unlock()
	return nil
}

// ReportBlocked records a blocked answer and starts a cooldown at the threshold.
func (g *RateGate) ReportBlocked() {
	g.mu.Lock()
	g.consecutive++
	count := g.consecutive
	trip := g.threshold > 0 && count >= g.threshold
	if trip {
		g.consecutive = 0
		g.cooldowns++
		g.pausedUntil = time.Now().Add(g.cooldown)
	}
	g.mu.Unlock()

	if trip {
		g.metrics.IncCooldown()
		slog.Warn("calendar endpoint pushing back, pausing requests",
			slog.Int("consecutive_blocked", count),
			slog.Duration("cooldown", g.cooldown),
		)
	}
}

// ReportSuccess resets the consecutive-blocked counter.
func (g *RateGate) ReportSuccess() {
	g.mu.Lock()
	g.consecutive = 0
	g.mu.Unlock()
}

// Cooldowns returns how many cooldowns were triggered.
func (g *RateGate) Cooldowns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldowns
}

// LastRequest returns when the gate last admitted a request.
func (g *RateGate) LastRequest() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRequest
}

// Paused reports whether a cooldown is in effect.
func (g *RateGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.pausedUntil)
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
