// Package scraper expands deal candidates into price samples across the booking horizon.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/aluiziolira/go-fare-expander/parser"
	"github.com/aluiziolira/go-fare-expander/window"
	"github.com/aluiziolira/go-fare-expander/wire"
)

// Expander runs the window requests of one candidate at a time.
type Expander struct {
	transport Transport
	gate      *RateGate
	metrics   *Metrics
	endpoint  string

	jitterMin    time.Duration
	jitterMax    time.Duration
	retryBackoff time.Duration

	clock func() time.Time
}

// NewExpander builds an expander that sends through transport. gate may be shared.
func NewExpander(cfg *config.Config, transport Transport, gate *RateGate, metrics *Metrics) *Expander {
	if gate == nil {
		gate = NewRateGate(0, 0, 0, metrics)
	}
	return &Expander{
		transport:    transport,
		gate:         gate,
		metrics:      metrics,
		endpoint:     CalendarEndpoint(cfg),
		jitterMin:    cfg.JitterMin,
		jitterMax:    cfg.JitterMax,
		retryBackoff: cfg.RetryBackoff,
		clock:        time.Now,
	}
}

// Expand queries every window for c and merges what decoded. The result is never dropped:
// encode failures and all-window failures come back with StatusFailed and Err set.
func (e *Expander) Expand(ctx context.Context, c models.DealCandidate) models.ExpansionResult {
	start := time.Now()
	result := models.ExpansionResult{Candidate: c}

	windows := window.Plan(models.DateOf(e.clock()))
	bodies := make([]string, len(windows))
	for i, w := range windows {
		body, err := wire.EncodeCalendarRequest(c.Origin, c.Destination, c.OutboundDate, c.ReturnDate, w)
		if err != nil {
			result.Status = models.StatusFailed
			result.Err = fmt.Errorf("encode %s: %w", c, err)
			result.Samples = []models.PriceSample{}
			result.Duration = time.Since(start)
			e.metrics.IncExpansion(string(result.Status))
			return result
		}
		bodies[i] = body
	}

	delays := window.Jitter(len(windows), e.jitterMin, e.jitterMax, nil)
	outcomes := make([]models.WindowOutcome, len(windows))
	samples := make([][]models.PriceSample, len(windows))

	var wg sync.WaitGroup
	for i := range windows {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			samples[i], outcomes[i] = e.fetchWindow(ctx, windows[i], bodies[i], delays[i])
		}(i)
	}
	wg.Wait()

	var errs []error
	for _, o := range outcomes {
		if !o.OK() {
			errs = append(errs, o.Err)
		}
	}

	result.Windows = outcomes
	result.Samples = MergeSamples(samples...)
	switch {
	case len(errs) == len(windows):
		result.Status = models.StatusFailed
		result.Err = &ExpansionFailedError{Candidate: c, Errs: errs}
	case len(errs) > 0:
		result.Status = models.StatusPartiallyFailed
	default:
		result.Status = models.StatusCompleted
	}
	result.Duration = time.Since(start)
	e.metrics.IncExpansion(string(result.Status))

	slog.Debug("candidate expanded",
		slog.String("candidate", c.String()),
		slog.String("status", string(result.Status)),
		slog.Int("samples", len(result.Samples)),
		slog.Int("failed_windows", len(errs)),
		slog.Duration("duration", result.Duration),
	)
	return result
}

func (e *Expander) fetchWindow(ctx context.Context, w models.RequestWindow, body string, delay time.Duration) ([]models.PriceSample, models.WindowOutcome) {
	outcome := models.WindowOutcome{Window: w}
	if err := sleepContext(ctx, delay); err != nil {
		outcome.Err = fmt.Errorf("window %s not issued: %w", w, err)
		return nil, outcome
	}

	for {
		if err := e.gate.Wait(ctx); err != nil {
			outcome.Err = fmt.Errorf("window %s not issued: %w", w, err)
			return nil, outcome
		}
		outcome.Attempts++

		samples, err := e.requestWindow(body)
		if err == nil {
			e.gate.ReportSuccess()
			outcome.Samples = len(samples)
			return samples, outcome
		}

		if isBlocked(err) {
			e.gate.ReportBlocked()
		}
		if outcome.Attempts == 1 && isTransient(err) {
			e.metrics.IncRetries()
			slog.Debug("retrying window",
				slog.String("window", w.String()),
				slog.Any("error", err),
			)
			if serr := sleepContext(ctx, e.retryBackoff); serr == nil {
				continue
			}
		}

		var decodeErr *parser.DecodeError
		if errors.As(err, &decodeErr) {
			slog.Warn("calendar window rejected",
				slog.String("window", w.String()),
				slog.String("kind", errorTypeLabel(err)),
				slog.String("snippet", decodeErr.Snippet),
			)
		}
		outcome.Err = fmt.Errorf("window %s: %w", w, err)
		return nil, outcome
	}
}

func (e *Expander) requestWindow(body string) ([]models.PriceSample, error) {
	start := time.Now()
	raw, err := e.transport.PostForm(e.endpoint, body)
	e.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		label := errorTypeLabel(err)
		e.metrics.IncRequest(label)
		e.metrics.IncError(label)
		return nil, err
	}

	samples, err := parser.DecodeCalendarResponse(raw)
	if err != nil {
		label := errorTypeLabel(err)
		e.metrics.IncRequest(label)
		e.metrics.IncError(label)
		return nil, err
	}
	e.metrics.IncRequest("ok")
	e.metrics.AddSamples(len(samples))
	return samples, nil
}

// MergeSamples de-duplicates samples by date pair keeping the lowest price, ordered by
// outbound then return date.
func MergeSamples(sets ...[]models.PriceSample) []models.PriceSample {
	best := make(map[string]models.PriceSample)
	for _, set := range sets {
		for _, s := range set {
			if cur, ok := best[s.Key()]; !ok || s.Price < cur.Price {
				best[s.Key()] = s
			}
		}
	}

	merged := make([]models.PriceSample, 0, len(best))
	for _, s := range best {
		merged = append(merged, s)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Outbound.Equal(merged[j].Outbound) {
			return merged[i].Outbound.Before(merged[j].Outbound)
		}
		return merged[i].Return.Before(merged[j].Return)
	})
	return merged
}
