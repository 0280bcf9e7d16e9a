package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/models"
	"github.com/aluiziolira/go-fare-expander/parser"
	"github.com/aluiziolira/go-fare-expander/window"
	"github.com/aluiziolira/go-fare-expander/wire"
	"github.com/jarcoal/httpmock"
)

var today = time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 2
	cfg.JitterMin = 0
	cfg.JitterMax = 0
	cfg.RetryBackoff = 0
	cfg.StaggerOffset = 0
	cfg.InterCandidateDelay = 0
	cfg.MinRequestInterval = 0
	cfg.BlockedThreshold = 0
	return cfg
}

func candidate() models.DealCandidate {
	return models.DealCandidate{
		Origin:       "ATL",
		Destination:  "SJU",
		OutboundDate: models.MustParseDate("2026-02-10"),
		ReturnDate:   models.MustParseDate("2026-02-17"),
		Price:        195,
		Region:       "caribbean",
	}
}

func calendarBody(samples ...models.PriceSample) []byte {
	parts := make([]string, 0, len(samples))
	for _, s := range samples {
		parts = append(parts, fmt.Sprintf(`["%s","%s",[[null,%d],"CjRIb2"]]`, s.Outbound, s.Return, s.Price))
	}
	payload := strings.ReplaceAll("[null,["+strings.Join(parts, ",")+"]]", `"`, `\"`)
	return []byte(parser.AntiHijackPrefix + "\n" + `[["wrb.fr",null,"` + payload + `",null,null,null,"generic"]]`)
}

var blockedBody = []byte(parser.AntiHijackPrefix + "\n" + `[["er",null,null,null,null,400,null,null,null,3]]`)

func sample(out, ret string, price int) models.PriceSample {
	return models.PriceSample{Outbound: models.MustParseDate(out), Return: models.MustParseDate(ret), Price: price}
}

// scriptedTransport answers per window, identified by the window start date in the body.
type scriptedTransport struct {
	mu      sync.Mutex
	starts  []string
	calls   map[int]int
	respond func(window, call int) ([]byte, error)
}

func newScriptedTransport(respond func(window, call int) ([]byte, error)) *scriptedTransport {
	windows := window.Plan(models.DateOf(today))
	starts := make([]string, len(windows))
	for i, w := range windows {
		starts[i] = w.Start.String()
	}
	return &scriptedTransport{starts: starts, calls: make(map[int]int), respond: respond}
}

func (st *scriptedTransport) PostForm(endpoint, body string) ([]byte, error) {
	idx := -1
	for i, s := range st.starts {
		if strings.Contains(body, s) {
			idx = i
			break
		}
	}
	st.mu.Lock()
	st.calls[idx]++
	call := st.calls[idx]
	st.mu.Unlock()
	return st.respond(idx, call)
}

func (st *scriptedTransport) total() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, c := range st.calls {
		n += c
	}
	return n
}

func newTestExpander(cfg *config.Config, tr Transport) *Expander {
	e := NewExpander(cfg, tr, NewRateGate(0, 0, 0, nil), NewMetrics())
	e.clock = func() time.Time { return today }
	return e
}

func TestMergeSamplesKeepsLowestPrice(t *testing.T) {
	merged := MergeSamples(
		[]models.PriceSample{sample("2026-03-02", "2026-03-09", 310), sample("2026-03-01", "2026-03-08", 250)},
		[]models.PriceSample{sample("2026-03-02", "2026-03-09", 295)},
		nil,
	)
	if len(merged) != 2 {
		t.Fatalf("merged=%d, want 2", len(merged))
	}
	if merged[0].Outbound.String() != "2026-03-01" {
		t.Fatalf("expected samples ordered by outbound, got %+v", merged)
	}
	if merged[1].Price != 295 {
		t.Fatalf("price=%d, want 295", merged[1].Price)
	}
	if empty := MergeSamples(); empty == nil {
		t.Fatalf("expected non-nil empty merge")
	}
}

func TestExpandCompletedMergesWindows(t *testing.T) {
	tr := newScriptedTransport(func(w, call int) ([]byte, error) {
		switch w {
		case 0:
			return calendarBody(sample("2026-03-02", "2026-03-09", 310), sample("2026-02-11", "2026-02-18", 180)), nil
		case 1:
			return calendarBody(sample("2026-03-02", "2026-03-09", 295)), nil
		default:
			return calendarBody(), nil
		}
	})

	res := newTestExpander(testConfig(), tr).Expand(context.Background(), candidate())
	if res.Status != models.StatusCompleted || res.Err != nil {
		t.Fatalf("status=%s err=%v, want completed", res.Status, res.Err)
	}
	if len(res.Samples) != 2 || res.Samples[1].Price != 295 {
		t.Fatalf("unexpected samples %+v", res.Samples)
	}
	if len(res.Windows) != window.Count {
		t.Fatalf("windows=%d, want %d", len(res.Windows), window.Count)
	}
	if got := tr.total(); got != window.Count {
		t.Fatalf("requests=%d, want %d", got, window.Count)
	}
}

func TestExpandAllBlockedFails(t *testing.T) {
	tr := newScriptedTransport(func(int, int) ([]byte, error) { return blockedBody, nil })

	res := newTestExpander(testConfig(), tr).Expand(context.Background(), candidate())
	if res.Status != models.StatusFailed {
		t.Fatalf("status=%s, want failed", res.Status)
	}
	var failed *ExpansionFailedError
	if !errors.As(res.Err, &failed) || len(failed.Errs) != window.Count {
		t.Fatalf("expected ExpansionFailedError with %d errors, got %v", window.Count, res.Err)
	}
	if !errors.Is(res.Err, parser.ErrBlocked) {
		t.Fatalf("expected blocked cause, got %v", res.Err)
	}
	if len(res.Samples) != 0 {
		t.Fatalf("failed expansion should carry no samples")
	}
}

func TestExpandPartiallyFailed(t *testing.T) {
	tr := newScriptedTransport(func(w, call int) ([]byte, error) {
		if w == 2 {
			return blockedBody, nil
		}
		return calendarBody(), nil
	})

	res := newTestExpander(testConfig(), tr).Expand(context.Background(), candidate())
	if res.Status != models.StatusPartiallyFailed {
		t.Fatalf("status=%s, want partially_failed", res.Status)
	}
	if res.Err != nil {
		t.Fatalf("partial expansion should not carry an error, got %v", res.Err)
	}
	if res.Samples == nil || len(res.Samples) != 0 {
		t.Fatalf("samples=%#v, want empty", res.Samples)
	}
	if res.Windows[2].OK() || !res.Windows[0].OK() {
		t.Fatalf("unexpected window outcomes %+v", res.Windows)
	}
}

func TestExpandRetriesTransientOnce(t *testing.T) {
	tr := newScriptedTransport(func(w, call int) ([]byte, error) {
		if w == 0 && call == 1 {
			return nil, ErrTimeout{Err: context.DeadlineExceeded}
		}
		if w == 1 {
			return nil, ErrConnection{Err: errors.New("reset")}
		}
		if w == 3 {
			return nil, ErrForbidden{Err: errors.New("Forbidden")}
		}
		return calendarBody(sample("2026-04-10", "2026-04-17", 199)), nil
	})

	res := newTestExpander(testConfig(), tr).Expand(context.Background(), candidate())
	if res.Status != models.StatusPartiallyFailed {
		t.Fatalf("status=%s, want partially_failed", res.Status)
	}
	attempts := []int{2, 2, 1, 1}
	for i, want := range attempts {
		if got := res.Windows[i].Attempts; got != want {
			t.Fatalf("window %d attempts=%d, want %d", i, got, want)
		}
	}
	if !res.Windows[0].OK() || res.Windows[1].OK() || res.Windows[3].OK() {
		t.Fatalf("unexpected outcomes %+v", res.Windows)
	}
}

func TestExpandRetriesUnparseableOnce(t *testing.T) {
	tr := newScriptedTransport(func(w, call int) ([]byte, error) {
		switch {
		case w == 0 && call == 1:
			return []byte(parser.AntiHijackPrefix + "\n" + `[[12,`), nil
		case w == 1:
			return []byte(parser.AntiHijackPrefix + "\n" + `{"status":"ok"}`), nil
		default:
			return calendarBody(sample("2026-04-10", "2026-04-17", 199)), nil
		}
	})

	res := newTestExpander(testConfig(), tr).Expand(context.Background(), candidate())
	if res.Status != models.StatusPartiallyFailed {
		t.Fatalf("status=%s, want partially_failed", res.Status)
	}
	if !res.Windows[0].OK() || res.Windows[0].Attempts != 2 {
		t.Fatalf("window 0 = %+v, want success on the second attempt", res.Windows[0])
	}
	if res.Windows[1].OK() || res.Windows[1].Attempts != 2 || !errors.Is(res.Windows[1].Err, parser.ErrUnparseable) {
		t.Fatalf("window 1 = %+v, want unparseable after two attempts", res.Windows[1])
	}
	if res.Windows[2].Attempts != 1 {
		t.Fatalf("decoded windows should not retry, got %d attempts", res.Windows[2].Attempts)
	}
}

func TestExpandEncodeErrorFailsCandidate(t *testing.T) {
	tr := newScriptedTransport(func(int, int) ([]byte, error) { return calendarBody(), nil })
	c := candidate()
	c.Origin = "Atlanta"

	res := newTestExpander(testConfig(), tr).Expand(context.Background(), c)
	var encErr *wire.EncodeError
	if res.Status != models.StatusFailed || !errors.As(res.Err, &encErr) {
		t.Fatalf("expected failed with EncodeError, got %s %v", res.Status, res.Err)
	}
	if tr.total() != 0 {
		t.Fatalf("no request should be issued for an invalid candidate")
	}
}

func TestExpandCancelledSkipsWindows(t *testing.T) {
	tr := newScriptedTransport(func(int, int) ([]byte, error) { return calendarBody(), nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestExpander(testConfig(), tr).Expand(ctx, candidate())
	if res.Status != models.StatusFailed {
		t.Fatalf("status=%s, want failed", res.Status)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected cancellation cause, got %v", res.Err)
	}
	if tr.total() != 0 {
		t.Fatalf("requests=%d, want 0", tr.total())
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestTransientAndBlocked(t *testing.T) {
	blocked := &parser.DecodeError{Kind: parser.ErrBlocked}
	if !isBlocked(fmt.Errorf("window: %w", blocked)) || isTransient(blocked) {
		t.Fatalf("blocked decode error misclassified")
	}
	if !isTransient(ErrTimeout{Err: context.DeadlineExceeded}) || !isTransient(ErrConnection{Err: io.EOF}) {
		t.Fatalf("timeout and connection errors should be transient")
	}
	if !isTransient(&parser.DecodeError{Kind: parser.ErrUnparseable}) {
		t.Fatalf("unparseable responses should be retried")
	}
	if isTransient(ErrRateLimited{Err: io.EOF}) || !isBlocked(ErrRateLimited{Err: io.EOF}) {
		t.Fatalf("rate limiting should block without retry")
	}
}

func TestCollyTransportStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			cfg.CalendarURL = "http://example.test/calendar"

			mock := httpmock.NewMockTransport()
			mock.RegisterResponder("POST", cfg.CalendarURL, httpmock.NewStringResponder(tt.status, ""))

			tr, err := NewCollyTransport(cfg)
			if err != nil {
				t.Fatalf("new transport: %v", err)
			}
			tr.collector.WithTransport(mock)

			_, err = tr.PostForm(cfg.CalendarURL, "f.req=x&")
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("status %d classified as %q, want %q (err=%v)", tt.status, got, tt.expected, err)
			}
		})
	}
}

func TestCollyTransportPostsCalendarForm(t *testing.T) {
	cfg := testConfig()
	cfg.CalendarURL = "http://example.test/calendar"

	want := calendarBody(sample("2026-03-02", "2026-03-09", 295))
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", cfg.CalendarURL, func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Content-Type"); got != wire.CalendarContentType {
			return httpmock.NewStringResponse(http.StatusBadRequest, "content type "+got), nil
		}
		if req.Header.Get("X-Same-Domain") != "1" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "missing x-same-domain"), nil
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.HasPrefix(string(body), "f.req=") {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad body"), nil
		}
		return httpmock.NewBytesResponse(http.StatusOK, want), nil
	})

	tr, err := NewCollyTransport(cfg)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	tr.collector.WithTransport(mock)

	c := candidate()
	body, err := wire.EncodeCalendarRequest(c.Origin, c.Destination, c.OutboundDate, c.ReturnDate, window.Plan(models.DateOf(today))[0])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 2; i++ {
		raw, err := tr.PostForm(cfg.CalendarURL, body)
		if err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
		samples, err := parser.DecodeCalendarResponse(raw)
		if err != nil || len(samples) != 1 || samples[0].Price != 295 {
			t.Fatalf("decode post %d: %v %+v", i, err, samples)
		}
	}
	if got := mock.GetTotalCallCount(); got != 2 {
		t.Fatalf("calls=%d, want 2 (revisits must be allowed)", got)
	}
}

func TestCalendarEndpointCarriesLocale(t *testing.T) {
	cfg := testConfig()
	endpoint := CalendarEndpoint(cfg)
	for _, want := range []string{"hl=en", "gl=us", "rt=c"} {
		if !strings.Contains(endpoint, want) {
			t.Fatalf("endpoint %q missing %q", endpoint, want)
		}
	}
	if !strings.HasPrefix(endpoint, cfg.CalendarURL+"?") {
		t.Fatalf("endpoint %q should extend the calendar url", endpoint)
	}
}

func TestPoolRunDeliversEveryCandidate(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 3

	var mu sync.Mutex
	built := 0
	factory := func(int) (Transport, error) {
		mu.Lock()
		built++
		mu.Unlock()
		return newScriptedTransport(func(w, call int) ([]byte, error) {
			if w == 0 {
				return calendarBody(sample("2026-01-20", "2026-01-27", 150)), nil
			}
			return calendarBody(), nil
		}), nil
	}

	pool := NewPool(cfg, factory, NewRateGate(0, 0, 0, nil), NewMetrics())
	in := make(chan models.DealCandidate)
	results := pool.Run(context.Background(), in)

	go func() {
		defer close(in)
		for i := 0; i < 7; i++ {
			c := candidate()
			c.OutboundDate = c.OutboundDate.AddDays(i)
			c.ReturnDate = c.ReturnDate.AddDays(i)
			if i == 3 {
				c.Destination = "bad"
			}
			in <- c
		}
	}()

	got := 0
	failed := 0
	for res := range results {
		got++
		if res.Status == models.StatusFailed {
			failed++
		}
	}
	if got != 7 {
		t.Fatalf("results=%d, want 7", got)
	}
	if failed != 1 {
		t.Fatalf("failed=%d, want 1", failed)
	}
	if built != 3 {
		t.Fatalf("transports built=%d, want one per worker", built)
	}
	stats := pool.Stats()
	if stats.Expanded != 7 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPoolTransportErrorYieldsFailedResults(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	factory := func(int) (Transport, error) { return nil, errors.New("no proxy") }

	pool := NewPool(cfg, factory, nil, nil)
	in := make(chan models.DealCandidate, 2)
	in <- candidate()
	in <- candidate()
	close(in)

	n := 0
	for res := range pool.Run(context.Background(), in) {
		n++
		if res.Status != models.StatusFailed || res.Err == nil {
			t.Fatalf("expected failed result, got %s %v", res.Status, res.Err)
		}
	}
	if n != 2 {
		t.Fatalf("results=%d, want 2", n)
	}
}

func TestPoolCancelStopsWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	cfg.StaggerOffset = time.Hour

	pool := NewPool(cfg, func(int) (Transport, error) {
		return newScriptedTransport(func(int, int) ([]byte, error) { return calendarBody(), nil }), nil
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan models.DealCandidate, 4)
	for i := 0; i < 4; i++ {
		in <- candidate()
	}
	results := pool.Run(ctx, in)
	cancel()

	done := make(chan int)
	go func() {
		n := 0
		for range results {
			n++
		}
		done <- n
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("pool did not stop after cancellation")
	}
}

// requestLog records when each worker sent a request for a given outbound date.
type requestLog struct {
	mu      sync.Mutex
	entries []loggedRequest
}

type loggedRequest struct {
	worker   int
	outbound string
	at       time.Time
}

type loggingTransport struct {
	worker   int
	log      *requestLog
	outbound []string
}

func (lt *loggingTransport) PostForm(_, body string) ([]byte, error) {
	entry := loggedRequest{worker: lt.worker, at: time.Now()}
	for _, o := range lt.outbound {
		if strings.Contains(body, o) {
			entry.outbound = o
			break
		}
	}
	lt.log.mu.Lock()
	lt.log.entries = append(lt.log.entries, entry)
	lt.log.mu.Unlock()
	return calendarBody(), nil
}

func (rl *requestLog) byWorker() map[int][]loggedRequest {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := make(map[int][]loggedRequest)
	for _, e := range rl.entries {
		out[e.worker] = append(out[e.worker], e)
	}
	return out
}

func TestPoolStaggersWorkersAndSpacesCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	cfg.StaggerOffset = 60 * time.Millisecond
	cfg.InterCandidateDelay = 120 * time.Millisecond

	outbound := []string{"2030-03-01", "2030-03-02", "2030-03-03"}
	log := &requestLog{}
	pool := NewPool(cfg, func(worker int) (Transport, error) {
		return &loggingTransport{worker: worker, log: log, outbound: outbound}, nil
	}, nil, nil)

	in := make(chan models.DealCandidate, len(outbound))
	for _, o := range outbound {
		c := candidate()
		c.OutboundDate = models.MustParseDate(o)
		c.ReturnDate = c.OutboundDate.AddDays(7)
		in <- c
	}
	close(in)

	start := time.Now()
	n := 0
	for range pool.Run(context.Background(), in) {
		n++
	}
	if n != len(outbound) {
		t.Fatalf("results=%d, want %d", n, len(outbound))
	}

	workers := log.byWorker()
	if len(workers[0]) == 0 || len(workers[1]) == 0 {
		t.Fatalf("both workers should have sent requests, got %d and %d", len(workers[0]), len(workers[1]))
	}
	first0, first1 := workers[0][0].at, workers[1][0].at
	if first1.Sub(start) < cfg.StaggerOffset {
		t.Fatalf("worker 1 started %v after the pool, want at least %v", first1.Sub(start), cfg.StaggerOffset)
	}
	if !first1.After(first0) {
		t.Fatalf("worker 1 should start after worker 0")
	}

	checked := false
	for id, reqs := range workers {
		for i := 1; i < len(reqs); i++ {
			if reqs[i].outbound == reqs[i-1].outbound {
				continue
			}
			var lastPrev time.Time
			for _, r := range reqs[:i] {
				if r.outbound == reqs[i-1].outbound && r.at.After(lastPrev) {
					lastPrev = r.at
				}
			}
			if gap := reqs[i].at.Sub(lastPrev); gap < cfg.InterCandidateDelay {
				t.Fatalf("worker %d moved to the next candidate after %v, want at least %v", id, gap, cfg.InterCandidateDelay)
			}
			checked = true
		}
	}
	if !checked {
		t.Fatalf("expected one worker to handle two candidates")
	}
}

func TestExpandJittersAllButFirstWindow(t *testing.T) {
	cfg := testConfig()
	cfg.JitterMin = 40 * time.Millisecond
	cfg.JitterMax = 60 * time.Millisecond

	var mu sync.Mutex
	sentAt := make(map[int]time.Time)
	tr := newScriptedTransport(func(w, call int) ([]byte, error) {
		mu.Lock()
		sentAt[w] = time.Now()
		mu.Unlock()
		return calendarBody(), nil
	})

	start := time.Now()
	res := newTestExpander(cfg, tr).Expand(context.Background(), candidate())
	if res.Status != models.StatusCompleted {
		t.Fatalf("status=%s, want completed", res.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sentAt) != window.Count {
		t.Fatalf("windows sent=%d, want %d", len(sentAt), window.Count)
	}
	if d := sentAt[0].Sub(start); d >= cfg.JitterMin {
		t.Fatalf("first window waited %v, want it sent immediately", d)
	}
	for w := 1; w < window.Count; w++ {
		if d := sentAt[w].Sub(start); d < cfg.JitterMin {
			t.Fatalf("window %d sent after %v, want at least %v", w, d, cfg.JitterMin)
		}
	}
}

func TestRateGateCooldown(t *testing.T) {
	gate := NewRateGate(0, 2, 50*time.Millisecond, NewMetrics())

	gate.ReportBlocked()
	gate.ReportSuccess()
	gate.ReportBlocked()
	if gate.Paused() {
		t.Fatalf("success should reset the consecutive counter")
	}
	gate.ReportBlocked()
	if !gate.Paused() || gate.Cooldowns() != 1 {
		t.Fatalf("expected cooldown after threshold, paused=%v cooldowns=%d", gate.Paused(), gate.Cooldowns())
	}

	start := time.Now()
	if err := gate.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("wait returned after %v, expected to honour the cooldown", elapsed)
	}
	if gate.LastRequest().IsZero() {
		t.Fatalf("last request should be recorded")
	}
}

func TestRateGateWaitHonoursContext(t *testing.T) {
	gate := NewRateGate(0, 1, time.Hour, nil)
	gate.ReportBlocked()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := gate.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
