package scraper

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-fare-expander/config"
	"github.com/aluiziolira/go-fare-expander/wire"
	"github.com/gocolly/colly/v2"
)

// Transport posts one calendar request body and returns the raw response.
type Transport interface {
	PostForm(endpoint, body string) ([]byte, error)
}

// TransportFactory builds the transport owned by one pool worker.
type TransportFactory func(worker int) (Transport, error)

const (
	ctxBody   = "body"
	ctxStatus = "status"
)

// CollyTransport issues calendar requests through a synchronous colly collector.
type CollyTransport struct {
	collector *colly.Collector
	headers   http.Header
}

// NewCollyTransport builds a transport configured from cfg.
func NewCollyTransport(cfg *config.Config) (*CollyTransport, error) {
	parsed, err := url.Parse(cfg.CalendarURL)
	if err != nil {
		return nil, fmt.Errorf("parse calendar url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("calendar url must include a host")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxStatus, r.StatusCode)
		}
	})

	headers := http.Header{}
	headers.Set("Content-Type", wire.CalendarContentType)
	headers.Set("X-Same-Domain", "1")
	if cfg.Referer != "" {
		headers.Set("Referer", cfg.Referer)
	}

	return &CollyTransport{collector: collector, headers: headers}, nil
}

// NewCollyTransportFactory returns a factory that gives every worker its own collector.
func NewCollyTransportFactory(cfg *config.Config) TransportFactory {
	return func(int) (Transport, error) {
		return NewCollyTransport(cfg)
	}
}

// PostForm sends body to endpoint. Failures come back classified as ErrTimeout,
// ErrConnection, ErrForbidden, ErrNotFound, ErrRateLimited or a plain status error.
func (t *CollyTransport) PostForm(endpoint, body string) ([]byte, error) {
	ctx := colly.NewContext()
	err := t.collector.Request(http.MethodPost, endpoint, strings.NewReader(body), ctx, t.headers.Clone())
	if err != nil {
		status, _ := ctx.GetAny(ctxStatus).(int)
		return nil, classifyError(err, status)
	}
	raw, _ := ctx.GetAny(ctxBody).([]byte)
	return raw, nil
}

// CalendarEndpoint appends the locale parameters the calendar RPC expects.
func CalendarEndpoint(cfg *config.Config) string {
	q := url.Values{}
	q.Set("hl", cfg.Language)
	q.Set("gl", cfg.Country)
	q.Set("soc-app", "162")
	q.Set("soc-platform", "1")
	q.Set("soc-device", "1")
	q.Set("rt", "c")
	sep := "?"
	if strings.Contains(cfg.CalendarURL, "?") {
		sep = "&"
	}
	return cfg.CalendarURL + sep + q.Encode()
}
