package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-fare-expander/scoring"
	"gopkg.in/yaml.v3"
)

// Config holds expansion engine configuration.
type Config struct {
	Concurrency         int           `yaml:"concurrency"`
	BatchSize           int           `yaml:"batchSize"`
	BatchCooldown       time.Duration `yaml:"batchCooldown"`
	InterCandidateDelay time.Duration `yaml:"interCandidateDelay"`
	StaggerOffset       time.Duration `yaml:"staggerOffset"`
	JitterMin           time.Duration `yaml:"jitterMin"`
	JitterMax           time.Duration `yaml:"jitterMax"`
	Timeout             time.Duration `yaml:"timeout"`
	RetryBackoff        time.Duration `yaml:"retryBackoff"`
	MinRequestInterval  time.Duration `yaml:"minRequestInterval"`
	BlockedThreshold    int           `yaml:"blockedThreshold"`
	BlockedCooldown     time.Duration `yaml:"blockedCooldown"`

	CalendarURL string `yaml:"calendarURL"`
	SearchURL   string `yaml:"searchURL"`
	Referer     string `yaml:"referer"`
	Language    string `yaml:"language"`
	Country     string `yaml:"country"`
	Currency    string `yaml:"currency"`
	UserAgent   string `yaml:"userAgent"`

	OutputFile    string        `yaml:"outputFile"`
	OutputFormat  string        `yaml:"outputFormat"` // csv, json, or dual
	FlushSize     int           `yaml:"flushSize"`
	DatabaseURL   string        `yaml:"databaseURL"`
	RedisURL      string        `yaml:"redisURL"`
	ClaimTTL      time.Duration `yaml:"claimTTL"`
	DedupeMaxSize int           `yaml:"dedupeMaxSize"`
	MetricsAddr   string        `yaml:"metricsAddr"`
	Schedule      string        `yaml:"schedule"`
	Verbose       bool          `yaml:"verbose"`

	SMTP         SMTPConfig        `yaml:"smtp"`
	Destinations map[string]string `yaml:"destinations"`
	Scoring      scoring.Config    `yaml:"scoring"`
}

// SMTPConfig configures the featured-deal digest.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Enabled reports whether enough is configured to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != "" && len(s.To) > 0
}

// DefaultConfig returns conservative defaults for the calendar endpoint.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:         5,
		BatchSize:           25,
		BatchCooldown:       10 * time.Minute,
		InterCandidateDelay: 3 * time.Second,
		StaggerOffset:       2 * time.Second,
		JitterMin:           500 * time.Millisecond,
		JitterMax:           2 * time.Second,
		Timeout:             30 * time.Second,
		RetryBackoff:        2 * time.Second,
		MinRequestInterval:  250 * time.Millisecond,
		BlockedThreshold:    3,
		BlockedCooldown:     2 * time.Minute,
		CalendarURL:         "https://www.google.com/_/FlightsFrontendUi/data/travel.frontend.flights.FlightsFrontendService/GetCalendarGraph",
		SearchURL:           "https://www.google.com/travel/flights/search",
		Referer:             "https://www.google.com/travel/flights",
		Language:            "en",
		Country:             "us",
		Currency:            "USD",
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
		OutputFile:          "output/deals.csv",
		OutputFormat:        "csv",
		FlushSize:           50,
		ClaimTTL:            24 * time.Hour,
		DedupeMaxSize:       100000,
		SMTP:                SMTPConfig{Port: 587},
		Destinations:        map[string]string{},
		Scoring:             scoring.DefaultConfig(),
	}
}

// Load builds a Config from defaults, an optional YAML file and FARE_* environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FARE_CONFIG")
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	ints := map[string]*int{
		"FARE_CONCURRENCY":       &cfg.Concurrency,
		"FARE_BATCH_SIZE":        &cfg.BatchSize,
		"FARE_BLOCKED_THRESHOLD": &cfg.BlockedThreshold,
		"FARE_FLUSH_SIZE":        &cfg.FlushSize,
		"FARE_DEDUPE_MAX_SIZE":   &cfg.DedupeMaxSize,
		"FARE_SMTP_PORT":         &cfg.SMTP.Port,
		"FARE_MIN_SIMILAR_DATES": &cfg.Scoring.MinSimilarDates,
	}
	for name, dst := range ints {
		value, ok, err := EnvInt(name)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"FARE_BATCH_COOLDOWN":        &cfg.BatchCooldown,
		"FARE_INTER_CANDIDATE_DELAY": &cfg.InterCandidateDelay,
		"FARE_STAGGER_OFFSET":        &cfg.StaggerOffset,
		"FARE_TIMEOUT":               &cfg.Timeout,
		"FARE_RETRY_BACKOFF":         &cfg.RetryBackoff,
		"FARE_MIN_REQUEST_INTERVAL":  &cfg.MinRequestInterval,
		"FARE_BLOCKED_COOLDOWN":      &cfg.BlockedCooldown,
		"FARE_CLAIM_TTL":             &cfg.ClaimTTL,
	}
	for name, dst := range durations {
		value, ok, err := EnvDuration(name)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if ok {
			*dst = value
		}
	}

	strs := map[string]*string{
		"FARE_CALENDAR_URL":  &cfg.CalendarURL,
		"FARE_SEARCH_URL":    &cfg.SearchURL,
		"FARE_LANGUAGE":      &cfg.Language,
		"FARE_COUNTRY":       &cfg.Country,
		"FARE_CURRENCY":      &cfg.Currency,
		"FARE_OUTPUT":        &cfg.OutputFile,
		"FARE_FORMAT":        &cfg.OutputFormat,
		"FARE_DATABASE_URL":  &cfg.DatabaseURL,
		"FARE_REDIS_URL":     &cfg.RedisURL,
		"FARE_METRICS_ADDR":  &cfg.MetricsAddr,
		"FARE_SCHEDULE":      &cfg.Schedule,
		"FARE_SMTP_HOST":     &cfg.SMTP.Host,
		"FARE_SMTP_USERNAME": &cfg.SMTP.Username,
		"FARE_SMTP_PASSWORD": &cfg.SMTP.Password,
		"FARE_SMTP_FROM":     &cfg.SMTP.From,
	}
	for name, dst := range strs {
		if value, ok := EnvString(name); ok {
			*dst = value
		}
	}
	if value, ok := EnvString("FARE_SMTP_TO"); ok {
		cfg.SMTP.To = splitList(value)
	}

	floats := map[string]*float64{
		"FARE_TOLERANCE":        &cfg.Scoring.Tolerance,
		"FARE_MIN_DISCOUNT_PCT": &cfg.Scoring.MinDiscountPct,
	}
	for name, dst := range floats {
		value, ok, err := EnvFloat(name)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.BatchCooldown < 0 {
		return fmt.Errorf("batch cooldown cannot be negative")
	}
	if c.InterCandidateDelay < 0 {
		return fmt.Errorf("inter-candidate delay cannot be negative")
	}
	if c.StaggerOffset < 0 {
		return fmt.Errorf("stagger offset cannot be negative")
	}
	if c.JitterMin < 0 || c.JitterMax < 0 {
		return fmt.Errorf("jitter bounds cannot be negative")
	}
	if c.JitterMax < c.JitterMin {
		return fmt.Errorf("jitter max (%s) cannot be below jitter min (%s)", c.JitterMax, c.JitterMin)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.MinRequestInterval < 0 {
		return fmt.Errorf("min request interval cannot be negative")
	}
	if c.BlockedThreshold < 0 {
		return fmt.Errorf("blocked threshold cannot be negative")
	}
	if c.BlockedCooldown < 0 {
		return fmt.Errorf("blocked cooldown cannot be negative")
	}

	if err := validateURL("calendar URL", c.CalendarURL); err != nil {
		return err
	}
	if err := validateURL("search URL", c.SearchURL); err != nil {
		return err
	}
	if c.Currency == "" || c.Language == "" {
		return fmt.Errorf("language and currency cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.FlushSize <= 0 {
		return fmt.Errorf("flush size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.RedisURL != "" && c.ClaimTTL <= 0 {
		return fmt.Errorf("claim TTL must be positive when redis is configured")
	}

	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
