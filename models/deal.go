// Package models defines data structures for the deal expansion engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// DealCandidate is a cheap fare reported by discovery, awaiting expansion.
type DealCandidate struct {
	Origin       string `json:"origin"`
	Destination  string `json:"destination"`
	OutboundDate Date   `json:"outbound_date"`
	ReturnDate   Date   `json:"return_date"`
	Price        int    `json:"price"`
	Region       string `json:"region"`
	// DiscountAmount is the "cheaper than usual" signal from discovery; 0 when unknown.
	DiscountAmount int `json:"discount_amount,omitempty"`
}

// Key identifies a candidate for de-duplication.
func (c DealCandidate) Key() string {
	return strings.ToUpper(c.Origin) + "|" + strings.ToUpper(c.Destination) + "|" +
		c.OutboundDate.String() + "|" + c.ReturnDate.String()
}

// String renders the candidate for logs.
func (c DealCandidate) String() string {
	return fmt.Sprintf("%s->%s %s/%s $%d", c.Origin, c.Destination, c.OutboundDate, c.ReturnDate, c.Price)
}

// RequestWindow is an inclusive date range covered by one calendar request.
type RequestWindow struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Days returns the number of calendar days covered by the window.
func (w RequestWindow) Days() int {
	return int(w.End.Sub(w.Start.Time).Hours()/24) + 1
}

// String renders the window as start..end.
func (w RequestWindow) String() string {
	return w.Start.String() + ".." + w.End.String()
}

// PriceSample is one (outbound, return, price) tuple decoded from a calendar response.
type PriceSample struct {
	Outbound Date `json:"outbound_date"`
	Return   Date `json:"return_date"`
	Price    int  `json:"price"`
}

// Key is the de-duplication key of a sample.
func (s PriceSample) Key() string {
	return s.Outbound.String() + "|" + s.Return.String()
}

// ExpansionStatus classifies how many windows of an expansion decoded.
type ExpansionStatus string

const (
	StatusCompleted       ExpansionStatus = "completed"
	StatusPartiallyFailed ExpansionStatus = "partially_failed"
	StatusFailed          ExpansionStatus = "failed"
)

// WindowOutcome records what happened to one window request.
type WindowOutcome struct {
	Window   RequestWindow `json:"window"`
	Samples  int           `json:"samples"`
	Attempts int           `json:"attempts"`
	Err      error         `json:"-"`
}

// OK reports whether the window decoded.
func (w WindowOutcome) OK() bool { return w.Err == nil }

// ExpansionResult aggregates all windows for one candidate.
type ExpansionResult struct {
	Candidate DealCandidate
	Samples   []PriceSample
	Status    ExpansionStatus
	Windows   []WindowOutcome
	Err       error
	Duration  time.Duration
}

// DealMetrics are the derived discount and flexibility economics of an expansion.
type DealMetrics struct {
	DiscountAmount      int     `json:"discount_amount"`
	EstimatedUsualPrice int     `json:"estimated_usual_price"`
	DiscountPct         float64 `json:"discount_pct"`
	FlexCount           int     `json:"flex_count"`
}

// SimilarDate is a qualifying sample with a link to the matching search.
type SimilarDate struct {
	Outbound Date   `json:"outbound_date"`
	Return   Date   `json:"return_date"`
	Price    int    `json:"price"`
	URL      string `json:"url,omitempty"`
}

// ScoredDeal is the final, immutable evaluation of one candidate.
type ScoredDeal struct {
	DealID         string          `json:"deal_id"`
	Origin         string          `json:"origin"`
	Destination    string          `json:"destination"`
	Region         string          `json:"region"`
	OutboundDate   Date            `json:"outbound_date"`
	ReturnDate     Date            `json:"return_date"`
	ReferencePrice int             `json:"reference_price"`
	Status         ExpansionStatus `json:"status"`
	DealMetrics
	Score         float64       `json:"score"`
	IsValid       bool          `json:"is_valid"`
	IsFeatured    bool          `json:"is_featured"`
	FirstFlexDate Date          `json:"first_flex_date"`
	LastFlexDate  Date          `json:"last_flex_date"`
	SimilarDates  []SimilarDate `json:"similar_dates"`
	Tolerance     float64       `json:"tolerance"`
	ExpandedAt    time.Time     `json:"expanded_at"`
}

// BatchReport summarises one coordinator batch.
type BatchReport struct {
	Index           int           `json:"index"`
	Candidates      int           `json:"candidates"`
	Completed       int           `json:"completed"`
	PartiallyFailed int           `json:"partially_failed"`
	Failed          int           `json:"failed"`
	Valid           int           `json:"valid"`
	Featured        int           `json:"featured"`
	Duration        time.Duration `json:"duration"`
}

// FailedRate is the share of candidates in the batch whose expansion failed outright.
func (b BatchReport) FailedRate() float64 {
	if b.Candidates == 0 {
		return 0
	}
	return float64(b.Failed) / float64(b.Candidates)
}

// Rejection records a candidate that never reached expansion.
type Rejection struct {
	Candidate DealCandidate `json:"candidate"`
	Reason    string        `json:"reason"`
}

// RunReport holds the overall result of a coordinator run.
type RunReport struct {
	StartTime time.Time
	EndTime   time.Time
	Batches   []BatchReport
	Deals     []*ScoredDeal
	Accepted  []*ScoredDeal
	Requeue   []DealCandidate
	Rejected  []Rejection
	Skipped   int
}

// Totals sums the per-batch counters.
func (r *RunReport) Totals() BatchReport {
	var total BatchReport
	for _, b := range r.Batches {
		total.Candidates += b.Candidates
		total.Completed += b.Completed
		total.PartiallyFailed += b.PartiallyFailed
		total.Failed += b.Failed
		total.Valid += b.Valid
		total.Featured += b.Featured
		total.Duration += b.Duration
	}
	total.Index = len(r.Batches)
	return total
}

// RegionBundle groups valid deals from one origin to one region.
type RegionBundle struct {
	Origin string        `json:"origin"`
	Region string        `json:"region"`
	Deals  []*ScoredDeal `json:"deals"`
}
