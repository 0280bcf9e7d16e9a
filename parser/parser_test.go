package parser

import (
	"testing"

	"github.com/aluiziolira/go-fare-expander/models"
)

func TestValidateCandidate(t *testing.T) {
	valid := models.DealCandidate{
		Origin:       "ATL",
		Destination:  "SJU",
		OutboundDate: models.MustParseDate("2026-01-11"),
		ReturnDate:   models.MustParseDate("2026-01-20"),
		Price:        195,
		Region:       "caribbean",
	}

	tests := []struct {
		name    string
		mutate  func(*models.DealCandidate)
		wantErr bool
	}{
		{
			name:    "valid candidate",
			mutate:  func(*models.DealCandidate) {},
			wantErr: false,
		},
		{
			name:    "missing origin",
			mutate:  func(c *models.DealCandidate) { c.Origin = " " },
			wantErr: true,
		},
		{
			name:    "four letter origin",
			mutate:  func(c *models.DealCandidate) { c.Origin = "ATLX" },
			wantErr: true,
		},
		{
			name:    "lower case origin",
			mutate:  func(c *models.DealCandidate) { c.Origin = "atl" },
			wantErr: true,
		},
		{
			name:    "city destination",
			mutate:  func(c *models.DealCandidate) { c.Destination = "San Juan" },
			wantErr: false,
		},
		{
			name:    "missing destination",
			mutate:  func(c *models.DealCandidate) { c.Destination = "" },
			wantErr: true,
		},
		{
			name:    "zero price",
			mutate:  func(c *models.DealCandidate) { c.Price = 0 },
			wantErr: true,
		},
		{
			name:    "same day return",
			mutate:  func(c *models.DealCandidate) { c.ReturnDate = c.OutboundDate },
			wantErr: true,
		},
		{
			name:    "missing dates",
			mutate:  func(c *models.DealCandidate) { c.OutboundDate = models.Date{} },
			wantErr: true,
		},
		{
			name:    "negative discount",
			mutate:  func(c *models.DealCandidate) { c.DiscountAmount = -5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := ValidateCandidate(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCandidate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercase", input: "atl", expected: "ATL"},
		{name: "with whitespace", input: "  sju ", expected: "SJU"},
		{name: "already clean", input: "DFW", expected: "DFW"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCode(tt.input); got != tt.expected {
				t.Errorf("NormalizeCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeRegion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "two words", input: "North America", expected: "north_america"},
		{name: "extra spacing", input: "  south   america ", expected: "south_america"},
		{name: "single word", input: "Europe", expected: "europe"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRegion(tt.input); got != tt.expected {
				t.Errorf("NormalizeRegion(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
