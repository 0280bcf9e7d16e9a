// Package parser validates discovery candidates and decodes calendar responses.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-fare-expander/models"
)

var originCode = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateCandidate ensures discovery handed over a usable candidate. The origin must already
// be a normalized airport code; the destination may still be a city name.
func ValidateCandidate(c models.DealCandidate) error {
	if strings.TrimSpace(c.Origin) == "" {
		return fmt.Errorf("candidate missing origin")
	}
	if !originCode.MatchString(c.Origin) {
		return fmt.Errorf("candidate origin %q is not a 3-letter airport code", c.Origin)
	}
	if strings.TrimSpace(c.Destination) == "" {
		return fmt.Errorf("candidate missing destination for %s", c.Origin)
	}
	if c.Price <= 0 {
		return fmt.Errorf("candidate %s has non-positive price %d", c.Key(), c.Price)
	}
	if c.OutboundDate.IsZero() || c.ReturnDate.IsZero() {
		return fmt.Errorf("candidate %s missing travel dates", c.Key())
	}
	if !c.ReturnDate.After(c.OutboundDate) {
		return fmt.Errorf("candidate %s returns on or before departure", c.Key())
	}
	if c.DiscountAmount < 0 {
		return fmt.Errorf("candidate %s has negative discount %d", c.Key(), c.DiscountAmount)
	}
	return nil
}

// NormalizeCode trims and upper-cases an airport code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeRegion lower-cases a region tag and joins words with underscores.
func NormalizeRegion(region string) string {
	fields := strings.Fields(strings.ToLower(region))
	return strings.Join(fields, "_")
}
