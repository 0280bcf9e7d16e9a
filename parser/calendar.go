package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-fare-expander/models"
)

// AntiHijackPrefix precedes every JSON answer from the frontend service.
const AntiHijackPrefix = ")]}'"

var (
	// "2026-01-04","2026-01-13",[[null,189] with optional backslash-escaped quotes.
	sampleTuple = regexp.MustCompile(
		`\[\\*"(\d{4}-\d{2}-\d{2})\\*"\s*,\s*\\*"(\d{4}-\d{2}-\d{2})\\*"\s*,\s*\[\[\s*[^,\[\]]*\s*,\s*(\d+)\s*\]`)

	dataFrame     = regexp.MustCompile(`\[\s*\\*"wrb\.fr\\*"\s*,\s*[^,]*,\s*\\*"`)
	nullDataFrame = regexp.MustCompile(`\[\s*\\*"wrb\.fr\\*"\s*,\s*[^,]*,\s*null`)
	errorFrame    = regexp.MustCompile(`\[\s*\\*"er\\*"\s*,`)
	interstitial  = regexp.MustCompile(`(?i)<html|unusual traffic|/sorry/`)
)

// DecodeCalendarResponse extracts price samples from a calendar-graph response.
//
// Extraction is pattern based rather than a full parse: the payload nesting and key order
// drift between releases while the date/date/price tuple stays stable. A recognized data
// frame without tuples is a legitimate empty window and returns an empty slice.
func DecodeCalendarResponse(raw []byte) ([]models.PriceSample, error) {
	body := strings.TrimLeft(string(raw), " \t\r\n")
	body = strings.TrimPrefix(body, AntiHijackPrefix)

	matches := sampleTuple.FindAllStringSubmatch(body, -1)
	if len(matches) > 0 {
		samples := make([]models.PriceSample, 0, len(matches))
		for _, m := range matches {
			sample, ok := toSample(m[1], m[2], m[3])
			if !ok {
				continue
			}
			samples = append(samples, sample)
		}
		return samples, nil
	}

	switch {
	case errorFrame.MatchString(body), interstitial.MatchString(body):
		return nil, newDecodeError(ErrBlocked, body)
	case dataFrame.MatchString(body):
		return []models.PriceSample{}, nil
	case nullDataFrame.MatchString(body):
		return nil, newDecodeError(ErrBlocked, body)
	default:
		return nil, newDecodeError(ErrUnparseable, body)
	}
}

func toSample(outbound, inbound, price string) (models.PriceSample, bool) {
	out, err := models.ParseDate(outbound)
	if err != nil {
		return models.PriceSample{}, false
	}
	ret, err := models.ParseDate(inbound)
	if err != nil {
		return models.PriceSample{}, false
	}
	if ret.Before(out) {
		return models.PriceSample{}, false
	}
	p, err := strconv.Atoi(price)
	if err != nil || p <= 0 {
		return models.PriceSample{}, false
	}
	return models.PriceSample{Outbound: out, Return: ret, Price: p}, true
}
