package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

var airportCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Resolver maps a discovery destination label to an airport code.
type Resolver interface {
	Resolve(destination string) (string, error)
}

// UnresolvedDestinationError marks a candidate whose destination has no airport code.
type UnresolvedDestinationError struct {
	Destination string
}

func (e *UnresolvedDestinationError) Error() string {
	return fmt.Sprintf("unresolved destination %q", e.Destination)
}

// StaticResolver resolves from a fixed city to code map. Three-letter codes pass through.
type StaticResolver struct {
	codes map[string]string
}

// NewStaticResolver builds a resolver; city names match case-insensitively.
func NewStaticResolver(cities map[string]string) *StaticResolver {
	codes := make(map[string]string, len(cities))
	for city, code := range cities {
		codes[strings.ToLower(strings.TrimSpace(city))] = strings.ToUpper(strings.TrimSpace(code))
	}
	return &StaticResolver{codes: codes}
}

// Resolve returns the airport code for destination.
func (r *StaticResolver) Resolve(destination string) (string, error) {
	trimmed := strings.TrimSpace(destination)
	if code, ok := r.codes[strings.ToLower(trimmed)]; ok && airportCode.MatchString(code) {
		return code, nil
	}
	if upper := strings.ToUpper(trimmed); airportCode.MatchString(upper) {
		return upper, nil
	}
	return "", &UnresolvedDestinationError{Destination: destination}
}
