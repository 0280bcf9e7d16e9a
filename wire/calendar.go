package wire

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aluiziolira/go-fare-expander/models"
)

// CalendarContentType is the content type the calendar endpoint insists on.
const CalendarContentType = "application/x-www-form-urlencoded;charset=UTF-8"

// Leg stop marker and trailing selector observed in captured browser traffic. The server
// answers an error envelope when either differs.
const (
	legStopMarker = 3
	graphSelector = 9
)

// EncodeCalendarRequest builds the f.req form body asking for the price graph of a round
// trip across window. The output is byte-identical for identical arguments.
func EncodeCalendarRequest(origin, destination string, outbound, inbound models.Date, window models.RequestWindow) (string, error) {
	if err := checkRoute(origin, destination, outbound, inbound); err != nil {
		return "", err
	}
	if window.Start.IsZero() || window.End.IsZero() {
		return "", &EncodeError{Field: "window", Value: window.String(), Reason: "missing bound"}
	}
	if window.End.Before(window.Start) {
		return "", &EncodeError{Field: "window", Value: window.String(), Reason: "end before start"}
	}

	inner, err := json.Marshal(calendarShape(origin, destination, outbound, inbound, window))
	if err != nil {
		return "", fmt.Errorf("marshal calendar request: %w", err)
	}
	outer, err := json.Marshal([]any{nil, string(inner)})
	if err != nil {
		return "", fmt.Errorf("marshal calendar envelope: %w", err)
	}
	return "f.req=" + url.QueryEscape(string(outer)) + "&", nil
}

func calendarShape(origin, destination string, outbound, inbound models.Date, window models.RequestWindow) []any {
	legs := []any{
		calendarLeg(origin, destination, outbound),
		calendarLeg(destination, origin, inbound),
	}
	search := []any{
		nil, nil, 1, nil, []any{}, 1, []any{1, 0, 0, 0},
		nil, nil, nil, nil, nil, nil,
		legs,
		nil, nil, nil, 1,
	}
	return []any{
		nil,
		search,
		[]any{window.Start.String(), window.End.String()},
		nil,
		[]any{graphSelector, graphSelector},
	}
}

func calendarLeg(from, to string, date models.Date) []any {
	return []any{
		calendarAirport(from),
		calendarAirport(to),
		nil, 0, nil, nil, date.String(),
		nil, nil, nil, nil, nil, nil, nil,
		legStopMarker,
	}
}

func calendarAirport(code string) []any {
	return []any{[]any{[]any{code, 0}}}
}
