// Package wire builds the request payloads understood by the flight-search frontend.
package wire

import (
	"encoding/base64"
	"net/url"
	"regexp"

	"github.com/aluiziolira/go-fare-expander/models"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the search-state message carried in the tfs parameter.
const (
	fieldLegs       protowire.Number = 3
	fieldPassengers protowire.Number = 8
	fieldSeat       protowire.Number = 9
	fieldTrip       protowire.Number = 19

	fieldLegDate protowire.Number = 2
	fieldLegFrom protowire.Number = 13
	fieldLegTo   protowire.Number = 14

	fieldAirportCode protowire.Number = 2
)

// Enum values observed in the search-state schema.
const (
	passengerAdult  = 1
	seatEconomy     = 1
	tripRoundTrip   = 1
	defaultAdults   = 1
	searchTokenParm = "tfs"
)

var airportCode = regexp.MustCompile(`^[A-Z]{3}$`)

// EncodeSearchToken builds the base64 search-state token for a round trip with one adult
// in economy. Identical inputs always produce identical tokens.
func EncodeSearchToken(origin, destination string, outbound, inbound models.Date) (string, error) {
	if err := checkRoute(origin, destination, outbound, inbound); err != nil {
		return "", err
	}

	var b []byte
	b = appendLeg(b, origin, destination, outbound)
	b = appendLeg(b, destination, origin, inbound)

	var passengers []byte
	for i := 0; i < defaultAdults; i++ {
		passengers = protowire.AppendVarint(passengers, passengerAdult)
	}
	b = protowire.AppendTag(b, fieldPassengers, protowire.BytesType)
	b = protowire.AppendBytes(b, passengers)

	b = protowire.AppendTag(b, fieldSeat, protowire.VarintType)
	b = protowire.AppendVarint(b, seatEconomy)
	b = protowire.AppendTag(b, fieldTrip, protowire.VarintType)
	b = protowire.AppendVarint(b, tripRoundTrip)

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func appendLeg(b []byte, from, to string, date models.Date) []byte {
	var leg []byte
	leg = protowire.AppendTag(leg, fieldLegDate, protowire.BytesType)
	leg = protowire.AppendString(leg, date.String())
	leg = protowire.AppendTag(leg, fieldLegFrom, protowire.BytesType)
	leg = protowire.AppendBytes(leg, airport(from))
	leg = protowire.AppendTag(leg, fieldLegTo, protowire.BytesType)
	leg = protowire.AppendBytes(leg, airport(to))

	b = protowire.AppendTag(b, fieldLegs, protowire.BytesType)
	return protowire.AppendBytes(b, leg)
}

func airport(code string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldAirportCode, protowire.BytesType)
	return protowire.AppendString(b, code)
}

// SearchURL appends the token and locale parameters to the search page base URL.
func SearchURL(base, token, lang, currency string) string {
	q := url.Values{}
	q.Set(searchTokenParm, token)
	if lang != "" {
		q.Set("hl", lang)
	}
	if currency != "" {
		q.Set("curr", currency)
	}
	return base + "?" + q.Encode()
}

func checkRoute(origin, destination string, outbound, inbound models.Date) error {
	if !airportCode.MatchString(origin) {
		return &EncodeError{Field: "origin", Value: origin, Reason: "must be a resolved 3-letter airport code"}
	}
	if !airportCode.MatchString(destination) {
		return &EncodeError{Field: "destination", Value: destination, Reason: "must be a resolved 3-letter airport code"}
	}
	if outbound.IsZero() {
		return &EncodeError{Field: "outbound_date", Value: "", Reason: "missing"}
	}
	if inbound.IsZero() {
		return &EncodeError{Field: "return_date", Value: "", Reason: "missing"}
	}
	if !inbound.After(outbound) {
		return &EncodeError{Field: "return_date", Value: inbound.String(), Reason: "must be after outbound date " + outbound.String()}
	}
	return nil
}
