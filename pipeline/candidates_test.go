package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aluiziolira/go-fare-expander/models"
)

func TestReadCandidates(t *testing.T) {
	input := `{"origin":"ATL","destination":"SJU","outbound_date":"2026-02-10","return_date":"2026-02-17","price":195,"region":"caribbean","discount_amount":60}

{"origin":"JFK","destination":"Lima","outbound_date":"2026-03-01","return_date":"2026-03-09","price":420,"region":"south-america"}
`
	got, err := ReadCandidates(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].DiscountAmount != 60 || !got[0].OutboundDate.Equal(models.MustParseDate("2026-02-10")) {
		t.Fatalf("unexpected first candidate %+v", got[0])
	}
	if got[1].DiscountAmount != 0 || got[1].Destination != "Lima" {
		t.Fatalf("unexpected second candidate %+v", got[1])
	}
}

func TestReadCandidatesBadLine(t *testing.T) {
	input := `{"origin":"ATL","destination":"SJU","outbound_date":"2026-02-10","return_date":"2026-02-17","price":195}
{"origin":"ATL","outbound_date":"02/10/2026"}
`
	if _, err := ReadCandidates(strings.NewReader(input)); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}

func TestWriteCandidatesRoundTrip(t *testing.T) {
	in := []models.DealCandidate{candidateOn(10), candidateOn(12)}
	var buf bytes.Buffer
	if err := WriteCandidates(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadCandidates(&buf)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(out) != 2 || out[1].Key() != in[1].Key() {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
