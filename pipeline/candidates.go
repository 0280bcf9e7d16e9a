package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aluiziolira/go-fare-expander/models"
)

const maxCandidateLine = 1 << 20

// ReadCandidates decodes one DealCandidate per line. Blank lines are ignored.
func ReadCandidates(r io.Reader) ([]models.DealCandidate, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCandidateLine)

	var out []models.DealCandidate
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var c models.DealCandidate
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("candidate line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}
	return out, nil
}

// WriteCandidates encodes candidates as JSONL, the format ReadCandidates accepts.
func WriteCandidates(w io.Writer, candidates []models.DealCandidate) error {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	for _, c := range candidates {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encode candidate %s: %w", c.Key(), err)
		}
	}
	return buf.Flush()
}
