package wire

import "fmt"

// EncodeError reports candidate input that cannot be expressed on the wire.
type EncodeError struct {
	Field  string
	Value  string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s %q: %s", e.Field, e.Value, e.Reason)
}
