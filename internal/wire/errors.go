package wire

import "fmt"

// ValidationError reports a payload whose fields are missing or carry the
// wrong type. It is returned instead of a partially filled value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid payload: " + e.Reason
	}
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Reason)
}

// ProtocolError reports a byte stream that cannot be framed.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "required field missing"}
}

func wrongType(field, want string, got any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("want %s, got %T", want, got)}
}
