package span

import (
	"fmt"
	"strings"
)

// Schema is the validation capability the pipeline drives. A schema can
// validate a decoded value, load it into a target object, and dump an
// object back to a primitive representation. Implementations may operate
// in "many" mode, treating values as ordered sequences of records.
//
// SchemaOf provides a reflection-backed implementation; any external
// validation library can be adapted by implementing this interface.
type Schema interface {
	// Load validates data and constructs the target object. The returned
	// error wraps field-level detail as a *SchemaError.
	Load(data any) (any, error)
	// Dump serializes an object to a primitive representation suitable for
	// any codec.
	Dump(v any) (any, error)
	// Validate checks data without transforming it.
	Validate(data any) []FieldError
	// Many reports whether the schema operates element-wise on sequences.
	Many() bool
	// Fields returns the names of the currently visible fields.
	Fields() []string
	// Restrict derives a narrowed schema variant. only, when non-nil,
	// must be a subset of the visible fields; exclude removes visible
	// fields. Restriction never widens.
	Restrict(only, exclude []string) (Schema, error)
}

// FieldError describes a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// SchemaError aggregates the field errors from a failed load or validate.
type SchemaError struct {
	Errors []FieldError
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return fmt.Sprintf("schema: %d field error(s): %s", len(e.Errors), strings.Join(msgs, "; "))
}
