package span

import (
	"go.mongodb.org/mongo-driver/bson"
)

// mediaPhase tracks the request media state machine. Transitions only move
// forward; repeated accesses after Decoded/Loaded/Failed return the cached
// value or error. A media state belongs to exactly one request and is never
// accessed concurrently.
type mediaPhase int

const (
	phaseEmpty mediaPhase = iota
	phaseDecoding
	phaseDecoded
	phaseLoading
	phaseLoaded
	phaseFailed
)

type mediaState struct {
	raw         []byte
	contentType string
	registry    *Registry
	schema      Schema
	policy      LoadPolicy

	phase    mediaPhase
	failedAt mediaPhase
	decoded  any
	loaded   any
	err      *APIError
}

// preseed installs an already-decoded document (e.g. a pre-parsed BSON
// container), bypassing the decode step. The policy branch still applies.
func (m *mediaState) preseed(v any) {
	if m.phase != phaseEmpty {
		return
	}
	m.decoded = v
	m.phase = phaseDecoded
}

// media returns the raw decoded body, computing it at most once.
func (m *mediaState) media() (any, error) {
	if m.phase == phaseEmpty {
		m.decode()
	}
	if m.phase == phaseFailed && m.failedAt == phaseDecoding {
		return nil, m.err
	}
	return m.decoded, nil
}

// mediaLoaded returns the body after the route's load policy has been
// applied, computing it at most once.
func (m *mediaState) mediaLoaded() (any, error) {
	if m.phase == phaseEmpty {
		m.decode()
	}
	if m.phase == phaseDecoded {
		m.load()
	}
	if m.phase == phaseFailed {
		return nil, m.err
	}
	return m.loaded, nil
}

func (m *mediaState) decode() {
	m.phase = phaseDecoding

	// A zero-length body is "no media": decode and load are both bypassed.
	if len(m.raw) == 0 {
		m.decoded = nil
		m.phase = phaseDecoded
		return
	}

	codec, ok := m.registry.RequestCodec(m.contentType)
	if !ok {
		// Unknown content type: pass the raw bytes through. Rejection, if
		// any, happens when a schema load is attempted on them.
		m.decoded = m.raw
		m.phase = phaseDecoded
		return
	}

	v, err := codec.Decode(m.raw)
	if err != nil {
		m.fail(phaseDecoding, ClassRequestValidation.Wrap(err, "unable to decode request body"))
		return
	}
	m.decoded = v
	m.phase = phaseDecoded
}

func (m *mediaState) load() {
	m.phase = phaseLoading

	if m.decoded == nil || m.schema == nil || m.policy == LoadIgnore {
		m.loaded = m.decoded
		m.phase = phaseLoaded
		return
	}

	value, err := normalizeDecoded(m.decoded)
	if err != nil {
		m.fail(phaseLoading, ClassRequestValidation.Wrap(err, "unable to decode request body"))
		return
	}

	switch m.policy {
	case LoadValidateOnly:
		if errs := m.schema.Validate(value); len(errs) > 0 {
			m.fail(phaseLoading, validationError(ClassRequestValidation, errs))
			return
		}
		m.loaded = m.decoded
	case LoadValidateAndLoad:
		obj, err := m.schema.Load(value)
		if err != nil {
			m.fail(phaseLoading, schemaLoadError(ClassRequestValidation, err))
			return
		}
		m.loaded = obj
	default:
		m.loaded = m.decoded
	}
	m.phase = phaseLoaded
}

func (m *mediaState) fail(at mediaPhase, err *APIError) {
	m.phase = phaseFailed
	m.failedAt = at
	m.err = err
}

// normalizeDecoded converts pre-encoded BSON containers into generic
// decoded values so schemas see plain maps and lists.
func normalizeDecoded(v any) (any, error) {
	switch val := v.(type) {
	case bson.Raw:
		return decodeRawDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			converted, err := normalizeDecoded(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}

// validationError wraps field errors into an API error carrying the
// per-field detail in the error-data payload.
func validationError(class ErrorClass, errs []FieldError) *APIError {
	return class.New("data validation failed").WithData("errors", errs)
}

// schemaLoadError converts a schema load failure, preserving field detail
// when the schema reported any.
func schemaLoadError(class ErrorClass, err error) *APIError {
	if se, ok := err.(*SchemaError); ok {
		return validationError(class, se.Errors)
	}
	return class.Wrap(err, "data validation failed")
}
