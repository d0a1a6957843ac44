package span

import (
	"mime"
	"strconv"
	"strings"
	"sync"
)

// Codec pairs an encode and a decode function under a content-type string.
// Encode serializes a decoded value (maps, slices, primitives, or dumped
// schema output) to wire bytes; Decode parses wire bytes into such a value.
type Codec interface {
	ContentType() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Registry maps content types to codecs. It is shared process-wide by all
// requests served by a router: registration is a configuration-time
// operation, sealed when the router starts serving.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	sealed bool
}

// NewRegistry builds a registry holding the built-in codecs: JSON, BSON,
// MessagePack, YAML, and plain text.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.Register(jsonCodec{})
	r.Register(bsonCodec{})
	r.Register(msgpackCodec{})
	r.Register(yamlCodec{})
	r.Register(textCodec{})
	return r
}

// Register installs a codec, overwriting any codec already registered for
// the same content type. Overwriting is intentional: it is how built-ins
// are replaced. Register panics once the registry is sealed — codecs are
// configuration, not per-request state.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic("span: codec registered after the router started serving")
	}
	r.codecs[c.ContentType()] = c
}

// seal ends the registration phase. Called once on first serve.
func (r *Registry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// RequestCodec resolves the codec for a request Content-Type header.
// Unknown content types return (nil, false): the body is passed through as
// raw bytes, never rejected at this layer.
func (r *Registry) RequestCodec(contentType string) (Codec, bool) {
	if contentType == "" {
		return r.lookup(ContentTypeJSON)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false
	}
	return r.lookup(mediaType)
}

// ResponseCodec selects an encoder for an Accept header, honoring q-values.
// When the header is absent, wildcard, or names only unregistered types, the
// per-route default content type wins.
func (r *Registry) ResponseCodec(accept, defaultContentType string) Codec {
	def, ok := r.lookup(defaultContentType)
	if !ok {
		def, _ = r.lookup(ContentTypeJSON)
	}
	if accept == "" {
		return def
	}

	var (
		best  Codec
		bestQ = -1.0
	)
	for part := range strings.SplitSeq(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		q := 1.0
		if qs, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(qs, 64); err == nil {
				q = parsed
			}
		}
		// q=0 marks the media type as not acceptable.
		if q <= 0 || q <= bestQ {
			continue
		}

		if mediaType == "*/*" {
			best, bestQ = def, q
			continue
		}
		if c, ok := r.lookup(mediaType); ok {
			best, bestQ = c, q
		}
	}

	if best == nil {
		return def
	}
	return best
}

// ContentTypes returns the registered content types, for diagnostics.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cts := make([]string, 0, len(r.codecs))
	for ct := range r.codecs {
		cts = append(cts, ct)
	}
	return cts
}

func (r *Registry) lookup(contentType string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[contentType]
	return c, ok
}
