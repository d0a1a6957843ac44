package span

import (
	"net/http"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// writeResponse runs the outbound pipeline: projection, dump policy,
// content negotiation, encode, paging headers. Any stage failure diverts
// to the error channel with no body bytes written.
func (ro *Router) writeResponse(w http.ResponseWriter, r *http.Request, rt *route, resp *Response) {
	body, contentType, err := ro.finalizeMedia(r, rt, resp)
	if err != nil {
		ro.writeError(w, r, rt, resp, err)
		return
	}

	h := w.Header()
	copyHeader(h, resp.header)
	if resp.paging != nil {
		resp.paging.writeHeaders(h, r.URL)
	}

	if body == nil {
		w.WriteHeader(resp.status)
		return
	}

	h.Set("Content-Type", contentType)
	w.WriteHeader(resp.status)
	//nolint:errcheck,gosec // best-effort after WriteHeader
	w.Write(body)
}

// finalizeMedia turns handler-set media into wire bytes. The body is fully
// encoded into memory before anything is written, so a failure at any
// stage leaks no partial bytes.
func (ro *Router) finalizeMedia(r *http.Request, rt *route, resp *Response) ([]byte, string, error) {
	media, _ := resp.Media()
	schema := rt.respSchema

	// A route that declares a response schema must produce media.
	if schema != nil && isEmptyMedia(media) {
		return nil, "", ClassNothingToReturn.New("route declares a response schema but produced no media")
	}
	if schema == nil && media == nil {
		return nil, "", nil
	}

	effective := schema
	if resp.ApplyProjection {
		directives, err := parseProjection(r.URL.Query())
		if err != nil {
			return nil, "", err
		}
		if directives != nil {
			if schema == nil {
				return nil, "", ClassRequestValidation.New("route does not support projection")
			}
			if rt.respPolicy != DumpIgnore {
				effective, err = ro.projections.derive(rt.id(), schema, directives)
				if err != nil {
					return nil, "", err
				}
			}
		}
	}

	out, apiErr := applyDumpPolicy(schema, effective, rt.respPolicy, media)
	if apiErr != nil {
		return nil, "", apiErr
	}

	codec, apiErr := ro.negotiate(r, resp)
	if apiErr != nil {
		return nil, "", apiErr
	}

	out, apiErr = adaptRawMedia(out, codec)
	if apiErr != nil {
		return nil, "", apiErr
	}

	body, err := codec.Encode(out)
	if err != nil {
		return nil, "", ClassResponseValidation.Wrap(err, "unable to encode response media")
	}
	return body, codec.ContentType(), nil
}

// applyDumpPolicy runs the response-side schema stage. declared is the
// route's schema (used for validation semantics), effective the
// projection-narrowed variant (used for serialization).
func applyDumpPolicy(declared, effective Schema, policy DumpPolicy, media any) (any, *APIError) {
	if declared == nil || policy == DumpIgnore {
		return media, nil
	}

	switch policy {
	case DumpOnly:
		dumped, err := effective.Dump(media)
		if err != nil {
			return nil, ClassResponseValidation.Wrap(err, "unable to serialize response media")
		}
		return dumped, nil

	case DumpAndValidate:
		dumped, err := effective.Dump(media)
		if err != nil {
			return nil, ClassResponseValidation.Wrap(err, "unable to serialize response media")
		}
		if errs := effective.Validate(dumped); len(errs) > 0 {
			return nil, validationError(ClassResponseValidation, errs)
		}
		return dumped, nil

	case DumpValidateOnly:
		value, err := normalizeDecoded(media)
		if err != nil {
			return nil, ClassResponseValidation.Wrap(err, "unable to read response media")
		}
		if errs := declared.Validate(value); len(errs) > 0 {
			return nil, validationError(ClassResponseValidation, errs)
		}
		// No transformation, but projection still narrows what is
		// serialized: the restricted dump drops hidden fields.
		dumped, err := effective.Dump(value)
		if err != nil {
			return nil, ClassResponseValidation.Wrap(err, "unable to serialize response media")
		}
		return dumped, nil

	default:
		return media, nil
	}
}

// negotiate picks the response codec: a handler-pinned content type wins,
// otherwise the Accept header is negotiated against the registry with the
// route (or router) default as fallback.
func (ro *Router) negotiate(r *http.Request, resp *Response) (Codec, *APIError) {
	if resp.ctForced {
		codec, ok := ro.registry.lookup(resp.contentType)
		if !ok {
			return nil, ClassResponseValidation.Errorf("no codec registered for content type %q", resp.contentType)
		}
		return codec, nil
	}

	def := resp.contentType
	if def == "" {
		def = ro.defaultContentType
	}
	return ro.registry.ResponseCodec(r.Header.Get("Accept"), def), nil
}

// adaptRawMedia converts a pre-encoded BSON document when the negotiated
// codec is a different format; the BSON codec passes it through untouched.
func adaptRawMedia(v any, codec Codec) (any, *APIError) {
	raw, ok := v.(bson.Raw)
	if !ok || codec.ContentType() == ContentTypeBSON {
		return v, nil
	}
	decoded, err := decodeRawDocument(raw)
	if err != nil {
		return nil, ClassResponseValidation.Wrap(err, "unable to transcode response document")
	}
	return decoded, nil
}

// writeError writes a failure through the error-* header channel. The body
// stays empty unless the error asked for media attachment and the media
// dumped and encoded cleanly; a failure on that path degrades to an empty
// body rather than masking the original error.
func (ro *Router) writeError(w http.ResponseWriter, r *http.Request, rt *route, resp *Response, err error) {
	if ro.errorHandler != nil {
		ro.errorHandler(w, r, err)
		return
	}

	apiErr := normalizeError(err)

	var (
		body        []byte
		contentType string
	)
	if apiErr.SendMedia && rt != nil && resp != nil {
		body, contentType = ro.renderErrorMedia(r, rt, resp)
	}

	h := w.Header()
	if resp != nil {
		copyHeader(h, resp.header)
	}
	writeErrorHeaders(h, apiErr)
	if len(body) > 0 {
		h.Set("Content-Type", contentType)
	}
	w.WriteHeader(apiErr.Class.HTTPCode)
	if len(body) > 0 {
		//nolint:errcheck,gosec // best-effort after WriteHeader
		w.Write(body)
	}
}

// renderErrorMedia best-effort dumps and encodes response media for an
// error that requested attachment. Every failure returns an empty body.
func (ro *Router) renderErrorMedia(r *http.Request, rt *route, resp *Response) ([]byte, string) {
	media, ok := resp.Media()
	if !ok || media == nil {
		return nil, ""
	}

	out, apiErr := applyDumpPolicy(rt.respSchema, rt.respSchema, rt.respPolicy, media)
	if apiErr != nil {
		return nil, ""
	}

	codec, apiErr := ro.negotiate(r, resp)
	if apiErr != nil {
		return nil, ""
	}
	out, apiErr = adaptRawMedia(out, codec)
	if apiErr != nil {
		return nil, ""
	}

	body, err := codec.Encode(out)
	if err != nil {
		return nil, ""
	}
	return body, codec.ContentType()
}

// isEmptyMedia reports whether media is nothing: nil, an empty list, or an
// empty mapping.
func isEmptyMedia(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	//exhaustive:ignore
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return false
	}
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
