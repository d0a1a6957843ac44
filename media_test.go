package span_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/bjaus/span"
	"github.com/bjaus/span/spantest"
)

type name struct {
	First string `json:"first" required:"true" minLength:"2"`
	Last  string `json:"last"`
}

func echoMedia(_ context.Context, req *span.Request, resp *span.Response) error {
	media, err := req.MediaLoaded()
	if err != nil {
		return err
	}
	resp.SetMedia(media)
	return nil
}

func TestMedia_decode_and_load_are_memoized(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", func(_ context.Context, req *span.Request, resp *span.Response) error {
		first, err := req.Media()
		if err != nil {
			return err
		}
		// Mutating the returned value must be visible on the next access:
		// accessors return the one memoized value, not fresh decodes.
		m, ok := first.(map[string]any)
		if !ok {
			return fmt.Errorf("decoded to %T", first)
		}
		m["marker"] = "set"

		second, err := req.Media()
		if err != nil {
			return err
		}
		again, _ := second.(map[string]any)
		if again["marker"] != "set" {
			return fmt.Errorf("second access re-decoded the body")
		}

		loadedA, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		loadedB, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		if fmt.Sprintf("%p", loadedA) != fmt.Sprintf("%p", loadedB) {
			return fmt.Errorf("loaded media was recomputed")
		}

		resp.SetMedia(map[string]any{"ok": true})
		return nil
	}, span.WithLoadPolicy(span.LoadIgnore))

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/names", []byte(`{"first":"ada"}`), span.ContentTypeJSON, nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)
}

func TestMedia_load_policy_validate_and_load(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", func(_ context.Context, req *span.Request, resp *span.Response) error {
		loaded, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		n, ok := loaded.(name)
		if !ok {
			return fmt.Errorf("loaded %T, want a constructed object", loaded)
		}
		resp.SetMedia(map[string]any{"greeting": "hello " + n.First})
		return nil
	}, span.WithRequestSchema(span.SchemaOf[name]()))

	c := spantest.NewClient(t, router)

	resp := c.Do(t, http.MethodPost, "/names", []byte(`{"first":"ada","last":"lovelace"}`), span.ContentTypeJSON, nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.Contains(t, string(body), "hello ada")

	resp = c.Do(t, http.MethodPost, "/names", []byte(`{"last":"lovelace"}`), span.ContentTypeJSON, nil)
	apiErr := spantest.ValidateError(t, resp, span.ClassRequestValidation)
	assert.NotEmpty(t, apiErr.Data["errors"], "field detail travels in error-data")
}

func TestMedia_load_policy_validate_only_keeps_decoded_value(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", func(_ context.Context, req *span.Request, resp *span.Response) error {
		loaded, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		m, ok := loaded.(map[string]any)
		if !ok {
			return fmt.Errorf("loaded %T, want the decoded map", loaded)
		}
		resp.SetMedia(m)
		return nil
	},
		span.WithRequestSchema(span.SchemaOf[name]()),
		span.WithLoadPolicy(span.LoadValidateOnly),
	)

	c := spantest.NewClient(t, router)

	resp := c.Do(t, http.MethodPost, "/names", []byte(`{"first":"ada"}`), span.ContentTypeJSON, nil)
	spantest.ValidateResponse(t, resp, http.StatusOK)

	// Validation still runs: a bad document is rejected.
	resp = c.Do(t, http.MethodPost, "/names", []byte(`{"first":"a"}`), span.ContentTypeJSON, nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestMedia_load_policy_ignore_skips_schema(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", echoMedia,
		span.WithRequestSchema(span.SchemaOf[name]()),
		span.WithLoadPolicy(span.LoadIgnore),
	)

	c := spantest.NewClient(t, router)

	// A document the schema would reject sails through under IGNORE.
	resp := c.Do(t, http.MethodPost, "/names", []byte(`{"unknown":"field"}`), span.ContentTypeJSON, nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.JSONEq(t, `{"unknown":"field"}`, string(body))
}

func TestMedia_unknown_field_is_rejected(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", echoMedia, span.WithRequestSchema(span.SchemaOf[name]()))

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/names", []byte(`{"first":"ada","extra":1}`), span.ContentTypeJSON, nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestMedia_empty_body_is_nil(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/ping", func(_ context.Context, req *span.Request, resp *span.Response) error {
		media, err := req.Media()
		if err != nil {
			return err
		}
		if media != nil {
			return fmt.Errorf("empty body decoded to %T", media)
		}
		loaded, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		if loaded != nil {
			return fmt.Errorf("empty body loaded to %T", loaded)
		}
		resp.SetStatus(http.StatusNoContent)
		return nil
	}, span.WithRequestSchema(span.SchemaOf[name]()))

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/ping", nil, "", nil)
	spantest.ValidateResponse(t, resp, http.StatusNoContent)
}

func TestMedia_unregistered_content_type_passes_raw_bytes(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/blob", func(_ context.Context, req *span.Request, resp *span.Response) error {
		media, err := req.Media()
		if err != nil {
			return err
		}
		raw, ok := media.([]byte)
		if !ok {
			return fmt.Errorf("unknown content type decoded to %T, want raw bytes", media)
		}
		resp.SetMedia(map[string]any{"size": len(raw)})
		return nil
	})

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/blob", []byte{0x01, 0x02, 0x03}, "application/x-custom", nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.JSONEq(t, `{"size":3}`, string(body))
}

func TestMedia_malformed_body_is_request_validation_error(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", echoMedia, span.WithRequestSchema(span.SchemaOf[name]()))

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/names", []byte(`{not json`), span.ContentTypeJSON, nil)
	spantest.ValidateError(t, resp, span.ClassRequestValidation)
}

func TestMedia_bson_request_body_loads_through_schema(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", func(_ context.Context, req *span.Request, resp *span.Response) error {
		loaded, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		n, ok := loaded.(name)
		if !ok {
			return fmt.Errorf("loaded %T", loaded)
		}
		resp.SetMedia(map[string]any{"first": n.First})
		return nil
	}, span.WithRequestSchema(span.SchemaOf[name]()))

	doc, err := bson.Marshal(bson.M{"first": "grace", "last": "hopper"})
	require.NoError(t, err)

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/names", doc, span.ContentTypeBSON, nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.JSONEq(t, `{"first":"grace"}`, string(body))
}

func TestMedia_preseeded_document_skips_decode(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", func(_ context.Context, req *span.Request, resp *span.Response) error {
		req.SetDecodedMedia(map[string]any{"first": "alan", "last": "turing"})
		loaded, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		n, ok := loaded.(name)
		if !ok {
			return fmt.Errorf("loaded %T", loaded)
		}
		resp.SetMedia(map[string]any{"first": n.First})
		return nil
	}, span.WithRequestSchema(span.SchemaOf[name]()))

	c := spantest.NewClient(t, router)
	// The body is garbage; the preseeded document must win.
	resp := c.Do(t, http.MethodPost, "/names", []byte(`{{{{`), span.ContentTypeJSON, nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.JSONEq(t, `{"first":"alan"}`, string(body))
}

func TestMedia_many_schema_loads_a_list(t *testing.T) {
	t.Parallel()

	router := span.New()
	span.Post(router, "/names", func(_ context.Context, req *span.Request, resp *span.Response) error {
		loaded, err := req.MediaLoaded()
		if err != nil {
			return err
		}
		names, ok := loaded.([]name)
		if !ok {
			return fmt.Errorf("loaded %T, want a typed slice", loaded)
		}
		resp.SetMedia(map[string]any{"count": len(names)})
		return nil
	}, span.WithRequestSchema(span.SchemaOf[name](span.Many())))

	payload, err := json.Marshal([]map[string]any{
		{"first": "ada"}, {"first": "grace"},
	})
	require.NoError(t, err)

	c := spantest.NewClient(t, router)
	resp := c.Do(t, http.MethodPost, "/names", payload, span.ContentTypeJSON, nil)
	body := spantest.ValidateResponse(t, resp, http.StatusOK)
	assert.JSONEq(t, `{"count":2}`, string(body))
}
