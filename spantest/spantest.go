// Package spantest provides typed test helpers for the span framework.
package spantest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/bjaus/span"
)

// Client wraps an httptest.Server for convenient API testing.
type Client struct {
	Server *httptest.Server
}

// NewClient creates a test client from a router.
func NewClient(t testing.TB, r *span.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Client{Server: srv}
}

// Response holds a decoded API response.
type Response[T any] struct {
	Status  int
	Headers http.Header
	Body    *T
	Raw     *http.Response
}

// Get sends a typed GET request.
func Get[Resp any](t testing.TB, c *Client, path string) *Response[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodGet, path, nil)
}

// Post sends a typed POST request with a JSON body.
func Post[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodPost, path, body)
}

// Put sends a typed PUT request with a JSON body.
func Put[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodPut, path, body)
}

// Patch sends a typed PATCH request with a JSON body.
func Patch[Req, Resp any](t testing.TB, c *Client, path string, body *Req) *Response[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodPatch, path, body)
}

// Delete sends a typed DELETE request.
func Delete[Resp any](t testing.TB, c *Client, path string) *Response[Resp] {
	t.Helper()
	return do[Resp](t, c, http.MethodDelete, path, nil)
}

// Do sends a raw request with an explicit body and content type. Use it for
// non-JSON codecs where the typed helpers do not apply.
func (c *Client) Do(t testing.TB, method, path string, body []byte, contentType string, header http.Header) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("spantest: create request: %v", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("spantest: execute request: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("spantest: close body: %v", closeErr)
		}
	})
	return resp
}

// ValidateResponse asserts that a response succeeded: no error headers are
// present and the status matches. Returns the raw body for further checks.
func ValidateResponse(t testing.TB, resp *http.Response, wantStatus int) []byte {
	t.Helper()

	if name := resp.Header.Get(span.HeaderErrorName); name != "" {
		t.Fatalf("spantest: unexpected error %s: %s", name, resp.Header.Get(span.HeaderErrorMessage))
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("spantest: status = %d, want %d", resp.StatusCode, wantStatus)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("spantest: read body: %v", err)
	}
	return body
}

// ValidateError asserts that a response carries the full error header
// contract for the given class: matching name and code, a parseable error-id,
// and the class's HTTP status. Returns the reconstructed error.
func ValidateError(t testing.TB, resp *http.Response, class span.ErrorClass) *span.APIError {
	t.Helper()

	apiErr, ok := span.ErrorFromHeaders(resp.Header)
	if !ok {
		t.Fatalf("spantest: response carries no error headers")
	}
	if apiErr.Class.Name != class.Name {
		t.Fatalf("spantest: error-name = %q, want %q (message: %s)", apiErr.Class.Name, class.Name, apiErr.Message)
	}
	if apiErr.Class.APICode != class.APICode {
		t.Fatalf("spantest: error-code = %d, want %d", apiErr.Class.APICode, class.APICode)
	}
	if _, err := uuid.Parse(resp.Header.Get(span.HeaderErrorID)); err != nil {
		t.Fatalf("spantest: error-id %q is not a uuid: %v", resp.Header.Get(span.HeaderErrorID), err)
	}
	if resp.StatusCode != class.HTTPCode {
		t.Fatalf("spantest: status = %d, want %d", resp.StatusCode, class.HTTPCode)
	}
	return apiErr
}

func do[Resp any](t testing.TB, c *Client, method, path string, body any) *Response[Resp] {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("spantest: marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, c.Server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("spantest: create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", span.ContentTypeJSON)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("spantest: execute request: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.Errorf("spantest: close body: %v", closeErr)
		}
	}()

	result := &Response[Resp]{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Raw:     resp,
	}

	if resp.StatusCode != http.StatusNoContent && resp.ContentLength != 0 {
		var decoded Resp
		if decErr := json.NewDecoder(resp.Body).Decode(&decoded); decErr != nil && decErr != io.EOF {
			return result
		}
		result.Body = &decoded
	}

	return result
}
