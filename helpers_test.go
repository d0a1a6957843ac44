package span_test

import (
	"encoding/json"
	"net/http"
)

// jsonDecode decodes a response body as JSON.
func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
