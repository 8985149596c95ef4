// Package testutil carries helpers shared by handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest builds a request with body marshaled to JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequestWithBody builds a request with a raw string body, for malformed
// payload cases NewJSONRequest cannot produce.
func NewRequestWithBody(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DoRequest runs the request through the handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// UnmarshalResponse decodes the recorded body into T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result), "unmarshal response body")
	return result
}

// AssertStatus checks the recorded status code.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code")
}

// AssertErrorCode checks the "error" field of the error envelope.
func AssertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, expected string) {
	t.Helper()
	body := UnmarshalResponse[map[string]string](t, rr)
	assert.Equal(t, expected, body["error"], "unexpected error code")
}

// AssertJSONContains checks one key-value pair of the response object.
func AssertJSONContains(t *testing.T, rr *httptest.ResponseRecorder, key string, expected any) {
	t.Helper()
	body := UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, expected, body[key], "unexpected value for key %q", key)
}

// AssertJSONHasKey checks the response object carries the key at all.
func AssertJSONHasKey(t *testing.T, rr *httptest.ResponseRecorder, key string) {
	t.Helper()
	body := UnmarshalResponse[map[string]any](t, rr)
	_, ok := body[key]
	assert.True(t, ok, "expected key %q in response", key)
}
