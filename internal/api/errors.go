package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError carries a server-reported failure. Message holds the backend's
// own error text when it provided any.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusUnauthorized
}

// decodeAPIError turns a non-success response into an *APIError, preferring
// the server's {"error": "..."} text over the fallback.
func decodeAPIError(resp *http.Response, fallback string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return apiErrorFromBody(resp.StatusCode, data, fallback)
}

func apiErrorFromBody(status int, body []byte, fallback string) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return &APIError{Status: status, Message: payload.Error}
	}
	return &APIError{Status: status, Message: fallback}
}
