package bridge

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrNotAuthenticated = errors.New("bridge: not authenticated")

// clientDataTooLarge is the server message for a payload Bridge will never
// accept; retrying it is pointless.
const clientDataTooLarge = "client data too large"

type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("bridge: %s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	return nil
}

// IsMaint reports a maintenance-style response (502, 503, 408).
func (e *APIError) IsMaint() bool {
	return e.StatusCode == http.StatusBadGateway || e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusRequestTimeout
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	out := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		out.Message = body.Message
		out.Type = body.Type
	} else {
		out.Message = strings.TrimSpace(string(raw))
	}
	return out
}

// IsUnrecoverable reports errors that will fail identically on every retry.
func IsUnrecoverable(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), clientDataTooLarge)
}

func IsMaint(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsMaint()
}
