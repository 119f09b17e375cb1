package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is the single error type returned by the client. Message is the
// backend's text when it sent one and is meant to be shown verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is an API 401
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// errorEnvelope is the error body shape the backend uses; some routes send
// "error" instead of "message".
type errorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorFromBody(status int, data []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Message != "" {
			return &APIError{StatusCode: status, Message: env.Message}
		}
		if env.Error != "" {
			return &APIError{StatusCode: status, Message: env.Error}
		}
	}
	return &APIError{StatusCode: status, Message: fmt.Sprintf("request failed (status %d)", status)}
}

// successEnvelope is embedded in responses of routes that report failures
// as {"success": false, "message": "..."} with a 2xx status.
type successEnvelope struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s successEnvelope) failure(status int) error {
	if s.Success == nil || *s.Success {
		return nil
	}
	msg := s.Message
	if msg == "" {
		msg = "request failed"
	}
	return &APIError{StatusCode: status, Message: msg}
}
