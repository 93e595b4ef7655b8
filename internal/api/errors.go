package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned before any request is built when no token
// is available.
var ErrUnauthenticated = errors.New("no authentication token found")

// APIError is a non-2xx response. Detail holds the raw "detail" field of the
// body, when there was one.
type APIError struct {
	Status  int
	Message string
	Detail  json.RawMessage
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError means no HTTP response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return "unable to reach the task service"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// newAPIError resolves the message from the body: a string detail, then
// detail.message, then the detail serialized, then "HTTP Error: <status>".
func newAPIError(status int, body []byte) *APIError {
	fallback := fmt.Sprintf("HTTP Error: %d", status)

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &APIError{Status: status, Message: fallback}
	}

	detail := bytes.TrimSpace(envelope.Detail)
	if len(detail) == 0 || bytes.Equal(detail, []byte("null")) {
		return &APIError{Status: status, Message: fallback}
	}

	return &APIError{Status: status, Message: detailMessage(detail, fallback), Detail: detail}
}

func detailMessage(detail json.RawMessage, fallback string) string {
	var text string
	if err := json.Unmarshal(detail, &text); err == nil {
		return text
	}

	var structured struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(detail, &structured); err == nil && structured.Message != "" {
		return structured.Message
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, detail); err == nil && compact.Len() > 0 {
		return compact.String()
	}
	return fallback
}

func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if len(apiErr.Detail) > 0 {
			return detailMessage(apiErr.Detail, fallback)
		}
		return fallback
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Error()
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
