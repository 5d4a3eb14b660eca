package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrUnauthorized is matched via errors.Is by any API error carrying HTTP 401,
// and returned directly when an operation needs a session and none exists.
// Callers use it to trigger token refresh or fall back to sign-in.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a structured error response from the backend. Error returns the
// server's message verbatim so it can be shown to the user unchanged.
type APIError struct {
	Status  int
	Code    string // machine-readable error code, e.g. "otp_expired"; may be empty
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// ResponseError decodes a non-2xx backend response body into an *APIError.
// The auth API and the records API disagree on the message field name, so all
// known spellings are accepted. An undecodable body falls back to the HTTP
// status line.
func ResponseError(resp *http.Response) error {
	var raw struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&raw)

	msg := raw.Msg
	if msg == "" {
		msg = raw.Message
	}
	if msg == "" {
		msg = raw.ErrorDescription
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Code: raw.ErrorCode, Message: msg}
}
