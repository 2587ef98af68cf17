package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Graph API error codes the worker cares about.
const (
	// codeInvalidToken is returned when the access token is expired,
	// revoked, or otherwise invalid.
	codeInvalidToken = 190
	// codeRateLimited is the application-level throttling code.
	codeRateLimited = 4
)

// APIError is a structured error from the Graph API. StatusCode is always
// set; Code/Subcode/Message are populated when the response body carried a
// parseable error object.
type APIError struct {
	StatusCode int
	Code       int
	Subcode    int
	Message    string
	FBTraceID  string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("graph api: code %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("graph api: http %d: %s", e.StatusCode, e.Message)
}

// IsAuth reports whether the error means the tenant's credential is invalid.
// This disables the whole integration, not just the message.
func (e *APIError) IsAuth() bool {
	return e.Code == codeInvalidToken || e.StatusCode == 401 || e.StatusCode == 403
}

// IsRetryable reports whether a later attempt may succeed.
func (e *APIError) IsRetryable() bool {
	if e.IsAuth() {
		return false
	}
	return e.Code == codeRateLimited || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsAuthError reports whether err carries an invalid-credential Graph error.
func IsAuthError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.IsAuth()
}

// ErrorCode returns a short stable code for persisting on message rows:
// "graph_<code>" for provider errors, "http_<status>" otherwise, "network"
// for transport failures.
func ErrorCode(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Code != 0 {
			return fmt.Sprintf("graph_%d", ae.Code)
		}
		return fmt.Sprintf("http_%d", ae.StatusCode)
	}
	return "network"
}

// graphErrorBody matches the Graph API error envelope.
type graphErrorBody struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// classifyResponse builds an APIError from a non-2xx Graph API response.
func classifyResponse(statusCode int, body []byte) *APIError {
	ae := &APIError{
		StatusCode: statusCode,
		Message:    string(body),
	}

	var parsed graphErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		ae.Code = parsed.Error.Code
		ae.Subcode = parsed.Error.Subcode
		ae.Message = parsed.Error.Message
		ae.FBTraceID = parsed.Error.FBTraceID
	}

	return ae
}
