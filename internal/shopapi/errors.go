package shopapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// APIError is a non-2xx response of the storefront API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       map[string]any
	Raw        []byte
}

func newAPIError(method, path string, status int, raw []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Raw:        raw,
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Body = body
	}

	return apiErr
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsValidation reports a business-rule rejection such as insufficient stock.
func (e *APIError) IsValidation() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}

	// transport failure
	return true
}

const (
	detailKey         = "detail"
	nonFieldErrorsKey = "non_field_errors"
)

// cart fields are checked before any other field
var knownFields = []string{"quantity", "size_id", "size", "sneaker"}

// Message returns the most specific user-facing text carried by err:
// a field error, then detail, then non_field_errors, then fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Body == nil {
		return fallback
	}
	body := apiErr.Body

	for _, field := range knownFields {
		if msg, ok := firstMessage(body[field]); ok {
			return msg
		}
	}

	others := make([]string, 0, len(body))
	for field := range body {
		if field == detailKey || field == nonFieldErrorsKey || isKnownField(field) {
			continue
		}
		others = append(others, field)
	}
	sort.Strings(others)

	for _, field := range others {
		if msg, ok := firstMessage(body[field]); ok {
			return msg
		}
	}

	if msg, ok := firstMessage(body[detailKey]); ok {
		return msg
	}
	if msg, ok := firstMessage(body[nonFieldErrorsKey]); ok {
		return msg
	}

	return fallback
}

// CheckoutMessage follows the checkout form: detail, then non_field_errors.
func CheckoutMessage(err error, fallback string) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Body == nil {
		return fallback
	}

	if msg, ok := firstMessage(apiErr.Body[detailKey]); ok {
		return msg
	}
	if msg, ok := firstMessage(apiErr.Body[nonFieldErrorsKey]); ok {
		return msg
	}

	return fallback
}

func isKnownField(field string) bool {
	for _, known := range knownFields {
		if known == field {
			return true
		}
	}
	return false
}

func firstMessage(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case []any:
		for _, elem := range val {
			if msg, ok := firstMessage(elem); ok {
				return msg, true
			}
		}
	}
	return "", false
}
