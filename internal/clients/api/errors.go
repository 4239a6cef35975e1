package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tazhate/taskcal/internal/domain"
)

var (
	// ErrUnauthorized means the session could not be refreshed; the user
	// has been logged out.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotConfigured is returned when the user has no CalDAV account set up.
	ErrNotConfigured = errors.New("caldav not configured")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// decodeError maps an error response body onto APIError or, for 400s with
// field messages, onto *domain.ValidationError.
func decodeError(status int, body []byte) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{StatusCode: status, Message: truncate(msg, 200)}
	}

	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return &APIError{StatusCode: status, Message: s}
		}
	}

	if status == http.StatusBadRequest && len(payload) > 0 {
		fields := make(map[string]string, len(payload))
		for k, v := range payload {
			fields[k] = fieldMessage(v)
		}
		return &domain.ValidationError{Fields: fields}
	}

	return &APIError{StatusCode: status, Message: http.StatusText(status)}
}

func fieldMessage(v interface{}) string {
	switch msg := v.(type) {
	case string:
		return msg
	case []interface{}:
		parts := make([]string, 0, len(msg))
		for _, m := range msg {
			parts = append(parts, fmt.Sprint(m))
		}
		sort.Strings(parts)
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(msg)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
