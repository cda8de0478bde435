package catalog

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// UserError is a field-level rejection reported by a mutation.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// APIError classifies a failed catalog call.
type APIError struct {
	Op         string
	StatusCode int
	// Throttled: HTTP 429 or a THROTTLED GraphQL error.
	Throttled bool
	// Retryable: 5xx or transport failure.
	Retryable  bool
	Message    string
	UserErrors []UserError
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Throttled {
		b.WriteString(": throttled")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.UserErrors) > 0 {
		msgs := make([]string, 0, len(e.UserErrors))
		for _, ue := range e.UserErrors {
			msgs = append(msgs, ue.Message)
		}
		fmt.Fprintf(&b, ": user errors [%s]", strings.Join(msgs, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt with backoff.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Throttled || apiErr.Retryable
	}
	return false
}
