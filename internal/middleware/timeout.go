package middleware

import (
	"net/http"
	"time"
)

// Timeout bounds handler time. The request context is cancelled at the
// deadline, which a soft delete in flight observes between store calls.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	message := `{"success":false,"error":{"code":"REQUEST_TIMEOUT","message":"request timed out","retryable":true}}`

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, message)
	}
}
