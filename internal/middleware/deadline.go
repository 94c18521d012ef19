package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zoner/backend/internal/logging"
)

// Deadline replaces the server's read and write deadlines for the wrapped
// route with now+d. Upload routes transcode media inside the request and
// outlive the server-wide WriteTimeout. A non-positive d leaves the server
// deadlines in place.
func Deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := http.NewResponseController(w)
			until := time.Now().Add(d)
			if err := rc.SetReadDeadline(until); err != nil && !errors.Is(err, http.ErrNotSupported) {
				logging.FromContext(r.Context()).Warn("extend read deadline", slog.Any("error", err))
			}
			if err := rc.SetWriteDeadline(until); err != nil && !errors.Is(err, http.ErrNotSupported) {
				logging.FromContext(r.Context()).Warn("extend write deadline", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
		})
	}
}
