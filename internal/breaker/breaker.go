// Package breaker holds the circuit breaker settings shared by outbound HTTP
// integrations.
package breaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// New returns a breaker that opens after five consecutive failures and
// half-opens again after 30 seconds.
func New(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	})
}
