package httpserver

import (
	"context"
	"time"
)

const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = time.Minute
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultShutdownTimeout   = 15 * time.Second
)

// ShutdownTimeout reports how long Drain waits for in-flight requests.
func (s *Server) ShutdownTimeout() time.Duration {
	return s.shutdownTimeout
}

// Drain shuts the server down within the configured budget. Cancellation of
// ctx is ignored so a cancelled serve context still lets requests finish.
func (s *Server) Drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}
