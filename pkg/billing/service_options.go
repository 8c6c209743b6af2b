package billing

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithLogger sets the structured logger used by the service.
// Nil loggers are ignored to keep the slog.Default fallback.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCASRetries bounds the optimistic-concurrency retry loop.
// Values below 1 are ignored.
func WithCASRetries(n int) ServiceOption {
	return func(s *Service) {
		if n >= 1 {
			s.casRetries = n
		}
	}
}

// WithClock overrides the time source. Useful for testing with fixed times.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
