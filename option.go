package w3session

import (
	"time"

	"github.com/vitwit/w3session/logger"
	"github.com/vitwit/w3session/metrics"
)

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = r
	}
}

func WithTimeout(t time.Duration) Option {
	return func(s *Session) {
		if t > 0 {
			s.timeout = t
		}
	}
}

// WithInvalidateCallback registers the callback fired when a wallet change
// invalidates the session.
func WithInvalidateCallback(fn func(InvalidationReason)) Option {
	return func(s *Session) {
		s.onInvalidate = fn
	}
}
