package sentinel

import (
	"time"

	"github.com/web3tea/pgcdc-sentinel/telemetry"
)

type Option func(*Sentinel)

// WithBatchSize sets how many events are buffered before a sink write.
func WithBatchSize(size int) Option {
	return func(s *Sentinel) {
		if size > 0 {
			s.BatchSize = size
		}
	}
}

// WithFlushInterval bounds how long buffered events wait for a sink write.
// Zero disables timed flushes.
func WithFlushInterval(interval time.Duration) Option {
	return func(s *Sentinel) {
		s.FlushInterval = interval
	}
}

func WithOnError(o OnError) Option {
	return func(s *Sentinel) {
		if o.Valid() {
			s.onError = o
		}
	}
}

func WithLogger(l Logger) Option {
	return func(s *Sentinel) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Sentinel) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithStatusReporter(r StatusReporter) Option {
	return func(s *Sentinel) {
		s.statusReporter = r
	}
}
