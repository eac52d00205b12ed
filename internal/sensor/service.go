package sensor

import (
	"log/slog"
	"time"
)

// DefaultConcurrency bounds parallel store queries when none is configured.
const DefaultConcurrency = 8

// Observer receives outcomes of service operations, e.g. for metrics.
type Observer interface {
	ObserveIngest(stored int, err error)
	ObserveAggregate(unit Unit, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveIngest(int, error)                    {}
func (nopObserver) ObserveAggregate(Unit, time.Duration, error) {}

// Service validates ingested readings and answers latest-value and
// bucketed-average queries against an injected Store.
type Service struct {
	store       Store
	logger      *slog.Logger
	observer    Observer
	now         func() time.Time
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used by the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the observer notified after ingestion and aggregation.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the wall clock used to stamp ingested readings.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConcurrency caps the number of store queries in flight per call.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      slog.Default(),
		observer:    nopObserver{},
		now:         time.Now,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}
