package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/recurring-calendar/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Cache       *application.WindowCache
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Cache == nil {
		factory.Cache = application.NewWindowCache(0, 0, factory.Clock.NowFunc())
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithCache overrides the shared window cache used by the factory.
func WithCache(cache *application.WindowCache) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Cache = cache
	}
}

// SeriesServiceDeps captures dependencies for constructing a series service.
type SeriesServiceDeps struct {
	Series      application.SeriesRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewSeriesService builds a series service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewSeriesService(deps SeriesServiceDeps) *application.SeriesService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewSeriesServiceWithLogger(
		deps.Series,
		f.Cache,
		idGen,
		now,
		deps.Logger,
	)
}

// OccurrenceServiceDeps captures dependencies for constructing an occurrence service.
type OccurrenceServiceDeps struct {
	Series      application.SeriesRepository
	Exceptions  application.ExceptionRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewOccurrenceService builds an occurrence service using the supplied dependencies.
func (f *ServiceFactory) NewOccurrenceService(deps OccurrenceServiceDeps) *application.OccurrenceService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewOccurrenceServiceWithLogger(
		deps.Series,
		deps.Exceptions,
		f.Cache,
		idGen,
		now,
		deps.Logger,
	)
}
