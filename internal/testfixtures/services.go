package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/timetable"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Policy      application.Policy
	Notifier    application.Notifier
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with the default policy, a
// clock at ReferenceTime and sequential ids.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Policy:      application.DefaultPolicy(),
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

// WithPolicy overrides the booking rules.
func WithPolicy(policy application.Policy) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Policy = policy
	}
}

// WithNotifier installs the confirmation hook.
func WithNotifier(notifier application.Notifier) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Notifier = notifier
	}
}

// Ports is satisfied by storage.Adapter and by in-memory doubles.
type Ports interface {
	application.RoomCatalog
	application.ProfileDirectory
	application.BookingRepository
	application.TemplateRepository
	application.ExceptionRepository
}

// Services bundles the application services sharing one recurrence engine.
type Services struct {
	Timetable       *application.TimetableService
	Admission       *application.AdmissionService
	Templates       *application.TemplateService
	Materialization *application.MaterializationService
}

// Build wires every service over ports.
func (f *ServiceFactory) Build(ports Ports) Services {
	engine := recurrence.NewEngine(f.Policy.Location)
	timetableService := application.NewTimetableService(ports, ports, ports, ports, timetable.NewMerger(engine), f.Logger)
	idGen := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()

	return Services{
		Timetable: timetableService,
		Admission: application.NewAdmissionService(ports, ports, timetableService, f.Notifier, f.Policy, idGen, now, f.Logger),
		Templates: application.NewTemplateService(ports, ports, ports, ports, ports, engine, idGen, now, f.Logger),
		Materialization: application.NewMaterializationService(
			ports, ports, ports, ports, timetableService, f.Policy, idGen, now, f.Logger,
		),
	}
}
