package application

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
	"github.com/iota-uz/tenantkit/pkg/events"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
	// Store backs every unit of work. Required.
	Store uow.Store
	// UnitOfWork options are applied after the defaults, which dispatch
	// committed events to EventBus.
	UnitOfWork []uow.Option
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.New(logger.WithField("component", "eventbus"))
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		logger:         logger,
		store:          opts.Store,
		uowOptions:     opts.UnitOfWork,
		registry:       isolation.NewRegistry(),
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	store          uow.Store
	uowOptions     []uow.Option
	registry       *isolation.Registry
	units          *uow.Manager
	modules        []Module
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) Registry() *isolation.Registry {
	return app.registry
}

// UnitOfWork panics before LoadModules: modules must not open units of work
// while entity types are still being registered.
func (app *application) UnitOfWork() *uow.Manager {
	if app.units == nil {
		panic("application: unit of work manager requested before LoadModules")
	}
	return app.units
}

func (app *application) Modules() []Module {
	return app.modules
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

// Controllers are returned sorted by key so routes register in a stable order.
func (app *application) Controllers() []Controller {
	controllers := make([]Controller, 0, len(app.controllers))
	for _, c := range app.controllers {
		controllers = append(controllers, c)
	}
	sort.Slice(controllers, func(i, j int) bool { return controllers[i].Key() < controllers[j].Key() })
	return controllers
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}

// LoadModules registers entity types of every module, fails if a declared type
// was left unregistered, seals the registry by building the unit of work
// manager, and then lets each module wire its services and controllers. It may
// be called once.
func LoadModules(app Application, modules ...Module) error {
	a, ok := app.(*application)
	if !ok {
		return fmt.Errorf("application: unsupported implementation %T", app)
	}
	if a.units != nil {
		return fmt.Errorf("application: modules already loaded")
	}
	if a.store == nil {
		return fmt.Errorf("application: no unit of work store configured")
	}

	var owned []entity.Entity
	for _, m := range modules {
		if em, ok := m.(EntityModule); ok {
			em.RegisterEntities(a.registry)
			owned = append(owned, em.Entities()...)
		}
	}
	if err := a.registry.Require(owned...); err != nil {
		return fmt.Errorf("application: %w", err)
	}

	opts := []uow.Option{
		uow.WithDispatcher(events.NewBusDispatcher(a.eventPublisher)),
		uow.WithLogger(logrus.NewEntry(a.logger)),
	}
	a.units = uow.NewManager(a.store, a.registry, append(opts, a.uowOptions...)...)

	for _, m := range modules {
		if err := m.Register(a); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
		a.modules = append(a.modules, m)
		a.logger.WithField("module", m.Name()).Debug("module registered")
	}
	return nil
}
