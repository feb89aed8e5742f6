package application

import (
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
	"github.com/iota-uz/tenantkit/pkg/isolation"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Name() string
	Register(app Application) error
}

// EntityModule owns tenant-scoped entity types. RegisterEntities runs for
// every module before any Register call, while the registry is still open.
// Entities returns one zero value per owned type; loading fails if any of
// them was left unregistered.
type EntityModule interface {
	Module
	RegisterEntities(registry *isolation.Registry)
	Entities() []entity.Entity
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Registry() *isolation.Registry
	UnitOfWork() *uow.Manager
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	Modules() []Module
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
}
