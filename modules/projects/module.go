package projects

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/modules/projects/handlers"
	"github.com/iota-uz/tenantkit/modules/projects/infrastructure/persistence"
	"github.com/iota-uz/tenantkit/modules/projects/presentation/controllers"
	"github.com/iota-uz/tenantkit/modules/projects/services"
	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/httpapi"
	"github.com/iota-uz/tenantkit/pkg/isolation"
)

type ModuleOptions struct {
	// Identity resolves the tenant context for API requests.
	Identity mux.MiddlewareFunc
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options  *ModuleOptions
	projects isolation.Type[*project.Project]
}

func (m *Module) RegisterEntities(registry *isolation.Registry) {
	m.projects = persistence.Register(registry)
}

func (m *Module) Entities() []entity.Entity {
	return []entity.Entity{&project.Project{}}
}

func (m *Module) Register(app application.Application) error {
	httpapi.RegisterStatus(project.ErrCodeTaken, http.StatusConflict)
	httpapi.RegisterStatus(project.ErrCycle, http.StatusUnprocessableEntity)
	httpapi.RegisterStatus(project.ErrParentNotFound, http.StatusUnprocessableEntity)

	app.RegisterServices(services.NewProjectService(app.UnitOfWork(), m.projects))
	handlers.RegisterProjectEventsHandler(app.EventPublisher(), logrus.NewEntry(app.Logger()))

	if m.options.Identity != nil {
		app.RegisterControllers(controllers.NewProjectAPIController(app, m.options.Identity))
	}
	return nil
}

func (m *Module) Name() string {
	return "projects"
}
