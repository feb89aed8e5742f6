package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/modules/projects/presentation/mappers"
	"github.com/iota-uz/tenantkit/modules/projects/services"
	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/httpapi"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

type ProjectAPIController struct {
	projects *services.ProjectService
	identity mux.MiddlewareFunc
	basePath string
}

// NewProjectAPIController serves the projects JSON API. identity must put a
// tenant context on every request; routes never run without one.
func NewProjectAPIController(app application.Application, identity mux.MiddlewareFunc) application.Controller {
	return &ProjectAPIController{
		projects: app.Service(services.ProjectService{}).(*services.ProjectService),
		identity: identity,
		basePath: "/api/projects",
	}
}

func (c *ProjectAPIController) Key() string {
	return c.basePath
}

func (c *ProjectAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.Use(c.identity)
	router.HandleFunc("", c.List).Methods(http.MethodGet)
	router.HandleFunc("", c.Create).Methods(http.MethodPost)
	router.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/{id}", c.Update).Methods(http.MethodPatch)
	router.HandleFunc("/{id}", c.Archive).Methods(http.MethodDelete)
}

func (c *ProjectAPIController) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := &services.FindParams{
		Roots:    q.Get("roots") == "true",
		Archived: q.Get("archived") == "true",
		Limit:    intParam(q.Get("limit"), defaultPageSize, maxPageSize),
		Offset:   intParam(q.Get("offset"), 0, -1),
	}
	if raw := strings.TrimSpace(q.Get("parent_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeAPIError(w, r, http.StatusBadRequest, "PROJECT_INVALID_PARENT", "parent_id must be a UUID")
			return
		}
		params.ParentID = &id
	}

	items, total, err := c.projects.GetPaginated(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  mappers.ProjectsToViews(items),
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func (c *ProjectAPIController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := c.projects.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeProject(w, http.StatusOK, p)
}

func (c *ProjectAPIController) Create(w http.ResponseWriter, r *http.Request) {
	var dto project.CreateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "PROJECT_INVALID_JSON", "invalid json")
		return
	}
	if errs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidation(w, errs)
		return
	}
	created, err := c.projects.Create(r.Context(), &dto)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeProject(w, http.StatusCreated, created)
}

// Update requires If-Match with the version the client last saw.
func (c *ProjectAPIController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expected, ok := ifMatch(w, r)
	if !ok {
		return
	}
	var dto project.UpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "PROJECT_INVALID_JSON", "invalid json")
		return
	}
	if errs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidation(w, errs)
		return
	}
	updated, err := c.projects.Update(r.Context(), id, expected, &dto)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeProject(w, http.StatusOK, updated)
}

// Archive requires If-Match like Update.
func (c *ProjectAPIController) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expected, ok := ifMatch(w, r)
	if !ok {
		return
	}
	if err := c.projects.Archive(r.Context(), id, expected); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "PROJECT_INVALID_ID", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func ifMatch(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	expected, err := uuid.Parse(strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`))
	if err != nil {
		writeAPIError(w, r, http.StatusPreconditionRequired, "PROJECT_VERSION_REQUIRED", "If-Match must carry the project version")
		return uuid.Nil, false
	}
	return expected, true
}

func intParam(raw string, fallback, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fallback
	}
	if max > 0 && (n == 0 || n > max) {
		return fallback
	}
	return n
}

func writeProject(w http.ResponseWriter, status int, p *project.Project) {
	w.Header().Set("ETag", strconv.Quote(p.Version.String()))
	writeJSON(w, status, mappers.ProjectToView(p))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	_ = httpapi.WriteServiceError(w, composables.UseLogger(r.Context()), err)
}
