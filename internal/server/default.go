package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/configuration"
	"github.com/iota-uz/tenantkit/pkg/httpapi"
	"github.com/iota-uz/tenantkit/pkg/middleware"
	"github.com/iota-uz/tenantkit/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
}

// Default registers the request middleware on the application and builds
// the HTTP server for its controllers.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	conf := options.Configuration
	loggerOpts := middleware.DefaultLoggerOptions()
	if conf.RequestIDHeader != "" {
		loggerOpts.RequestIDHeader = conf.RequestIDHeader
	}
	if conf.RealIPHeader != "" {
		loggerOpts.RealIPHeader = conf.RealIPHeader
	}

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),
	}
	if len(conf.CORS.AllowedOrigins) > 0 {
		middlewares = append(middlewares, middleware.Cors(conf.CORS.AllowedOrigins...))
	}
	options.Application.RegisterMiddleware(middlewares...)

	return server.NewHTTPServer(
		options.Application,
		http.HandlerFunc(notFound),
		http.HandlerFunc(methodNotAllowed),
	), nil
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}

