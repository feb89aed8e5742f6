package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/constants"
)

type Params struct {
	IP        string
	UserAgent string
	RequestID string
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// WithLogger returns a new context carrying the request-scoped logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context.
// Contexts without a logger get a standard-logger entry so background jobs
// can call it unconditionally.
func UseLogger(ctx context.Context) *logrus.Entry {
	logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry)
	if !ok || logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return logger
}

// UseRequestID returns the request id, or "" outside of a request.
func UseRequestID(ctx context.Context) string {
	params, ok := UseParams(ctx)
	if !ok {
		return ""
	}
	return params.RequestID
}
