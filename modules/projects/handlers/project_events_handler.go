package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/eventbus"
)

var projectEventsTotal = sync.OnceValue(func() *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantkit_project_events_total",
		Help: "Committed project events observed by the projects module.",
	}, []string{"kind"})
})

// ProjectEventsHandler records committed project events. It runs after the
// unit of work commits, or from the outbox relay in durable mode.
type ProjectEventsHandler struct {
	log *logrus.Entry
}

func RegisterProjectEventsHandler(publisher eventbus.EventBus, log *logrus.Entry) *ProjectEventsHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &ProjectEventsHandler{log: log.WithField("component", "project-events")}
	publisher.Subscribe(h.onEvent)
	return h
}

func (h *ProjectEventsHandler) onEvent(ctx context.Context, e entity.Event) error {
	if e.EntityKind != project.Kind {
		return nil
	}
	projectEventsTotal().WithLabelValues(strings.TrimPrefix(e.Kind, project.Kind+".")).Inc()

	fields := logrus.Fields{
		"event_id":   e.ID,
		"event_kind": e.Kind,
		"project_id": e.EntityID,
		"tenant_id":  e.TenantID,
	}
	if requestID := composables.UseRequestID(ctx); requestID != "" {
		fields["request-id"] = requestID
	}
	h.log.WithFields(fields).Info("project event committed")
	return nil
}
