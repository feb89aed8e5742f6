package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantkit/modules/projects"
	"github.com/iota-uz/tenantkit/modules/projects/domain/project"
	"github.com/iota-uz/tenantkit/modules/projects/services"
	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/store/memstore"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through isolation, auditing and concurrency against an in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runDemo(ctx context.Context, out io.Writer) error {
	log := logrus.New()
	log.SetOutput(io.Discard)

	app := application.New(&application.ApplicationOptions{Store: memstore.New(), Logger: log})
	if err := application.LoadModules(app, projects.NewModule(nil)); err != nil {
		return err
	}
	app.EventPublisher().Subscribe(func(_ context.Context, e entity.Event) error {
		fmt.Fprintf(out, "  event %s tenant=%s entity=%s\n", e.Kind, e.TenantID, e.EntityID)
		return nil
	})
	svc := app.Service(services.ProjectService{}).(*services.ProjectService)

	tenantA, tenantB := uuid.New(), uuid.New()
	asA := composables.WithTenantContext(ctx, tenancy.Context{TenantID: tenantA, ActorID: "alice"})
	asB := composables.WithTenantContext(ctx, tenancy.Context{TenantID: tenantB, ActorID: "bob"})

	fmt.Fprintln(out, "create under tenant A")
	p, err := svc.Create(asA, &project.CreateDTO{Name: "Acme Job", Code: "ACME"})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  id=%s tenant=%s created_by=%s version=%s\n", p.ID, p.TenantID, p.CreatedBy, p.Version)

	fmt.Fprintln(out, "read under tenant B")
	if _, err := svc.GetByID(asB, p.ID); !errors.Is(err, uow.ErrNotFound) {
		return fmt.Errorf("expected not found under tenant B, got %v", err)
	}
	fmt.Fprintln(out, "  not found")

	fmt.Fprintln(out, "rename with a stale version")
	stale := uuid.UUID(p.Version)
	name := "Acme Job (phase 2)"
	renamed, err := svc.Update(asA, p.ID, stale, &project.UpdateDTO{Name: &name})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  renamed by=%s version=%s\n", deref(renamed.UpdatedBy), renamed.Version)
	if _, err := svc.Update(asA, p.ID, stale, &project.UpdateDTO{Name: &name}); !errors.Is(err, uow.ErrConcurrencyConflict) {
		return fmt.Errorf("expected concurrency conflict, got %v", err)
	}
	fmt.Fprintln(out, "  second write with the old version rejected")

	fmt.Fprintln(out, "archive")
	if err := svc.Archive(asA, p.ID, uuid.UUID(renamed.Version)); err != nil {
		return err
	}
	if _, err := svc.GetByID(asA, p.ID); !errors.Is(err, uow.ErrNotFound) {
		return fmt.Errorf("expected archived project to be hidden, got %v", err)
	}
	fmt.Fprintln(out, "  hidden from default reads")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
