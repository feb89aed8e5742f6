package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
	"github.com/iota-uz/tenantkit/modules/tenants/services"
	"github.com/iota-uz/tenantkit/pkg/composables"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

func newProvisionTenantCmd() *cobra.Command {
	var (
		slug     string
		name     string
		settings string
	)

	cmd := &cobra.Command{
		Use:   "provision-tenant",
		Short: "Create a tenant in the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dto := &tenant.ProvisionDTO{Slug: slug, Name: name}
			if settings != "" {
				dto.Settings = json.RawMessage(settings)
			}
			dto.Normalize()
			if errs, ok := dto.Ok(); !ok {
				return fmt.Errorf("invalid tenant: %v", errs)
			}

			app, _, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.DB().Close()

			ctx := composables.WithTenantContext(cmd.Context(), tenancy.SystemWide())
			svc := app.Service(services.TenantService{}).(*services.TenantService)
			created, err := svc.Provision(ctx, dto)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(created)
		},
	}
	cmd.Flags().StringVar(&slug, "slug", "", "Tenant slug (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&settings, "settings", "", "Settings as a JSON object")
	_ = cmd.MarkFlagRequired("slug")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
