package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantkit/internal/server"
)

func newVerifySchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-schema",
		Short: "Check registered tables for isolation columns, tenant index and row level security",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, conf, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.DB().Close()

			if err := server.VerifySchema(cmd.Context(), app, conf); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tables\n", len(app.Registry().Descriptors()))
			return nil
		},
	}
}
