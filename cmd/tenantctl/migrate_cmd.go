package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenantkit/migrations"
	"github.com/iota-uz/tenantkit/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.AddCommand(
		newMigrateSubCmd("up", "Apply all pending migrations", func(cmd *cobra.Command, m *migrations.Migrator) error {
			versions, err := m.Up(cmd.Context())
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
			}
			for _, v := range versions {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %05d\n", v)
			}
			return nil
		}),
		newMigrateSubCmd("down", "Roll back the most recent migration", func(cmd *cobra.Command, m *migrations.Migrator) error {
			v, err := m.Down(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %05d\n", v)
			return nil
		}),
		newMigrateSubCmd("status", "Show applied and pending migrations", func(cmd *cobra.Command, m *migrations.Migrator) error {
			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%05d %-8s %s\n", s.Version, state, s.Path)
			}
			return nil
		}),
	)
	return cmd
}

func newMigrateSubCmd(use, short string, run func(*cobra.Command, *migrations.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configuration.Load()
			if err != nil {
				return err
			}
			pool, err := connectDB(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()

			db := stdlib.OpenDBFromPool(pool)
			defer db.Close()
			m, err := migrations.New(db)
			if err != nil {
				return err
			}
			return run(cmd, m)
		},
	}
}
