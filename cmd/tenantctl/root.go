package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Tenant directory, schema and outbox operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVerifySchemaCmd())
	cmd.AddCommand(newRelayCmd())
	cmd.AddCommand(newProvisionTenantCmd())
	cmd.AddCommand(newDemoCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
