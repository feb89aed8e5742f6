package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/tenantkit/internal/server"
)

func newRelayCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the outbox relay and cleaner without the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, conf, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.DB().Close()

			conf.Outbox.RelayEnabled = true
			workers, closer, err := server.OutboxWorkers(conf, app)
			if err != nil {
				return err
			}
			defer closer.Close()

			if once {
				return drainOnce(cmd.Context(), workers)
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			for _, w := range workers {
				g.Go(func() error { return w.Run(ctx) })
			}
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch per table and exit")
	return cmd
}

type batchProcessor interface {
	ProcessOnce(ctx context.Context) (int, error)
}

func drainOnce(ctx context.Context, workers []server.Worker) error {
	for _, w := range workers {
		if p, ok := w.(batchProcessor); ok {
			if _, err := p.ProcessOnce(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
