package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/tenantkit/internal/server"
	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/configuration"
)

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := server.OpenPool(ctx, conf, conf.Logger())
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	return pool, nil
}

// loadApp connects and loads the built-in modules. The caller closes the
// returned pool.
func loadApp(ctx context.Context) (application.Application, *configuration.Configuration, error) {
	conf, err := configuration.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := connectDB(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	app, err := server.NewApplication(&server.AppOptions{
		Configuration: conf,
		Logger:        conf.Logger(),
		Pool:          pool,
	})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return app, conf, nil
}
