package server

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/configuration"
	"github.com/iota-uz/tenantkit/pkg/outbox"
	eventbusdispatcher "github.com/iota-uz/tenantkit/pkg/outbox/dispatchers/eventbus"
	kafkadispatcher "github.com/iota-uz/tenantkit/pkg/outbox/dispatchers/kafka"
)

// Worker is a long-running background loop.
type Worker interface {
	Run(ctx context.Context) error
}

// OutboxWorkers builds one relay and one cleaner per configured table. The
// returned closer releases the dispatcher's resources.
func OutboxWorkers(conf *configuration.Configuration, app application.Application) ([]Worker, io.Closer, error) {
	log := logrus.NewEntry(app.Logger()).WithField("component", "outbox")

	tables, err := outbox.ParseIdentifierList(conf.Outbox.RelayTables)
	if err != nil {
		return nil, nil, err
	}
	if len(tables) == 0 {
		log.Info("outbox: no tables configured")
		return nil, nopCloser{}, nil
	}

	var (
		dispatcher outbox.Dispatcher
		closer     io.Closer = nopCloser{}
	)
	switch conf.Outbox.RelaySink {
	case "kafka":
		k := kafkadispatcher.New(kafkadispatcher.NewWriter(kafkadispatcher.Params{
			Brokers: conf.Kafka.Brokers,
			Topic:   conf.Kafka.Topic,
		}))
		dispatcher, closer = k, k
	default:
		dispatcher = eventbusdispatcher.New(app.EventPublisher())
	}

	var workers []Worker
	for _, table := range tables {
		tableLog := log.WithField("table", outbox.TableLabel(table))
		if conf.Outbox.RelayEnabled {
			relay, err := outbox.NewRelay(app.DB(), table, dispatcher, outbox.RelayOptions{
				PollInterval:    conf.Outbox.RelayPollInterval,
				BatchSize:       conf.Outbox.RelayBatchSize,
				LockTTL:         conf.Outbox.RelayLockTTL,
				MaxAttempts:     conf.Outbox.RelayMaxAttempts,
				SingleActive:    conf.Outbox.RelaySingleActive,
				LastErrorMaxLen: conf.Outbox.LastErrorMaxBytes,
				DispatchTimeout: conf.Outbox.RelayDispatchTimeout,
				Logger:          tableLog,
			})
			if err != nil {
				_ = closer.Close()
				return nil, nil, err
			}
			workers = append(workers, relay)
		}
		if conf.Outbox.CleanerEnabled {
			cleaner, err := outbox.NewCleaner(app.DB(), table, outbox.CleanerOptions{
				Enabled:               true,
				Interval:              conf.Outbox.CleanerInterval,
				Retention:             conf.Outbox.CleanerRetention,
				DeadRetention:         conf.Outbox.CleanerDeadRetention,
				DeadAttemptsThreshold: conf.Outbox.CleanerDeadAttempts,
				Logger:                tableLog,
			})
			if err != nil {
				_ = closer.Close()
				return nil, nil, err
			}
			workers = append(workers, cleaner)
		}
	}
	return workers, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
