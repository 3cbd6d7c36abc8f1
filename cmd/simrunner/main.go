// Command simrunner consumes run.started events and executes deterministic
// fleet simulation runs, publishing the full event stream.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/elektrokombinacija/amr-fleet/internal/config"
	"github.com/elektrokombinacija/amr-fleet/internal/event"
	"github.com/elektrokombinacija/amr-fleet/internal/mq"
	"github.com/elektrokombinacija/amr-fleet/internal/sim"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "sim-runner").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		if err := serve(ctx, cfg, log); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("consumer stopped, reconnecting")
			time.Sleep(2 * time.Second)
		}
	}
}

func serve(ctx context.Context, cfg config.Settings, log zerolog.Logger) error {
	conn, err := mq.Connect(ctx, cfg.RabbitURL(), log)
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher, err := mq.NewPublisher(conn, cfg.Exchange)
	if err != nil {
		return err
	}
	defer publisher.Close()

	runner := sim.NewRunner(cfg, publisher, log)
	runner.Pace = time.Second / time.Duration(cfg.SimTickHz)

	group, ctx := errgroup.WithContext(ctx)
	for _, sub := range []struct {
		queue string
		key   string
	}{
		{"sim.run_started", event.TypeRunStarted},
		{"sim.job_assigned", event.TypeJobAssigned},
	} {
		sub := sub
		group.Go(func() error {
			consumer, err := mq.NewConsumer(conn, cfg.Exchange, log)
			if err != nil {
				return err
			}
			defer consumer.Close()
			return consumer.Consume(ctx, sub.queue, []string{sub.key}, runner.HandleMessage)
		})
	}

	log.Info().Msg("sim-runner started")
	return group.Wait()
}
