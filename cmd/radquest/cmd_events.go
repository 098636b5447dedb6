package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/radquest/radquest/internal/config"
	"github.com/radquest/radquest/internal/queue"
)

// cmdEvents follows game events published by the daemon to RabbitMQ
func cmdEvents(w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("no RabbitMQ configured (set rabbitmq.url or RADQUEST_RABBITMQ_URL)")
	}

	conn, err := queue.NewConnection(cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumer := queue.NewConsumer(conn, printEnvelope(w), queue.DefaultConsumerConfig())
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "Waiting for events (Ctrl+C to stop)...")

	<-ctx.Done()
	consumer.Stop()
	return nil
}

func printEnvelope(w io.Writer) queue.EnvelopeHandler {
	return func(_ context.Context, env *queue.Envelope) error {
		_, err := fmt.Fprintf(w, "%s  %-16s %-12s %s\n",
			env.OccurredAt.Local().Format("15:04:05"), env.Type, env.PlayerID, env.Payload)
		return err
	}
}
