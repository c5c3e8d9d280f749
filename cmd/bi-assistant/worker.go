package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/bi-assistant/internal/assistant"
	"github.com/suPer8Hu/bi-assistant/internal/store/rabbitmq"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued chat jobs from RabbitMQ",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.RabbitURL == "" {
		return errors.New("RABBIT_URL is required for the worker")
	}
	consumer, err := rabbitmq.NewConsumer(a.cfg.RabbitURL, a.cfg.RabbitQueue, a.cfg.WorkerConcurrency)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer consumer.Close()

	runner := assistant.NewJobRunner(a.repo, a.assistant)
	log.Printf("worker started queue=%s concurrency=%d", a.cfg.RabbitQueue, a.cfg.WorkerConcurrency)
	return consumer.Run(ctx, runner.Run)
}
