/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aussieverify/aussieverify/config"
	"github.com/aussieverify/aussieverify/internal/mailer"
	"github.com/aussieverify/aussieverify/internal/mq"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the reset-mail delivery worker",
	Long: `Consumes reset-mail jobs from the queue and delivers them over SMTP.
Usage:

	aussieverify worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		sender, err := mailer.New(cfg.Mail.SMTPAddr, cfg.Mail.From)
		if err != nil {
			return fmt.Errorf("configure mailer: %w", err)
		}

		backend, err := newWorkerBackend(cmd.Context(), cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		queue := mq.New(backend)
		defer func() {
			_ = queue.Close()
		}()

		log.Printf("worker consuming %s", mailer.Channel)
		return queue.Subscribe(cmd.Context(), mailer.Channel, func(ctx context.Context, msg mq.Message) error {
			job, err := mailer.DecodeJob(msg.Data)
			if err != nil {
				// Malformed jobs are dropped, not redelivered.
				log.Printf("dropping message %s: %v", msg.ID, err)
				return nil
			}
			if err := sender.Send(ctx, job); err != nil {
				log.Printf("deliver to %s failed: %v", job.To, err)
				return err
			}
			log.Printf("delivered reset mail to %s", job.To)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func newWorkerBackend(ctx context.Context, cfg config.MQConfig) (mq.Backend, error) {
	switch cfg.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQBackend(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubBackend(ctx, cfg.PubSub)
	case "":
		return nil, errors.New("MQ_BACKEND is required for the worker")
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
