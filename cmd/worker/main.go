// Command worker consumes order events and publishes CloudWatch metrics.
// It runs as an SQS-triggered Lambda, or as a RabbitMQ consumer when
// events.driver is amqp.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/grocery-orderflow/internal/aws"
	"github.com/imrishuroy/grocery-orderflow/internal/config"
	"github.com/imrishuroy/grocery-orderflow/internal/events"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
	"github.com/imrishuroy/grocery-orderflow/internal/storage/mongo"
)

const defaultQueue = "order-metrics"

// claimLease bounds how long a crashed delivery can hold an event's claim.
// It must exceed the Lambda timeout.
const claimLease = 5 * time.Minute

func main() {
	var configPath string
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Consume order events and publish CloudWatch metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")

	if err := cmd.Execute(); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to init aws clients: %w", err)
	}

	var idem idempotency.Repository
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			return err
		}
		defer store.Close(context.Background())
		idem = store.Idempotency(cfg.Idempotency.TTL).WithLease(claimLease)
	default:
		idem = idempotency.NewStore(clients.DynamoDB, cfg.Storage.DynamoDB.IdempotencyTable, cfg.Idempotency.TTL).WithLease(claimLease)
	}

	p := NewProcessor(idem, clients.CloudWatch, cfg.Metrics.Namespace, logger)

	if cfg.Events.Driver == config.EventsAMQP {
		queue := os.Getenv("WORKER_QUEUE")
		if queue == "" {
			queue = defaultQueue
		}
		consumer, err := events.DialAMQPConsumer(cfg.Events.AMQPURL, cfg.Events.Exchange, queue, 10, "order.#")
		if err != nil {
			return err
		}
		defer consumer.Close()
		logger.Info("consuming order events", "queue", queue)
		if err := consumer.Run(ctx, p.Process); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	// RUN_LOCAL processes a single message body from LOCAL_SQS_BODY.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			return fmt.Errorf("LOCAL_SQS_BODY is required when RUN_LOCAL is set")
		}
		resp, _ := p.Handle(ctx, lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{{MessageId: "local", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			return fmt.Errorf("local message failed")
		}
		return nil
	}

	lambda.Start(p.Handle)
	return nil
}
