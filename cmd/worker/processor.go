package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/imrishuroy/grocery-orderflow/internal/aws"
	"github.com/imrishuroy/grocery-orderflow/internal/events"
	"github.com/imrishuroy/grocery-orderflow/internal/idempotency"
)

// errInFlight means another delivery of the same event holds a live claim.
// The claim is a lease, so a redelivery after a crash can take it over.
var errInFlight = errors.New("event is being processed by another delivery")

// Processor turns order events into CloudWatch metrics, once per event id.
type Processor struct {
	idem      idempotency.Repository
	metrics   aws.CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewProcessor creates a worker processor with its dependencies injected.
func NewProcessor(idem idempotency.Repository, metrics aws.CloudWatchAPI, namespace string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{idem: idem, metrics: metrics, namespace: namespace, logger: logger}
}

// Handle processes an SQS batch. Failed records are reported individually
// so SQS redelivers only those.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var resp lambdaevents.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				lambdaevents.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var e events.Event
	if err := json.Unmarshal([]byte(rec.Body), &e); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	return p.Process(ctx, e)
}

// Process records metrics for e unless an earlier delivery already did.
func (p *Processor) Process(ctx context.Context, e events.Event) error {
	if e.ID == "" {
		return errors.New("event has no id")
	}
	log := p.logger.With("event_id", e.ID, "type", e.Type, "order_id", e.OrderID)

	created, err := p.idem.CreateIfNotExists(ctx, e.ID, e.OrderID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		rec, err := p.idem.Get(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("load claim: %w", err)
		}
		if rec != nil && rec.Status == idempotency.StatusDone {
			log.Info("skipping duplicate event")
			return nil
		}
		return errInFlight
	}

	if data := metricsFor(e); len(data) > 0 {
		_, err = p.metrics.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  &p.namespace,
			MetricData: data,
		})
		if err != nil {
			if merr := p.idem.MarkFailed(ctx, e.ID, err.Error()); merr != nil {
				log.Warn("failed to mark event failed", "error", merr)
			}
			return fmt.Errorf("put metric data: %w", err)
		}
	}

	if err := p.idem.MarkDone(ctx, e.ID, "", 0); err != nil {
		return fmt.Errorf("failed to update idempotency: %w", err)
	}
	log.Info("event processed")
	return nil
}
