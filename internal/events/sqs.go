package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imrishuroy/grocery-orderflow/internal/aws"
)

// SQSPublisher sends events as JSON to an SQS queue.
type SQSPublisher struct {
	queue *aws.QueuePublisher
}

var _ Publisher = (*SQSPublisher)(nil)

// NewSQSPublisher binds a publisher to queueURL.
func NewSQSPublisher(client aws.SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{queue: aws.NewQueuePublisher(client, queueURL)}
}

func (p *SQSPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.queue.Send(ctx, string(body), map[string]string{
		"event_id":   e.ID,
		"event_type": string(e.Type),
		"order_id":   e.OrderID,
	})
}
