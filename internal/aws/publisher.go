package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// QueuePublisher sends messages to a single SQS queue.
type QueuePublisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewQueuePublisher returns a QueuePublisher bound to queueURL.
func NewQueuePublisher(sqsClient SQSAPI, queueURL string) *QueuePublisher {
	return &QueuePublisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Send enqueues body. attributes are sent as String message attributes so
// consumers can route without decoding the body.
func (p *QueuePublisher) Send(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &body,
	}
	if len(attributes) > 0 {
		input.MessageAttributes = make(map[string]sqstypes.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			if v == "" {
				continue
			}
			input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
