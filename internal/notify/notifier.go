// Package notify is the outbound-notification boundary. The core never talks
// to the requester directly; it hands content to a Notifier and treats any
// error as a recoverable delivery failure.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/tradepost/marketcore/internal/aws"
)

// Notifier delivers content to a requester. Implementations must return an
// error on failure and never block indefinitely; the caller decides whether
// to queue a retry.
type Notifier interface {
	Deliver(ctx context.Context, requesterID, content string) error
}

// Message is the payload placed on the outbound queue for the front end to
// render as a direct message.
type Message struct {
	RequesterID string `json:"requester_id"`
	Content     string `json:"content"`
}

// QueueNotifier publishes delivery messages to an SQS queue consumed by the
// front end.
type QueueNotifier struct {
	SQS      aws.SQSAPI
	QueueURL string
}

// NewQueueNotifier returns a QueueNotifier bound to a queue URL.
func NewQueueNotifier(sqsClient aws.SQSAPI, queueURL string) *QueueNotifier {
	return &QueueNotifier{SQS: sqsClient, QueueURL: queueURL}
}

// Deliver publishes one notification. The requester id rides along as a
// message attribute so the front end can route without parsing the body.
func (n *QueueNotifier) Deliver(ctx context.Context, requesterID, content string) error {
	body, err := json.Marshal(Message{RequesterID: requesterID, Content: content})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	bodyStr := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &n.QueueURL,
		MessageBody: &bodyStr,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"requester_id": {
				DataType:    awsString("String"),
				StringValue: &requesterID,
			},
		},
	}
	if _, err := n.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
