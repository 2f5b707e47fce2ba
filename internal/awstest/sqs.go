package awstest

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SentMessage captures a single SendMessage call.
type SentMessage struct {
	QueueURL   string
	Body       string
	Attributes map[string]string
}

// SQS records sent messages and can be told to fail, to exercise the
// delivery-failure paths.
type SQS struct {
	mu       sync.Mutex
	Sent     []SentMessage
	FailNext bool
	FailAll  bool
}

func (s *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll || s.FailNext {
		s.FailNext = false
		return nil, errors.New("simulated send failure")
	}
	msg := SentMessage{Attributes: map[string]string{}}
	if params.QueueUrl != nil {
		msg.QueueURL = *params.QueueUrl
	}
	if params.MessageBody != nil {
		msg.Body = *params.MessageBody
	}
	for k, v := range params.MessageAttributes {
		if v.StringValue != nil {
			msg.Attributes[k] = *v.StringValue
		}
	}
	s.Sent = append(s.Sent, msg)
	return &sqs.SendMessageOutput{}, nil
}

// CloudWatch records PutMetricData calls.
type CloudWatch struct {
	mu    sync.Mutex
	Calls []*cloudwatch.PutMetricDataInput
}

func (c *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}
