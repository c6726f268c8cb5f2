package notify

import (
	"context"
	"encoding/json"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/pkg/errors"
)

// SqsForwarder publishes autoscaler events as JSON messages to an SQS queue. The event
// type is also set as the "EventType" message attribute.
type SqsForwarder struct {
	*eventQueue
	sqsClient sqsiface.SQSAPI
	queueUrl  string
}

func NewSqsForwarder(awsSession *session.Session, queueUrl string, queueSize int,
	skip []autoscaler.EventType) *SqsForwarder {
	return NewSqsForwarderWithClient(sqs.New(awsSession), queueUrl, queueSize, skip)
}

func NewSqsForwarderWithClient(sqsClient sqsiface.SQSAPI, queueUrl string, queueSize int,
	skip []autoscaler.EventType) *SqsForwarder {
	s := &SqsForwarder{sqsClient: sqsClient, queueUrl: queueUrl}
	s.eventQueue = newEventQueue("sqs", queueSize, skip, s.send)
	return s
}

func (s *SqsForwarder) send(ctx context.Context, e autoscaler.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "notify: marshal event failed")
	}
	_, err = s.sqsClient.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"EventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(e.Type)),
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "notify: sqs SendMessage failed for queue: %s", s.queueUrl)
	}
	return nil
}
