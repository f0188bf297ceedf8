package dispatch

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/storage"
)

// DeadLetter receives events the dispatcher could not route after
// exhausting its retries.
type DeadLetter interface {
	Publish(ctx context.Context, ev storage.ChangeEvent, cause error) error
}

// SQSDeadLetter publishes undispatchable events to an operator-monitored
// queue.
type SQSDeadLetter struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSDeadLetter(cfg aws.Config, queueURL string) *SQSDeadLetter {
	return &SQSDeadLetter{client: sqs.NewFromConfig(cfg), queueURL: queueURL}
}

func (d *SQSDeadLetter) Publish(ctx context.Context, ev storage.ChangeEvent, cause error) error {
	body, err := json.Marshal(map[string]any{
		"old":   ev.Old,
		"new":   ev.New,
		"error": cause.Error(),
	})
	if err != nil {
		return errors.Wrap(err, "marshalling dead letter")
	}
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &d.queueURL,
		MessageBody: aws.String(string(body)),
	})
	return errors.Wrap(err, "sending dead letter")
}

// LogDeadLetter is the fallback when no queue is configured: the event is
// at least visible in the logs.
type LogDeadLetter struct{}

func (LogDeadLetter) Publish(ctx context.Context, ev storage.ChangeEvent, cause error) error {
	clio.Errorw("undispatchable change event", "request", ev.New.ID, "status", ev.New.Status, "error", cause)
	return nil
}
