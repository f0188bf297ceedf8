package notify

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/slack-go/slack"

	"github.com/team-access/team/pkg/settings"
)

// Router sends each event to every channel enabled in settings. Settings
// are read per send, so channel toggles apply immediately rather than at
// the next restart. Per-channel failures are logged and the send continues;
// the returned error reports only a total failure.
type Router struct {
	settings settings.Reader
	sns      *sns.Client
	ses      *sesv2.Client
	topicARN string

	// newSlack is swapped out in tests
	newSlack func(token string) slackPoster
}

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

func NewRouter(cfg aws.Config, reader settings.Reader, topicARN string) *Router {
	return &Router{
		settings: reader,
		sns:      sns.NewFromConfig(cfg),
		ses:      sesv2.NewFromConfig(cfg),
		topicARN: topicARN,
		newSlack: func(token string) slackPoster { return slack.New(token) },
	}
}

func (r *Router) Notify(ctx context.Context, ev Event) error {
	cfg, err := r.settings.Current(ctx)
	if err != nil {
		return errors.Wrap(err, "reading settings for notification")
	}

	attempted, failed := 0, 0
	if cfg.SNSNotificationsEnabled && r.topicARN != "" {
		attempted++
		if err := r.publishSNS(ctx, ev); err != nil {
			failed++
			clio.Errorw("publishing notification to sns", "request", ev.Request.ID, "event", ev.Type, "error", err)
		}
	}
	if cfg.SESNotificationsEnabled && cfg.SESSourceEmail != "" {
		attempted++
		if err := r.sendEmail(ctx, cfg.SESSourceEmail, cfg.SESSourceARN, ev); err != nil {
			failed++
			clio.Errorw("sending notification email", "request", ev.Request.ID, "event", ev.Type, "error", err)
		}
	}
	if cfg.SlackNotificationsEnabled && cfg.SlackToken != "" && cfg.SlackAuditChannel != "" {
		attempted++
		if err := r.postSlack(ctx, cfg.SlackToken, cfg.SlackAuditChannel, ev); err != nil {
			failed++
			clio.Errorw("posting notification to slack", "request", ev.Request.ID, "event", ev.Type, "error", err)
		}
	}
	if attempted > 0 && failed == attempted {
		return errors.Errorf("all %d notification channels failed for request %s", attempted, ev.Request.ID)
	}
	return nil
}

func (r *Router) publishSNS(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(map[string]any{
		"eventType": ev.Type,
		"request":   ev.Request,
		"error":     ev.Error,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling notification payload")
	}
	_, err = r.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: &r.topicARN,
		Subject:  aws.String(Subject(ev)),
		Message:  aws.String(string(payload)),
	})
	return err
}

func (r *Router) sendEmail(ctx context.Context, source, sourceARN string, ev Event) error {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: &source,
		Destination:      &sestypes.Destination{ToAddresses: Recipients(ev)},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(Subject(ev))},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(Body(ev))},
				},
			},
		},
	}
	if sourceARN != "" {
		in.FromEmailAddressIdentityArn = &sourceARN
	}
	_, err := r.ses.SendEmail(ctx, in)
	return err
}

func (r *Router) postSlack(ctx context.Context, token, channel string, ev Event) error {
	_, _, err := r.newSlack(token).PostMessageContext(ctx, channel,
		slack.MsgOptionText(Subject(ev)+"\n"+Body(ev), false))
	return err
}
