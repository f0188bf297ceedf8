package notify

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/settings"
	"github.com/team-access/team/pkg/storage"
)

func TestRecipients(t *testing.T) {
	r := request.Request{Email: "dev@example.com", Approvers: []string{"a@example.com", "b@example.com"}}

	assert.Equal(t, []string{"a@example.com", "b@example.com"},
		Recipients(Event{Type: EventApprovalPending, Request: r}))
	assert.Equal(t, []string{"dev@example.com"},
		Recipients(Event{Type: EventStarted, Request: r}))

	// no candidate approvers recorded yet, fall back to the requester
	r.Approvers = nil
	assert.Equal(t, []string{"dev@example.com"},
		Recipients(Event{Type: EventApprovalPending, Request: r}))
}

func TestSubjectCarriesErrorDetail(t *testing.T) {
	ev := Event{
		Type:    EventError,
		Request: request.Request{AccountName: "prod", Role: "AdminAccess"},
		Error:   "ValidationException",
	}
	assert.Contains(t, Subject(ev), "ValidationException")
	assert.Contains(t, Subject(ev), "prod/AdminAccess")
}

type fakeSlack struct {
	channels []string
	err      error
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	return channelID, "ts", f.err
}

func slackOnlySettings() *storage.Memory {
	mem := storage.NewMemory()
	mem.PutSettings(request.Settings{
		SlackNotificationsEnabled: true,
		SlackToken:                "xoxb-test",
		SlackAuditChannel:         "C012AB3CD",
	})
	return mem
}

func TestRouterPostsToSlack(t *testing.T) {
	poster := &fakeSlack{}
	r := &Router{
		settings: settings.NewService(slackOnlySettings()),
		newSlack: func(token string) slackPoster { return poster },
	}

	ev := Event{Type: EventStarted, Request: request.Request{ID: "r1", AccountName: "prod", Role: "AdminAccess"}}
	require.NoError(t, r.Notify(context.Background(), ev))
	require.Len(t, poster.channels, 1)
	assert.Equal(t, "C012AB3CD", poster.channels[0])
}

func TestRouterReportsTotalFailureOnly(t *testing.T) {
	poster := &fakeSlack{err: errors.New("channel_not_found")}
	r := &Router{
		settings: settings.NewService(slackOnlySettings()),
		newSlack: func(token string) slackPoster { return poster },
	}

	err := r.Notify(context.Background(), Event{Type: EventStarted, Request: request.Request{ID: "r1"}})
	assert.Error(t, err, "every attempted channel failed")
}

func TestRouterNoChannelsEnabledIsANoOp(t *testing.T) {
	mem := storage.NewMemory()
	mem.PutSettings(request.Settings{})
	r := &Router{settings: settings.NewService(mem)}

	assert.NoError(t, r.Notify(context.Background(), Event{Type: EventStarted}))
}
