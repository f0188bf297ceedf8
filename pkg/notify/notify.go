// Package notify fans lifecycle events out to the channels enabled in
// settings. Notifications are best effort: callers log failures and move
// on, a dropped message never blocks a grant or revoke.
package notify

import (
	"context"
	"fmt"

	"github.com/team-access/team/pkg/request"
)

type EventType string

const (
	EventApprovalPending EventType = "approval_pending"
	EventScheduled       EventType = "scheduled"
	EventStarted         EventType = "started"
	EventEnded           EventType = "ended"
	EventRejected        EventType = "rejected"
	EventCancelled       EventType = "cancelled"
	EventExpired         EventType = "expired"
	EventError           EventType = "error"
)

// Event is one lifecycle notification.
type Event struct {
	Type    EventType
	Request request.Request

	// Error carries the failure detail for EventError.
	Error string
}

// Notifier delivers an event. Implementations are fire-and-forget from the
// workflow's perspective; the returned error exists for logging only.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Subject returns the human-readable summary line for an event.
func Subject(ev Event) string {
	r := ev.Request
	switch ev.Type {
	case EventApprovalPending:
		return fmt.Sprintf("Access request from %s for %s/%s needs approval", r.Email, r.AccountName, r.Role)
	case EventScheduled:
		return fmt.Sprintf("Access to %s/%s scheduled for %s", r.AccountName, r.Role, r.StartTime.Format("2006-01-02 15:04 MST"))
	case EventStarted:
		return fmt.Sprintf("Access to %s/%s has started", r.AccountName, r.Role)
	case EventEnded:
		return fmt.Sprintf("Access to %s/%s has ended", r.AccountName, r.Role)
	case EventRejected:
		return fmt.Sprintf("Access request for %s/%s was rejected", r.AccountName, r.Role)
	case EventCancelled:
		return fmt.Sprintf("Access request for %s/%s was cancelled", r.AccountName, r.Role)
	case EventExpired:
		return fmt.Sprintf("Access request for %s/%s expired without approval", r.AccountName, r.Role)
	case EventError:
		return fmt.Sprintf("Access request for %s/%s failed: %s", r.AccountName, r.Role, ev.Error)
	}
	return fmt.Sprintf("Access request %s updated", r.ID)
}

// Body returns the notification body text.
func Body(ev Event) string {
	r := ev.Request
	body := fmt.Sprintf("Request %s\nRequester: %s (%s)\nAccount: %s (%s)\nRole: %s\nDuration: %s hours\nJustification: %s",
		r.ID, r.Username, r.Email, r.AccountName, r.AccountID, r.Role, r.Duration, r.Justification)
	if r.TicketNo != "" {
		body += fmt.Sprintf("\nTicket: %s", r.TicketNo)
	}
	if ev.Error != "" {
		body += fmt.Sprintf("\nError: %s", ev.Error)
	}
	return body
}

// Recipients returns the email addresses an event should reach. Approval
// requests go to the candidate approvers, everything else to the requester.
func Recipients(ev Event) []string {
	if ev.Type == EventApprovalPending && len(ev.Request.Approvers) > 0 {
		return ev.Request.Approvers
	}
	return []string{ev.Request.Email}
}
