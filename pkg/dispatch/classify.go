// Package dispatch routes request record mutations to workflow starts. It
// consumes change-feed batches, classifies each event from the old/new
// image diff alone, and starts at most one workflow per event.
package dispatch

import (
	"time"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
	"github.com/team-access/team/pkg/workflow"
)

// Classify maps one change event to the workflow it should start, or
// ok=false for events that start nothing (field-only edits, terminal
// writebacks from the machines themselves).
//
// The decision depends only on the event's old/new images and the clock:
// delivery is at-least-once, so a redelivered event must reproduce the
// same decision, and the machines' read-before-act guards make the
// duplicate start harmless.
func Classify(ev storage.ChangeEvent, now time.Time) (kind workflow.Kind, ok bool) {
	n := ev.New

	if ev.Old == nil {
		// insert: a brand-new request from the UI/API
		switch n.Status {
		case request.StatusPending:
			if n.ApprovalRequired {
				return workflow.KindApproval, true
			}
			return grantOrSchedule(n, now), true
		case request.StatusApproved:
			// pre-approved (auto-approval policy evaluated upstream)
			return grantOrSchedule(n, now), true
		case request.StatusScheduled:
			return workflow.KindSchedule, true
		}
		return "", false
	}

	old := *ev.Old
	if old.Status == n.Status {
		// comment edits, approver list updates and the machines' own
		// timestamp writes: a manual revoke is the one status-preserving
		// mutation that acts, recognisable by the revoker appearing.
		if n.Revoker != "" && old.Revoker == "" && !n.Status.Terminal() {
			return workflow.KindRevoke, true
		}
		return "", false
	}

	switch n.Status {
	case request.StatusApproved:
		return grantOrSchedule(n, now), true
	case request.StatusRejected, request.StatusCancelled:
		return workflow.KindReject, true
	case request.StatusRevoked:
		// externally forced revoke; the revoke machine's status read makes
		// a replay or an already-completed revoke a no-op
		return workflow.KindRevoke, true
	}
	return "", false
}

func grantOrSchedule(r request.Request, now time.Time) workflow.Kind {
	if r.StartTime.After(now) {
		return workflow.KindSchedule
	}
	return workflow.KindGrant
}
