package workflow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
)

// Reject machine: pure notification fan-out for the two terminal statuses
// that end a request before any access is granted. Cancelled means the
// requester withdrew it; rejected means an approver declined it.
const (
	stateRejectBranch          = "BranchOnStatus"
	stateRejectNotifyCancelled = "NotifyCancelled"
	stateRejectNotifyRejected  = "NotifyRejected"
)

type RejectMachine struct {
	deps *Deps
}

func NewRejectMachine(deps *Deps) *RejectMachine { return &RejectMachine{deps: deps} }

func (m *RejectMachine) Kind() Kind      { return KindReject }
func (m *RejectMachine) Initial() string { return stateRejectBranch }

func (m *RejectMachine) Step(ctx context.Context, ex *Execution) (Outcome, error) {
	switch ex.State {
	case stateRejectBranch:
		if ex.Req.Status == request.StatusCancelled {
			return Outcome{Next: stateRejectNotifyCancelled}, nil
		}
		return Outcome{Next: stateRejectNotifyRejected}, nil

	case stateRejectNotifyCancelled:
		m.deps.notify(ctx, notify.Event{Type: notify.EventCancelled, Request: ex.Req})
		return Outcome{Done: true}, nil

	case stateRejectNotifyRejected:
		m.deps.notify(ctx, notify.Event{Type: notify.EventRejected, Request: ex.Req})
		return Outcome{Done: true}, nil
	}
	return Outcome{}, errors.Errorf("reject machine: unknown state %q", ex.State)
}
