package workflow

import (
	"context"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

// Grant machine: provision the assignment, checkpoint status and start
// time, notify, hold the access window open, then hand off to revoke.
//
//	GrantPermission -> UpdateStatusInProgress -> RecordStartTime
//	  -> NotifyError (grant failed)           -> terminal
//	  -> NotifyStarted -> Wait(duration) -> StartRevokeWorkflow
const (
	stateGrantPermission       = "GrantPermission"
	stateGrantUpdateInProgress = "UpdateStatusInProgress"
	stateGrantRecordStartTime  = "RecordStartTime"
	stateGrantNotifyError      = "NotifyError"
	stateGrantNotifyStarted    = "NotifyStarted"
	stateGrantStartRevoke      = "StartRevokeWorkflow"
)

type GrantMachine struct {
	deps *Deps
}

func NewGrantMachine(deps *Deps) *GrantMachine { return &GrantMachine{deps: deps} }

func (m *GrantMachine) Kind() Kind      { return KindGrant }
func (m *GrantMachine) Initial() string { return stateGrantPermission }

func (m *GrantMachine) Step(ctx context.Context, ex *Execution) (Outcome, error) {
	switch ex.State {
	case stateGrantPermission:
		// requests submitted by email alone get their principal id resolved
		// here, just before the assignment is made. A resolution failure is
		// captured the same way a provider failure is, so the request still
		// reaches status=error and an error notification.
		if ex.Req.UserID == "" && m.deps.Resolver != nil {
			userID, err := m.deps.Resolver.UserIDByEmail(ctx, ex.Req.Email)
			if err != nil {
				clio.Errorw("resolving principal", "request", ex.Req.ID, "email", ex.Req.Email, "error", err)
				ex.CapturedError = err.Error()
				return Outcome{Next: stateGrantUpdateInProgress}, nil
			}
			ex.Req.UserID = userID
		}
		// a failed grant is captured, not raised: the failure still has to
		// be recorded on the request and notified.
		if err := m.deps.Provider.Grant(ctx, m.deps.assignment(ex.Req)); err != nil {
			clio.Errorw("granting permission", "request", ex.Req.ID, "error", err)
			ex.CapturedError = err.Error()
		}
		return Outcome{Next: stateGrantUpdateInProgress}, nil

	case stateGrantUpdateInProgress:
		status := request.StatusInProgress
		if ex.CapturedError != "" {
			status = request.StatusError
		}
		m.deps.updateStatus(ctx, ex.Req.ID, storage.Fields{"status": status})
		ex.Req.Status = status
		return Outcome{Next: stateGrantRecordStartTime}, nil

	case stateGrantRecordStartTime:
		started := m.deps.now()
		m.deps.updateStatus(ctx, ex.Req.ID, storage.Fields{"startTime": started})
		ex.Req.StartTime = started
		if ex.CapturedError != "" {
			return Outcome{Next: stateGrantNotifyError}, nil
		}
		id, err := m.deps.Sessions.Open(ctx, ex.Req, started)
		if err != nil {
			clio.Errorw("opening audit session", "request", ex.Req.ID, "error", err)
		}
		ex.SessionID = id
		return Outcome{Next: stateGrantNotifyStarted}, nil

	case stateGrantNotifyError:
		m.deps.notify(ctx, notify.Event{Type: notify.EventError, Request: ex.Req, Error: ex.CapturedError})
		return Outcome{Done: true}, nil

	case stateGrantNotifyStarted:
		m.deps.notify(ctx, notify.Event{Type: notify.EventStarted, Request: ex.Req})
		window, err := m.deps.accessWindow(ctx, ex.Req)
		if err != nil {
			// an unparseable duration fails closed: revoke immediately
			// rather than leave the access open-ended.
			clio.Errorw("invalid request duration, revoking immediately", "request", ex.Req.ID, "duration", ex.Req.Duration, "error", err)
			return Outcome{Next: stateGrantStartRevoke}, nil
		}
		// the wait is measured from entry into this state, not from the
		// requested startTime.
		return Outcome{Next: stateGrantStartRevoke, Wait: window}, nil

	case stateGrantStartRevoke:
		_, err := m.deps.Starter.Start(ctx, StartInput{Kind: KindRevoke, Request: ex.Req, SessionID: ex.SessionID})
		if err != nil {
			return Outcome{}, errors.Wrap(err, "starting revoke workflow")
		}
		return Outcome{Done: true}, nil
	}
	return Outcome{}, errors.Errorf("grant machine: unknown state %q", ex.State)
}
