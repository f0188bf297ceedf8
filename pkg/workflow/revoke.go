package workflow

import (
	"context"
	"time"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

// Revoke machine: tear the assignment down and mark the request terminal.
//
//	ReadCurrentStatus (short-circuit if already revoked)
//	  -> RevokePermission -> NotifySessionEnded -> UpdateStatus
//	  -> NotifyError (revoke failed) | RecordEndTime
//
// The leading status read is the defense against double-revoke: the
// scheduled expiry and a manual revoke can both start this machine, and
// at-least-once event delivery can replay either trigger. Whichever
// execution completes first writes status=revoked plus endTime; every
// later execution sees that and stops without touching the provider.
const (
	stateRevokeReadStatus    = "ReadCurrentStatus"
	stateRevokePermission    = "RevokePermission"
	stateRevokeNotifyEnded   = "NotifySessionEnded"
	stateRevokeUpdateStatus  = "UpdateStatus"
	stateRevokeNotifyError   = "NotifyError"
	stateRevokeRecordEndTime = "RecordEndTime"
)

type RevokeMachine struct {
	deps *Deps
}

func NewRevokeMachine(deps *Deps) *RevokeMachine { return &RevokeMachine{deps: deps} }

func (m *RevokeMachine) Kind() Kind      { return KindRevoke }
func (m *RevokeMachine) Initial() string { return stateRevokeReadStatus }

func (m *RevokeMachine) Step(ctx context.Context, ex *Execution) (Outcome, error) {
	switch ex.State {
	case stateRevokeReadStatus:
		cur, err := m.deps.Requests.Get(ctx, ex.Req.ID)
		if errors.Is(err, storage.ErrNotFound) {
			clio.Warnw("request record missing, nothing to revoke", "request", ex.Req.ID)
			return Outcome{Done: true}, nil
		}
		if err != nil {
			return Outcome{}, errors.Wrap(err, "reading current status")
		}
		if cur.Status == request.StatusRevoked && cur.EndTime != nil {
			// a completed revoke beat us here
			clio.Infow("request already revoked", "request", ex.Req.ID)
			return Outcome{Done: true}, nil
		}
		// refresh the payload so revoker fields written by the admin path
		// make it into notifications and the audit trail
		ex.Req = *cur
		return Outcome{Next: stateRevokePermission}, nil

	case stateRevokePermission:
		if err := m.deps.Provider.Revoke(ctx, m.deps.assignment(ex.Req)); err != nil {
			clio.Errorw("revoking permission", "request", ex.Req.ID, "error", err)
			ex.CapturedError = err.Error()
		}
		return Outcome{Next: stateRevokeNotifyEnded}, nil

	case stateRevokeNotifyEnded:
		m.deps.notify(ctx, notify.Event{Type: notify.EventEnded, Request: ex.Req})
		return Outcome{Next: stateRevokeUpdateStatus}, nil

	case stateRevokeUpdateStatus:
		status := request.StatusRevoked
		if ex.CapturedError != "" {
			status = request.StatusError
		}
		m.deps.updateStatus(ctx, ex.Req.ID, storage.Fields{"status": status})
		ex.Req.Status = status
		if ex.CapturedError != "" {
			return Outcome{Next: stateRevokeNotifyError}, nil
		}
		return Outcome{Next: stateRevokeRecordEndTime}, nil

	case stateRevokeNotifyError:
		m.deps.notify(ctx, notify.Event{Type: notify.EventError, Request: ex.Req, Error: ex.CapturedError})
		return Outcome{Done: true}, nil

	case stateRevokeRecordEndTime:
		end := m.deps.now()
		fields := storage.Fields{"endTime": end}
		if !ex.Req.StartTime.IsZero() {
			fields["session_duration"] = end.Sub(ex.Req.StartTime).Round(time.Second).String()
		}
		m.deps.updateStatus(ctx, ex.Req.ID, fields)
		if err := m.deps.Sessions.Close(ctx, ex.SessionID, end); err != nil {
			clio.Errorw("closing audit session", "request", ex.Req.ID, "session", ex.SessionID, "error", err)
		}
		return Outcome{Done: true}, nil
	}
	return Outcome{}, errors.Errorf("revoke machine: unknown state %q", ex.State)
}
