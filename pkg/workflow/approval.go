package workflow

import (
	"context"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/settings"
	"github.com/team-access/team/pkg/storage"
)

// Approval machine: tell the candidate approvers, then expire the request
// if none of them acts within the configured window. The approval action
// itself happens outside this machine, through the record mutation path;
// an approve or reject during the wait changes the status the post-wait
// read observes, which turns this execution into a no-op.
//
//	ResolveApprovers -> NotifyApproversPending -> Wait(expiry)
//	  -> ReadCurrentStatus -> UpdateStatusExpired -> NotifyExpired | no-op
const (
	stateApprovalResolve       = "ResolveApprovers"
	stateApprovalNotifyPending = "NotifyApproversPending"
	stateApprovalReadStatus    = "ReadCurrentStatus"
	stateApprovalUpdateExpired = "UpdateStatusExpired"
	stateApprovalNotifyExpired = "NotifyExpired"
)

type ApprovalMachine struct {
	deps *Deps
}

func NewApprovalMachine(deps *Deps) *ApprovalMachine { return &ApprovalMachine{deps: deps} }

func (m *ApprovalMachine) Kind() Kind      { return KindApproval }
func (m *ApprovalMachine) Initial() string { return stateApprovalResolve }

func (m *ApprovalMachine) Step(ctx context.Context, ex *Execution) (Outcome, error) {
	switch ex.State {
	case stateApprovalResolve:
		// capture the candidate approver set once, at submission time, so a
		// later policy change cannot alter who may act on this request. A
		// resolution failure is absorbed: notifications fall back to the
		// requester and the expiry timer must still be armed.
		if len(ex.Req.Approvers) == 0 && len(ex.Req.ApproverIDs) == 0 && m.deps.Policies != nil {
			emails, ids, err := m.deps.approverCandidates(ctx, ex.Req)
			if err != nil {
				clio.Errorw("resolving approver candidates", "request", ex.Req.ID, "error", err)
			}
			if len(emails) > 0 || len(ids) > 0 {
				m.deps.updateStatus(ctx, ex.Req.ID, storage.Fields{"approvers": emails, "approver_ids": ids})
				ex.Req.Approvers = emails
				ex.Req.ApproverIDs = ids
			}
		}
		return Outcome{Next: stateApprovalNotifyPending}, nil

	case stateApprovalNotifyPending:
		m.deps.notify(ctx, notify.Event{Type: notify.EventApprovalPending, Request: ex.Req})
		// the expiry window comes from the settings snapshot taken now, at
		// the decision point, not from one cached at submission
		cfg, err := m.deps.Settings.Current(ctx)
		if err != nil {
			return Outcome{}, errors.Wrap(err, "reading approval expiry")
		}
		return Outcome{Next: stateApprovalReadStatus, Wait: settings.ApprovalExpiry(cfg)}, nil

	case stateApprovalReadStatus:
		cur, err := m.deps.Requests.Get(ctx, ex.Req.ID)
		if errors.Is(err, storage.ErrNotFound) {
			clio.Warnw("pending request disappeared", "request", ex.Req.ID)
			return Outcome{Done: true}, nil
		}
		if err != nil {
			return Outcome{}, errors.Wrap(err, "re-checking status after approval wait")
		}
		if cur.Status != request.StatusPending {
			// an approver or the requester acted; the dispatcher has
			// already routed that transition
			return Outcome{Done: true}, nil
		}
		return Outcome{Next: stateApprovalUpdateExpired}, nil

	case stateApprovalUpdateExpired:
		m.deps.updateStatus(ctx, ex.Req.ID, storage.Fields{"status": request.StatusExpired})
		ex.Req.Status = request.StatusExpired
		return Outcome{Next: stateApprovalNotifyExpired}, nil

	case stateApprovalNotifyExpired:
		m.deps.notify(ctx, notify.Event{Type: notify.EventExpired, Request: ex.Req})
		return Outcome{Done: true}, nil
	}
	return Outcome{}, errors.Errorf("approval machine: unknown state %q", ex.State)
}
