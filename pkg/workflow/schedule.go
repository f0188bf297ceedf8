package workflow

import (
	"context"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

// Schedule machine: park a future-dated request until its start time, then
// re-check that nobody cancelled it during the wait before granting.
//
//	UpdateStatusScheduled -> NotifyScheduled -> WaitUntil(startTime)
//	  -> ReadCurrentStatus -> StartGrantWorkflow | no-op
//
// Cancellation is cooperative: a requester cancelling during the wait does
// not terminate this execution, it just makes the post-wait read observe
// a status that is no longer "scheduled".
const (
	stateScheduleUpdateStatus = "UpdateStatusScheduled"
	stateScheduleNotify       = "NotifyScheduled"
	stateScheduleReadStatus   = "ReadCurrentStatus"
	stateScheduleStartGrant   = "StartGrantWorkflow"
)

type ScheduleMachine struct {
	deps *Deps
}

func NewScheduleMachine(deps *Deps) *ScheduleMachine { return &ScheduleMachine{deps: deps} }

func (m *ScheduleMachine) Kind() Kind      { return KindSchedule }
func (m *ScheduleMachine) Initial() string { return stateScheduleUpdateStatus }

func (m *ScheduleMachine) Step(ctx context.Context, ex *Execution) (Outcome, error) {
	switch ex.State {
	case stateScheduleUpdateStatus:
		m.deps.updateStatus(ctx, ex.Req.ID, storage.Fields{"status": request.StatusScheduled})
		ex.Req.Status = request.StatusScheduled
		return Outcome{Next: stateScheduleNotify}, nil

	case stateScheduleNotify:
		m.deps.notify(ctx, notify.Event{Type: notify.EventScheduled, Request: ex.Req})
		// absolute deadline, unlike the grant machine's relative wait
		return Outcome{Next: stateScheduleReadStatus, WaitUntil: ex.Req.StartTime}, nil

	case stateScheduleReadStatus:
		cur, err := m.deps.Requests.Get(ctx, ex.Req.ID)
		if errors.Is(err, storage.ErrNotFound) {
			clio.Warnw("scheduled request disappeared", "request", ex.Req.ID)
			return Outcome{Done: true}, nil
		}
		if err != nil {
			return Outcome{}, errors.Wrap(err, "re-checking status after scheduled wait")
		}
		if cur.Status != request.StatusScheduled {
			clio.Infow("scheduled request no longer eligible for grant", "request", ex.Req.ID, "status", cur.Status)
			return Outcome{Done: true}, nil
		}
		ex.Req = *cur
		return Outcome{Next: stateScheduleStartGrant}, nil

	case stateScheduleStartGrant:
		_, err := m.deps.Starter.Start(ctx, StartInput{Kind: KindGrant, Request: ex.Req})
		if err != nil {
			return Outcome{}, errors.Wrap(err, "starting grant workflow")
		}
		return Outcome{Done: true}, nil
	}
	return Outcome{}, errors.Errorf("schedule machine: unknown state %q", ex.State)
}
