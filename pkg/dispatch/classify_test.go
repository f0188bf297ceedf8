package dispatch

import (
	"testing"
	"time"

	"github.com/common-fate/grab"
	"github.com/stretchr/testify/assert"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
	"github.com/team-access/team/pkg/workflow"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func req(status request.Status, mutate ...func(*request.Request)) request.Request {
	r := request.Request{
		ID:        "r1",
		Email:     "dev@example.com",
		AccountID: "111122223333",
		RoleID:    "ps-1111",
		StartTime: now,
		Duration:  "PT1H",
		Status:    status,
	}
	for _, m := range mutate {
		m(&r)
	}
	return r
}

func TestClassify(t *testing.T) {
	future := func(r *request.Request) { r.StartTime = now.Add(time.Hour) }
	needsApproval := func(r *request.Request) { r.ApprovalRequired = true }

	tests := []struct {
		name     string
		old      *request.Request
		new      request.Request
		wantKind workflow.Kind
		wantOK   bool
	}{
		{
			name:     "new request no approval starts grant",
			new:      req(request.StatusPending),
			wantKind: workflow.KindGrant, wantOK: true,
		},
		{
			name:     "new future request no approval starts schedule",
			new:      req(request.StatusPending, future),
			wantKind: workflow.KindSchedule, wantOK: true,
		},
		{
			name:     "new request needing approval starts approval",
			new:      req(request.StatusPending, needsApproval),
			wantKind: workflow.KindApproval, wantOK: true,
		},
		{
			name:     "new future request needing approval still starts approval",
			new:      req(request.StatusPending, needsApproval, future),
			wantKind: workflow.KindApproval, wantOK: true,
		},
		{
			name:     "new pre-approved request starts grant",
			new:      req(request.StatusApproved),
			wantKind: workflow.KindGrant, wantOK: true,
		},
		{
			name:     "new scheduled request starts schedule",
			new:      req(request.StatusScheduled, future),
			wantKind: workflow.KindSchedule, wantOK: true,
		},
		{
			name:   "new record already terminal starts nothing",
			new:    req(request.StatusRevoked),
			wantOK: false,
		},
		{
			name:     "approval granted starts grant",
			old:      grab.Ptr(req(request.StatusPending, needsApproval)),
			new:      req(request.StatusApproved, needsApproval),
			wantKind: workflow.KindGrant, wantOK: true,
		},
		{
			name:     "approval granted for future start starts schedule",
			old:      grab.Ptr(req(request.StatusPending, needsApproval, future)),
			new:      req(request.StatusApproved, needsApproval, future),
			wantKind: workflow.KindSchedule, wantOK: true,
		},
		{
			name:     "rejection starts reject",
			old:      grab.Ptr(req(request.StatusPending)),
			new:      req(request.StatusRejected),
			wantKind: workflow.KindReject, wantOK: true,
		},
		{
			name:     "cancellation starts reject",
			old:      grab.Ptr(req(request.StatusScheduled)),
			new:      req(request.StatusCancelled),
			wantKind: workflow.KindReject, wantOK: true,
		},
		{
			name:     "external transition to revoked starts revoke",
			old:      grab.Ptr(req(request.StatusInProgress)),
			new:      req(request.StatusRevoked),
			wantKind: workflow.KindRevoke, wantOK: true,
		},
		{
			name: "manual revoke marked by revoker field starts revoke",
			old:  grab.Ptr(req(request.StatusInProgress)),
			new: req(request.StatusInProgress, func(r *request.Request) {
				r.Revoker = "admin@example.com"
				r.RevokerID = "admin-1"
			}),
			wantKind: workflow.KindRevoke, wantOK: true,
		},
		{
			name: "comment edit starts nothing",
			old:  grab.Ptr(req(request.StatusPending)),
			new: req(request.StatusPending, func(r *request.Request) {
				r.Comment = "updated"
			}),
			wantOK: false,
		},
		{
			name: "approver list update starts nothing",
			old:  grab.Ptr(req(request.StatusPending)),
			new: req(request.StatusPending, func(r *request.Request) {
				r.Approvers = []string{"a@example.com"}
			}),
			wantOK: false,
		},
		{
			name:   "machine writeback to in progress starts nothing",
			old:    grab.Ptr(req(request.StatusApproved)),
			new:    req(request.StatusInProgress),
			wantOK: false,
		},
		{
			name:   "expiry writeback starts nothing",
			old:    grab.Ptr(req(request.StatusPending)),
			new:    req(request.StatusExpired),
			wantOK: false,
		},
		{
			name:   "pending to scheduled writeback starts nothing",
			old:    grab.Ptr(req(request.StatusPending)),
			new:    req(request.StatusScheduled, future),
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := Classify(storage.ChangeEvent{Old: tt.old, New: tt.new}, now)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantKind, kind)
			}
		})
	}
}

// redelivery of the same event must always produce the same decision
func TestClassifyDeterministicUnderRedelivery(t *testing.T) {
	events := []storage.ChangeEvent{
		{New: req(request.StatusPending)},
		{New: req(request.StatusPending, func(r *request.Request) { r.ApprovalRequired = true })},
		{Old: grab.Ptr(req(request.StatusPending)), New: req(request.StatusApproved)},
		{Old: grab.Ptr(req(request.StatusInProgress)), New: req(request.StatusRevoked)},
		{Old: grab.Ptr(req(request.StatusPending)), New: req(request.StatusPending, func(r *request.Request) { r.Comment = "x" })},
	}
	for _, ev := range events {
		firstKind, firstOK := Classify(ev, now)
		for i := 0; i < 10; i++ {
			kind, ok := Classify(ev, now)
			assert.Equal(t, firstOK, ok)
			assert.Equal(t, firstKind, kind)
		}
	}
}
