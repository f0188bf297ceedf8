package workflow

import (
	"context"
	"time"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/idc"
	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/sessions"
	"github.com/team-access/team/pkg/settings"
	"github.com/team-access/team/pkg/storage"
)

// IdentityResolver looks principals up in the identity store.
type IdentityResolver interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
	GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error)
}

// Deps are the collaborators shared by all five machines.
type Deps struct {
	Requests storage.RequestStore
	Status   *StatusUpdater
	Provider idc.Provider
	Notifier notify.Notifier
	Settings settings.Reader
	Sessions *sessions.Service
	Policies storage.PolicyStore
	Resolver IdentityResolver

	// Starter begins successor workflows (schedule starts grant, grant
	// starts revoke). Wired to the engine after construction.
	Starter Starter

	// InstanceARN is the Identity Center instance assignments are made on.
	InstanceARN string

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) assignment(r request.Request) idc.Assignment {
	return idc.Assignment{
		InstanceARN:      d.InstanceARN,
		PermissionSetARN: r.RoleID,
		PrincipalID:      r.UserID,
		TargetAccountID:  r.AccountID,
	}
}

// notify sends best-effort: a failed notification is logged and absorbed so
// it can never block the step that follows it.
func (d Deps) notify(ctx context.Context, ev notify.Event) {
	if err := d.Notifier.Notify(ctx, ev); err != nil {
		clio.Errorw("notification failed", "request", ev.Request.ID, "event", ev.Type, "error", err)
	}
}

// accessWindow returns how long the request's access stays open. A request
// submitted without a duration falls back to the eligibility policy for its
// account, then to the configured default.
func (d *Deps) accessWindow(ctx context.Context, r request.Request) (time.Duration, error) {
	dur := r.Duration
	if dur == "" {
		dur = d.defaultDuration(ctx, r)
	}
	return request.ParseDuration(dur)
}

func (d *Deps) defaultDuration(ctx context.Context, r request.Request) string {
	if d.Policies != nil {
		pols, err := d.Policies.ListEligibilityPolicies(ctx)
		if err != nil {
			clio.Errorw("listing eligibility policies", "request", r.ID, "error", err)
		}
		for _, p := range pols {
			if p.Duration == "" {
				continue
			}
			for _, a := range p.Accounts {
				if a.ID == r.AccountID {
					return p.Duration
				}
			}
		}
	}
	cfg, err := d.Settings.Current(ctx)
	if err != nil {
		return settings.Defaults.Duration
	}
	return cfg.Duration
}

// approverCandidates resolves who may act on a request from the
// account-scoped approver policies: direct approver emails plus the
// expanded members of any approver groups.
func (d *Deps) approverCandidates(ctx context.Context, r request.Request) (emails, ids []string, err error) {
	pols, err := d.Policies.ListApproverPolicies(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listing approver policies")
	}
	var groups []string
	for _, p := range pols {
		if p.ID != r.AccountID {
			continue
		}
		emails = append(emails, p.Approvers...)
		groups = append(groups, p.GroupIDs...)
	}
	if len(groups) > 0 && d.Resolver != nil {
		ids, err = d.Resolver.GroupMemberIDs(ctx, groups)
		if err != nil {
			return nil, nil, errors.Wrap(err, "expanding approver groups")
		}
	}
	return emails, ids, nil
}

// HandleFailure is the engine's last resort for a step error no machine
// absorbed: the request still gets a terminal status write and an error
// notification instead of sitting unresolved while the execution parks.
// The status screen in StatusUpdater keeps an already-terminal request
// untouched.
func (d *Deps) HandleFailure(ctx context.Context, ex *Execution, err error) {
	d.updateStatus(ctx, ex.Req.ID, storage.Fields{"status": request.StatusError})
	d.notify(ctx, notify.Event{Type: notify.EventError, Request: ex.Req, Error: err.Error()})
}

// updateStatus writes record fields, tolerating persistent failure: the
// write is retried by the StatusUpdater and a final error is logged, not
// propagated, so the machine still reaches its terminal state.
func (d Deps) updateStatus(ctx context.Context, id string, fields storage.Fields) {
	if err := d.Status.Update(ctx, id, fields); err != nil {
		clio.Errorw("status update failed", "request", id, "fields", fields, "error", err)
	}
}
