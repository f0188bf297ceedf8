package workflow

import (
	"context"
	"time"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

// StatusUpdater persists request status and timestamp checkpoints. Every
// machine funnels its record writes through here so they share one retry
// policy (bounded exponential backoff, after which the caller decides
// whether to continue anyway) and one invariant: status moves are
// monotonic, a write that would move the record backward is dropped.
type StatusUpdater struct {
	store storage.RequestStore
}

func NewStatusUpdater(store storage.RequestStore) *StatusUpdater {
	return &StatusUpdater{store: store}
}

func (u *StatusUpdater) Update(ctx context.Context, id string, fields storage.Fields) error {
	b := retry.WithMaxRetries(6, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		write, err := u.screen(ctx, id, fields)
		if err != nil || len(write) == 0 {
			return err
		}
		err = u.store.Update(ctx, id, write)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// screen reads the record and drops a status write that is not a forward
// move: a machine replaying against a record that has already moved on, or
// racing an externally forced terminal status, must not undo the newer
// status. Non-status fields in the same write still apply.
func (u *StatusUpdater) screen(ctx context.Context, id string, fields storage.Fields) (storage.Fields, error) {
	next, ok := fields["status"].(request.Status)
	if !ok {
		return fields, nil
	}
	cur, err := u.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	if cur.Status == next || cur.Status.CanTransitionTo(next) {
		return fields, nil
	}
	clio.Warnw("dropping status write that would move the request backward",
		"request", id, "from", cur.Status, "to", next)
	write := storage.Fields{}
	for k, v := range fields {
		if k != "status" {
			write[k] = v
		}
	}
	return write, nil
}
