// Package sessions records the audit trail of elevated access windows: one
// session per grant, closed when the access is revoked. Sessions carry a
// log-query correlation id and a TTL so they age out of hot storage.
package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

// Retention is how long a closed session stays queryable before the
// store's TTL removes it.
const Retention = 90 * 24 * time.Hour

type Service struct {
	store storage.SessionStore
}

func NewService(store storage.SessionStore) *Service {
	return &Service{store: store}
}

// Open records the start of an access window and returns the session id.
func (s *Service) Open(ctx context.Context, r request.Request, start time.Time) (string, error) {
	id := ksuid.New().String()
	err := s.store.PutSession(ctx, request.Session{
		ID:          id,
		RequestID:   r.ID,
		StartTime:   start,
		Username:    r.Username,
		AccountID:   r.AccountID,
		Role:        r.Role,
		ApproverIDs: r.ApproverIDs,
		QueryID:     ksuid.New().String(),
		ExpireAt:    start.Add(Retention).Unix(),
	})
	if err != nil {
		return "", errors.Wrapf(err, "opening session for request %s", r.ID)
	}
	return id, nil
}

// Close sets the session's end time; the record is immutable afterwards.
func (s *Service) Close(ctx context.Context, id string, end time.Time) error {
	if id == "" {
		return nil
	}
	return errors.Wrapf(s.store.UpdateSession(ctx, id, storage.Fields{"endTime": end}), "closing session %s", id)
}
