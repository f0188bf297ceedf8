// Package settings exposes the policy settings record as a read-through
// accessor. Settings may change while a request sits in a long wait, so
// workflows fetch a fresh snapshot at every decision point instead of
// caching one across the life of a request.
package settings

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/storage"
)

// Reader returns the latest settings snapshot.
type Reader interface {
	Current(ctx context.Context) (request.Settings, error)
}

// Defaults applied when no settings record has been written yet.
var Defaults = request.Settings{
	Duration: "1",
	Expiry:   "24",
	Approval: true,
}

type Service struct {
	store storage.SettingsStore
}

func NewService(store storage.SettingsStore) *Service {
	return &Service{store: store}
}

func (s *Service) Current(ctx context.Context) (request.Settings, error) {
	got, err := s.store.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return Defaults, nil
	}
	if err != nil {
		return request.Settings{}, errors.Wrap(err, "reading settings")
	}
	return *got, nil
}

// ApprovalExpiry returns the configured approval window.
func ApprovalExpiry(s request.Settings) time.Duration {
	d, err := request.ParseDuration(s.Expiry)
	if err != nil {
		d, _ = request.ParseDuration(Defaults.Expiry)
	}
	return d
}
