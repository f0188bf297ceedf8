// Package storage defines the record store interfaces the orchestrator
// depends on, with a DynamoDB implementation for production and an
// in-memory implementation for tests and local runs.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/request"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Fields is a partial update: field name (wire name) to new value.
// Updates are last-write-wins single-item writes.
type Fields map[string]any

// ChangeEvent is one mutation observed on the requests table. Old is nil
// for inserts. Delivery is at-least-once and ordered per request id only;
// consumers must classify from the old/new diff alone so that redelivery
// reproduces the same decision.
type ChangeEvent struct {
	Old *request.Request
	New request.Request
}

// Page is one page of a secondary-index query.
type Page struct {
	Requests  []request.Request
	NextToken *string
}

// RequestStore is the durable table of Request records.
type RequestStore interface {
	Get(ctx context.Context, id string) (*request.Request, error)
	Create(ctx context.Context, r request.Request) error
	Update(ctx context.Context, id string, fields Fields) error
	QueryByEmailAndStatus(ctx context.Context, email string, status request.Status, pageToken *string) (*Page, error)
	QueryByApproverAndStatus(ctx context.Context, approverID string, status request.Status, pageToken *string) (*Page, error)
}

// SettingsStore returns the current policy settings record.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*request.Settings, error)
}

// SessionStore holds session audit records.
type SessionStore interface {
	PutSession(ctx context.Context, s request.Session) error
	GetSession(ctx context.Context, id string) (*request.Session, error)
	UpdateSession(ctx context.Context, id string, fields Fields) error
}

// PolicyStore exposes the approver and eligibility reference data.
type PolicyStore interface {
	ListApproverPolicies(ctx context.Context) ([]request.ApproverPolicy, error)
	ListEligibilityPolicies(ctx context.Context) ([]request.EligibilityPolicy, error)
}
