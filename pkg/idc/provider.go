// Package idc wraps IAM Identity Center: granting and revoking account
// assignments, and resolving principals through the identity store.
package idc

import (
	"context"

	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// Assignment binds a principal to a permission set on a target account.
type Assignment struct {
	InstanceARN      string
	PermissionSetARN string
	PrincipalID      string
	TargetAccountID  string
}

// Provider grants and revokes assignments. Both calls are idempotent under
// retry: Grant tolerates an assignment that already exists, Revoke tolerates
// one that is already gone.
type Provider interface {
	Grant(ctx context.Context, a Assignment) error
	Revoke(ctx context.Context, a Assignment) error
}

// retryable reports whether err is a throttling-class service error worth
// retrying. Anything else is a permanent domain error and is surfaced to the
// caller on the first attempt.
func retryable(err error) bool {
	var api smithy.APIError
	if !errors.As(err, &api) {
		return false
	}
	switch api.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException", "InternalServerException", "InternalError":
		return true
	}
	return false
}
