package idc

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// SSOAdmin implements Provider against the IAM Identity Center admin API.
// Create/DeleteAccountAssignment complete asynchronously; both calls poll
// the returned status until the service reports SUCCEEDED or FAILED.
type SSOAdmin struct {
	client *ssoadmin.Client

	// PollInterval is the wait between assignment status checks.
	PollInterval time.Duration
}

func NewSSOAdmin(cfg aws.Config) *SSOAdmin {
	return &SSOAdmin{
		client:       ssoadmin.NewFromConfig(cfg),
		PollInterval: 2 * time.Second,
	}
}

// withBackoff retries throttling-class errors only: doubling interval,
// capped attempts. Permanent errors return immediately.
func withBackoff(ctx context.Context, op func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && retryable(err) {
			clio.Debugw("retrying throttled identity center call", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p *SSOAdmin) Grant(ctx context.Context, a Assignment) error {
	var requestID *string
	err := withBackoff(ctx, func(ctx context.Context) error {
		out, err := p.client.CreateAccountAssignment(ctx, &ssoadmin.CreateAccountAssignmentInput{
			InstanceArn:      &a.InstanceARN,
			PermissionSetArn: &a.PermissionSetARN,
			PrincipalId:      &a.PrincipalID,
			PrincipalType:    types.PrincipalTypeUser,
			TargetId:         &a.TargetAccountID,
			TargetType:       types.TargetTypeAwsAccount,
		})
		if err != nil {
			return err
		}
		requestID = out.AccountAssignmentCreationStatus.RequestId
		return nil
	})
	var conflict *types.ConflictException
	if errors.As(err, &conflict) {
		// assignment already exists, e.g. a redelivered grant
		clio.Debugw("assignment already exists", "account", a.TargetAccountID, "principal", a.PrincipalID)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "creating account assignment")
	}
	return p.awaitCreation(ctx, a.InstanceARN, requestID)
}

func (p *SSOAdmin) awaitCreation(ctx context.Context, instanceARN string, requestID *string) error {
	for {
		out, err := p.client.DescribeAccountAssignmentCreationStatus(ctx, &ssoadmin.DescribeAccountAssignmentCreationStatusInput{
			InstanceArn:                        &instanceARN,
			AccountAssignmentCreationRequestId: requestID,
		})
		if err != nil {
			return errors.Wrap(err, "describing assignment creation status")
		}
		switch out.AccountAssignmentCreationStatus.Status {
		case types.StatusValuesSucceeded:
			return nil
		case types.StatusValuesFailed:
			return errors.Errorf("assignment creation failed: %s", aws.ToString(out.AccountAssignmentCreationStatus.FailureReason))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.PollInterval):
		}
	}
}

func (p *SSOAdmin) Revoke(ctx context.Context, a Assignment) error {
	var requestID *string
	err := withBackoff(ctx, func(ctx context.Context) error {
		out, err := p.client.DeleteAccountAssignment(ctx, &ssoadmin.DeleteAccountAssignmentInput{
			InstanceArn:      &a.InstanceARN,
			PermissionSetArn: &a.PermissionSetARN,
			PrincipalId:      &a.PrincipalID,
			PrincipalType:    types.PrincipalTypeUser,
			TargetId:         &a.TargetAccountID,
			TargetType:       types.TargetTypeAwsAccount,
		})
		if err != nil {
			return err
		}
		requestID = out.AccountAssignmentDeletionStatus.RequestId
		return nil
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		// already revoked, or never provisioned: the access is gone either way
		clio.Debugw("assignment already absent", "account", a.TargetAccountID, "principal", a.PrincipalID)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "deleting account assignment")
	}
	return p.awaitDeletion(ctx, a.InstanceARN, requestID)
}

func (p *SSOAdmin) awaitDeletion(ctx context.Context, instanceARN string, requestID *string) error {
	for {
		out, err := p.client.DescribeAccountAssignmentDeletionStatus(ctx, &ssoadmin.DescribeAccountAssignmentDeletionStatusInput{
			InstanceArn:                        &instanceARN,
			AccountAssignmentDeletionRequestId: requestID,
		})
		if err != nil {
			return errors.Wrap(err, "describing assignment deletion status")
		}
		switch out.AccountAssignmentDeletionStatus.Status {
		case types.StatusValuesSucceeded:
			return nil
		case types.StatusValuesFailed:
			return errors.Errorf("assignment deletion failed: %s", aws.ToString(out.AccountAssignmentDeletionStatus.FailureReason))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.PollInterval):
		}
	}
}
