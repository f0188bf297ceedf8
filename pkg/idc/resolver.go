package idc

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/identitystore/document"
	"github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/common-fate/grab"
	"github.com/pkg/errors"
)

// Resolver looks principals up in the identity store: requester emails to
// user ids at submission time, and approver group ids to their member user
// ids when the approver candidate set is captured.
type Resolver struct {
	client          *identitystore.Client
	identityStoreID string
}

func NewResolver(cfg aws.Config, identityStoreID string) *Resolver {
	return &Resolver{client: identitystore.NewFromConfig(cfg), identityStoreID: identityStoreID}
}

// UserIDByEmail resolves an email address to an identity store user id.
func (r *Resolver) UserIDByEmail(ctx context.Context, email string) (string, error) {
	out, err := r.client.GetUserId(ctx, &identitystore.GetUserIdInput{
		IdentityStoreId: &r.identityStoreID,
		AlternateIdentifier: &types.AlternateIdentifierMemberUniqueAttribute{
			Value: types.UniqueAttribute{
				AttributePath:  aws.String("emails.value"),
				AttributeValue: document.NewLazyDocument(email),
			},
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "resolving user id for %s", email)
	}
	return aws.ToString(out.UserId), nil
}

// GroupMemberIDs expands a set of group ids into the union of their member
// user ids, preserving first-seen order.
func (r *Resolver) GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error) {
	seen := map[string]struct{}{}
	var members []string
	for _, groupID := range groupIDs {
		groupID := groupID
		ids, err := grab.AllPages(ctx, func(ctx context.Context, nextToken *string) ([]types.GroupMembership, *string, error) {
			out, err := r.client.ListGroupMemberships(ctx, &identitystore.ListGroupMembershipsInput{
				IdentityStoreId: &r.identityStoreID,
				GroupId:         &groupID,
				NextToken:       nextToken,
			})
			if err != nil {
				return nil, nil, err
			}
			return out.GroupMemberships, out.NextToken, nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "listing members of group %s", groupID)
		}
		for _, m := range ids {
			userID, ok := m.MemberId.(*types.MemberIdMemberUserId)
			if !ok {
				continue
			}
			if _, dup := seen[userID.Value]; dup {
				continue
			}
			seen[userID.Value] = struct{}{}
			members = append(members, userID.Value)
		}
	}
	return members, nil
}
