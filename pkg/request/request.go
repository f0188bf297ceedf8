// Package request holds the records that make up the elevated access
// lifecycle: the Request itself, the Session audit trail, and the
// Approvers/Eligibility/Settings reference data the orchestrator consumes.
//
// Field names follow the shared contract with the UI and the record store;
// they are the stable surface other collaborators match on.
package request

import (
	"time"
)

// Status is the lifecycle position of a Request. Transitions are monotonic:
// a request only ever moves forward along the allowed paths, and the
// terminal statuses are final.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in progress"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusError      Status = "error"
	StatusRevoked    Status = "revoked"
)

// transitions lists, per status, the statuses a request may move to next.
var transitions = map[Status][]Status{
	StatusPending:   {StatusScheduled, StatusApproved, StatusInProgress, StatusRejected, StatusCancelled, StatusExpired, StatusError},
	StatusScheduled: {StatusInProgress, StatusCancelled, StatusError},
	StatusApproved:  {StatusScheduled, StatusInProgress, StatusCancelled, StatusError},

	// an in-flight grant only ends by being revoked or failing
	StatusInProgress: {StatusRevoked, StatusError},

	// a failed grant can still be cleaned up by the revoke machine
	StatusError: {StatusRevoked},

	StatusRejected:  {},
	StatusCancelled: {},
	StatusExpired:   {},
	StatusRevoked:   {},
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether moving from s to next is a forward move
// along an allowed lifecycle path.
func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Request is a single elevated access lifecycle instance.
type Request struct {
	ID string `json:"id" dynamodbav:"id"`

	// principal and target
	Email       string `json:"email" dynamodbav:"email"`
	Username    string `json:"username" dynamodbav:"username"`
	UserID      string `json:"userId" dynamodbav:"userId"`
	AccountID   string `json:"accountId" dynamodbav:"accountId"`
	AccountName string `json:"accountName" dynamodbav:"accountName"`
	Role        string `json:"role" dynamodbav:"role"`
	RoleID      string `json:"roleId" dynamodbav:"roleId"`

	// timing
	StartTime time.Time  `json:"startTime" dynamodbav:"startTime"`
	Duration  string     `json:"duration" dynamodbav:"duration"`
	EndTime   *time.Time `json:"endTime,omitempty" dynamodbav:"endTime,omitempty"`

	// workflow
	Status           Status `json:"status" dynamodbav:"status"`
	ApprovalRequired bool   `json:"approvalRequired" dynamodbav:"approvalRequired"`
	Justification    string `json:"justification,omitempty" dynamodbav:"justification,omitempty"`
	Comment          string `json:"comment,omitempty" dynamodbav:"comment,omitempty"`
	TicketNo         string `json:"ticketNo,omitempty" dynamodbav:"ticketNo,omitempty"`

	// approval. ApproverIDs is captured once at submission time and is
	// immutable afterwards: approver policy changes must not retroactively
	// change who can act on an in-flight request.
	Approver    string   `json:"approver,omitempty" dynamodbav:"approver,omitempty"`
	ApproverID  string   `json:"approverId,omitempty" dynamodbav:"approverId,omitempty"`
	Approvers   []string `json:"approvers,omitempty" dynamodbav:"approvers,omitempty"`
	ApproverIDs []string `json:"approver_ids,omitempty" dynamodbav:"approver_ids,omitempty"`

	// revocation
	Revoker       string `json:"revoker,omitempty" dynamodbav:"revoker,omitempty"`
	RevokerID     string `json:"revokerId,omitempty" dynamodbav:"revokerId,omitempty"`
	RevokeComment string `json:"revokeComment,omitempty" dynamodbav:"revokeComment,omitempty"`

	SessionDuration string `json:"session_duration,omitempty" dynamodbav:"session_duration,omitempty"`
}

// Session is the audit record of one completed elevated access window.
// Immutable once EndTime is set; ExpireAt is an epoch-seconds TTL used to
// age sessions out of hot storage.
type Session struct {
	ID          string     `json:"id" dynamodbav:"id"`
	RequestID   string     `json:"requestId" dynamodbav:"requestId"`
	StartTime   time.Time  `json:"startTime" dynamodbav:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty" dynamodbav:"endTime,omitempty"`
	Username    string     `json:"username" dynamodbav:"username"`
	AccountID   string     `json:"accountId" dynamodbav:"accountId"`
	Role        string     `json:"role" dynamodbav:"role"`
	ApproverIDs []string   `json:"approver_ids,omitempty" dynamodbav:"approver_ids,omitempty"`
	QueryID     string     `json:"queryId,omitempty" dynamodbav:"queryId,omitempty"`
	ExpireAt    int64      `json:"expireAt" dynamodbav:"expireAt"`
}

// Settings is the process-wide policy configuration. It is read-mostly and
// mutated only through the admin path; every workflow reads the latest
// snapshot at the point it needs a policy decision.
type Settings struct {
	Duration   string `json:"duration" dynamodbav:"duration"`
	Expiry     string `json:"expiry" dynamodbav:"expiry"`
	Comments   bool   `json:"comments" dynamodbav:"comments"`
	TicketNo   bool   `json:"ticketNo" dynamodbav:"ticketNo"`
	Approval   bool   `json:"approval" dynamodbav:"approval"`
	ModifiedBy string `json:"modifiedBy,omitempty" dynamodbav:"modifiedBy,omitempty"`

	SESNotificationsEnabled   bool   `json:"sesNotificationsEnabled" dynamodbav:"sesNotificationsEnabled"`
	SNSNotificationsEnabled   bool   `json:"snsNotificationsEnabled" dynamodbav:"snsNotificationsEnabled"`
	SlackNotificationsEnabled bool   `json:"slackNotificationsEnabled" dynamodbav:"slackNotificationsEnabled"`
	SlackAuditChannel         string `json:"slackAuditNotificationsChannel,omitempty" dynamodbav:"slackAuditNotificationsChannel,omitempty"`
	SlackToken                string `json:"slackToken,omitempty" dynamodbav:"slackToken,omitempty"`
	SESSourceEmail            string `json:"sesSourceEmail,omitempty" dynamodbav:"sesSourceEmail,omitempty"`
	SESSourceARN              string `json:"sesSourceArn,omitempty" dynamodbav:"sesSourceArn,omitempty"`

	TeamAdminGroup   string `json:"teamAdminGroup,omitempty" dynamodbav:"teamAdminGroup,omitempty"`
	TeamAuditorGroup string `json:"teamAuditorGroup,omitempty" dynamodbav:"teamAuditorGroup,omitempty"`
}

// ApproverPolicy names who must approve requests for an account or OU.
type ApproverPolicy struct {
	ID         string   `json:"id" dynamodbav:"id"`
	Name       string   `json:"name" dynamodbav:"name"`
	Type       string   `json:"type" dynamodbav:"type"`
	Approvers  []string `json:"approvers,omitempty" dynamodbav:"approvers,omitempty"`
	GroupIDs   []string `json:"groupIds,omitempty" dynamodbav:"groupIds,omitempty"`
	ModifiedBy string   `json:"modifiedBy,omitempty" dynamodbav:"modifiedBy,omitempty"`
}

// Entity is a name/id pair used inside eligibility policies.
type Entity struct {
	Name string `json:"name" dynamodbav:"name"`
	ID   string `json:"id" dynamodbav:"id"`
}

// EligibilityPolicy describes which accounts and permission sets a principal
// or group may request, and whether those requests need approval. The
// orchestrator consumes these read-only.
type EligibilityPolicy struct {
	ID               string   `json:"id" dynamodbav:"id"`
	Name             string   `json:"name" dynamodbav:"name"`
	Type             string   `json:"type" dynamodbav:"type"`
	Accounts         []Entity `json:"accounts,omitempty" dynamodbav:"accounts,omitempty"`
	OUs              []Entity `json:"ous,omitempty" dynamodbav:"ous,omitempty"`
	Permissions      []Entity `json:"permissions,omitempty" dynamodbav:"permissions,omitempty"`
	TicketNo         string   `json:"ticketNo,omitempty" dynamodbav:"ticketNo,omitempty"`
	ApprovalRequired bool     `json:"approvalRequired" dynamodbav:"approvalRequired"`
	Duration         string   `json:"duration,omitempty" dynamodbav:"duration,omitempty"`
	ModifiedBy       string   `json:"modifiedBy,omitempty" dynamodbav:"modifiedBy,omitempty"`
}
