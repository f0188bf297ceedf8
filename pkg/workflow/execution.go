// Package workflow contains the lifecycle orchestrator: a durable execution
// engine and the five state machines (grant, revoke, schedule, approval,
// reject) that drive a request through its lifecycle.
//
// Each execution is persisted after every step, with waits represented as a
// stored resume-at timestamp rather than an in-process sleep, so in-flight
// lifecycles survive restarts across waits that may last days.
package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/team-access/team/pkg/request"
)

// Kind identifies one of the five state machines.
type Kind string

const (
	KindGrant    Kind = "grant"
	KindRevoke   Kind = "revoke"
	KindSchedule Kind = "schedule"
	KindApproval Kind = "approval"
	KindReject   Kind = "reject"
)

// Execution is one run of a state machine over one request. The Request
// payload is carried in full so a machine is self-contained given only its
// execution record.
type Execution struct {
	ID    string          `json:"id" dynamodbav:"id"`
	Kind  Kind            `json:"kind" dynamodbav:"kind"`
	State string          `json:"state" dynamodbav:"state"`
	Req   request.Request `json:"request" dynamodbav:"request"`

	// ResumeAt is when the execution next becomes runnable. A zero value
	// means runnable immediately.
	ResumeAt time.Time `json:"resumeAt" dynamodbav:"resumeAt,unixtime"`

	// CapturedError holds a grant or revoke failure that was absorbed so the
	// machine could continue to its status-update and notify-error path.
	CapturedError string `json:"capturedError,omitempty" dynamodbav:"capturedError,omitempty"`

	// SessionID links the grant execution's audit session through to the
	// revoke execution that closes it.
	SessionID string `json:"sessionId,omitempty" dynamodbav:"sessionId,omitempty"`

	Done      bool      `json:"done" dynamodbav:"done"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt,unixtime"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updatedAt,unixtime"`
}

// ExecutionStore persists executions. This is what makes waits durable: the
// engine can be restarted and resume from the stored state.
type ExecutionStore interface {
	Save(ctx context.Context, ex *Execution) error
	// Due returns executions that are not done and whose resume time has
	// passed, oldest first.
	Due(ctx context.Context, now time.Time) ([]*Execution, error)
}

// MemoryExecutionStore keeps executions in process memory. Used by tests
// and local runs; production uses the DynamoDB-backed store.
type MemoryExecutionStore struct {
	mu   sync.Mutex
	byID map[string]Execution
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{byID: map[string]Execution{}}
}

func (s *MemoryExecutionStore) Save(ctx context.Context, ex *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[ex.ID] = *ex
	return nil
}

func (s *MemoryExecutionStore) Due(ctx context.Context, now time.Time) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Execution
	for _, ex := range s.byID {
		if ex.Done || ex.ResumeAt.After(now) {
			continue
		}
		ex := ex
		due = append(due, &ex)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}
