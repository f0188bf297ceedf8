package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"

	"github.com/team-access/team/pkg/request"
)

// Memory is an in-memory implementation of every store interface, used by
// tests and by `teamd run --local`. Mutations to the requests table are
// published on the change feed the same way the DynamoDB stream delivers
// them: old image (nil on insert) plus new image.
type Memory struct {
	mu          sync.Mutex
	requests    map[string]request.Request
	sessions    map[string]request.Session
	settings    *request.Settings
	approvers   []request.ApproverPolicy
	eligibility []request.EligibilityPolicy
	checkpoints map[string]string
	feed        chan ChangeEvent
}

func NewMemory() *Memory {
	return &Memory{
		requests:    map[string]request.Request{},
		sessions:    map[string]request.Session{},
		checkpoints: map[string]string{},
		feed:        make(chan ChangeEvent, 256),
	}
}

// Feed is the change feed of request mutations.
func (m *Memory) Feed() <-chan ChangeEvent { return m.feed }

func (m *Memory) publish(old *request.Request, new request.Request) {
	select {
	case m.feed <- ChangeEvent{Old: old, New: new}:
	default:
		// the memory feed has no replay path, so a drop here is a lost
		// workflow start. Blocking would deadlock the writer; make the
		// loss loud instead.
		clio.Errorw("change feed full, dropping event", "request", new.ID, "status", new.Status)
	}
}

func (m *Memory) Get(ctx context.Context, id string) (*request.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) Create(ctx context.Context, r request.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return errors.Errorf("request %s already exists", r.ID)
	}
	m.requests[r.ID] = r
	m.publish(nil, r)
	return nil
}

func (m *Memory) Update(ctx context.Context, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	old := r
	if err := applyFields(&r, fields); err != nil {
		return err
	}
	m.requests[id] = r
	m.publish(&old, r)
	return nil
}

// applyFields maps wire field names onto the record. Unknown fields are an
// error so tests catch contract drift between workflows and the store.
func applyFields(r *request.Request, fields Fields) error {
	for k, v := range fields {
		switch k {
		case "status":
			switch s := v.(type) {
			case request.Status:
				r.Status = s
			case string:
				r.Status = request.Status(s)
			default:
				return errors.Errorf("field status: unsupported type %T", v)
			}
		case "startTime":
			t, ok := v.(time.Time)
			if !ok {
				return errors.Errorf("field startTime: unsupported type %T", v)
			}
			r.StartTime = t
		case "endTime":
			t, ok := v.(time.Time)
			if !ok {
				return errors.Errorf("field endTime: unsupported type %T", v)
			}
			r.EndTime = &t
		case "session_duration":
			r.SessionDuration, _ = v.(string)
		case "comment":
			r.Comment, _ = v.(string)
		case "approver":
			r.Approver, _ = v.(string)
		case "approverId":
			r.ApproverID, _ = v.(string)
		case "approvers":
			ss, ok := v.([]string)
			if !ok {
				return errors.Errorf("field approvers: unsupported type %T", v)
			}
			r.Approvers = ss
		case "approver_ids":
			ss, ok := v.([]string)
			if !ok {
				return errors.Errorf("field approver_ids: unsupported type %T", v)
			}
			r.ApproverIDs = ss
		case "revoker":
			r.Revoker, _ = v.(string)
		case "revokerId":
			r.RevokerID, _ = v.(string)
		case "revokeComment":
			r.RevokeComment, _ = v.(string)
		default:
			return errors.Errorf("unknown request field %q", k)
		}
	}
	return nil
}

func (m *Memory) query(match func(request.Request) bool) *Page {
	var out []request.Request
	for _, r := range m.requests {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return &Page{Requests: out}
}

func (m *Memory) QueryByEmailAndStatus(ctx context.Context, email string, status request.Status, pageToken *string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query(func(r request.Request) bool {
		return r.Email == email && (status == "" || r.Status == status)
	}), nil
}

func (m *Memory) QueryByApproverAndStatus(ctx context.Context, approverID string, status request.Status, pageToken *string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.query(func(r request.Request) bool {
		return r.ApproverID == approverID && (status == "" || r.Status == status)
	}), nil
}

func (m *Memory) GetSettings(ctx context.Context) (*request.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, ErrNotFound
	}
	s := *m.settings
	return &s, nil
}

// PutSettings seeds the settings record (admin path in production).
func (m *Memory) PutSettings(s request.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
}

func (m *Memory) PutSession(ctx context.Context, s request.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*request.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) UpdateSession(ctx context.Context, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "endTime":
			t, ok := v.(time.Time)
			if !ok {
				return errors.Errorf("field endTime: unsupported type %T", v)
			}
			s.EndTime = &t
		default:
			return errors.Errorf("unknown session field %q", k)
		}
	}
	m.sessions[id] = s
	return nil
}

// PutApproverPolicy and PutEligibilityPolicy seed reference data.
func (m *Memory) PutApproverPolicy(p request.ApproverPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvers = append(m.approvers, p)
}

func (m *Memory) PutEligibilityPolicy(p request.EligibilityPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eligibility = append(m.eligibility, p)
}

func (m *Memory) ListApproverPolicies(ctx context.Context) ([]request.ApproverPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]request.ApproverPolicy{}, m.approvers...), nil
}

func (m *Memory) ListEligibilityPolicies(ctx context.Context) ([]request.EligibilityPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]request.EligibilityPolicy{}, m.eligibility...), nil
}

func (m *Memory) GetCheckpoint(ctx context.Context, shardID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoints[shardID], nil
}

func (m *Memory) PutCheckpoint(ctx context.Context, shardID, sequenceNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[shardID] = sequenceNumber
	return nil
}
