package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/team-access/team/pkg/idc"
	"github.com/team-access/team/pkg/notify"
	"github.com/team-access/team/pkg/request"
	"github.com/team-access/team/pkg/sessions"
	"github.com/team-access/team/pkg/settings"
	"github.com/team-access/team/pkg/storage"
	"github.com/team-access/team/pkg/workflow"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeProvider struct {
	mu        sync.Mutex
	grants    []idc.Assignment
	revokes   []idc.Assignment
	grantErr  error
	revokeErr error
}

func (p *fakeProvider) Grant(ctx context.Context, a idc.Assignment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grantErr != nil {
		return p.grantErr
	}
	p.grants = append(p.grants, a)
	return nil
}

func (p *fakeProvider) Revoke(ctx context.Context, a idc.Assignment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revokeErr != nil {
		return p.revokeErr
	}
	p.revokes = append(p.revokes, a)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *fakeNotifier) Notify(ctx context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) count(t notify.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var c int
	for _, ev := range n.events {
		if ev.Type == t {
			c++
		}
	}
	return c
}

type fakeResolver struct {
	mu      sync.Mutex
	members []string
	userID  string
	asked   [][]string
	err     error
}

func (r *fakeResolver) UserIDByEmail(ctx context.Context, email string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	return r.userID, nil
}

func (r *fakeResolver) GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, groupIDs)
	if r.err != nil {
		return nil, r.err
	}
	return r.members, nil
}

const testInstanceARN = "arn:aws:sso:::instance/ssoins-0123456789abcdef"

type harness struct {
	t        *testing.T
	mem      *storage.Memory
	execs    workflow.ExecutionStore
	provider *fakeProvider
	notifier *fakeNotifier
	resolver *fakeResolver
	clock    *fakeClock
	engine   *workflow.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := storage.NewMemory()
	mem.PutSettings(request.Settings{Duration: "1", Expiry: "2", Approval: true})
	h := &harness{
		t:        t,
		mem:      mem,
		execs:    workflow.NewMemoryExecutionStore(),
		provider: &fakeProvider{},
		notifier: &fakeNotifier{},
		resolver: &fakeResolver{},
		clock:    &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.engine = newEngine(h)
	return h
}

// newEngine builds a fresh engine over the harness's stores, so tests can
// simulate a restart by replacing the engine mid-lifecycle.
func newEngine(h *harness) *workflow.Engine {
	deps := &workflow.Deps{
		Requests:    h.mem,
		Status:      workflow.NewStatusUpdater(h.mem),
		Provider:    h.provider,
		Notifier:    h.notifier,
		Settings:    settings.NewService(h.mem),
		Sessions:    sessions.NewService(h.mem),
		Policies:    h.mem,
		Resolver:    h.resolver,
		InstanceARN: testInstanceARN,
		Now:         h.clock.Now,
	}
	engine := workflow.NewEngine(h.execs,
		workflow.NewGrantMachine(deps),
		workflow.NewRevokeMachine(deps),
		workflow.NewScheduleMachine(deps),
		workflow.NewApprovalMachine(deps),
		workflow.NewRejectMachine(deps),
	).WithClock(h.clock.Now).WithStepRetry(2, time.Millisecond).WithFailureHandler(deps)
	deps.Starter = engine
	return engine
}

func (h *harness) runOnce() {
	h.t.Helper()
	if err := h.engine.RunOnce(context.Background()); err != nil {
		h.t.Fatalf("running engine: %v", err)
	}
}

func (h *harness) start(kind workflow.Kind, r request.Request) *workflow.Execution {
	h.t.Helper()
	ex, err := h.engine.Start(context.Background(), workflow.StartInput{Kind: kind, Request: r})
	if err != nil {
		h.t.Fatalf("starting %s workflow: %v", kind, err)
	}
	return ex
}

func (h *harness) get(id string) request.Request {
	h.t.Helper()
	r, err := h.mem.Get(context.Background(), id)
	if err != nil {
		h.t.Fatalf("getting request %s: %v", id, err)
	}
	return *r
}

func testRequest(h *harness, id string, status request.Status) request.Request {
	return request.Request{
		ID:          id,
		Email:       "dev@example.com",
		Username:    "dev",
		UserID:      "user-1234",
		AccountID:   "111122223333",
		AccountName: "sandbox",
		Role:        "AdministratorAccess",
		RoleID:      "arn:aws:sso:::permissionSet/ssoins-0123456789abcdef/ps-1111",
		StartTime:   h.clock.Now(),
		Duration:    "PT1H",
		Status:      status,
	}
}
