package workflow

import (
	"context"
	"time"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"github.com/sethvargo/go-retry"

	"github.com/team-access/team/pkg/request"
)

// StartInput describes a workflow to begin.
type StartInput struct {
	Kind      Kind
	Request   request.Request
	SessionID string
}

// Starter begins a workflow execution. Implemented by the Engine; machines
// use it to start successor workflows and the dispatcher uses it for
// routing decisions.
type Starter interface {
	Start(ctx context.Context, in StartInput) (*Execution, error)
}

// Outcome is the result of one step: the next state plus an optional wait
// before it runs. Wait is relative to step completion (measured from entry,
// not an absolute deadline); WaitUntil is an absolute resume time.
type Outcome struct {
	Next      string
	Wait      time.Duration
	WaitUntil time.Time
	Done      bool
}

// Machine is one of the five state machines: a tagged initial state and a
// Step that advances an execution from its current state.
type Machine interface {
	Kind() Kind
	Initial() string
	Step(ctx context.Context, ex *Execution) (Outcome, error)
}

// FailureHandler is told about an execution whose step error exhausted its
// retries, so the underlying request still reaches a terminal status.
type FailureHandler interface {
	HandleFailure(ctx context.Context, ex *Execution, err error)
}

// Engine drives executions: it polls the store for due executions, steps
// them sequentially, and checkpoints after every step. Different executions
// are independent; within one execution steps never overlap.
type Engine struct {
	store    ExecutionStore
	machines map[Kind]Machine
	now      func() time.Time
	failure  FailureHandler

	// PollInterval is the idle wait between due-execution sweeps.
	PollInterval time.Duration

	// stepAttempts and stepBase bound the invocation-level retry around a
	// single step.
	stepAttempts uint64
	stepBase     time.Duration
}

func NewEngine(store ExecutionStore, machines ...Machine) *Engine {
	e := &Engine{
		store:        store,
		machines:     map[Kind]Machine{},
		now:          time.Now,
		PollInterval: time.Second,
		stepAttempts: 5,
		stepBase:     500 * time.Millisecond,
	}
	for _, m := range machines {
		e.machines[m.Kind()] = m
	}
	return e
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithStepRetry overrides the per-step retry policy, for tests.
func (e *Engine) WithStepRetry(attempts uint64, base time.Duration) *Engine {
	e.stepAttempts = attempts
	e.stepBase = base
	return e
}

// WithFailureHandler sets the last-resort handler for exhausted step errors.
func (e *Engine) WithFailureHandler(h FailureHandler) *Engine {
	e.failure = h
	return e
}

func (e *Engine) Start(ctx context.Context, in StartInput) (*Execution, error) {
	m, ok := e.machines[in.Kind]
	if !ok {
		return nil, errors.Errorf("no %s machine registered", in.Kind)
	}
	now := e.now()
	ex := &Execution{
		ID:        ksuid.New().String(),
		Kind:      in.Kind,
		State:     m.Initial(),
		Req:       in.Request,
		SessionID: in.SessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Save(ctx, ex); err != nil {
		return nil, errors.Wrapf(err, "starting %s workflow for request %s", in.Kind, in.Request.ID)
	}
	clio.Infow("started workflow", "workflow", in.Kind, "execution", ex.ID, "request", in.Request.ID)
	return ex, nil
}

// Run polls for due executions until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.PollInterval):
		}
	}
}

// RunOnce steps every due execution until it either completes or enters a
// wait. Tests drive the engine through this with a fake clock.
func (e *Engine) RunOnce(ctx context.Context) error {
	for {
		due, err := e.store.Due(ctx, e.now())
		if err != nil {
			return errors.Wrap(err, "listing due executions")
		}
		if len(due) == 0 {
			return nil
		}
		for _, ex := range due {
			if err := e.drive(ctx, ex); err != nil {
				return err
			}
		}
	}
}

// drive steps one execution until it waits or finishes, checkpointing after
// every step. A checkpoint failure stops the sweep: re-running the step
// against an unsaved execution would repeat its side effects in a tight
// loop.
func (e *Engine) drive(ctx context.Context, ex *Execution) error {
	m := e.machines[ex.Kind]
	for !ex.Done && !ex.ResumeAt.After(e.now()) {
		out, err := e.step(ctx, m, ex)
		if err != nil {
			// step-level retries are exhausted. The execution is parked, but
			// the request must not be left without a status: hand the error
			// to the failure handler so it still gets a terminal status
			// write and an error notification.
			clio.Errorw("workflow step failed after retries",
				"workflow", ex.Kind, "execution", ex.ID, "request", ex.Req.ID, "state", ex.State, "error", err)
			ex.Done = true
			ex.CapturedError = err.Error()
			if e.failure != nil {
				e.failure.HandleFailure(ctx, ex, err)
			}
		} else {
			e.apply(ex, out)
		}
		ex.UpdatedAt = e.now()
		if err := e.store.Save(ctx, ex); err != nil {
			return errors.Wrapf(err, "checkpointing execution %s", ex.ID)
		}
	}
	return nil
}

func (e *Engine) step(ctx context.Context, m Machine, ex *Execution) (Outcome, error) {
	var out Outcome
	b := retry.WithMaxRetries(e.stepAttempts, retry.NewExponential(e.stepBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		out, err = m.Step(ctx, ex)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return out, err
}

func (e *Engine) apply(ex *Execution, out Outcome) {
	if out.Done {
		ex.Done = true
		return
	}
	ex.State = out.Next
	switch {
	case out.Wait > 0:
		ex.ResumeAt = e.now().Add(out.Wait)
	case !out.WaitUntil.IsZero():
		ex.ResumeAt = out.WaitUntil
	default:
		ex.ResumeAt = time.Time{}
	}
}
