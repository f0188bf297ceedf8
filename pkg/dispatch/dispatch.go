package dispatch

import (
	"context"
	"time"

	"github.com/common-fate/clio"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/team-access/team/pkg/storage"
	"github.com/team-access/team/pkg/workflow"
)

// Dispatcher turns change-feed batches into workflow starts. Start failures
// are retried with bounded backoff; an event that exhausts its retries goes
// to the dead letter channel so an operator sees it, never silently dropped.
type Dispatcher struct {
	starter    workflow.Starter
	deadLetter DeadLetter
	now        func() time.Time

	// startAttempts bounds the retries around one workflow start, and
	// retryBase is the backoff's starting interval.
	startAttempts uint64
	retryBase     time.Duration
}

func New(starter workflow.Starter, deadLetter DeadLetter) *Dispatcher {
	return &Dispatcher{
		starter:       starter,
		deadLetter:    deadLetter,
		now:           time.Now,
		startAttempts: 5,
		retryBase:     time.Second,
	}
}

// WithClock overrides the dispatcher clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// HandleBatch classifies and routes every event in the batch. A poison
// event dead-letters individually; the rest of the batch still dispatches.
func (d *Dispatcher) HandleBatch(ctx context.Context, events []storage.ChangeEvent) error {
	for _, ev := range events {
		kind, ok := Classify(ev, d.now())
		if !ok {
			clio.Debugw("event starts no workflow", "request", ev.New.ID, "status", ev.New.Status)
			continue
		}
		if err := d.start(ctx, kind, ev); err != nil {
			clio.Errorw("dispatch failed, dead-lettering event", "request", ev.New.ID, "workflow", kind, "error", err)
			if dlErr := d.deadLetter.Publish(ctx, ev, err); dlErr != nil {
				// both the start and the dead letter failed; surface to the
				// consumer so the batch is redelivered
				return errors.Wrapf(dlErr, "dead-lettering event for request %s", ev.New.ID)
			}
		}
	}
	return nil
}

func (d *Dispatcher) start(ctx context.Context, kind workflow.Kind, ev storage.ChangeEvent) error {
	b := retry.WithMaxRetries(d.startAttempts, retry.NewExponential(d.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		_, err := d.starter.Start(ctx, workflow.StartInput{Kind: kind, Request: ev.New})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
