package task

import (
	"context"
	"sync"

	"github.com/cuemby/strata/pkg/events"
)

// Tracker is the client-side handle on a pushed task. It observes the
// engine's event bus and surfaces transitions as returns or typed
// errors carrying NextAction, so callers branch on status intent
// instead of message parsing.
type Tracker struct {
	taskID string
	sub    events.Subscriber
	broker *events.Broker

	mu        sync.Mutex
	logs      []string
	last      *StatusChange
	waiters   []chan StatusChange // every transition
	terminals []chan StatusChange // terminal transitions only

	onSucceed    func(interface{})
	onFailure    func(error)
	onCancel     func(string)
	succeedFired bool
	failureFired bool
	cancelFired  bool
}

func newTracker(e *Engine, taskID string) *Tracker {
	t := &Tracker{
		taskID: taskID,
		sub:    e.broker.Subscribe(),
		broker: e.broker,
	}
	go t.consume()
	return t
}

// Close detaches the tracker from the bus
func (t *Tracker) Close() {
	t.broker.Unsubscribe(t.sub)
}

func (t *Tracker) consume() {
	for ev := range t.sub {
		if ev.TaskID != t.taskID {
			continue
		}
		switch ev.Classification {
		case events.ClassLog:
			if line, ok := ev.Payload.(string); ok {
				t.mu.Lock()
				t.logs = append(t.logs, line)
				t.mu.Unlock()
			}
		case events.ClassStatus:
			change, ok := ev.Payload.(StatusChange)
			if !ok {
				continue
			}
			t.dispatch(change)
		}
	}
}

func (t *Tracker) dispatch(change StatusChange) {
	t.mu.Lock()
	t.last = &change

	waiters := t.waiters
	t.waiters = nil
	for _, ch := range waiters {
		ch <- change
	}

	if change.Status.IsTerminal() {
		terminals := t.terminals
		t.terminals = nil
		for _, ch := range terminals {
			ch <- change
		}
		t.fireHooks(change)
	}
	t.mu.Unlock()
}

// fireHooks runs the terminal callbacks exactly once; caller holds mu
func (t *Tracker) fireHooks(change StatusChange) {
	switch change.Status {
	case StatusSucceeded:
		if t.onSucceed != nil && !t.succeedFired {
			t.succeedFired = true
			go t.onSucceed(change.Output)
		}
	case StatusFailed:
		if t.onFailure != nil && !t.failureFired {
			t.failureFired = true
			go t.onFailure(&ControlError{NextAction: StatusFailed, Reason: change.Error})
		}
	case StatusCanceled:
		if t.onCancel != nil && !t.cancelFired {
			t.cancelFired = true
			go t.onCancel(change.Error)
		}
	}
}

// OnSucceed registers the success hook; fires exactly once, also when
// the task already finished.
func (t *Tracker) OnSucceed(fn func(output interface{})) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSucceed = fn
	if t.last != nil && t.last.Status.IsTerminal() {
		t.fireHooks(*t.last)
	}
}

// OnFailure registers the failure hook; fires exactly once
func (t *Tracker) OnFailure(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFailure = fn
	if t.last != nil && t.last.Status.IsTerminal() {
		t.fireHooks(*t.last)
	}
}

// OnCancel registers the cancellation hook; fires exactly once
func (t *Tracker) OnCancel(fn func(reason string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCancel = fn
	if t.last != nil && t.last.Status.IsTerminal() {
		t.fireHooks(*t.last)
	}
}

// Logs returns the flushed log lines observed so far
func (t *Tracker) Logs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.logs...)
}

// next blocks until the next transition arrives, or the next terminal
// one when terminalOnly is set
func (t *Tracker) next(ctx context.Context, terminalOnly bool) (StatusChange, error) {
	ch := make(chan StatusChange, 1)
	t.mu.Lock()
	if terminalOnly {
		t.terminals = append(t.terminals, ch)
	} else {
		t.waiters = append(t.waiters, ch)
	}
	t.mu.Unlock()

	select {
	case change := <-ch:
		return change, nil
	case <-ctx.Done():
		return StatusChange{}, ctx.Err()
	}
}

// outcome translates a transition into the caller-facing result
func outcome(change StatusChange) (interface{}, error) {
	switch change.Status {
	case StatusSucceeded:
		return change.Output, nil
	case StatusFailed:
		return nil, &ControlError{NextAction: StatusFailed, Reason: change.Error}
	case StatusCanceled:
		return nil, &ControlError{NextAction: StatusCanceled, Reason: change.Error}
	case StatusScheduled:
		return nil, &ControlError{NextAction: StatusScheduled, Reason: change.Error}
	case StatusWaitingRetry:
		return nil, &ControlError{NextAction: StatusWaitingRetry, Reason: change.Error}
	}
	return nil, &ControlError{NextAction: change.Status, Reason: change.Error}
}

// Resolve returns on the next meaningful transition: the result on
// SUCCEEDED, a typed error for FAILED, CANCELED, SCHEDULED and
// WAITING_RETRY. RUNNING transitions are skipped.
func (t *Tracker) Resolve(ctx context.Context) (interface{}, error) {
	for {
		change, err := t.next(ctx, false)
		if err != nil {
			return nil, err
		}
		switch change.Status {
		case StatusPending, StatusRunning:
			continue
		}
		return outcome(change)
	}
}

// Wait blocks until a terminal status: the result on SUCCEEDED, a
// typed error for FAILED and CANCELED. Retries and reschedules are
// traversed transparently; SCHEDULED is not treated as terminal.
func (t *Tracker) Wait(ctx context.Context) (interface{}, error) {
	t.mu.Lock()
	if t.last != nil && t.last.Status.IsTerminal() {
		change := *t.last
		t.mu.Unlock()
		return outcome(change)
	}
	t.mu.Unlock()

	change, err := t.next(ctx, true)
	if err != nil {
		return nil, err
	}
	return outcome(change)
}
