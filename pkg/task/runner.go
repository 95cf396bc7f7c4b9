package task

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/metrics"
)

// execute runs one claimed record to its next transition
func (e *Engine) execute(ctx context.Context, rec *Record) {
	hc := e.newContext(ctx, rec)

	e.runMu.Lock()
	e.running[rec.ID] = hc
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		delete(e.running, rec.ID)
		e.runMu.Unlock()
	}()

	timer := metrics.NewTimer()
	var output interface{}
	var runErr error
	if rec.Type == TypeComposite {
		output, runErr = e.runComposite(ctx, hc, rec)
	} else {
		output, runErr = e.runAtomic(hc, rec)
	}
	timer.ObserveDurationVec(metrics.HandlerDuration, rec.Classification)

	// a cancellation that raced the handler's completion wins
	if runErr == nil {
		if cerr := hc.checkCancel(); cerr != nil {
			runErr = cerr
		}
	}

	e.transition(ctx, rec, output, runErr)
}

// runAtomic dispatches the record's single handler
func (e *Engine) runAtomic(hc *Context, rec *Record) (interface{}, error) {
	h, ok := e.handler(rec.Classification)
	if !ok {
		return nil, Fail(errors.Unsupported("handler " + rec.Classification))
	}
	return h.Run(hc, rec.Input)
}

// runComposite executes the step list sequentially, resuming at the
// step the previous attempt failed on. Succeeded step outputs persist
// in the result cache, so retried attempts never re-run them.
func (e *Engine) runComposite(ctx context.Context, hc *Context, rec *Record) (interface{}, error) {
	total := len(rec.Steps)
	if total == 0 {
		return nil, nil
	}

	var output interface{}
	if rec.CurrentStep > 0 {
		output = rec.StepResults[rec.CurrentStep-1].Output
	}

	for k := rec.CurrentStep; k < total; k++ {
		step := rec.Steps[k]
		h, ok := e.handler(step.Classification)
		if !ok {
			return nil, Fail(errors.Unsupported("handler " + step.Classification))
		}

		input := step.Input
		if input == nil {
			if k == 0 {
				input = rec.Input
			} else {
				input = output
			}
		}

		if err := hc.Progress(Progress{CurrentStep: k, TotalSteps: total}); err != nil {
			return nil, err
		}

		out, err := h.Run(hc, input)
		if err != nil {
			e.recordStep(ctx, rec, k, StepResult{Status: StatusFailed, Error: err.Error()}, k)
			return nil, err
		}

		output = out
		hc.CacheResult(step.Classification, out)
		e.recordStep(ctx, rec, k, StepResult{Status: StatusSucceeded, Output: out}, k+1)
	}
	return output, nil
}

// recordStep durably writes one step outcome and the resume cursor so a
// later claim picks up exactly where this attempt stopped.
func (e *Engine) recordStep(ctx context.Context, rec *Record, k int, result StepResult, cursor int) {
	_, err := e.store.commit(ctx, rec.ID, e.workerID, func(r *Record) {
		for len(r.StepResults) <= k {
			r.StepResults = append(r.StepResults, StepResult{})
		}
		r.StepResults[k] = result
		r.CurrentStep = cursor
		if r.ResultCache == nil {
			r.ResultCache = make(map[string]interface{})
		}
		if result.Status == StatusSucceeded {
			r.ResultCache[rec.Steps[k].Classification] = result.Output
		}
		r.UpdatedAt = time.Now()

		// mirror into the claimed record so the final transition commit
		// carries the same step state
		rec.StepResults = r.StepResults
		rec.CurrentStep = r.CurrentStep
		rec.ResultCache = r.ResultCache
	})
	if err != nil {
		e.logger.Error().Err(err).Str("task_id", rec.ID).Int("step", k).Msg("Step checkpoint failed")
	}
}

// transition interprets the run outcome into a state machine move and
// commits it under the lease CAS. Stale-lease rejections discard the
// result and leave the record untouched.
func (e *Engine) transition(ctx context.Context, rec *Record, output interface{}, runErr error) {
	now := time.Now()

	mutate := func(r *Record) {
		r.UpdatedAt = now
		r.LeaseOwner = ""
		r.LeaseExpiry = nil
	}
	var status Status

	var ce *ControlError
	switch {
	case runErr == nil:
		status = StatusSucceeded
		base := mutate
		mutate = func(r *Record) {
			base(r)
			r.Status = StatusSucceeded
			r.Output = output
			r.Error = ""
		}

	case stderrors.As(runErr, &ce):
		switch ce.NextAction {
		case StatusCanceled:
			status = StatusCanceled
			base := mutate
			mutate = func(r *Record) {
				base(r)
				r.Status = StatusCanceled
				r.Error = ce.Reason
			}
		case StatusFailed:
			status = StatusFailed
			base := mutate
			mutate = func(r *Record) {
				base(r)
				r.Status = StatusFailed
				r.Error = ce.Error()
			}
		case StatusScheduled:
			status = StatusScheduled
			base := mutate
			mutate = func(r *Record) {
				base(r)
				r.Status = StatusScheduled
				r.ScheduledTo = ce.At
				r.Error = ce.Reason
			}
		default: // WAITING_RETRY
			status, mutate = e.retryOrFail(rec, mutate, runErr, now)
		}

	default:
		// non-control failures retry until attempts run out
		status, mutate = e.retryOrFail(rec, mutate, runErr, now)
	}

	stored, err := e.store.commit(ctx, rec.ID, e.workerID, mutate)
	if err != nil {
		if errors.KindOf(err) == errors.KindStaleLease {
			// another worker owns the task now; the result is discarded
			// and the record stays untouched
			metrics.StaleLeasesTotal.Inc()
			e.logger.Warn().Str("task_id", rec.ID).Msg("Lease lost, discarding result")
			return
		}
		e.logger.Error().Err(err).Str("task_id", rec.ID).Msg("Transition commit failed")
		return
	}

	e.emitTransition(stored, status)
}

// retryOrFail sends a failed run to WAITING_RETRY with a jittered
// backoff, or to terminal FAILED once attempts are exhausted.
func (e *Engine) retryOrFail(rec *Record, base func(*Record), runErr error, now time.Time) (Status, func(*Record)) {
	if rec.Attempt >= rec.MaxAttempts {
		return StatusFailed, func(r *Record) {
			base(r)
			r.Status = StatusFailed
			r.Error = runErr.Error()
		}
	}
	delay := rec.Backoff.Jittered(rec.Attempt)
	at := now.Add(delay)
	return StatusWaitingRetry, func(r *Record) {
		base(r)
		r.Status = StatusWaitingRetry
		r.ScheduledTo = &at
		r.Error = runErr.Error()
	}
}

