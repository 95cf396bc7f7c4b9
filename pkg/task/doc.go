/*
Package task implements the background task engine: durable job records
with a status state machine, lease-based ownership, retries with
configurable backoff, composite multi-step tasks, and trackers that
surface terminal outcomes as typed errors.

# State machine

	PENDING ───────┐
	SCHEDULED ─────┼──claim──▶ RUNNING ──▶ SUCCEEDED     (terminal)
	WAITING_RETRY ─┘              │
	                              ├──▶ FAILED        (terminal)
	                              ├──▶ CANCELED      (terminal)
	                              ├──▶ SCHEDULED     (reschedule)
	                              └──▶ WAITING_RETRY (backoff, attempt < maxAttempts)

Records are persisted through a repository, so any registered adapter
flavour backs the queue. The scheduler loop scans for due records at
the idle cadence, tightening to the busy cadence while claims succeed.
A claim CAS-sets lease owner, expiry, RUNNING and the attempt counter;
a handler that stops heartbeating past the lease loses ownership and
its eventual writes are rejected by the stale-lease check.

# Handlers

	engine.Register("resize", task.HandlerFunc(func(ctx *task.Context, input interface{}) (interface{}, error) {
		ctx.Log("starting")
		if err := ctx.Flush(); err != nil {
			return nil, err
		}
		return doWork(input)
	}))

The handler context exposes control intents — Cancel, Retry,
Reschedule, Fail — as errors the engine converts into transitions, plus
Heartbeat, Progress, Log/Flush and the composite result cache.

# Composite tasks

A composite record carries an ordered step list. Steps run
sequentially; each success is checkpointed with its output in the
result cache, so a retry resumes exactly at the failed step. Progress
events carry {currentStep, totalSteps}.

# Trackers

Push returns a Tracker bound to the engine's event bus. Resolve returns
on the next meaningful transition; Wait traverses retries and resolves
only on a terminal status. Rejections carry NextAction so callers
branch on intent, not message text.
*/
package task
