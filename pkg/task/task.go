package task

import (
	"fmt"
	"time"
)

// Status is a task's state machine position
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusScheduled    Status = "SCHEDULED"
	StatusRunning      Status = "RUNNING"
	StatusWaitingRetry Status = "WAITING_RETRY"
	StatusSucceeded    Status = "SUCCEEDED"
	StatusFailed       Status = "FAILED"
	StatusCanceled     Status = "CANCELED"
)

// IsTerminal reports whether a status ends the task's lifecycle
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Type distinguishes single-handler tasks from step lists
type Type string

const (
	TypeAtomic    Type = "ATOMIC"
	TypeComposite Type = "COMPOSITE"
)

// BackoffKind selects the retry delay curve
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "FIXED"
	BackoffLinear      BackoffKind = "LINEAR"
	BackoffExponential BackoffKind = "EXPONENTIAL"
)

// JitterKind selects how randomness spreads retry storms
type JitterKind string

const (
	JitterNone  JitterKind = "NONE"
	JitterFull  JitterKind = "FULL"
	JitterEqual JitterKind = "EQUAL"
)

// Backoff configures retry delays
type Backoff struct {
	Kind   BackoffKind
	BaseMs int64
	MaxMs  int64
	Jitter JitterKind
}

// DefaultBackoff returns sensible retry defaults
func DefaultBackoff() Backoff {
	return Backoff{Kind: BackoffExponential, BaseMs: 100, MaxMs: 10_000, Jitter: JitterEqual}
}

// Step is one unit of a composite task
type Step struct {
	Classification string
	Input          interface{}
}

// StepResult records one step's outcome
type StepResult struct {
	Status Status
	Output interface{}
	Error  string
}

// Record is the durable task document
type Record struct {
	ID             string
	Classification string
	Type           Type
	Status         Status
	Attempt        int
	MaxAttempts    int
	Input          interface{}
	Output         interface{}
	Error          string
	ScheduledTo    *time.Time
	LeaseOwner     string
	LeaseExpiry    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Backoff        Backoff
	Steps          []Step
	CurrentStep    int
	StepResults    []StepResult
	ResultCache    map[string]interface{}
}

// claimable reports whether the record is due for a worker at now: an
// actionable status whose schedule has arrived and whose lease, if any,
// has lapsed.
func (r *Record) claimable(now time.Time) bool {
	switch r.Status {
	case StatusPending, StatusScheduled, StatusWaitingRetry:
	default:
		return false
	}
	if r.ScheduledTo != nil && r.ScheduledTo.After(now) {
		return false
	}
	if r.LeaseExpiry != nil && r.LeaseExpiry.After(now) {
		return false
	}
	return true
}

// ControlError carries a handler's intent for the task's next state.
// The engine interprets it into a transition; trackers reject with it so
// callers can branch on NextAction instead of parsing messages.
type ControlError struct {
	NextAction Status
	Reason     string
	Err        error
	At         *time.Time
}

func (e *ControlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s: %s: %v", e.NextAction, e.Reason, e.Err)
	}
	return fmt.Sprintf("task %s: %s", e.NextAction, e.Reason)
}

func (e *ControlError) Unwrap() error { return e.Err }

// Cancel builds the control error ending the task as CANCELED
func Cancel(reason string) *ControlError {
	return &ControlError{NextAction: StatusCanceled, Reason: reason}
}

// Retry builds the control error sending the task to WAITING_RETRY
func Retry(reason string) *ControlError {
	return &ControlError{NextAction: StatusWaitingRetry, Reason: reason}
}

// Reschedule builds the control error re-queueing the task at a date
func Reschedule(at time.Time, reason string) *ControlError {
	return &ControlError{NextAction: StatusScheduled, Reason: reason, At: &at}
}

// Fail builds the control error ending the task as FAILED
func Fail(err error) *ControlError {
	return &ControlError{NextAction: StatusFailed, Reason: "handler failed", Err: err}
}

// StatusChange is the payload of STATUS events
type StatusChange struct {
	Status     Status
	Attempt    int
	Output     interface{}
	Error      string
	NextAction Status
}

// Progress is the payload of PROGRESS events for composite tasks
type Progress struct {
	CurrentStep int
	TotalSteps  int
	Detail      interface{}
}
