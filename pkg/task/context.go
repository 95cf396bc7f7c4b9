package task

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
)

// Handler runs one task (or one composite step). The context carries
// the control surface; control intents are returned as errors the
// engine interprets.
type Handler interface {
	Run(ctx *Context, input interface{}) (interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx *Context, input interface{}) (interface{}, error)

// Run implements Handler
func (f HandlerFunc) Run(ctx *Context, input interface{}) (interface{}, error) {
	return f(ctx, input)
}

// Context is the per-run handler surface: identity, lease heartbeat,
// buffered logging, progress reporting and control intents. Heartbeat,
// Progress and Flush are suspension points: an external cancellation
// surfaces there as the cancel control error.
type Context struct {
	TaskID  string
	Attempt int
	Logger  zerolog.Logger

	// ResultCache carries prior step outputs across composite retries
	ResultCache map[string]interface{}

	engine *Engine
	record *Record
	stdctx context.Context

	mu       sync.Mutex
	buffered []string
	cancelAt *string // reason, set by external cancel
}

func (e *Engine) newContext(ctx context.Context, rec *Record) *Context {
	cache := rec.ResultCache
	if cache == nil {
		cache = make(map[string]interface{})
	}
	return &Context{
		TaskID:      rec.ID,
		Attempt:     rec.Attempt,
		Logger:      log.WithTaskID(rec.ID),
		ResultCache: cache,
		engine:      e,
		record:      rec,
		stdctx:      ctx,
	}
}

// checkCancel surfaces a pending external cancellation
func (c *Context) checkCancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelAt != nil {
		return Cancel(*c.cancelAt)
	}
	return nil
}

func (c *Context) markCanceled(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelAt == nil {
		c.cancelAt = &reason
	}
}

// Heartbeat extends the worker's lease to now + lease duration. A
// handler that stops heartbeating past the lease loses ownership.
func (c *Context) Heartbeat() error {
	if err := c.checkCancel(); err != nil {
		return err
	}
	return c.engine.store.renew(c.stdctx, c.TaskID, c.engine.workerID, c.engine.cfg.Lease)
}

// Progress emits a PROGRESS event
func (c *Context) Progress(payload interface{}) error {
	if err := c.checkCancel(); err != nil {
		return err
	}
	c.engine.broker.Publish(&events.Event{
		TaskID:         c.TaskID,
		Classification: events.ClassProgress,
		Payload:        payload,
	})
	return nil
}

// Log buffers a log line; Flush makes buffered lines durable as LOG
// events. Handlers call Flush at least once before completing.
func (c *Context) Log(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffered = append(c.buffered, line)
	c.Logger.Debug().Msg(line)
}

// Flush publishes the buffered log lines as LOG events in order
func (c *Context) Flush() error {
	if err := c.checkCancel(); err != nil {
		return err
	}
	c.mu.Lock()
	lines := c.buffered
	c.buffered = nil
	c.mu.Unlock()
	for _, line := range lines {
		c.engine.broker.Publish(&events.Event{
			TaskID:         c.TaskID,
			Classification: events.ClassLog,
			Payload:        line,
		})
	}
	return nil
}

// CacheResult stores a value in the task's result cache; composite
// steps use it to hand results forward across retries.
func (c *Context) CacheResult(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResultCache[key] = value
}

// Cancel returns the control error ending the task as CANCELED
func (c *Context) Cancel(reason string) error { return Cancel(reason) }

// Retry returns the control error sending the task to WAITING_RETRY
func (c *Context) Retry(reason string) error { return Retry(reason) }

// Reschedule returns the control error re-queueing the task at a date
func (c *Context) Reschedule(at time.Time, reason string) error { return Reschedule(at, reason) }

// Fail returns the control error ending the task as FAILED
func (c *Context) Fail(err error) error { return Fail(err) }
