package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
)

// Engine owns the durable task queue: it persists pushed records,
// claims due work under leases, dispatches handlers on a worker pool
// and surfaces transitions on the event bus.
type Engine struct {
	cfg      Config
	workerID string
	store    *store
	broker   *events.Broker
	logger   zerolog.Logger

	regMu    sync.RWMutex
	handlers map[string]Handler

	runMu   sync.Mutex
	running map[string]*Context // in-flight task id → handler context

	inFlight sync.WaitGroup
	stopCh   chan struct{}
	doneCh   chan struct{}

	cron *cron.Cron
}

// NewEngine builds an engine over the current adapter flavour
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	st, err := newStore()
	if err != nil {
		return nil, err
	}
	broker := events.NewBroker()
	return &Engine{
		cfg:      cfg,
		workerID: cfg.WorkerID,
		store:    st,
		broker:   broker,
		logger:   log.WithComponent("task-engine"),
		handlers: make(map[string]Handler),
		running:  make(map[string]*Context),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		cron:     cron.New(),
	}, nil
}

// Broker exposes the engine's event bus
func (e *Engine) Broker() *events.Broker { return e.broker }

// Register binds a handler to a classification key
func (e *Engine) Register(classification string, h Handler) {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	e.handlers[classification] = h
}

func (e *Engine) handler(classification string) (Handler, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	h, ok := e.handlers[classification]
	return h, ok
}

// Start begins the broker and the scheduler loop
func (e *Engine) Start() {
	e.broker.Start()
	e.cron.Start()
	go e.run()
	e.logger.Info().Str("worker_id", e.workerID).Msg("Task engine started")
}

// Stop drains the engine: pending claims are abandoned, in-flight
// handlers awaited up to the graceful shutdown timeout.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
	e.cron.Stop()

	waited := make(chan struct{})
	go func() {
		e.inFlight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(e.cfg.GracefulShutdownTimeout):
		e.logger.Warn().Msg("Graceful shutdown timeout reached, abandoning in-flight handlers")
	}
	e.broker.Stop()
	e.logger.Info().Msg("Task engine stopped")
}

// Push durably writes a task in PENDING and hands back a tracker.
// Zero-valued tuning fields inherit the engine defaults.
func (e *Engine) Push(ctx context.Context, rec *Record) (*Record, *Tracker, error) {
	if rec.Classification == "" && rec.Type != TypeComposite {
		return nil, nil, errors.New(errors.KindValidation, "task needs a classification")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Type == "" {
		rec.Type = TypeAtomic
	}
	if rec.MaxAttempts <= 0 {
		rec.MaxAttempts = e.cfg.MaxAttempts
	}
	if rec.Backoff.Kind == "" {
		rec.Backoff = e.cfg.Backoff
	}
	rec.Status = StatusPending
	rec.Attempt = 0
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt

	// the tracker subscribes before the first event so no transition
	// can slip past it
	tracker := newTracker(e, rec.ID)

	stored, err := e.store.insert(ctx, rec)
	if err != nil {
		tracker.Close()
		return nil, nil, err
	}
	e.emitStatus(stored, StatusPending)
	metrics.TasksTotal.WithLabelValues(string(StatusPending)).Inc()
	return stored, tracker, nil
}

// Cancel requests cancellation of a task. Running handlers observe it
// at their next suspension point; queued tasks transition immediately.
func (e *Engine) Cancel(ctx context.Context, taskID, reason string) error {
	e.runMu.Lock()
	hc, inFlight := e.running[taskID]
	e.runMu.Unlock()
	if inFlight {
		hc.markCanceled(reason)
		return nil
	}

	rec, err := e.store.commit(ctx, taskID, "", func(r *Record) {
		r.Status = StatusCanceled
		r.Error = reason
		r.UpdatedAt = time.Now()
	})
	if err != nil {
		return err
	}
	e.emitTransition(rec, StatusCanceled)
	return nil
}

// Cron pushes a fresh task on every fire of a cron expression. The
// returned entry id identifies the schedule in the engine's cron runner;
// the engine has no method that removes a single schedule, and all
// schedules stop with Stop.
func (e *Engine) Cron(spec, classification string, input interface{}) (cron.EntryID, error) {
	return e.cron.AddFunc(spec, func() {
		rec := &Record{Classification: classification, Input: input}
		if _, _, err := e.Push(context.Background(), rec); err != nil {
			e.logger.Error().Err(err).Str("classification", classification).Msg("Cron push failed")
		}
	})
}

// run is the scheduler loop: it scans for due work at the idle
// cadence, tightening to the busy cadence while claims succeed.
func (e *Engine) run() {
	defer close(e.doneCh)
	interval := e.cfg.PollIdle
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			busy := e.tick()
			if busy {
				interval = e.cfg.PollBusy
			} else {
				interval = e.cfg.PollIdle
			}
			timer.Reset(interval)
		case <-e.stopCh:
			return
		}
	}
}

// tick claims up to the free concurrency and dispatches workers
func (e *Engine) tick() bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerCycleDuration)

	ctx := context.Background()
	due, err := e.store.due(ctx, time.Now())
	if err != nil {
		e.logger.Error().Err(err).Msg("Scheduler scan failed")
		return false
	}
	if len(due) == 0 {
		return false
	}

	free := e.cfg.Concurrency - e.inFlightCount()
	claimed := 0
	for _, rec := range due {
		if claimed >= free {
			break
		}
		got, err := e.store.claim(ctx, rec.ID, e.workerID, e.cfg.Lease)
		if err != nil {
			e.logger.Error().Err(err).Str("task_id", rec.ID).Msg("Claim failed")
			continue
		}
		if got == nil {
			continue // lost the race
		}
		claimed++
		metrics.TasksClaimedTotal.Inc()
		e.emitStatus(got, StatusRunning)

		e.inFlight.Add(1)
		go func(rec *Record) {
			defer e.inFlight.Done()
			e.execute(ctx, rec)
		}(got)
	}
	return claimed > 0
}

func (e *Engine) inFlightCount() int {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return len(e.running)
}

// emitStatus publishes a STATUS event for the record's current state
func (e *Engine) emitStatus(rec *Record, status Status) {
	e.broker.Publish(&events.Event{
		TaskID:         rec.ID,
		Classification: events.ClassStatus,
		Payload: StatusChange{
			Status:     status,
			Attempt:    rec.Attempt,
			Output:     rec.Output,
			Error:      rec.Error,
			NextAction: status,
		},
	})
}

func (e *Engine) emitTransition(rec *Record, status Status) {
	e.emitStatus(rec, status)
	if status.IsTerminal() {
		metrics.TasksCompletedTotal.WithLabelValues(string(status)).Inc()
	}
}
