package repository

import (
	"time"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/model"
)

// observerTimeout bounds how long a notification is awaited before its
// outcome stops being observed.
const observerTimeout = 5 * time.Second

// Observer receives change notifications after successful mutations.
// Implementations must tolerate concurrent calls; errors are logged and
// never surface to the mutating caller.
type Observer interface {
	Refresh(table string, op model.Operation, ids interface{}, payload interface{}, oc *adapter.OpContext) error
}

// Observe registers an observer
func (c *core) Observe(o Observer) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	c.obs.list = append(c.obs.list, o)
}

// UnObserve removes a previously registered observer
func (c *core) UnObserve(o Observer) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	for i, reg := range c.obs.list {
		if reg == o {
			c.obs.list = append(c.obs.list[:i], c.obs.list[i+1:]...)
			return
		}
	}
}

// notify dispatches a mutation to every observer. Dispatch is
// fire-and-forget for the caller; each observer is awaited up to
// observerTimeout on its own goroutine and failures only reach the log.
func (c *core) notify(op model.Operation, ids interface{}, payload interface{}, oc *adapter.OpContext) {
	c.obs.mu.RLock()
	observers := make([]Observer, len(c.obs.list))
	copy(observers, c.obs.list)
	c.obs.mu.RUnlock()

	if len(observers) == 0 {
		return
	}

	table := c.meta.Table
	logger := c.logger
	for _, o := range observers {
		metrics.ObserverDispatchesTotal.Inc()
		go func(o Observer) {
			done := make(chan error, 1)
			go func() { done <- o.Refresh(table, op, ids, payload, oc) }()
			select {
			case err := <-done:
				if err != nil {
					metrics.ObserverFailuresTotal.Inc()
					logger.Error().Err(err).Str("operation", string(op)).Msg("Observer refresh failed")
				}
			case <-time.After(observerTimeout):
				metrics.ObserverFailuresTotal.Inc()
				logger.Warn().Str("operation", string(op)).Msg("Observer refresh timed out")
			}
		}(o)
	}
}
