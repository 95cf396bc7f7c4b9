// Package events provides the task event bus: a broker distributing
// STATUS, PROGRESS and LOG events to buffered subscriber channels.
// A single dispatch loop preserves per-task FIFO ordering; a full
// subscriber buffer drops events for that subscriber only.
package events
