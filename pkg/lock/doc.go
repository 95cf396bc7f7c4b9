// Package lock provides advisory locking primitives: a FIFO
// single-holder Lock, a keyed MultiLock with lazy creation and
// garbage collection of idle queues, and file-based variants that
// persist a marker file and poll with a small backoff.
package lock
