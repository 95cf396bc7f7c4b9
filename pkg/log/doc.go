// Package log provides structured logging using zerolog: a global
// logger configured through Init, component-scoped child loggers, and
// helpers for common patterns. Until the host application calls Init,
// output is discarded.
package log
