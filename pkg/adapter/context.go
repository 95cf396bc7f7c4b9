package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/strata/pkg/model"
)

// OpContext carries per-call information through an operation: the
// operation kind, acting user, a fresh UUID, timing and an optional
// transaction handle shared by cascaded calls.
type OpContext struct {
	Operation model.Operation
	User      string
	UUID      string
	StartedAt time.Time
	Txn       interface{}
}

// NewOpContext assembles a per-call context with a fresh UUID
func NewOpContext(op model.Operation, user string) *OpContext {
	return &OpContext{
		Operation: op,
		User:      user,
		UUID:      uuid.NewString(),
		StartedAt: time.Now(),
	}
}

type opCtxKey struct{}

// WithOp attaches an operation context
func WithOp(ctx context.Context, oc *OpContext) context.Context {
	return context.WithValue(ctx, opCtxKey{}, oc)
}

// OpFromContext extracts the operation context, or nil
func OpFromContext(ctx context.Context) *OpContext {
	oc, _ := ctx.Value(opCtxKey{}).(*OpContext)
	return oc
}

// Flags is the complete flag bag stamped onto every adapter operation.
// Each operation carries a fresh UUID.
type Flags struct {
	Operation model.Operation
	Table     string
	UUID      string
	Timestamp time.Time
	User      string
	Extra     map[string]interface{}
}

// NewFlags completes a partial flag bag for an operation
func NewFlags(op model.Operation, table string, partial map[string]interface{}) Flags {
	return Flags{
		Operation: op,
		Table:     table,
		UUID:      uuid.NewString(),
		Timestamp: time.Now(),
		Extra:     partial,
	}
}
