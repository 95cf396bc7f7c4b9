package sequence

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/lock"
	"github.com/cuemby/strata/pkg/model"
)

// Options declares a named sequence. Sequences are themselves entities:
// the allocator persists {name, kind, startWith, incrementBy, cycle,
// current} through its store and materialises lazily on first Next.
type Options struct {
	Name        string
	Kind        model.PKKind
	StartWith   int64
	IncrementBy int64
	Cycle       bool
}

// Sequence is a monotonic id generator handle
type Sequence interface {
	// Current returns the last allocated value; NotFound before the
	// sequence materialises.
	Current(ctx context.Context) (interface{}, error)
	// Next allocates one value
	Next(ctx context.Context) (interface{}, error)
	// Range allocates exactly count values forming an arithmetic
	// progression with step IncrementBy, persisting current to the last.
	Range(ctx context.Context, count int) ([]interface{}, error)
}

// Store persists sequence records. Load returns NotFound for absent
// names; Save upserts.
type Store interface {
	Load(ctx context.Context, name string) (map[string]interface{}, error)
	Save(ctx context.Context, name string, record map[string]interface{}) error
}

// Allocator hands out sequence handles sharing one store. Allocations
// are serialised per sequence name.
type Allocator struct {
	store Store
	locks *lock.MultiLock
}

// NewAllocator creates an allocator over a store
func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, locks: lock.NewMultiLock()}
}

// Sequence returns the handle for opts, validating the declaration
func (a *Allocator) Sequence(opts Options) (Sequence, error) {
	if opts.Name == "" {
		return nil, errors.New(errors.KindValidation, "sequence needs a name")
	}
	if opts.IncrementBy == 0 {
		opts.IncrementBy = 1
	}
	if opts.Kind == "" {
		opts.Kind = model.PKNumber
	}
	return &handle{alloc: a, opts: opts}, nil
}

type handle struct {
	alloc *Allocator
	opts  Options
}

func (h *handle) Current(ctx context.Context) (interface{}, error) {
	var out interface{}
	err := h.alloc.locks.Execute(ctx, h.opts.Name, func() error {
		rec, err := h.alloc.store.Load(ctx, h.opts.Name)
		if err != nil {
			return err
		}
		cur, ok := rec["current"]
		if !ok {
			return errors.NotFound("sequences", h.opts.Name)
		}
		n, _ := toInt64(cur)
		out = h.format(n)
		return nil
	})
	return out, err
}

func (h *handle) Next(ctx context.Context) (interface{}, error) {
	vals, err := h.Range(ctx, 1)
	if err != nil {
		return nil, err
	}
	return vals[0], nil
}

func (h *handle) Range(ctx context.Context, count int) ([]interface{}, error) {
	if count < 1 {
		return nil, errors.New(errors.KindInvalidOp, "sequence range needs a positive count, got %d", count)
	}

	// uuid-flavoured sequences have no arithmetic progression; each
	// allocation is a fresh identifier.
	if h.opts.Kind == model.PKUUID {
		out := make([]interface{}, count)
		for i := range out {
			out[i] = uuid.NewString()
		}
		return out, nil
	}

	var out []interface{}
	err := h.alloc.locks.Execute(ctx, h.opts.Name, func() error {
		rec, err := h.alloc.store.Load(ctx, h.opts.Name)
		if err != nil && !errors.IsNotFound(err) {
			return err
		}

		inc := h.opts.IncrementBy
		var first int64
		if rec == nil || rec["current"] == nil {
			// lazy materialisation: the first allocation starts the
			// progression at startWith
			first = h.opts.StartWith
		} else {
			cur, _ := toInt64(rec["current"])
			first = cur + inc
		}

		out = make([]interface{}, count)
		last := first
		for i := 0; i < count; i++ {
			v := first + int64(i)*inc
			out[i] = h.format(v)
			last = v
		}

		return h.alloc.store.Save(ctx, h.opts.Name, map[string]interface{}{
			"name":        h.opts.Name,
			"kind":        string(h.opts.Kind),
			"startWith":   h.opts.StartWith,
			"incrementBy": inc,
			"cycle":       h.opts.Cycle,
			"current":     last,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// format renders an allocated value in the sequence's kind: serial ids
// are zero-padded 14-digit strings, bigints big.Int, numbers int64.
func (h *handle) format(n int64) interface{} {
	switch h.opts.Kind {
	case model.PKSerial:
		return fmt.Sprintf("%014d", n)
	case model.PKBigint:
		return big.NewInt(n)
	case model.PKString:
		return fmt.Sprintf("%d", n)
	}
	return n
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case *big.Int:
		return n.Int64(), true
	}
	return 0, false
}
