package task

import (
	"context"
	"time"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/lock"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
	"github.com/cuemby/strata/pkg/repository"
)

func init() {
	model.Describe[Record]().
		Table("tasks").
		PK("ID", model.PKUUID).
		MustRegister()
}

// store persists task records through a repository, so any registered
// adapter flavour can back the queue. Claim and result writes are
// serialised per task id; ownership is verified before every write so a
// worker that lost its lease cannot clobber the record.
type store struct {
	repo  *repository.Repository[Record]
	locks *lock.MultiLock
}

func newStore() (*store, error) {
	repo, err := repository.New[Record]()
	if err != nil {
		return nil, err
	}
	return &store{repo: repo, locks: lock.NewMultiLock()}, nil
}

func (s *store) insert(ctx context.Context, rec *Record) (*Record, error) {
	return s.repo.Create(ctx, rec)
}

func (s *store) get(ctx context.Context, id string) (*Record, error) {
	return s.repo.Read(ctx, id)
}

// due returns the records a scheduler tick may claim at now
func (s *store) due(ctx context.Context, now time.Time) ([]*Record, error) {
	rows, err := s.repo.Select(ctx,
		query.Attr("status").In(StatusPending, StatusScheduled, StatusWaitingRetry),
		query.Order{Field: "createdAt", Dir: model.Asc},
	)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, rec := range rows {
		if rec.claimable(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// claim CAS-sets lease ownership on a due record. Returns (nil, nil)
// when another worker won the race.
func (s *store) claim(ctx context.Context, id, workerID string, lease time.Duration) (*Record, error) {
	var claimed *Record
	err := s.locks.Execute(ctx, id, func() error {
		rec, err := s.repo.Read(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		if !rec.claimable(now) {
			return nil
		}
		expiry := now.Add(lease)
		rec.Status = StatusRunning
		rec.LeaseOwner = workerID
		rec.LeaseExpiry = &expiry
		rec.Attempt++
		claimed, err = s.repo.Update(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// renew extends the lease while the owner still holds it
func (s *store) renew(ctx context.Context, id, owner string, lease time.Duration) error {
	return s.locks.Execute(ctx, id, func() error {
		rec, err := s.repo.Read(ctx, id)
		if err != nil {
			return err
		}
		if rec.LeaseOwner != owner {
			return errors.New(errors.KindStaleLease, "task %s: lease now owned by %q", id, rec.LeaseOwner)
		}
		expiry := time.Now().Add(lease)
		rec.LeaseExpiry = &expiry
		_, err = s.repo.Update(ctx, rec)
		return err
	})
}

// commit writes a transition, rejecting stale owners. mutate receives
// the current stored record and applies the transition in place.
func (s *store) commit(ctx context.Context, id, owner string, mutate func(*Record)) (*Record, error) {
	var out *Record
	err := s.locks.Execute(ctx, id, func() error {
		rec, err := s.repo.Read(ctx, id)
		if err != nil {
			return err
		}
		if owner != "" && rec.LeaseOwner != owner {
			return errors.New(errors.KindStaleLease, "task %s: lease now owned by %q", id, rec.LeaseOwner)
		}
		mutate(rec)
		out, err = s.repo.Update(ctx, rec)
		return err
	})
	return out, err
}
