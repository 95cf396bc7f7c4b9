package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
	_ "github.com/cuemby/strata/pkg/ram"
)

type Client struct {
	ID        int64
	Name      string
	Nif       string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

type Account struct {
	ID   string
	Age  int
	Name string
}

type Frozen struct {
	ID   string
	Note string
}

type Course struct {
	ID    string
	Title string
}

type Student struct {
	ID      string
	Name    string
	Courses []string
}

func init() {
	model.Describe[Client]().Table("clients").PK("ID", model.PKNumber).MustRegister()
	model.Describe[Account]().Table("accounts").PK("ID", model.PKString).MustRegister()
	model.Describe[Frozen]().
		Table("frozen").
		PK("ID", model.PKString).
		Block(model.OpDelete).
		MustRegister()
	model.Describe[Course]().Table("course").PK("ID", model.PKString).MustRegister()
	model.Describe[Student]().
		Table("student").
		PK("ID", model.PKString).
		ManyToMany("Courses", Course{}, model.Cascade{OnDelete: model.CascadeAll}, false).
		MustRegister()
}

// TestBasicCRUD follows the reference scenario: create, read back,
// update one field, delete, read rejects.
func TestBasicCRUD(t *testing.T) {
	repo, err := New[Client]()
	require.NoError(t, err)
	repo, err = repo.With(Config{User: "tester"})
	require.NoError(t, err)
	ctx := context.Background()

	created, err := repo.Create(ctx, &Client{ID: 1, Name: "test", Nif: "123456789"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, "tester", created.CreatedBy)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Read(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name)
	assert.Equal(t, "123456789", got.Nif)

	got.Name = "test2"
	updated, err := repo.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "test2", updated.Name)
	assert.Equal(t, "123456789", updated.Nif)
	assert.Equal(t, int64(2), updated.Version)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	_, err = repo.Delete(ctx, int64(1))
	require.NoError(t, err)

	_, err = repo.Read(ctx, int64(1))
	assert.True(t, errors.IsNotFound(err))
}

// TestVersionMonotonicity: after N updates, version is 1 + N
func TestVersionMonotonicity(t *testing.T) {
	repo, err := New[Client]()
	require.NoError(t, err)
	ctx := context.Background()

	cur, err := repo.Create(ctx, &Client{ID: 7, Name: "v"})
	require.NoError(t, err)

	const updates = 4
	for i := 0; i < updates; i++ {
		cur.Name = "v" + string(rune('a'+i))
		cur, err = repo.Update(ctx, cur)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1+updates), cur.Version)
}

func TestOperationGuard(t *testing.T) {
	repo, err := New[Frozen]()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Create(ctx, &Frozen{ID: "f1", Note: "keep"})
	require.NoError(t, err)

	_, err = repo.Delete(ctx, "f1")
	assert.Equal(t, errors.KindOperationBlocked, errors.KindOf(err))

	// the record is untouched
	got, err := repo.Read(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Note)
}

func TestCreateConflictSurfaces(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Create(ctx, &Account{ID: "dup", Age: 1})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &Account{ID: "dup", Age: 2})
	assert.True(t, errors.IsConflict(err))
}

// TestBulkCreateRollsBack verifies already-applied items are undone
// when a later item fails.
func TestBulkCreateRollsBack(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Create(ctx, &Account{ID: "taken"})
	require.NoError(t, err)

	_, err = repo.CreateAll(ctx, []*Account{
		{ID: "bulk1"},
		{ID: "bulk2"},
		{ID: "taken"}, // conflicts
	})
	require.Error(t, err)

	_, err = repo.Read(ctx, "bulk1")
	assert.True(t, errors.IsNotFound(err))
	_, err = repo.Read(ctx, "bulk2")
	assert.True(t, errors.IsNotFound(err))
}

func TestBulkReadAndDelete(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.CreateAll(ctx, []*Account{
		{ID: "ra1", Age: 1},
		{ID: "ra2", Age: 2},
	})
	require.NoError(t, err)

	got, err := repo.ReadAll(ctx, []interface{}{"ra1", "ra2"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	_, err = repo.DeleteAll(ctx, []interface{}{"ra1", "ra2"})
	require.NoError(t, err)
	_, err = repo.Read(ctx, "ra1")
	assert.True(t, errors.IsNotFound(err))
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	ch    chan struct{}
}

func (o *recordingObserver) Refresh(table string, op model.Operation, ids, payload interface{}, oc *adapter.OpContext) error {
	o.mu.Lock()
	o.calls = append(o.calls, table+":"+string(op))
	o.mu.Unlock()
	o.ch <- struct{}{}
	return nil
}

func TestObserverNotified(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	obs := &recordingObserver{ch: make(chan struct{}, 10)}
	repo.Observe(obs)
	defer repo.UnObserve(obs)

	_, err = repo.Create(context.Background(), &Account{ID: "watched", Age: 9})
	require.NoError(t, err)

	select {
	case <-obs.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not notified")
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Contains(t, obs.calls, "accounts:create")
}

func TestQueriesAndAggregates(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	ctx := context.Background()

	ages := []int{18, 19, 25, 30}
	for i, age := range ages {
		_, err = repo.Create(ctx, &Account{ID: "q" + string(rune('a'+i)), Age: age, Name: "user"})
		require.NoError(t, err)
	}

	adults, err := repo.Select(ctx,
		query.Attr("age").Ge(19).And(query.Attr("name").Eq("user")),
		query.Order{Field: "age", Dir: model.Desc})
	require.NoError(t, err)
	require.Len(t, adults, 3)
	assert.Equal(t, 30, adults[0].Age)

	n, err := repo.Count(ctx, query.Attr("name").Eq("user"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	max, err := repo.Max(ctx, "age", query.Attr("name").Eq("user"))
	require.NoError(t, err)
	assert.Equal(t, 30, max)
}

func TestFindByMethodName(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	ctx := context.Background()

	for i, age := range []int{40, 41, 42} {
		_, err = repo.Create(ctx, &Account{ID: "fb" + string(rune('a'+i)), Age: age, Name: "findable"})
		require.NoError(t, err)
	}

	rows, err := repo.ListBy(ctx, "findByNameEqualsOrderByAgeDesc", "findable")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 42, rows[0].Age)
	assert.Equal(t, 40, rows[2].Age)

	_, err = repo.FindBy(ctx, "conjureByName", "x")
	assert.Equal(t, errors.KindUnsupported, errors.KindOf(err))
}

func TestPaginateBy(t *testing.T) {
	repo, err := New[Account]()
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err = repo.Create(ctx, &Account{ID: "pg" + string(rune('a'+i)), Age: 60 + i, Name: "paged"})
		require.NoError(t, err)
	}

	stmt := repo.Statement().
		Where(query.Attr("name").Eq("paged")).
		OrderBy("age", model.Asc)
	pager, err := repo.PaginateBy(stmt, 2)
	require.NoError(t, err)

	page, err := pager.Page(ctx, 1)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, 60, page.Data[0]["age"])
}

// TestManyToManyLifecycle covers junction creation, reconciliation on
// update, and owning-side cascade on delete.
func TestManyToManyLifecycle(t *testing.T) {
	courses, err := New[Course]()
	require.NoError(t, err)
	students, err := New[Student]()
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err = courses.Create(ctx, &Course{ID: id, Title: id})
		require.NoError(t, err)
	}

	_, err = students.Create(ctx, &Student{ID: "s1", Name: "ada", Courses: []string{"c1", "c2"}})
	require.NoError(t, err)

	ad := students.Adapter()
	_, err = ad.Read(ctx, "course_student", "c1:s1")
	require.NoError(t, err)
	_, err = ad.Read(ctx, "course_student", "c2:s1")
	require.NoError(t, err)

	// reconcile: drop c1, add c3
	_, err = students.Update(ctx, &Student{ID: "s1", Name: "ada", Courses: []string{"c2", "c3"}})
	require.NoError(t, err)
	_, err = ad.Read(ctx, "course_student", "c1:s1")
	assert.True(t, errors.IsNotFound(err))
	_, err = ad.Read(ctx, "course_student", "c3:s1")
	require.NoError(t, err)

	// owning-side cascade delete removes junctions and targets
	_, err = students.Delete(ctx, "s1")
	require.NoError(t, err)
	_, err = ad.Read(ctx, "course_student", "c2:s1")
	assert.True(t, errors.IsNotFound(err))
	_, err = courses.Read(ctx, "c2")
	assert.True(t, errors.IsNotFound(err))
	_, err = courses.Read(ctx, "c3")
	assert.True(t, errors.IsNotFound(err))

	// unrelated course intact
	_, err = courses.Read(ctx, "c1")
	require.NoError(t, err)
}
