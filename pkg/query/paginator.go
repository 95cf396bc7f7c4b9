package query

import (
	"context"

	"github.com/cuemby/strata/pkg/errors"
)

// Bookmarker is implemented by adapters whose backends page by bookmark
// instead of offset. The returned bookmark resumes the next page.
type Bookmarker interface {
	RawBookmark(ctx context.Context, plan *Plan, bookmark interface{}) ([]map[string]interface{}, interface{}, error)
}

// Page is one serialised page of results. Bookmark is only set when the
// backing adapter supports bookmarks.
type Page struct {
	Number   int                      `json:"number"`
	Data     []map[string]interface{} `json:"data"`
	Bookmark interface{}              `json:"bookmark,omitempty"`
	Total    int                      `json:"total,omitempty"`
}

// Paginator walks a compiled plan page by page through the
// prepare → page → next protocol.
type Paginator struct {
	stmt     *Statement
	plan     *Plan
	exec     RawExecutor
	size     int
	current  int // 0 means no page fetched yet
	bookmark interface{}
	total    int
	prepared bool
}

// NewPaginator builds a paginator over a statement. The statement's own
// limit/offset are superseded by the page window.
func NewPaginator(stmt *Statement, size int, exec RawExecutor) (*Paginator, error) {
	if size < 1 {
		return nil, errors.New(errors.KindPaging, "page size must be at least 1, got %d", size)
	}
	plan, err := stmt.Build()
	if err != nil {
		return nil, err
	}
	return &Paginator{stmt: stmt, plan: plan, exec: exec, size: size}, nil
}

// Size returns the page size
func (p *Paginator) Size() int { return p.size }

// Current returns the last fetched page number, 0 before the first fetch
func (p *Paginator) Current() int { return p.current }

// Total returns the record count; populated only in forced-prepared mode
func (p *Paginator) Total() int { return p.total }

// Prepare forces a count pass so Total is populated
func (p *Paginator) Prepare(ctx context.Context) error {
	countPlan := *p.plan
	countPlan.Skip = 0
	countPlan.Limit = -1
	countPlan.Aggregate = &Aggregate{Kind: AggCount}
	res, err := p.exec.Raw(ctx, &countPlan)
	if err != nil {
		return err
	}
	if n, ok := res.(int64); ok {
		p.total = int(n)
	}
	p.prepared = true
	return nil
}

// Page fetches page n (1-based) of at most Size records
func (p *Paginator) Page(ctx context.Context, n int) (*Page, error) {
	if n < 1 {
		return nil, errors.New(errors.KindPaging, "page numbers start at 1, got %d", n)
	}

	window := *p.plan
	window.Skip = (n - 1) * p.size
	window.Limit = p.size

	var data []map[string]interface{}
	var bookmark interface{}

	if bk, ok := p.exec.(Bookmarker); ok {
		// Bookmark paging: sequential access reuses the stored bookmark
		// in lieu of the offset.
		mark := p.bookmark
		if n != p.current+1 {
			mark = nil
		}
		rows, next, err := bk.RawBookmark(ctx, &window, mark)
		if err != nil {
			return nil, err
		}
		data, bookmark = rows, next
		p.bookmark = next
	} else {
		res, err := p.exec.Raw(ctx, &window)
		if err != nil {
			return nil, err
		}
		rows, ok := res.([]map[string]interface{})
		if !ok {
			return nil, errors.New(errors.KindPaging, "plan did not produce a result set")
		}
		data = rows
	}

	p.current = n
	page := &Page{Number: n, Data: data, Bookmark: bookmark}
	if p.prepared {
		page.Total = p.total
	}
	return page, nil
}

// Next fetches the page after the current one
func (p *Paginator) Next(ctx context.Context) (*Page, error) {
	return p.Page(ctx, p.current+1)
}
