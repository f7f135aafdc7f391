// Package query is a fluent, lazily executed query builder over the fixed
// library tables. A Builder only accumulates a declarative Query; nothing
// touches the data until Execute hands it to an Executor (the in-memory
// emulation or the postgres driver).
package query

import (
	"context"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/pkg/errors"
)

type Action uint8

const (
	ActionSelect Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "select"
}

type CountMode string

const CountExact CountMode = "exact"

type Order struct {
	Column    string
	Ascending bool
}

// Query is the declarative form of a builder chain.
type Query struct {
	Table   model.Table
	Action  Action
	Columns []string
	Count   CountMode
	Head    bool
	Filters []Filter
	Order   *Order
	// Limit caps returned rows after filtering and ordering; 0 means no limit.
	Limit       int
	Single      bool
	MaybeSingle bool
	// Returning asks mutations to hand back the affected rows.
	Returning bool
	Rows      []model.Record
	Patch     model.Patch
}

// Result always carries either data or an error. Data is nil for head
// counts, for a maybeSingle miss, and whenever Err is set.
type Result struct {
	Data  []model.Record
	Count *int
	Err   error
}

type Executor interface {
	Execute(ctx context.Context, q Query) Result
}

var ErrUnknownTable = errors.New("unknown table")

type Builder struct {
	exec Executor
	q    Query
}

func From(exec Executor, table model.Table) *Builder {
	return &Builder{
		exec: exec,
		q:    Query{Table: table},
	}
}

type SelectOption func(*Query)

func WithCount(mode CountMode) SelectOption {
	return func(q *Query) {
		q.Count = mode
	}
}

// Head requests the count only; data is left nil.
func Head() SelectOption {
	return func(q *Query) {
		q.Head = true
		if q.Count == "" {
			q.Count = CountExact
		}
	}
}

// Columns narrows the projection. The in-memory executor always returns whole rows.
func Columns(cols ...string) SelectOption {
	return func(q *Query) {
		q.Columns = append(q.Columns, cols...)
	}
}

// Select marks a read, or after Insert/Update asks for the affected rows back.
func (b *Builder) Select(opts ...SelectOption) *Builder {
	if b.q.Action != ActionSelect {
		b.q.Returning = true
	}
	for _, op := range opts {
		op(&b.q)
	}
	return b
}

func (b *Builder) Eq(column string, value any) *Builder {
	b.q.Filters = append(b.q.Filters, Filter{Op: OpEq, Column: column, Value: value})
	return b
}

func (b *Builder) Neq(column string, value any) *Builder {
	b.q.Filters = append(b.q.Filters, Filter{Op: OpNeq, Column: column, Value: value})
	return b
}

// Is matches rows whose column is null. Only nil is supported as a value.
func (b *Builder) Is(column string, _ any) *Builder {
	b.q.Filters = append(b.q.Filters, Filter{Op: OpIsNull, Column: column})
	return b
}

func (b *Builder) Lt(column string, value any) *Builder {
	b.q.Filters = append(b.q.Filters, Filter{Op: OpLt, Column: column, Value: value})
	return b
}

type OrderOption func(*Order)

func Ascending(asc bool) OrderOption {
	return func(o *Order) {
		o.Ascending = asc
	}
}

func (b *Builder) Order(column string, opts ...OrderOption) *Builder {
	o := &Order{Column: column, Ascending: true}
	for _, op := range opts {
		op(o)
	}
	b.q.Order = o
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = n
	return b
}

func (b *Builder) Single() *Builder {
	b.q.Single = true
	return b
}

func (b *Builder) MaybeSingle() *Builder {
	b.q.MaybeSingle = true
	return b
}

func (b *Builder) Insert(rows ...model.Record) *Builder {
	b.q.Action = ActionInsert
	b.q.Rows = append(b.q.Rows, rows...)
	return b
}

func (b *Builder) Update(patch model.Patch) *Builder {
	b.q.Action = ActionUpdate
	b.q.Patch = patch
	return b
}

func (b *Builder) Delete() *Builder {
	b.q.Action = ActionDelete
	return b
}

// Query returns a copy of the accumulated query.
func (b *Builder) Query() Query {
	q := b.q
	q.Filters = append([]Filter(nil), b.q.Filters...)
	return q
}

// Execute runs the chain. It never panics on query level outcomes: a
// single() miss or a failed write comes back as Result.Err.
func (b *Builder) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}
	if !b.q.Table.Valid() {
		return Result{Err: errors.Wrap(ErrUnknownTable, string(b.q.Table))}
	}
	res := b.exec.Execute(ctx, b.Query())
	if res.Err != nil {
		return Result{Err: res.Err}
	}
	switch {
	case b.q.Head:
		res.Data = nil
	case b.q.Single || b.q.MaybeSingle:
		if len(res.Data) == 0 {
			if b.q.MaybeSingle {
				return Result{Count: res.Count}
			}
			return Result{Err: errors.Wrapf(errs.ErrNotFound, "%s: no rows found", b.q.Table)}
		}
		res.Data = res.Data[:1]
	}
	return res
}

// Rows converts the result data to the concrete row type.
func Rows[T model.Record](res Result) ([]T, error) {
	if res.Err != nil {
		return nil, res.Err
	}
	out := make([]T, 0, len(res.Data))
	for _, r := range res.Data {
		v, ok := r.(T)
		if !ok {
			return nil, errors.Errorf("unexpected row type %T", r)
		}
		out = append(out, v)
	}
	return out, nil
}

// One returns the first row; ok is false when the result holds no data.
func One[T model.Record](res Result) (row T, ok bool, err error) {
	rows, err := Rows[T](res)
	if err != nil || len(rows) == 0 {
		return row, false, err
	}
	return rows[0], true, nil
}

// CountOf returns the exact count or zero when none was requested.
func CountOf(res Result) int {
	if res.Count == nil {
		return 0
	}
	return *res.Count
}

type unscopedKey struct{}

// WithoutScope disables owner scoping for calls made with the returned context.
func WithoutScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, unscopedKey{}, true)
}

func Unscoped(ctx context.Context) bool {
	v, _ := ctx.Value(unscopedKey{}).(bool)
	return v
}
