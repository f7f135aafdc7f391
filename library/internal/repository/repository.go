package repository

import (
	"context"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/realtime"
	"github.com/Astemirdum/library-admin/library/internal/session"
)

// DB is the part of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	query.Executor
}

type repository struct {
	db  DB
	hub realtime.Hub
	log *zap.Logger
}

func NewRepository(db DB, hub realtime.Hub, log *zap.Logger) *repository {
	return &repository{
		db:  db,
		hub: hub,
		log: log.Named("repo"),
	}
}

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Execute scopes q to the user bound to ctx. Without a user only unscoped
// contexts see any row.
func (r *repository) Execute(ctx context.Context, q query.Query) query.Result {
	sc := scope{userID: session.UserID(ctx), all: query.Unscoped(ctx)}
	var res query.Result
	switch q.Action {
	case query.ActionSelect:
		res = r.selectRows(ctx, q, sc)
	case query.ActionInsert:
		res = r.insertRows(ctx, q, sc)
	case query.ActionUpdate, query.ActionDelete:
		res = r.mutateRows(ctx, q, sc)
	default:
		res = query.Result{Err: errors.Errorf("unsupported action %s", q.Action)}
	}
	if res.Err != nil {
		r.log.Error("execute",
			zap.String("table", string(q.Table)),
			zap.Stringer("action", q.Action),
			zap.Error(res.Err))
	}
	return res
}

func (r *repository) selectRows(ctx context.Context, q query.Query, sc scope) query.Result {
	var res query.Result
	if q.Count == query.CountExact {
		sql, args, err := buildCount(q, sc)
		if err != nil {
			return query.Result{Err: err}
		}
		r.log.Debug("count", zap.String("query", sql), zap.Any("args", args))
		var n int
		if err := r.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
			return query.Result{Err: errors.Wrap(err, "count")}
		}
		res.Count = &n
	}
	if q.Head {
		return res
	}

	sql, args, err := buildSelect(q, sc)
	if err != nil {
		return query.Result{Err: err}
	}
	r.log.Debug("select", zap.String("query", sql), zap.Any("args", args))
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return query.Result{Err: errors.Wrap(err, "select")}
	}
	res.Data, err = collect(rows, q.Table, len(q.Columns) > 0)
	if err != nil {
		return query.Result{Err: errors.Wrap(err, "select")}
	}
	return res
}

func (r *repository) insertRows(ctx context.Context, q query.Query, sc scope) query.Result {
	if len(q.Rows) == 0 {
		return query.Result{}
	}
	if !sc.all {
		if err := r.checkOwnership(ctx, q.Rows, sc.userID); err != nil {
			return query.Result{Err: err}
		}
	}
	sql, args, err := buildInsert(q, sc)
	if err != nil {
		return query.Result{Err: err}
	}
	r.log.Debug("insert", zap.String("query", sql), zap.Any("args", args))
	data, err := r.returning(ctx, q.Table, sql, args)
	if err != nil {
		return query.Result{Err: errors.Wrapf(err, "insert into %s", q.Table)}
	}
	r.publish(ctx, realtime.EventInsert, data)
	if !q.Returning {
		return query.Result{}
	}
	return query.Result{Data: data}
}

func (r *repository) mutateRows(ctx context.Context, q query.Query, sc scope) query.Result {
	var (
		sql   string
		args  []any
		err   error
		event = realtime.EventUpdate
	)
	if q.Action == query.ActionDelete {
		event = realtime.EventDelete
		sql, args, err = buildDelete(q, sc)
	} else {
		sql, args, err = buildUpdate(q, sc)
	}
	if err != nil {
		return query.Result{Err: err}
	}
	r.log.Debug(q.Action.String(), zap.String("query", sql), zap.Any("args", args))
	data, err := r.returning(ctx, q.Table, sql, args)
	if err != nil {
		return query.Result{Err: errors.Wrapf(err, "%s %s", q.Action, q.Table)}
	}
	if len(data) == 0 {
		return query.Result{Err: errors.Wrapf(errs.ErrNotFound, "%s %s", q.Action, q.Table)}
	}
	r.publish(ctx, event, data)
	if !q.Returning {
		return query.Result{}
	}
	return query.Result{Data: data}
}

func (r *repository) returning(ctx context.Context, table model.Table, sql string, args []any) ([]model.Record, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(table, err)
	}
	data, err := collect(rows, table, false)
	if err != nil {
		return nil, mapError(table, err)
	}
	return data, nil
}

// checkOwnership rejects rows pointing at a library the user does not own.
func (r *repository) checkOwnership(ctx context.Context, rows []model.Record, userID string) error {
	seen := make(map[string]bool)
	for _, row := range rows {
		v, ok := row.Value(model.ColLibraryID)
		if !ok {
			continue
		}
		libraryID, _ := v.(string)
		if seen[libraryID] {
			continue
		}
		sql, args, err := qb.Select("count(*)").
			From(string(model.TableLibraries)).
			Where(sq.Eq{model.ColID: libraryID, model.ColUserID: userID}).
			ToSql()
		if err != nil {
			return err
		}
		var n int
		if err := r.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
			return errors.Wrap(err, "check library owner")
		}
		if n == 0 {
			return errs.ErrInvalidLibrary
		}
		seen[libraryID] = true
	}
	return nil
}

func (r *repository) publish(ctx context.Context, event realtime.Event, data []model.Record) {
	if r.hub == nil {
		return
	}
	for _, rec := range data {
		c, ok := changeOf(event, rec)
		if !ok {
			continue
		}
		if err := r.hub.Publish(ctx, c); err != nil {
			r.log.Warn("publish change", zap.String("table", string(c.Table)), zap.Error(err))
		}
	}
}

func changeOf(event realtime.Event, rec model.Record) (realtime.Change, bool) {
	c := realtime.Change{Event: event, Schema: realtime.SchemaPublic, Table: rec.TableName()}
	switch v := rec.(type) {
	case model.Library:
		c.LibraryID, c.RecordID = v.ID, v.ID
	case model.Book:
		c.LibraryID, c.RecordID = v.LibraryID, strconv.Itoa(v.ID)
	case model.Member:
		c.LibraryID, c.RecordID = v.LibraryID, strconv.Itoa(v.ID)
	case model.Issue:
		c.LibraryID, c.RecordID = v.LibraryID, strconv.Itoa(v.ID)
	default:
		return realtime.Change{}, false
	}
	return c, true
}

func mapError(table model.Table, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch table {
		case model.TableProfiles:
			return errors.Wrap(errs.ErrDuplicateEmail, pgErr.ConstraintName)
		case model.TableLibraries:
			return errors.Wrap(errs.ErrDuplicateName, pgErr.ConstraintName)
		}
		return errors.Wrap(errs.ErrDuplicateCode, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return errors.Wrap(errs.ErrInvalidLibrary, pgErr.ConstraintName)
	}
	return err
}

func collect(rows pgx.Rows, table model.Table, lax bool) ([]model.Record, error) {
	switch table {
	case model.TableProfiles:
		return collectAs[model.Profile](rows, lax)
	case model.TableLibraries:
		return collectAs[model.Library](rows, lax)
	case model.TableBooks:
		return collectAs[model.Book](rows, lax)
	case model.TableMembers:
		return collectAs[model.Member](rows, lax)
	case model.TableIssues:
		return collectAs[model.Issue](rows, lax)
	}
	rows.Close()
	return nil, errors.Wrap(query.ErrUnknownTable, string(table))
}

func collectAs[T model.Record](rows pgx.Rows, lax bool) ([]model.Record, error) {
	fn := pgx.RowToStructByName[T]
	if lax {
		fn = pgx.RowToStructByNameLax[T]
	}
	items, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out, nil
}
