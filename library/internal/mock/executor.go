// Package mock is the in-process backend used when no real database is
// configured: a query executor over the entity store and a fake sign-in
// that seeds sample data for new identities.
package mock

import (
	"context"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/session"
	"github.com/Astemirdum/library-admin/library/internal/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Executor evaluates queries against the store. Rows are visible only when
// they belong to the user bound to the context, or else the signed-in
// profile, unless the context is unscoped.
type Executor struct {
	store   *store.Store
	tracker *session.Tracker
	log     *zap.Logger
}

var _ query.Executor = (*Executor)(nil)

func NewExecutor(st *store.Store, tracker *session.Tracker, log *zap.Logger) *Executor {
	return &Executor{
		store:   st,
		tracker: tracker,
		log:     log.Named("mock"),
	}
}

func (e *Executor) userID(ctx context.Context) string {
	if id := session.UserID(ctx); id != "" {
		return id
	}
	return e.tracker.UserID()
}

func (e *Executor) Execute(ctx context.Context, q query.Query) query.Result {
	e.log.Debug("execute",
		zap.String("table", string(q.Table)),
		zap.Stringer("action", q.Action),
		zap.Int("filters", len(q.Filters)))

	switch q.Action {
	case query.ActionInsert:
		return e.insert(ctx, q)
	case query.ActionUpdate:
		return e.update(ctx, q)
	case query.ActionDelete:
		return e.delete(ctx, q)
	}

	data, total := query.Apply(e.visible(ctx, q), q)
	res := query.Result{Data: data}
	if q.Count == query.CountExact {
		res.Count = &total
	}
	return res
}

// visible returns the candidate rows of the table before filtering.
func (e *Executor) visible(ctx context.Context, q query.Query) []model.Record {
	unscoped := query.Unscoped(ctx)
	userID := e.userID(ctx)
	rows := make([]model.Record, 0)

	switch q.Table {
	case model.TableProfiles:
		if unscoped {
			for _, p := range e.store.AllProfiles() {
				rows = append(rows, p)
			}
			return rows
		}
		for _, p := range e.store.ListProfiles(userID) {
			rows = append(rows, p)
		}
		return rows
	case model.TableLibraries:
		libs := e.store.AllLibraries()
		if !unscoped {
			libs = e.store.ListLibraries(userID)
		}
		for _, l := range libs {
			rows = append(rows, l)
		}
		return rows
	}

	for _, libraryID := range e.libraryIDs(ctx, q.Filters) {
		switch q.Table {
		case model.TableBooks:
			for _, b := range e.store.ListBooks(libraryID) {
				rows = append(rows, b)
			}
		case model.TableMembers:
			for _, m := range e.store.ListMembers(libraryID) {
				rows = append(rows, m)
			}
		case model.TableIssues:
			for _, i := range e.store.ListIssues(libraryID) {
				rows = append(rows, i)
			}
		}
	}
	return rows
}

// libraryIDs narrows the scan to the library named by an eq filter, or to
// every library the caller may see.
func (e *Executor) libraryIDs(ctx context.Context, filters []query.Filter) []string {
	if v, ok := query.EqValue(filters, model.ColLibraryID); ok {
		id, _ := v.(string)
		if e.ownsLibrary(ctx, id) {
			return []string{id}
		}
		return nil
	}
	libs := e.store.AllLibraries()
	if !query.Unscoped(ctx) {
		libs = e.store.ListLibraries(e.userID(ctx))
	}
	ids := make([]string, 0, len(libs))
	for _, l := range libs {
		ids = append(ids, l.ID)
	}
	return ids
}

func (e *Executor) ownsLibrary(ctx context.Context, libraryID string) bool {
	lib, ok := e.store.GetLibrary(libraryID)
	if !ok {
		return false
	}
	return query.Unscoped(ctx) || (lib.UserID != "" && lib.UserID == e.userID(ctx))
}

func (e *Executor) insert(ctx context.Context, q query.Query) query.Result {
	created := make([]model.Record, 0, len(q.Rows))
	for _, row := range q.Rows {
		if row.TableName() != q.Table {
			return query.Result{Err: errors.Errorf("insert into %s: got %s row", q.Table, row.TableName())}
		}
		rec, err := e.create(ctx, row)
		if err != nil {
			return query.Result{Err: errors.Wrapf(err, "insert into %s", q.Table)}
		}
		created = append(created, rec)
	}
	if !q.Returning {
		return query.Result{}
	}
	return query.Result{Data: created}
}

func (e *Executor) create(ctx context.Context, row model.Record) (model.Record, error) {
	switch r := row.(type) {
	case model.Profile:
		if _, taken := e.store.FindProfileByEmail(r.Email); taken && r.Email != "" {
			return nil, errs.ErrDuplicateEmail
		}
		return e.store.CreateProfile(r), nil
	case model.Library:
		if !query.Unscoped(ctx) {
			userID := e.userID(ctx)
			if userID == "" {
				return nil, errs.ErrNotSignedIn
			}
			if r.UserID == "" {
				r.UserID = userID
			}
			if r.UserID != userID {
				return nil, errs.ErrInvalidLibrary
			}
		}
		return e.store.CreateLibrary(r), nil
	case model.Book:
		if !e.ownsLibrary(ctx, r.LibraryID) {
			return nil, errs.ErrInvalidLibrary
		}
		return e.store.CreateBook(r), nil
	case model.Member:
		if !e.ownsLibrary(ctx, r.LibraryID) {
			return nil, errs.ErrInvalidLibrary
		}
		return e.store.CreateMember(r), nil
	case model.Issue:
		if !e.ownsLibrary(ctx, r.LibraryID) {
			return nil, errs.ErrInvalidLibrary
		}
		return e.store.CreateIssue(r), nil
	}
	return nil, errors.Wrapf(query.ErrUnknownTable, "%T", row)
}

// matching returns the visible rows that satisfy every filter.
func (e *Executor) matching(ctx context.Context, q query.Query) []model.Record {
	out := make([]model.Record, 0)
	for _, r := range e.visible(ctx, q) {
		if query.MatchAll(r, q.Filters) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Executor) update(ctx context.Context, q query.Query) query.Result {
	if q.Patch == nil || q.Patch.TableName() != q.Table {
		return query.Result{Err: errors.Errorf("update %s: patch does not fit the table", q.Table)}
	}
	targets := e.matching(ctx, q)
	if len(targets) == 0 {
		return query.Result{Err: errors.Wrapf(errs.ErrNotFound, "update %s", q.Table)}
	}
	updated := make([]model.Record, 0, len(targets))
	for _, target := range targets {
		rec, ok := e.apply(target, q.Patch)
		if !ok {
			return query.Result{Err: errors.Wrapf(errs.ErrNotFound, "update %s", q.Table)}
		}
		updated = append(updated, rec)
	}
	if !q.Returning {
		return query.Result{}
	}
	return query.Result{Data: updated}
}

func (e *Executor) apply(target model.Record, patch model.Patch) (model.Record, bool) {
	switch r := target.(type) {
	case model.Profile:
		p, ok := patch.(model.ProfilePatch)
		if !ok {
			return nil, false
		}
		return found(e.store.UpdateProfile(r.ID, p))
	case model.Library:
		p, ok := patch.(model.LibraryPatch)
		if !ok {
			return nil, false
		}
		return found(e.store.UpdateLibrary(r.ID, p))
	case model.Book:
		p, ok := patch.(model.BookPatch)
		if !ok {
			return nil, false
		}
		return found(e.store.UpdateBook(r.ID, p))
	case model.Member:
		p, ok := patch.(model.MemberPatch)
		if !ok {
			return nil, false
		}
		return found(e.store.UpdateMember(r.ID, p))
	case model.Issue:
		p, ok := patch.(model.IssuePatch)
		if !ok {
			return nil, false
		}
		return found(e.store.UpdateIssue(r.ID, p))
	}
	return nil, false
}

func found[T model.Record](rec T, ok bool) (model.Record, bool) {
	if !ok {
		return nil, false
	}
	return rec, true
}

func (e *Executor) delete(ctx context.Context, q query.Query) query.Result {
	targets := e.matching(ctx, q)
	if len(targets) == 0 {
		return query.Result{Err: errors.Wrapf(errs.ErrNotFound, "delete from %s", q.Table)}
	}
	for _, target := range targets {
		var ok bool
		switch r := target.(type) {
		case model.Profile:
			ok = e.store.DeleteProfile(r.ID)
		case model.Library:
			ok = e.store.DeleteLibrary(r.ID)
		case model.Book:
			ok = e.store.DeleteBook(r.ID)
		case model.Member:
			ok = e.store.DeleteMember(r.ID)
		case model.Issue:
			ok = e.store.DeleteIssue(r.ID)
		}
		if !ok {
			return query.Result{Err: errors.Wrapf(errs.ErrNotFound, "delete from %s", q.Table)}
		}
	}
	if !q.Returning {
		return query.Result{}
	}
	return query.Result{Data: targets}
}
