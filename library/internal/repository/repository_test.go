package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/realtime"
	"github.com/Astemirdum/library-admin/library/internal/session"
)

func Test_buildSelect(t *testing.T) {
	t.Parallel()
	user := scope{userID: "u1"}
	tests := []struct {
		name     string
		q        query.Query
		sc       scope
		wantSQL  string
		wantArgs []any
		wantErr  error
	}{
		{
			name: "scoped, ordered, limited",
			q: query.Query{
				Table:   model.TableBooks,
				Filters: []query.Filter{{Op: query.OpEq, Column: model.ColLibraryID, Value: "lib-1"}},
				Order:   &query.Order{Column: model.ColCreatedAt},
				Limit:   5,
			},
			sc:       user,
			wantSQL:  "SELECT * FROM book_management WHERE library_id IN (SELECT id FROM libraries WHERE user_id = $1) AND library_id = $2 ORDER BY created_at DESC, id DESC LIMIT 5",
			wantArgs: []any{"u1", "lib-1"},
		},
		{
			name: "unscoped single",
			q: query.Query{
				Table:   model.TableProfiles,
				Filters: []query.Filter{{Op: query.OpEq, Column: model.ColID, Value: "p1"}},
				Single:  true,
			},
			sc:       scope{all: true},
			wantSQL:  "SELECT * FROM profiles WHERE id = $1 ORDER BY id ASC LIMIT 1",
			wantArgs: []any{"p1"},
		},
		{
			name: "neq, is null and lt",
			q: query.Query{
				Table: model.TableIssues,
				Filters: []query.Filter{
					{Op: query.OpNeq, Column: model.ColIssueBook, Value: 101},
					{Op: query.OpIsNull, Column: model.ColReturnDate},
					{Op: query.OpLt, Column: model.ColIssueDate, Value: "2024-03-01"},
				},
				Order:   &query.Order{Column: model.ColIssueDate, Ascending: true},
				Columns: []string{model.ColID, model.ColIssueBook},
			},
			sc:       scope{all: true},
			wantSQL:  "SELECT id, ib_code FROM issue_management WHERE ib_code <> $1 AND i_date_of_ret IS NULL AND i_date_of_iss < $2 ORDER BY i_date_of_iss ASC, id ASC",
			wantArgs: []any{101, "2024-03-01"},
		},
		{
			name:     "libraries of the user",
			q:        query.Query{Table: model.TableLibraries},
			sc:       user,
			wantSQL:  "SELECT * FROM libraries WHERE user_id = $1 ORDER BY id ASC",
			wantArgs: []any{"u1"},
		},
		{
			name: "unknown filter column",
			q: query.Query{
				Table:   model.TableBooks,
				Filters: []query.Filter{{Op: query.OpEq, Column: "1=1; drop table books", Value: 1}},
			},
			sc:      user,
			wantErr: ErrUnknownColumn,
		},
		{
			name:    "unknown order column",
			q:       query.Query{Table: model.TableBooks, Order: &query.Order{Column: "m_code"}},
			sc:      user,
			wantErr: ErrUnknownColumn,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sql, args, err := buildSelect(tt.q, tt.sc)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSQL, sql)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func Test_buildCount(t *testing.T) {
	t.Parallel()
	q := query.Query{
		Table:   model.TableIssues,
		Filters: []query.Filter{{Op: query.OpIsNull, Column: model.ColReturnDate}},
		Limit:   5,
	}
	sql, args, err := buildCount(q, scope{userID: "u1"})
	require.NoError(t, err)
	// the count ignores the limit
	require.Equal(t, "SELECT count(*) FROM issue_management WHERE library_id IN (SELECT id FROM libraries WHERE user_id = $1) AND i_date_of_ret IS NULL", sql)
	require.Equal(t, []any{"u1"}, args)
}

func Test_buildInsert(t *testing.T) {
	t.Parallel()
	q := query.Query{
		Table:  model.TableBooks,
		Action: query.ActionInsert,
		Rows: []model.Record{
			model.Book{Code: 101, Name: "Dune", Author: "Frank Herbert", Price: 9.99, LibraryID: "lib-1"},
			model.Book{Code: 102, Name: "Emma", Author: "Jane Austen", Price: 5, LibraryID: "lib-1"},
		},
	}
	sql, args, err := buildInsert(q, scope{userID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO book_management (b_code,b_name,b_author,b_price,library_id) VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10) RETURNING *", sql)
	require.Len(t, args, 10)

	lib := query.Query{Table: model.TableLibraries, Rows: []model.Record{model.Library{Name: "Branch A"}}}
	_, args, err = buildInsert(lib, scope{userID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "u1", args[2])

	_, _, err = buildInsert(lib, scope{})
	require.ErrorIs(t, err, errs.ErrNotSignedIn)

	foreign := query.Query{Table: model.TableLibraries, Rows: []model.Record{model.Library{Name: "x", UserID: "u2"}}}
	_, _, err = buildInsert(foreign, scope{userID: "u1"})
	require.ErrorIs(t, err, errs.ErrInvalidLibrary)

	mixed := query.Query{Table: model.TableBooks, Rows: []model.Record{model.Member{}}}
	_, _, err = buildInsert(mixed, scope{userID: "u1"})
	require.Error(t, err)
}

func Test_buildUpdateDelete(t *testing.T) {
	t.Parallel()
	returned := time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC)
	q := query.Query{
		Table:   model.TableIssues,
		Action:  query.ActionUpdate,
		Patch:   model.IssuePatch{ReturnDate: &returned},
		Filters: []query.Filter{{Op: query.OpEq, Column: model.ColID, Value: 3}},
	}
	sql, args, err := buildUpdate(q, scope{userID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "UPDATE issue_management SET i_date_of_ret = $1, updated_at = now() WHERE library_id IN (SELECT id FROM libraries WHERE user_id = $2) AND id = $3 RETURNING *", sql)
	require.Equal(t, []any{returned, "u1", 3}, args)

	_, _, err = buildUpdate(query.Query{Table: model.TableIssues, Patch: model.IssuePatch{}}, scope{all: true})
	require.Error(t, err)
	_, _, err = buildUpdate(query.Query{Table: model.TableIssues, Patch: model.BookPatch{}}, scope{all: true})
	require.Error(t, err)

	q = query.Query{
		Table:   model.TableLibraries,
		Action:  query.ActionDelete,
		Filters: []query.Filter{{Op: query.OpEq, Column: model.ColID, Value: "lib-1"}},
	}
	sql, args, err = buildDelete(q, scope{userID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "DELETE FROM libraries WHERE user_id = $1 AND id = $2 RETURNING *", sql)
	require.Equal(t, []any{"u1", "lib-1"}, args)
}

func Test_mapError(t *testing.T) {
	t.Parallel()
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "book_management_library_id_b_code_key"}
	require.ErrorIs(t, mapError(model.TableBooks, unique), errs.ErrDuplicateCode)
	require.ErrorIs(t, mapError(model.TableLibraries, unique), errs.ErrDuplicateName)
	require.ErrorIs(t, mapError(model.TableProfiles, unique), errs.ErrDuplicateEmail)

	fk := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}
	require.ErrorIs(t, mapError(model.TableMembers, errors.Wrap(fk, "insert")), errs.ErrInvalidLibrary)

	other := errors.New("conn reset")
	require.Equal(t, other, mapError(model.TableBooks, other))
}

func Test_changeOf(t *testing.T) {
	t.Parallel()
	c, ok := changeOf(realtime.EventInsert, model.Book{ID: 7, LibraryID: "lib-1"})
	require.True(t, ok)
	require.Equal(t, realtime.Change{Event: realtime.EventInsert, Schema: realtime.SchemaPublic, Table: model.TableBooks, LibraryID: "lib-1", RecordID: "7"}, c)

	c, ok = changeOf(realtime.EventDelete, model.Library{ID: "lib-1"})
	require.True(t, ok)
	require.Equal(t, "lib-1", c.LibraryID)

	_, ok = changeOf(realtime.EventUpdate, model.Profile{ID: "p1"})
	require.False(t, ok)
}

type fakeRow struct {
	n   int
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = r.n
	return nil
}

type fakeDB struct {
	row     fakeRow
	queries []string
}

func (db *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	db.queries = append(db.queries, sql)
	return nil, errors.New("unexpected query")
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	db.queries = append(db.queries, sql)
	return db.row
}

func asUser(id string) context.Context {
	return session.NewContext(context.Background(), model.Session{User: model.User{ID: id}})
}

func TestRepository_HeadCount(t *testing.T) {
	t.Parallel()
	db := &fakeDB{row: fakeRow{n: 4}}
	repo := NewRepository(db, nil, zap.NewNop())

	res := query.From(repo, model.TableMembers).
		Select(query.Head()).
		Eq(model.ColLibraryID, "lib-1").
		Execute(asUser("u1"))
	require.NoError(t, res.Err)
	require.Nil(t, res.Data)
	require.Equal(t, 4, query.CountOf(res))
	require.Len(t, db.queries, 1)

	db.row = fakeRow{err: errors.New("boom")}
	res = query.From(repo, model.TableMembers).Select(query.Head()).Execute(asUser("u1"))
	require.Error(t, res.Err)
}

func TestRepository_InsertIntoForeignLibrary(t *testing.T) {
	t.Parallel()
	db := &fakeDB{row: fakeRow{n: 0}}
	repo := NewRepository(db, nil, zap.NewNop())

	res := query.From(repo, model.TableBooks).
		Insert(model.Book{Code: 1, LibraryID: "lib-2"}).
		Execute(asUser("u1"))
	require.ErrorIs(t, res.Err, errs.ErrInvalidLibrary)
	require.Len(t, db.queries, 1)
}

type argsDB struct {
	fakeDB
	args [][]any
}

func (db *argsDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.args = append(db.args, args)
	return db.fakeDB.QueryRow(ctx, sql, args...)
}

func TestRepository_ScopeFollowsRequestUser(t *testing.T) {
	t.Parallel()
	db := &argsDB{fakeDB: fakeDB{row: fakeRow{n: 1}}}
	repo := NewRepository(db, nil, zap.NewNop())

	// interleaved requests of two users keep their own scope
	aliceCtx, bobCtx := asUser("alice"), asUser("bob")
	count := func(ctx context.Context) {
		res := query.From(repo, model.TableLibraries).Select(query.Head()).Execute(ctx)
		require.NoError(t, res.Err)
	}
	count(bobCtx)
	count(aliceCtx)
	count(context.Background())
	require.Equal(t, [][]any{{"bob"}, {"alice"}, {""}}, db.args)
}
