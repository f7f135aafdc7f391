package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/mock"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/session"
	"github.com/Astemirdum/library-admin/library/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var day0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type env struct {
	store   *store.Store
	tracker *session.Tracker
	exec    *mock.Executor
	auth    *mock.Auth
}

func newEnv() env {
	log := zap.NewNop()
	st := store.New(store.WithClock(func() time.Time { return day0 }))
	tracker := session.NewTracker(log)
	exec := mock.NewExecutor(st, tracker, log)
	return env{
		store:   st,
		tracker: tracker,
		exec:    exec,
		auth:    mock.NewAuth(st, tracker, exec, log, mock.WithAuthClock(func() time.Time { return day0 })),
	}
}

func (e env) signIn(t *testing.T, email string) (model.Profile, string) {
	t.Helper()
	p, _, err := e.auth.SignIn(context.Background(), mock.SignInRequest{Email: email})
	require.NoError(t, err)
	libs := e.store.ListLibraries(p.ID)
	require.NotEmpty(t, libs)
	return p, libs[0].ID
}

func TestAuth_SignInSeedsSampleData(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()

	p, token, err := e.auth.SignIn(ctx, mock.SignInRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.NotEmpty(t, p.Email)
	require.Equal(t, "Mock User", *p.FullName)
	require.Contains(t, token, mock.TokenPrefix)
	require.True(t, e.auth.Token(token))

	libs := e.store.ListLibraries(p.ID)
	require.Len(t, libs, 1)
	require.Equal(t, "Sample Library", libs[0].Name)
	require.Len(t, e.store.ListBooks(libs[0].ID), 5)
	require.Len(t, e.store.ListMembers(libs[0].ID), 3)

	issues := e.store.ListIssues(libs[0].ID)
	require.Len(t, issues, 1)
	require.True(t, issues[0].Open())
	require.Equal(t, 1001, issues[0].BookCode)
	require.Equal(t, 2001, issues[0].MemberCode)
	require.Equal(t, time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC), issues[0].IssueDate)

	current, ok := e.auth.CurrentUser()
	require.True(t, ok)
	require.Equal(t, p.ID, current.ID)
}

func TestAuth_ReturningIdentityIsNotSeededTwice(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()

	first, _, err := e.auth.SignIn(ctx, mock.SignInRequest{Email: "ann@example.com"})
	require.NoError(t, err)
	require.NoError(t, e.auth.SignOut(ctx))

	_, ok := e.auth.CurrentUser()
	require.False(t, ok)

	second, _, err := e.auth.SignIn(ctx, mock.SignInRequest{Email: "ann@example.com"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	libs := e.store.ListLibraries(second.ID)
	require.Len(t, libs, 1)
	require.Len(t, e.store.ListBooks(libs[0].ID), 5)
}

func TestAuth_StateChangeListeners(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()

	var events []model.AuthEvent
	sub := e.auth.OnAuthStateChange(func(ev model.AuthEvent, s *model.Session) {
		events = append(events, ev)
		if ev == model.EventSignedIn {
			// the sample data is already there when the listener runs
			require.NotEmpty(t, e.store.ListLibraries(s.User.ID))
		}
	})
	_, _, err := e.auth.SignIn(ctx, mock.SignInRequest{})
	require.NoError(t, err)
	require.NoError(t, e.auth.SignOut(ctx))

	sub.Unsubscribe()
	_, _, err = e.auth.SignIn(ctx, mock.SignInRequest{})
	require.NoError(t, err)
	require.Equal(t, []model.AuthEvent{model.EventSignedIn, model.EventSignedOut}, events)

	var replayed []model.AuthEvent
	e.auth.OnAuthStateChange(func(ev model.AuthEvent, _ *model.Session) { replayed = append(replayed, ev) })
	require.Equal(t, []model.AuthEvent{model.EventSignedIn}, replayed)

	s, err := e.auth.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestExecutor_SelectCountBeforeLimit(t *testing.T) {
	t.Parallel()
	e := newEnv()
	_, libID := e.signIn(t, "")

	res := query.From(e.exec, model.TableBooks).
		Select(query.WithCount(query.CountExact)).
		Eq(model.ColLibraryID, libID).
		Order(model.ColBookCode, query.Ascending(false)).
		Limit(2).
		Execute(context.Background())
	books, err := query.Rows[model.Book](res)
	require.NoError(t, err)
	require.Equal(t, 5, query.CountOf(res))
	require.Len(t, books, 2)
	require.Equal(t, 1005, books[0].Code)
	require.Equal(t, 1004, books[1].Code)

	res = query.From(e.exec, model.TableMembers).
		Select(query.Head()).
		Eq(model.ColLibraryID, libID).
		Execute(context.Background())
	require.NoError(t, res.Err)
	require.Nil(t, res.Data)
	require.Equal(t, 3, query.CountOf(res))
}

func TestExecutor_OwnerScoping(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	_, libA := e.signIn(t, "a@example.com")
	_, libB := e.signIn(t, "b@example.com")

	// signed in as b: a's library is invisible
	res := query.From(e.exec, model.TableBooks).Select(query.WithCount(query.CountExact)).Eq(model.ColLibraryID, libA).Execute(ctx)
	require.NoError(t, res.Err)
	require.Zero(t, query.CountOf(res))

	libs, err := query.Rows[model.Library](query.From(e.exec, model.TableLibraries).Select().Execute(ctx))
	require.NoError(t, err)
	require.Len(t, libs, 1)
	require.Equal(t, libB, libs[0].ID)

	// no library filter: rows from every owned library
	res = query.From(e.exec, model.TableBooks).Select(query.Head()).Execute(ctx)
	require.Equal(t, 5, query.CountOf(res))

	res = query.From(e.exec, model.TableBooks).Insert(model.Book{Code: 1, LibraryID: libA}).Execute(ctx)
	require.ErrorIs(t, res.Err, errs.ErrInvalidLibrary)

	res = query.From(e.exec, model.TableBooks).Delete().Eq(model.ColLibraryID, libA).Execute(ctx)
	require.ErrorIs(t, res.Err, errs.ErrNotFound)
	require.Len(t, e.store.ListBooks(libA), 5)

	require.NoError(t, e.auth.SignOut(ctx))
	res = query.From(e.exec, model.TableLibraries).Select(query.Head()).Execute(ctx)
	require.NoError(t, res.Err)
	require.Zero(t, query.CountOf(res))

	res = query.From(e.exec, model.TableLibraries).Insert(model.Library{Name: "Branch A"}).Execute(ctx)
	require.ErrorIs(t, res.Err, errs.ErrNotSignedIn)

	res = query.From(e.exec, model.TableLibraries).Select(query.Head()).Execute(query.WithoutScope(ctx))
	require.Equal(t, 2, query.CountOf(res))
}

func TestExecutor_InsertUpdateDelete(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	_, libID := e.signIn(t, "")

	res := query.From(e.exec, model.TableBooks).
		Insert(model.Book{Code: 101, Name: "Dune", Author: "Frank Herbert", Price: 9.99, LibraryID: libID}).
		Select().
		Single().
		Execute(ctx)
	book, ok, err := query.One[model.Book](res)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 6, book.ID)
	require.Equal(t, day0, book.CreatedAt)

	// insert without select returns no data
	res = query.From(e.exec, model.TableBooks).
		Insert(model.Book{Code: 102, LibraryID: libID}).
		Execute(ctx)
	require.NoError(t, res.Err)
	require.Nil(t, res.Data)

	price := 11.5
	res = query.From(e.exec, model.TableBooks).
		Update(model.BookPatch{Price: &price}).
		Eq(model.ColID, book.ID).
		Select().
		Single().
		Execute(ctx)
	updated, _, err := query.One[model.Book](res)
	require.NoError(t, err)
	require.Equal(t, 11.5, updated.Price)
	require.Equal(t, "Dune", updated.Name)

	res = query.From(e.exec, model.TableBooks).Update(model.BookPatch{Price: &price}).Eq(model.ColID, 999).Execute(ctx)
	require.ErrorIs(t, res.Err, errs.ErrNotFound)

	res = query.From(e.exec, model.TableBooks).Update(model.MemberPatch{}).Eq(model.ColID, book.ID).Execute(ctx)
	require.Error(t, res.Err)

	// return every open issue in the library in one update
	now := day0
	res = query.From(e.exec, model.TableIssues).
		Update(model.IssuePatch{ReturnDate: &now}).
		Eq(model.ColLibraryID, libID).
		Is(model.ColReturnDate, nil).
		Execute(ctx)
	require.NoError(t, res.Err)
	res = query.From(e.exec, model.TableIssues).Select(query.Head()).Eq(model.ColLibraryID, libID).Is(model.ColReturnDate, nil).Execute(ctx)
	require.Zero(t, query.CountOf(res))

	res = query.From(e.exec, model.TableBooks).Delete().Eq(model.ColID, book.ID).Execute(ctx)
	require.NoError(t, res.Err)
	res = query.From(e.exec, model.TableBooks).Delete().Eq(model.ColID, book.ID).Execute(ctx)
	require.ErrorIs(t, res.Err, errs.ErrNotFound)

	res = query.From(e.exec, model.TableBooks).Select().Eq(model.ColID, book.ID).Single().Execute(ctx)
	require.ErrorIs(t, res.Err, errs.ErrNotFound)
	res = query.From(e.exec, model.TableBooks).Select().Eq(model.ColID, book.ID).MaybeSingle().Execute(ctx)
	require.NoError(t, res.Err)
	require.Nil(t, res.Data)
}

func TestExecutor_DeleteLibraryCascades(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	_, libID := e.signIn(t, "")

	res := query.From(e.exec, model.TableLibraries).Delete().Eq(model.ColID, libID).Execute(ctx)
	require.NoError(t, res.Err)

	for _, table := range []model.Table{model.TableBooks, model.TableMembers, model.TableIssues} {
		res = query.From(e.exec, table).Select(query.Head()).Eq(model.ColLibraryID, libID).Execute(query.WithoutScope(ctx))
		require.NoError(t, res.Err)
		require.Zero(t, query.CountOf(res), table)
	}
}
