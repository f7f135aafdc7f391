package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/config"
	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/realtime"
	"github.com/Astemirdum/library-admin/library/internal/session"
)

func TestNew_SelectsMockMode(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Backend: config.Backend{URL: "undefined", Key: "undefined"}}
	c, err := client.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, config.ModeMock, c.Mode())
	require.False(t, c.Live())
	require.NoError(t, c.Close())
}

func TestNew_RejectsMalformedBackend(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Backend: config.Backend{URL: "postgres://db/library", Key: "short"}}
	_, err := client.New(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestMockClient_SessionAndQueries(t *testing.T) {
	t.Parallel()
	c := client.NewMock(zap.NewNop())
	ctx := context.Background()

	_, err := c.Auth().Authorize(ctx, "anything")
	require.ErrorIs(t, err, errs.ErrNotSignedIn)

	profile, s, err := c.Auth().SignIn(ctx, client.Credentials{Email: "ann@example.com", FullName: "Ann"})
	require.NoError(t, err)
	require.Equal(t, profile.ID, s.User.ID)
	require.Equal(t, "Ann", s.User.FullName)

	user, err := c.Auth().Authorize(ctx, s.AccessToken)
	require.NoError(t, err)
	require.Equal(t, profile.ID, user.ID)

	// the user bound to a request wins over the process-wide session
	require.Equal(t, profile.ID, c.Auth().UserID(ctx))
	require.Equal(t, "other", c.Auth().UserID(session.NewContext(ctx, model.Session{User: model.User{ID: "other"}})))

	libs, err := query.Rows[model.Library](c.From(model.TableLibraries).Select().Execute(ctx))
	require.NoError(t, err)
	require.Len(t, libs, 1)

	// mock channels subscribe but never fire
	ch := c.Channel("books").
		On(realtime.EventSpec{Event: realtime.EventAll, Table: model.TableBooks, Filter: realtime.LibraryFilter(libs[0].ID)}, func(realtime.Change) {
			t.Fatal("no push expected in mock mode")
		}).
		Subscribe()
	res := c.From(model.TableBooks).Delete().Eq(model.ColLibraryID, libs[0].ID).Eq(model.ColBookCode, 1005).Execute(ctx)
	require.NoError(t, res.Err)
	require.NoError(t, c.RemoveChannel(ch))

	require.NoError(t, c.Auth().SignOut(ctx))
	_, err = c.Auth().Authorize(ctx, s.AccessToken)
	require.ErrorIs(t, err, errs.ErrNotSignedIn)
}
