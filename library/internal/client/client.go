// Package client is the single entry point to the backend: queries, the
// session and change notifications. New picks the real or the in-process
// implementation once, from configuration.
package client

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/config"
	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/mock"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/realtime"
	"github.com/Astemirdum/library-admin/library/internal/repository"
	"github.com/Astemirdum/library-admin/library/internal/session"
	"github.com/Astemirdum/library-admin/library/internal/store"
	"github.com/Astemirdum/library-admin/library/migrations"
	"github.com/Astemirdum/library-admin/pkg/postgres"
)

// Credentials start a session. Mock mode uses Email and FullName, the real
// backend only AccessToken.
type Credentials struct {
	Email       string `json:"email" validate:"omitempty,email"`
	FullName    string `json:"full_name" validate:"omitempty,max=100"`
	AccessToken string `json:"access_token"`
}

type Auth interface {
	session.Auth
	SignIn(ctx context.Context, c Credentials) (model.Profile, model.Session, error)
	// Authorize resolves the user behind an access token.
	Authorize(ctx context.Context, token string) (model.User, error)
	// UserID returns the user the request acts for.
	UserID(ctx context.Context) string
}

type Client interface {
	From(table model.Table) *query.Builder
	Auth() Auth
	Channel(name string) realtime.Channel
	RemoveChannel(ch realtime.Channel) error
	// Live reports whether channels receive pushed changes.
	Live() bool
	Mode() config.Mode
	Close() error
}

type client struct {
	mode    config.Mode
	exec    query.Executor
	auth    Auth
	hub     realtime.Hub
	closers []func() error
}

func (c *client) From(table model.Table) *query.Builder {
	return query.From(c.exec, table)
}

func (c *client) Auth() Auth { return c.auth }

func (c *client) Channel(name string) realtime.Channel {
	return c.hub.Channel(name)
}

func (c *client) RemoveChannel(ch realtime.Channel) error {
	return c.hub.RemoveChannel(ch)
}

func (c *client) Live() bool { return c.hub.Live() }

func (c *client) Mode() config.Mode { return c.mode }

func (c *client) Close() error {
	err := c.hub.Close()
	for _, fn := range c.closers {
		err = multierr.Append(err, fn())
	}
	return err
}

// New returns the client for the configured mode. Invalid backend
// credentials fail here, before any query runs.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Client, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	log.Info("backend mode", zap.String("mode", string(mode)))
	if mode == config.ModeMock {
		return NewMock(log), nil
	}
	return newReal(ctx, cfg, log)
}

type MockOption func(*mockOptions)

type mockOptions struct {
	now  func() time.Time
	wrap func(query.Executor) query.Executor
}

func WithClock(now func() time.Time) MockOption {
	return func(o *mockOptions) {
		o.now = now
	}
}

// WithExecutor wraps the executor every query of the mock client runs on.
func WithExecutor(wrap func(query.Executor) query.Executor) MockOption {
	return func(o *mockOptions) {
		o.wrap = wrap
	}
}

// NewMock builds a client over a fresh in-memory store.
func NewMock(log *zap.Logger, opts ...MockOption) Client {
	o := mockOptions{now: time.Now}
	for _, op := range opts {
		op(&o)
	}
	st := store.New(store.WithClock(o.now), store.WithLogger(log))
	tracker := session.NewTracker(log)
	exec := mock.NewExecutor(st, tracker, log)
	var qe query.Executor = exec
	if o.wrap != nil {
		qe = o.wrap(exec)
	}
	return &client{
		mode: config.ModeMock,
		exec: qe,
		auth: &mockAuth{Auth: mock.NewAuth(st, tracker, exec, log, mock.WithAuthClock(o.now))},
		hub:  realtime.NewNoopHub(log),
	}
}

func newReal(ctx context.Context, cfg *config.Config, log *zap.Logger) (Client, error) {
	pool, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return nil, errors.Wrap(err, "postgres")
	}

	var hub realtime.Hub
	if cfg.Kafka.Enabled() {
		if hub, err = realtime.NewKafkaHub(cfg.Kafka, log); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "realtime")
		}
	} else {
		log.Warn("KAFKA_ADDRS is empty, changes are pushed within this process only")
		hub = realtime.NewLocalHub(log)
	}

	// the tracker only fans out auth events, queries are scoped per request
	tracker := session.NewTracker(log)
	repo := repository.NewRepository(pool, hub, log)
	return &client{
		mode: config.ModeReal,
		exec: repo,
		auth: &jwtAuth{JWTAuth: session.NewJWTAuth(cfg.Backend.Key, tracker, repo, log)},
		hub:  hub,
		closers: []func() error{func() error {
			pool.Close()
			return nil
		}},
	}, nil
}

type mockAuth struct {
	*mock.Auth
}

func (a *mockAuth) SignIn(ctx context.Context, c Credentials) (model.Profile, model.Session, error) {
	profile, token, err := a.Auth.SignIn(ctx, mock.SignInRequest{Email: c.Email, FullName: c.FullName})
	if err != nil {
		return model.Profile{}, model.Session{}, err
	}
	return profile, model.Session{AccessToken: token, User: model.UserFromProfile(profile)}, nil
}

// UserID prefers the user bound to ctx over the process-wide session.
func (a *mockAuth) UserID(ctx context.Context) string {
	if id := session.UserID(ctx); id != "" {
		return id
	}
	return a.Auth.UserID()
}

func (a *mockAuth) Authorize(_ context.Context, token string) (model.User, error) {
	s := a.Current()
	if s == nil || !a.Token(token) {
		return model.User{}, errs.ErrNotSignedIn
	}
	return s.User, nil
}

type jwtAuth struct {
	*session.JWTAuth
}

func (a *jwtAuth) SignIn(ctx context.Context, c Credentials) (model.Profile, model.Session, error) {
	if c.AccessToken == "" {
		return model.Profile{}, model.Session{}, errors.Wrap(session.ErrInvalidToken, "access token required")
	}
	profile, err := a.SignInWithToken(ctx, c.AccessToken)
	if err != nil {
		return model.Profile{}, model.Session{}, err
	}
	return profile, model.Session{AccessToken: c.AccessToken, User: model.UserFromProfile(profile)}, nil
}
