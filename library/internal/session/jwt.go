package session

import (
	"context"
	"sync"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid access token")

type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Metadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
}

// JWTAuth is the session of the real backend: the identity provider issues
// HS256 access tokens signed with the backend key. Tokens are verified on
// every request and the user travels in the request context, so concurrent
// requests of different users never share a scope.
type JWTAuth struct {
	tracker *Tracker
	key     []byte
	exec    query.Executor
	log     *zap.Logger

	mu    sync.RWMutex
	known map[string]model.User
}

func NewJWTAuth(key string, tracker *Tracker, exec query.Executor, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		tracker: tracker,
		key:     []byte(key),
		exec:    exec,
		log:     log.Named("jwt"),
		known:   make(map[string]model.User),
	}
}

func (a *JWTAuth) Verify(token string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(ErrInvalidToken, errString(err))
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(ErrInvalidToken, "empty subject")
	}
	return claims, nil
}

// SignInWithToken verifies the token, makes sure a profile exists for its
// subject and announces the sign-in to the listeners.
func (a *JWTAuth) SignInWithToken(ctx context.Context, token string) (model.Profile, error) {
	claims, err := a.Verify(token)
	if err != nil {
		return model.Profile{}, err
	}
	profile, err := a.profile(ctx, claims)
	if err != nil {
		return model.Profile{}, err
	}
	user := model.UserFromProfile(profile)
	a.remember(user)
	a.tracker.emit(model.EventSignedIn, &model.Session{AccessToken: token, User: user})
	return profile, nil
}

// Authorize resolves the user behind a valid token. It changes no shared
// state; the caller binds the user to its request with NewContext.
func (a *JWTAuth) Authorize(ctx context.Context, token string) (model.User, error) {
	claims, err := a.Verify(token)
	if err != nil {
		return model.User{}, err
	}
	a.mu.RLock()
	user, ok := a.known[claims.Subject]
	a.mu.RUnlock()
	if ok {
		return user, nil
	}
	profile, err := a.profile(ctx, claims)
	if err != nil {
		return model.User{}, err
	}
	user = model.UserFromProfile(profile)
	a.remember(user)
	return user, nil
}

func (a *JWTAuth) remember(u model.User) {
	a.mu.Lock()
	a.known[u.ID] = u
	a.mu.Unlock()
}

// profile looks the subject's profile up and creates it on first use.
func (a *JWTAuth) profile(ctx context.Context, claims *Claims) (model.Profile, error) {
	// no user is bound yet, profiles must not be scoped here
	res := query.From(a.exec, model.TableProfiles).
		Select().
		Eq(model.ColID, claims.Subject).
		MaybeSingle().
		Execute(query.WithoutScope(ctx))
	profile, ok, err := query.One[model.Profile](res)
	if err != nil {
		return model.Profile{}, errors.Wrap(err, "lookup profile")
	}
	if ok {
		return profile, nil
	}
	p := model.Profile{ID: claims.Subject, Email: claims.Email}
	if claims.Metadata.FullName != "" {
		name := claims.Metadata.FullName
		p.FullName = &name
	}
	res = query.From(a.exec, model.TableProfiles).Insert(p).Select().Single().Execute(query.WithoutScope(ctx))
	if profile, _, err = query.One[model.Profile](res); err != nil {
		return model.Profile{}, errors.Wrap(err, "create profile")
	}
	a.log.Info("profile created", zap.String("id", profile.ID))
	return profile, nil
}

// UserID returns the user bound to ctx.
func (a *JWTAuth) UserID(ctx context.Context) string {
	return UserID(ctx)
}

func (a *JWTAuth) GetSession(ctx context.Context) (*model.Session, error) {
	return FromContext(ctx), nil
}

func (a *JWTAuth) OnAuthStateChange(fn Listener) Subscription {
	return a.tracker.Subscribe(fn)
}

// SignOut announces the sign-out of the user bound to ctx. Access tokens
// stay valid until they expire.
func (a *JWTAuth) SignOut(ctx context.Context) error {
	s := FromContext(ctx)
	if s == nil {
		return nil
	}
	a.log.Info("signed out", zap.String("user_id", s.User.ID))
	a.tracker.emit(model.EventSignedOut, nil)
	return nil
}

func errString(err error) string {
	if err == nil {
		return "token is not valid"
	}
	return err.Error()
}
