package mock

import (
	"context"
	"time"

	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
	"github.com/Astemirdum/library-admin/library/internal/session"
	"github.com/Astemirdum/library-admin/library/internal/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	TokenPrefix     = "mock-access-token-"
	placeholderName = "Mock User"
	sampleIssueAge  = 5 * 24 * time.Hour
)

type SignInRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	FullName string `json:"full_name" validate:"omitempty,max=100"`
}

// Auth signs identities in without credentials. Data created by one
// identity stays in the store after sign-out.
type Auth struct {
	*session.Tracker
	store *store.Store
	exec  query.Executor
	now   func() time.Time
	log   *zap.Logger
}

type AuthOption func(*Auth)

func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Auth) {
		a.now = now
	}
}

func NewAuth(st *store.Store, tracker *session.Tracker, exec query.Executor, log *zap.Logger, opts ...AuthOption) *Auth {
	a := &Auth{
		Tracker: tracker,
		store:   st,
		exec:    exec,
		now:     time.Now,
		log:     log.Named("mock_auth"),
	}
	for _, op := range opts {
		op(a)
	}
	return a
}

// SignIn makes the identity current and returns it with a fresh access
// token. An empty email creates a new identity; a known email signs the
// existing profile in again. Identities owning no library get sample data.
func (a *Auth) SignIn(ctx context.Context, req SignInRequest) (model.Profile, string, error) {
	profile, ok := a.store.FindProfileByEmail(req.Email)
	if req.Email == "" || !ok {
		profile = a.newProfile(req)
	}
	if len(a.store.ListLibraries(profile.ID)) == 0 {
		if err := a.seed(ctx, profile.ID); err != nil {
			return model.Profile{}, "", errors.Wrap(err, "seed sample data")
		}
	}

	token := TokenPrefix + uuid.NewString()
	a.Set(model.Session{AccessToken: token, User: model.UserFromProfile(profile)})
	return profile, token, nil
}

func (a *Auth) newProfile(req SignInRequest) model.Profile {
	id := uuid.NewString()
	name := req.FullName
	if name == "" {
		name = placeholderName
	}
	email := req.Email
	if email == "" {
		email = "mock-" + id[:8] + "@example.com"
	}
	p := a.store.CreateProfile(model.Profile{ID: id, FullName: &name, Email: email})
	a.log.Info("profile created", zap.String("id", p.ID), zap.String("email", p.Email))
	return p
}

// CurrentUser returns the signed-in profile or false.
func (a *Auth) CurrentUser() (model.Profile, bool) {
	userID := a.UserID()
	if userID == "" {
		return model.Profile{}, false
	}
	return a.store.GetProfile(userID)
}

// Token reports whether token belongs to the current session.
func (a *Auth) Token(token string) bool {
	s := a.Current()
	return s != nil && s.AccessToken == token
}

type sampleBook struct {
	code   int
	name   string
	author string
	price  float64
}

type sampleMember struct {
	code  int
	name  string
	phone string
}

var (
	sampleBooks = []sampleBook{
		{1001, "The Great Gatsby", "F. Scott Fitzgerald", 12.99},
		{1002, "1984", "George Orwell", 14.99},
		{1003, "To Kill a Mockingbird", "Harper Lee", 13.99},
		{1004, "Pride and Prejudice", "Jane Austen", 11.99},
		{1005, "The Catcher in the Rye", "J.D. Salinger", 10.99},
	}
	sampleMembers = []sampleMember{
		{2001, "John Doe", "5555550101"},
		{2002, "Jane Smith", "5555550102"},
		{2003, "Bob Johnson", "5555550103"},
	}
)

// seed fills a library for the identity through the executor. It runs
// before the session is set, so listeners see the seeded state.
func (a *Auth) seed(ctx context.Context, userID string) error {
	ctx = query.WithoutScope(ctx)
	description := "A sample library to get you started"
	res := query.From(a.exec, model.TableLibraries).
		Insert(model.Library{Name: "Sample Library", Description: &description, UserID: userID}).
		Select().
		Single().
		Execute(ctx)
	lib, _, err := query.One[model.Library](res)
	if err != nil {
		return err
	}

	books := make([]model.Record, 0, len(sampleBooks))
	for _, b := range sampleBooks {
		books = append(books, model.Book{Code: b.code, Name: b.name, Author: b.author, Price: b.price, LibraryID: lib.ID})
	}
	if res = query.From(a.exec, model.TableBooks).Insert(books...).Execute(ctx); res.Err != nil {
		return res.Err
	}

	members := make([]model.Record, 0, len(sampleMembers))
	for _, m := range sampleMembers {
		members = append(members, model.Member{Code: m.code, Name: m.name, Phone: m.phone, LibraryID: lib.ID})
	}
	if res = query.From(a.exec, model.TableMembers).Insert(members...).Execute(ctx); res.Err != nil {
		return res.Err
	}

	issued := a.now().UTC().Add(-sampleIssueAge).Truncate(24 * time.Hour)
	res = query.From(a.exec, model.TableIssues).
		Insert(model.Issue{
			BookCode:   sampleBooks[0].code,
			MemberCode: sampleMembers[0].code,
			IssueDate:  issued,
			LibraryID:  lib.ID,
		}).
		Execute(ctx)
	if res.Err != nil {
		return res.Err
	}

	a.log.Info("sample data seeded", zap.String("library_id", lib.ID))
	return nil
}
