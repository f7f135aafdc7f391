package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

const (
	DefaultLendingDays = 14
	MemberCodeStart    = 1001
	recentLimit        = 5
)

type settings struct {
	now         func() time.Time
	lendingDays int
}

func defaults() settings {
	return settings{now: time.Now, lendingDays: DefaultLendingDays}
}

type Option func(*settings)

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func WithLendingPeriod(days int) Option {
	return func(s *settings) {
		if days > 0 {
			s.lendingDays = days
		}
	}
}

// Day truncates t to midnight UTC. All lending arithmetic counts whole UTC days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)) / (24 * time.Hour))
}

// Refresher is told about local mutations so it can recompute derived data
// when the backend does not push changes.
type Refresher interface {
	Touched(ctx context.Context, libraryID string)
}

// Service enforces the rules the backend does not: unique codes, open
// issues blocking deletes, phone format. Checks read before they write.
type Service struct {
	client    client.Client
	refresher Refresher
	settings
	log *zap.Logger
}

func NewService(c client.Client, refresher Refresher, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		client:    c,
		refresher: refresher,
		settings:  defaults(),
		log:       log.Named("service"),
	}
	for _, op := range opts {
		op(&s.settings)
	}
	return s
}

func (s *Service) userID(ctx context.Context) (string, error) {
	id := s.client.Auth().UserID(ctx)
	if id == "" {
		return "", errs.ErrNotSignedIn
	}
	return id, nil
}

func (s *Service) touched(ctx context.Context, libraryID string) {
	if s.refresher != nil {
		s.refresher.Touched(ctx, libraryID)
	}
}

// DaysOverdue is positive once the issue is past the lending period.
func (s *Service) DaysOverdue(issueDate time.Time) int {
	return daysBetween(issueDate, s.now()) - s.lendingDays
}

// library makes sure the library exists and is visible to the user.
func (s *Service) library(ctx context.Context, libraryID string) (model.Library, error) {
	if _, err := s.userID(ctx); err != nil {
		return model.Library{}, err
	}
	if libraryID == "" {
		return model.Library{}, errors.Wrap(errs.ErrInvalidLibrary, "empty library id")
	}
	res := s.client.From(model.TableLibraries).
		Select().
		Eq(model.ColID, libraryID).
		Single().
		Execute(ctx)
	lib, _, err := query.One[model.Library](res)
	if err != nil {
		return model.Library{}, errors.Wrap(err, "library")
	}
	return lib, nil
}

// codeTaken reports whether another row of the library already uses code.
func (s *Service) codeTaken(ctx context.Context, table model.Table, column, libraryID string, code, exceptID int) (bool, error) {
	b := s.client.From(table).
		Select(query.Columns(model.ColID)).
		Eq(model.ColLibraryID, libraryID).
		Eq(column, code)
	if exceptID != 0 {
		b = b.Neq(model.ColID, exceptID)
	}
	res := b.MaybeSingle().Execute(ctx)
	if res.Err != nil {
		return false, res.Err
	}
	return len(res.Data) > 0, nil
}

// openIssues counts issues of the library not yet returned on column = code.
func (s *Service) openIssues(ctx context.Context, libraryID, column string, code int) (int, error) {
	res := s.client.From(model.TableIssues).
		Select(query.Head()).
		Eq(model.ColLibraryID, libraryID).
		Eq(column, code).
		Is(model.ColReturnDate, nil).
		Execute(ctx)
	if res.Err != nil {
		return 0, res.Err
	}
	return query.CountOf(res), nil
}
