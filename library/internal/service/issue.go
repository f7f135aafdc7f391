package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

type Tab string

const (
	TabActive   Tab = "active"
	TabReturned Tab = "returned"
	TabAll      Tab = "all"
)

// ParseTab defaults to the active tab.
func ParseTab(s string) Tab {
	switch Tab(s) {
	case TabReturned, TabAll:
		return Tab(s)
	}
	return TabActive
}

func (t Tab) keep(i model.Issue) bool {
	switch t {
	case TabReturned:
		return !i.Open()
	case TabAll:
		return true
	}
	return i.Open()
}

type IssueInput struct {
	BookCode   int        `json:"ib_code" validate:"required,gt=0"`
	MemberCode int        `json:"im_code" validate:"required,gt=0"`
	IssueDate  *time.Time `json:"i_date_of_iss"`
}

// IssueView is an issue with the book and member it refers to, nil when
// that row is gone.
type IssueView struct {
	model.IssueWithDetails
	DaysOverdue int `json:"daysOverdue"`
}

// ListIssues returns the issues of one tab, newest first.
func (s *Service) ListIssues(ctx context.Context, libraryID string, tab Tab) ([]IssueView, error) {
	if _, err := s.library(ctx, libraryID); err != nil {
		return nil, err
	}
	var (
		issues  []model.Issue
		books   []model.Book
		members []model.Member
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		issues, err = query.Rows[model.Issue](s.client.From(model.TableIssues).
			Select().
			Eq(model.ColLibraryID, libraryID).
			Order(model.ColCreatedAt, query.Ascending(false)).
			Execute(gCtx))
		return errors.Wrap(err, "issues")
	})
	g.Go(func() (err error) {
		books, err = query.Rows[model.Book](s.client.From(model.TableBooks).
			Select(query.Columns(model.ColBookCode, model.ColBookName, model.ColBookAuthor)).
			Eq(model.ColLibraryID, libraryID).
			Execute(gCtx))
		return errors.Wrap(err, "books")
	})
	g.Go(func() (err error) {
		members, err = query.Rows[model.Member](s.client.From(model.TableMembers).
			Select(query.Columns(model.ColMemberCode, model.ColMemberName, model.ColMemberPhone)).
			Eq(model.ColLibraryID, libraryID).
			Execute(gCtx))
		return errors.Wrap(err, "members")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bookByCode := make(map[int]*model.BookDetails, len(books))
	for _, b := range books {
		bookByCode[b.Code] = &model.BookDetails{Name: b.Name, Author: b.Author}
	}
	memberByCode := make(map[int]*model.MemberDetails, len(members))
	for _, m := range members {
		memberByCode[m.Code] = &model.MemberDetails{Name: m.Name, Phone: m.Phone}
	}
	out := make([]IssueView, 0, len(issues))
	for _, i := range issues {
		if !tab.keep(i) {
			continue
		}
		v := IssueView{IssueWithDetails: model.IssueWithDetails{
			Issue:  i,
			Book:   bookByCode[i.BookCode],
			Member: memberByCode[i.MemberCode],
		}}
		if i.Open() {
			v.DaysOverdue = max(0, s.DaysOverdue(i.IssueDate))
		}
		out = append(out, v)
	}
	return out, nil
}

// IssueBook lends a book to a member. The book must not be out already.
func (s *Service) IssueBook(ctx context.Context, libraryID string, in IssueInput) (model.Issue, error) {
	if _, err := s.library(ctx, libraryID); err != nil {
		return model.Issue{}, err
	}
	exists := func(table model.Table, column string, code int) (bool, error) {
		res := s.client.From(table).
			Select(query.Head()).
			Eq(model.ColLibraryID, libraryID).
			Eq(column, code).
			Execute(ctx)
		return query.CountOf(res) > 0, res.Err
	}
	ok, err := exists(model.TableBooks, model.ColBookCode, in.BookCode)
	if err != nil {
		return model.Issue{}, err
	}
	if !ok {
		return model.Issue{}, errs.ErrBookNotFound
	}
	if ok, err = exists(model.TableMembers, model.ColMemberCode, in.MemberCode); err != nil {
		return model.Issue{}, err
	}
	if !ok {
		return model.Issue{}, errs.ErrMemberNotFound
	}
	open, err := s.openIssues(ctx, libraryID, model.ColIssueBook, in.BookCode)
	if err != nil {
		return model.Issue{}, err
	}
	if open > 0 {
		return model.Issue{}, errs.ErrAlreadyIssued
	}

	date := Day(s.now())
	if in.IssueDate != nil {
		date = Day(*in.IssueDate)
	}
	res := s.client.From(model.TableIssues).
		Insert(model.Issue{
			BookCode:   in.BookCode,
			MemberCode: in.MemberCode,
			IssueDate:  date,
			LibraryID:  libraryID,
		}).
		Select().
		Single().
		Execute(ctx)
	issue, _, err := query.One[model.Issue](res)
	if err != nil {
		return model.Issue{}, errors.Wrap(err, "issue book")
	}
	s.log.Info("book issued",
		zap.String("library", libraryID),
		zap.Int("book", in.BookCode),
		zap.Int("member", in.MemberCode))
	s.touched(ctx, libraryID)
	return issue, nil
}

// ReturnBook closes an open issue with today's date.
func (s *Service) ReturnBook(ctx context.Context, libraryID string, issueID int) (model.Issue, error) {
	res := s.client.From(model.TableIssues).
		Select().
		Eq(model.ColLibraryID, libraryID).
		Eq(model.ColID, issueID).
		Single().
		Execute(ctx)
	cur, _, err := query.One[model.Issue](res)
	if err != nil {
		return model.Issue{}, err
	}
	if !cur.Open() {
		return model.Issue{}, errs.ErrAlreadyReturned
	}
	today := Day(s.now())
	res = s.client.From(model.TableIssues).
		Update(model.IssuePatch{ReturnDate: &today}).
		Eq(model.ColID, issueID).
		Eq(model.ColLibraryID, libraryID).
		Is(model.ColReturnDate, nil).
		Select().
		Single().
		Execute(ctx)
	issue, _, err := query.One[model.Issue](res)
	if err != nil {
		return model.Issue{}, errors.Wrap(err, "return book")
	}
	s.touched(ctx, libraryID)
	return issue, nil
}
