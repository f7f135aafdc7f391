package service

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

// Aggregator computes the dashboard of one library.
type Aggregator struct {
	client client.Client
	settings
	log *zap.Logger
}

func NewAggregator(c client.Client, log *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		client:   c,
		settings: defaults(),
		log:      log.Named("stats"),
	}
	for _, op := range opts {
		op(&a.settings)
	}
	return a
}

// Summary never fails on a single broken query: the part it feeds stays
// zero or empty and the error is returned next to the partial summary.
func (a *Aggregator) Summary(ctx context.Context, libraryID string) (model.Summary, error) {
	sum := model.Summary{
		LibraryID: libraryID,
		Recent: model.RecentData{
			RecentBooks:   []model.Book{},
			RecentMembers: []model.Member{},
			RecentIssues:  []model.IssueWithDetails{},
			OverdueIssues: []model.IssueWithDetails{},
		},
	}
	if libraryID == "" {
		return sum, nil
	}

	var (
		mu     sync.Mutex
		errAll error
		issues []model.Issue
	)
	record := func(what string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errAll = multierr.Append(errAll, errors.Wrap(err, what))
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		res := a.client.From(model.TableBooks).Select(query.Head()).Eq(model.ColLibraryID, libraryID).Execute(ctx)
		record("count books", res.Err)
		sum.Stats.TotalBooks = query.CountOf(res)
		return nil
	})
	g.Go(func() error {
		res := a.client.From(model.TableMembers).Select(query.Head()).Eq(model.ColLibraryID, libraryID).Execute(ctx)
		record("count members", res.Err)
		sum.Stats.TotalMembers = query.CountOf(res)
		return nil
	})
	g.Go(func() error {
		rows, err := query.Rows[model.Issue](a.client.From(model.TableIssues).
			Select().
			Eq(model.ColLibraryID, libraryID).
			Execute(ctx))
		record("issues", err)
		issues = rows
		return nil
	})
	g.Go(func() error {
		rows, err := query.Rows[model.Book](a.client.From(model.TableBooks).
			Select().
			Eq(model.ColLibraryID, libraryID).
			Order(model.ColCreatedAt, query.Ascending(false)).
			Limit(recentLimit).
			Execute(ctx))
		record("recent books", err)
		if rows != nil {
			sum.Recent.RecentBooks = rows
		}
		return nil
	})
	g.Go(func() error {
		rows, err := query.Rows[model.Member](a.client.From(model.TableMembers).
			Select().
			Eq(model.ColLibraryID, libraryID).
			Order(model.ColCreatedAt, query.Ascending(false)).
			Limit(recentLimit).
			Execute(ctx))
		record("recent members", err)
		if rows != nil {
			sum.Recent.RecentMembers = rows
		}
		return nil
	})
	_ = g.Wait()

	var active, overdue []model.Issue
	issuedCodes := make(map[int]struct{})
	for _, i := range issues {
		if !i.Open() {
			sum.Stats.ReturnedIssues++
			continue
		}
		active = append(active, i)
		issuedCodes[i.BookCode] = struct{}{}
		if daysBetween(i.IssueDate, a.now()) > a.lendingDays {
			overdue = append(overdue, i)
		}
	}
	sum.Stats.ActiveIssues = len(active)
	sum.Stats.OverdueBooks = len(overdue)
	sum.Stats.AvailableBooks = max(0, sum.Stats.TotalBooks-len(issuedCodes))

	recent := append([]model.Issue(nil), issues...)
	sort.SliceStable(recent, func(i, j int) bool {
		if c := recent[i].CreatedAt.Compare(recent[j].CreatedAt); c != 0 {
			return c > 0
		}
		return recent[i].ID > recent[j].ID
	})
	sort.SliceStable(overdue, func(i, j int) bool {
		if c := overdue[i].IssueDate.Compare(overdue[j].IssueDate); c != 0 {
			return c < 0
		}
		return overdue[i].ID < overdue[j].ID
	})

	d := newDetails(a.client, libraryID)
	sum.Recent.RecentIssues = d.join(ctx, head(recent, recentLimit), record)
	sum.Recent.OverdueIssues = d.join(ctx, head(overdue, recentLimit), record)
	sum.ComputedAt = a.now()

	if errAll != nil {
		a.log.Warn("partial summary", zap.String("library", libraryID), zap.Error(errAll))
	}
	return sum, errAll
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// details looks up the book and member behind issues, once per code.
type details struct {
	client    client.Client
	libraryID string
	books     map[int]*model.BookDetails
	members   map[int]*model.MemberDetails
}

func newDetails(c client.Client, libraryID string) *details {
	return &details{
		client:    c,
		libraryID: libraryID,
		books:     make(map[int]*model.BookDetails),
		members:   make(map[int]*model.MemberDetails),
	}
}

func (d *details) join(ctx context.Context, issues []model.Issue, record func(string, error)) []model.IssueWithDetails {
	out := make([]model.IssueWithDetails, 0, len(issues))
	for _, i := range issues {
		out = append(out, model.IssueWithDetails{
			Issue:  i,
			Book:   d.book(ctx, i.BookCode, record),
			Member: d.member(ctx, i.MemberCode, record),
		})
	}
	return out
}

func (d *details) book(ctx context.Context, code int, record func(string, error)) *model.BookDetails {
	if b, ok := d.books[code]; ok {
		return b
	}
	res := d.client.From(model.TableBooks).
		Select(query.Columns(model.ColBookName, model.ColBookAuthor)).
		Eq(model.ColLibraryID, d.libraryID).
		Eq(model.ColBookCode, code).
		MaybeSingle().
		Execute(ctx)
	b, ok, err := query.One[model.Book](res)
	record("book details", err)
	var out *model.BookDetails
	if ok {
		out = &model.BookDetails{Name: b.Name, Author: b.Author}
	}
	if err == nil {
		d.books[code] = out
	}
	return out
}

func (d *details) member(ctx context.Context, code int, record func(string, error)) *model.MemberDetails {
	if m, ok := d.members[code]; ok {
		return m
	}
	res := d.client.From(model.TableMembers).
		Select(query.Columns(model.ColMemberName, model.ColMemberPhone)).
		Eq(model.ColLibraryID, d.libraryID).
		Eq(model.ColMemberCode, code).
		MaybeSingle().
		Execute(ctx)
	m, ok, err := query.One[model.Member](res)
	record("member details", err)
	var out *model.MemberDetails
	if ok {
		out = &model.MemberDetails{Name: m.Name, Phone: m.Phone}
	}
	if err == nil {
		d.members[code] = out
	}
	return out
}
