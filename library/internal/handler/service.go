package handler

import (
	"context"

	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	ListLibraries(ctx context.Context) ([]model.Library, error)
	GetLibrary(ctx context.Context, id string) (model.Library, error)
	CreateLibrary(ctx context.Context, in service.LibraryInput) (model.Library, error)
	UpdateLibrary(ctx context.Context, id string, in service.LibraryInput) (model.Library, error)
	DeleteLibrary(ctx context.Context, id string) error

	ListBooks(ctx context.Context, libraryID string) ([]model.Book, error)
	GetBook(ctx context.Context, libraryID string, id int) (model.Book, error)
	AddBook(ctx context.Context, libraryID string, in service.BookInput) (model.Book, error)
	UpdateBook(ctx context.Context, libraryID string, id int, in service.BookInput) (model.Book, error)
	DeleteBook(ctx context.Context, libraryID string, id int) error

	ListMembers(ctx context.Context, libraryID string) ([]model.Member, error)
	GetMember(ctx context.Context, libraryID string, id int) (model.Member, error)
	NextMemberCode(ctx context.Context, libraryID string) (int, error)
	AddMember(ctx context.Context, libraryID string, in service.MemberInput) (model.Member, error)
	UpdateMember(ctx context.Context, libraryID string, id int, in service.MemberInput) (model.Member, error)
	DeleteMember(ctx context.Context, libraryID string, id int) error

	ListIssues(ctx context.Context, libraryID string, tab service.Tab) ([]service.IssueView, error)
	IssueBook(ctx context.Context, libraryID string, in service.IssueInput) (model.Issue, error)
	ReturnBook(ctx context.Context, libraryID string, issueID int) (model.Issue, error)
}

type StatsService interface {
	Switch(ctx context.Context, libraryID string) (model.Summary, error)
	Current(ctx context.Context) (model.Summary, error)
	LibraryID(ctx context.Context) string
}

type AuthService interface {
	SignIn(ctx context.Context, c client.Credentials) (model.Profile, model.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*model.Session, error)
	Authorize(ctx context.Context, token string) (model.User, error)
}

var (
	_ LibraryService = (*service.Service)(nil)
	_ StatsService   = (*service.Watcher)(nil)
	_ AuthService    = (client.Auth)(nil)
)
