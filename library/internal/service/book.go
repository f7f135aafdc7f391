package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

type BookInput struct {
	Code   int     `json:"b_code" validate:"required,gt=0"`
	Name   string  `json:"b_name" validate:"required,max=200"`
	Author string  `json:"b_author" validate:"required,max=200"`
	Price  float64 `json:"b_price"`
}

func (in *BookInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Author = strings.TrimSpace(in.Author)
	if in.Price < 0 {
		return errs.ErrInvalidPrice
	}
	return nil
}

func (s *Service) ListBooks(ctx context.Context, libraryID string) ([]model.Book, error) {
	if _, err := s.library(ctx, libraryID); err != nil {
		return nil, err
	}
	res := s.client.From(model.TableBooks).
		Select().
		Eq(model.ColLibraryID, libraryID).
		Order(model.ColBookCode).
		Execute(ctx)
	return query.Rows[model.Book](res)
}

func (s *Service) GetBook(ctx context.Context, libraryID string, id int) (model.Book, error) {
	res := s.client.From(model.TableBooks).
		Select().
		Eq(model.ColLibraryID, libraryID).
		Eq(model.ColID, id).
		Single().
		Execute(ctx)
	b, _, err := query.One[model.Book](res)
	return b, err
}

func (s *Service) AddBook(ctx context.Context, libraryID string, in BookInput) (model.Book, error) {
	if _, err := s.library(ctx, libraryID); err != nil {
		return model.Book{}, err
	}
	if err := in.normalize(); err != nil {
		return model.Book{}, err
	}
	taken, err := s.codeTaken(ctx, model.TableBooks, model.ColBookCode, libraryID, in.Code, 0)
	if err != nil {
		return model.Book{}, err
	}
	if taken {
		return model.Book{}, errs.ErrDuplicateCode
	}
	res := s.client.From(model.TableBooks).
		Insert(model.Book{
			Code:      in.Code,
			Name:      in.Name,
			Author:    in.Author,
			Price:     in.Price,
			LibraryID: libraryID,
		}).
		Select().
		Single().
		Execute(ctx)
	b, _, err := query.One[model.Book](res)
	if err != nil {
		return model.Book{}, errors.Wrap(err, "add book")
	}
	s.log.Debug("book added", zap.String("library", libraryID), zap.Int("code", b.Code))
	s.touched(ctx, libraryID)
	return b, nil
}

// UpdateBook rewrites a book. The code of a book that is out on loan
// cannot change, the open issue refers to it.
func (s *Service) UpdateBook(ctx context.Context, libraryID string, id int, in BookInput) (model.Book, error) {
	if err := in.normalize(); err != nil {
		return model.Book{}, err
	}
	cur, err := s.GetBook(ctx, libraryID, id)
	if err != nil {
		return model.Book{}, err
	}
	if in.Code != cur.Code {
		taken, err := s.codeTaken(ctx, model.TableBooks, model.ColBookCode, libraryID, in.Code, id)
		if err != nil {
			return model.Book{}, err
		}
		if taken {
			return model.Book{}, errs.ErrDuplicateCode
		}
		open, err := s.openIssues(ctx, libraryID, model.ColIssueBook, cur.Code)
		if err != nil {
			return model.Book{}, err
		}
		if open > 0 {
			return model.Book{}, errs.ErrBookIssued
		}
	}
	res := s.client.From(model.TableBooks).
		Update(model.BookPatch{Code: &in.Code, Name: &in.Name, Author: &in.Author, Price: &in.Price}).
		Eq(model.ColID, id).
		Eq(model.ColLibraryID, libraryID).
		Select().
		Single().
		Execute(ctx)
	b, _, err := query.One[model.Book](res)
	if err != nil {
		return model.Book{}, errors.Wrap(err, "update book")
	}
	s.touched(ctx, libraryID)
	return b, nil
}

func (s *Service) DeleteBook(ctx context.Context, libraryID string, id int) error {
	cur, err := s.GetBook(ctx, libraryID, id)
	if err != nil {
		return err
	}
	open, err := s.openIssues(ctx, libraryID, model.ColIssueBook, cur.Code)
	if err != nil {
		return err
	}
	if open > 0 {
		return errs.ErrBookIssued
	}
	res := s.client.From(model.TableBooks).
		Delete().
		Eq(model.ColID, id).
		Eq(model.ColLibraryID, libraryID).
		Execute(ctx)
	if res.Err != nil {
		return errors.Wrap(res.Err, "delete book")
	}
	s.touched(ctx, libraryID)
	return nil
}
