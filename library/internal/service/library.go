package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

type LibraryInput struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

func (in *LibraryInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(in.Name); n < 3 || n > 100 {
		return errors.Wrap(errs.ErrInvalidLibrary, "name must be 3 to 100 characters")
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if utf8.RuneCountInString(d) > 500 {
			return errors.Wrap(errs.ErrInvalidLibrary, "description must be at most 500 characters")
		}
		in.Description = &d
	}
	return nil
}

// ListLibraries returns the libraries of the signed-in user, oldest first.
func (s *Service) ListLibraries(ctx context.Context) ([]model.Library, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	res := s.client.From(model.TableLibraries).
		Select().
		Eq(model.ColUserID, userID).
		Order(model.ColCreatedAt).
		Execute(ctx)
	return query.Rows[model.Library](res)
}

func (s *Service) GetLibrary(ctx context.Context, id string) (model.Library, error) {
	return s.library(ctx, id)
}

func (s *Service) CreateLibrary(ctx context.Context, in LibraryInput) (model.Library, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return model.Library{}, err
	}
	if err = in.normalize(); err != nil {
		return model.Library{}, err
	}
	if err = s.checkLibraryName(ctx, in.Name, ""); err != nil {
		return model.Library{}, err
	}
	res := s.client.From(model.TableLibraries).
		Insert(model.Library{Name: in.Name, Description: in.Description, UserID: userID}).
		Select().
		Single().
		Execute(ctx)
	lib, _, err := query.One[model.Library](res)
	if err != nil {
		return model.Library{}, errors.Wrap(err, "create library")
	}
	s.log.Info("library created", zap.String("id", lib.ID), zap.String("name", lib.Name))
	return lib, nil
}

func (s *Service) UpdateLibrary(ctx context.Context, id string, in LibraryInput) (model.Library, error) {
	if _, err := s.library(ctx, id); err != nil {
		return model.Library{}, err
	}
	if err := in.normalize(); err != nil {
		return model.Library{}, err
	}
	if err := s.checkLibraryName(ctx, in.Name, id); err != nil {
		return model.Library{}, err
	}
	res := s.client.From(model.TableLibraries).
		Update(model.LibraryPatch{Name: &in.Name, Description: in.Description}).
		Eq(model.ColID, id).
		Select().
		Single().
		Execute(ctx)
	lib, _, err := query.One[model.Library](res)
	if err != nil {
		return model.Library{}, errors.Wrap(err, "update library")
	}
	return lib, nil
}

// DeleteLibrary removes the library; its books, members and issues go with it.
func (s *Service) DeleteLibrary(ctx context.Context, id string) error {
	if _, err := s.library(ctx, id); err != nil {
		return err
	}
	res := s.client.From(model.TableLibraries).Delete().Eq(model.ColID, id).Execute(ctx)
	if res.Err != nil {
		return errors.Wrap(res.Err, "delete library")
	}
	s.log.Info("library deleted", zap.String("id", id))
	s.touched(ctx, id)
	return nil
}

// checkLibraryName rejects a name another library of the user already has,
// ignoring case.
func (s *Service) checkLibraryName(ctx context.Context, name, exceptID string) error {
	libs, err := s.ListLibraries(ctx)
	if err != nil {
		return err
	}
	for _, l := range libs {
		if l.ID != exceptID && strings.EqualFold(strings.TrimSpace(l.Name), name) {
			return errs.ErrDuplicateName
		}
	}
	return nil
}
