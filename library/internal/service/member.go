package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

type MemberInput struct {
	Code  int    `json:"m_code" validate:"required,gt=0"`
	Name  string `json:"m_name" validate:"required,max=200"`
	Phone string `json:"m_phone" validate:"required"`
}

func (in *MemberInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return err
	}
	in.Phone = phone
	return nil
}

// NormalizePhone keeps the digits of raw; there must be exactly ten.
func NormalizePhone(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if len(digits) != 10 {
		return "", errs.ErrInvalidPhone
	}
	return digits, nil
}

// FormatPhone renders ten digits as (555) 555-0101; anything else is returned as is.
func FormatPhone(phone string) string {
	if len(phone) != 10 {
		return phone
	}
	return "(" + phone[:3] + ") " + phone[3:6] + "-" + phone[6:]
}

func (s *Service) ListMembers(ctx context.Context, libraryID string) ([]model.Member, error) {
	if _, err := s.library(ctx, libraryID); err != nil {
		return nil, err
	}
	res := s.client.From(model.TableMembers).
		Select().
		Eq(model.ColLibraryID, libraryID).
		Order(model.ColMemberCode).
		Execute(ctx)
	return query.Rows[model.Member](res)
}

func (s *Service) GetMember(ctx context.Context, libraryID string, id int) (model.Member, error) {
	res := s.client.From(model.TableMembers).
		Select().
		Eq(model.ColLibraryID, libraryID).
		Eq(model.ColID, id).
		Single().
		Execute(ctx)
	m, _, err := query.One[model.Member](res)
	return m, err
}

// NextMemberCode suggests the code for a new member: one past the highest in use.
func (s *Service) NextMemberCode(ctx context.Context, libraryID string) (int, error) {
	res := s.client.From(model.TableMembers).
		Select(query.Columns(model.ColMemberCode)).
		Eq(model.ColLibraryID, libraryID).
		Order(model.ColMemberCode, query.Ascending(false)).
		Limit(1).
		MaybeSingle().
		Execute(ctx)
	m, ok, err := query.One[model.Member](res)
	if err != nil {
		return 0, err
	}
	if !ok {
		return MemberCodeStart, nil
	}
	return m.Code + 1, nil
}

func (s *Service) AddMember(ctx context.Context, libraryID string, in MemberInput) (model.Member, error) {
	if _, err := s.library(ctx, libraryID); err != nil {
		return model.Member{}, err
	}
	if err := in.normalize(); err != nil {
		return model.Member{}, err
	}
	taken, err := s.codeTaken(ctx, model.TableMembers, model.ColMemberCode, libraryID, in.Code, 0)
	if err != nil {
		return model.Member{}, err
	}
	if taken {
		return model.Member{}, errs.ErrDuplicateCode
	}
	res := s.client.From(model.TableMembers).
		Insert(model.Member{Code: in.Code, Name: in.Name, Phone: in.Phone, LibraryID: libraryID}).
		Select().
		Single().
		Execute(ctx)
	m, _, err := query.One[model.Member](res)
	if err != nil {
		return model.Member{}, errors.Wrap(err, "add member")
	}
	s.touched(ctx, libraryID)
	return m, nil
}

func (s *Service) UpdateMember(ctx context.Context, libraryID string, id int, in MemberInput) (model.Member, error) {
	if err := in.normalize(); err != nil {
		return model.Member{}, err
	}
	cur, err := s.GetMember(ctx, libraryID, id)
	if err != nil {
		return model.Member{}, err
	}
	if in.Code != cur.Code {
		taken, err := s.codeTaken(ctx, model.TableMembers, model.ColMemberCode, libraryID, in.Code, id)
		if err != nil {
			return model.Member{}, err
		}
		if taken {
			return model.Member{}, errs.ErrDuplicateCode
		}
		open, err := s.openIssues(ctx, libraryID, model.ColIssueMember, cur.Code)
		if err != nil {
			return model.Member{}, err
		}
		if open > 0 {
			return model.Member{}, errs.ErrMemberHasIssues
		}
	}
	res := s.client.From(model.TableMembers).
		Update(model.MemberPatch{Code: &in.Code, Name: &in.Name, Phone: &in.Phone}).
		Eq(model.ColID, id).
		Eq(model.ColLibraryID, libraryID).
		Select().
		Single().
		Execute(ctx)
	m, _, err := query.One[model.Member](res)
	if err != nil {
		return model.Member{}, errors.Wrap(err, "update member")
	}
	s.touched(ctx, libraryID)
	return m, nil
}

func (s *Service) DeleteMember(ctx context.Context, libraryID string, id int) error {
	cur, err := s.GetMember(ctx, libraryID, id)
	if err != nil {
		return err
	}
	open, err := s.openIssues(ctx, libraryID, model.ColIssueMember, cur.Code)
	if err != nil {
		return err
	}
	if open > 0 {
		return errs.ErrMemberHasIssues
	}
	res := s.client.From(model.TableMembers).
		Delete().
		Eq(model.ColID, id).
		Eq(model.ColLibraryID, libraryID).
		Execute(ctx)
	if res.Err != nil {
		return errors.Wrap(res.Err, "delete member")
	}
	s.touched(ctx, libraryID)
	return nil
}
