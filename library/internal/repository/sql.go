package repository

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/query"
)

var ErrUnknownColumn = errors.New("unknown column")

// scope limits statements to the rows of one user.
type scope struct {
	userID string
	all    bool
}

// ownedLibraries matches rows whose library belongs to the user.
const ownedLibraries = "library_id IN (SELECT id FROM " + string(model.TableLibraries) + " WHERE user_id = ?)"

func (s scope) where(table model.Table) sq.Sqlizer {
	if s.all {
		return nil
	}
	switch table {
	case model.TableProfiles:
		return sq.Eq{model.ColID: s.userID}
	case model.TableLibraries:
		return sq.Eq{model.ColUserID: s.userID}
	}
	return sq.Expr(ownedLibraries, s.userID)
}

func emptyRow(table model.Table) model.Record {
	switch table {
	case model.TableProfiles:
		return model.Profile{}
	case model.TableLibraries:
		return model.Library{}
	case model.TableBooks:
		return model.Book{}
	case model.TableMembers:
		return model.Member{}
	case model.TableIssues:
		return model.Issue{}
	}
	return nil
}

func checkColumn(table model.Table, column string) error {
	row := emptyRow(table)
	if row == nil {
		return errors.Wrap(query.ErrUnknownTable, string(table))
	}
	if _, ok := row.Value(column); !ok {
		return errors.Wrapf(ErrUnknownColumn, "%s.%s", table, column)
	}
	return nil
}

func predicates(q query.Query, sc scope) ([]sq.Sqlizer, error) {
	out := make([]sq.Sqlizer, 0, len(q.Filters)+1)
	if w := sc.where(q.Table); w != nil {
		out = append(out, w)
	}
	for _, f := range q.Filters {
		if err := checkColumn(q.Table, f.Column); err != nil {
			return nil, err
		}
		switch f.Op {
		case query.OpEq:
			out = append(out, sq.Eq{f.Column: f.Value})
		case query.OpNeq:
			out = append(out, sq.NotEq{f.Column: f.Value})
		case query.OpIsNull:
			out = append(out, sq.Eq{f.Column: nil})
		case query.OpLt:
			out = append(out, sq.Lt{f.Column: f.Value})
		default:
			return nil, errors.Errorf("unsupported filter %s", f.Op)
		}
	}
	return out, nil
}

func buildCount(q query.Query, sc scope) (string, []any, error) {
	preds, err := predicates(q, sc)
	if err != nil {
		return "", nil, err
	}
	b := qb.Select("count(*)").From(string(q.Table))
	for _, p := range preds {
		b = b.Where(p)
	}
	return b.ToSql()
}

func buildSelect(q query.Query, sc scope) (string, []any, error) {
	preds, err := predicates(q, sc)
	if err != nil {
		return "", nil, err
	}
	cols := []string{"*"}
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if err := checkColumn(q.Table, c); err != nil {
				return "", nil, err
			}
		}
		cols = q.Columns
	}
	b := qb.Select(cols...).From(string(q.Table))
	for _, p := range preds {
		b = b.Where(p)
	}
	if q.Order != nil {
		if err := checkColumn(q.Table, q.Order.Column); err != nil {
			return "", nil, err
		}
		dir := " DESC"
		if q.Order.Ascending {
			dir = " ASC"
		}
		b = b.OrderBy(q.Order.Column+dir, model.ColID+dir)
	} else {
		b = b.OrderBy(model.ColID + " ASC")
	}
	switch {
	case q.Single || q.MaybeSingle:
		b = b.Limit(1)
	case q.Limit > 0:
		b = b.Limit(uint64(q.Limit))
	}
	return b.ToSql()
}

func buildInsert(q query.Query, sc scope) (string, []any, error) {
	var (
		columns []string
		b       sq.InsertBuilder
	)
	for i, row := range q.Rows {
		if row.TableName() != q.Table {
			return "", nil, errors.Errorf("insert into %s: got %s row", q.Table, row.TableName())
		}
		cols, vals, err := insertValues(row, sc)
		if err != nil {
			return "", nil, err
		}
		if i == 0 {
			columns = cols
			b = qb.Insert(string(q.Table)).Columns(cols...)
		} else if strings.Join(cols, ",") != strings.Join(columns, ",") {
			return "", nil, errors.New("insert rows have different columns")
		}
		b = b.Values(vals...)
	}
	return b.Suffix("RETURNING *").ToSql()
}

// insertValues lists the columns a new row sets; ids of numbered tables
// and timestamps come from column defaults.
func insertValues(row model.Record, sc scope) ([]string, []any, error) {
	switch r := row.(type) {
	case model.Profile:
		return []string{model.ColID, model.ColFullName, model.ColEmail},
			[]any{r.ID, r.FullName, r.Email}, nil
	case model.Library:
		userID := r.UserID
		if userID == "" {
			userID = sc.userID
		}
		if !sc.all && (sc.userID == "" || userID != sc.userID) {
			if sc.userID == "" {
				return nil, nil, errs.ErrNotSignedIn
			}
			return nil, nil, errs.ErrInvalidLibrary
		}
		return []string{model.ColName, model.ColDescription, model.ColUserID},
			[]any{r.Name, r.Description, userID}, nil
	case model.Book:
		return []string{model.ColBookCode, model.ColBookName, model.ColBookAuthor, model.ColBookPrice, model.ColLibraryID},
			[]any{r.Code, r.Name, r.Author, r.Price, r.LibraryID}, nil
	case model.Member:
		return []string{model.ColMemberCode, model.ColMemberName, model.ColMemberPhone, model.ColLibraryID},
			[]any{r.Code, r.Name, r.Phone, r.LibraryID}, nil
	case model.Issue:
		return []string{model.ColIssueBook, model.ColIssueMember, model.ColIssueDate, model.ColReturnDate, model.ColLibraryID},
			[]any{r.BookCode, r.MemberCode, r.IssueDate, r.ReturnDate, r.LibraryID}, nil
	}
	return nil, nil, errors.Wrapf(query.ErrUnknownTable, "%T", row)
}

func buildUpdate(q query.Query, sc scope) (string, []any, error) {
	if q.Patch == nil || q.Patch.TableName() != q.Table {
		return "", nil, errors.Errorf("update %s: patch does not fit the table", q.Table)
	}
	set := q.Patch.Columns()
	if len(set) == 0 {
		return "", nil, errors.Errorf("update %s: empty patch", q.Table)
	}
	for col := range set {
		if err := checkColumn(q.Table, col); err != nil {
			return "", nil, err
		}
	}
	preds, err := predicates(q, sc)
	if err != nil {
		return "", nil, err
	}
	b := qb.Update(string(q.Table)).SetMap(set).Set(model.ColUpdatedAt, sq.Expr("now()"))
	for _, p := range preds {
		b = b.Where(p)
	}
	return b.Suffix("RETURNING *").ToSql()
}

func buildDelete(q query.Query, sc scope) (string, []any, error) {
	preds, err := predicates(q, sc)
	if err != nil {
		return "", nil, err
	}
	b := qb.Delete(string(q.Table))
	for _, p := range preds {
		b = b.Where(p)
	}
	return b.Suffix("RETURNING *").ToSql()
}
