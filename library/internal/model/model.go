package model

import (
	"time"
)

type Table string

const (
	TableProfiles  Table = "profiles"
	TableLibraries Table = "libraries"
	TableBooks     Table = "book_management"
	TableMembers   Table = "member_management"
	TableIssues    Table = "issue_management"
)

func (t Table) Valid() bool {
	switch t {
	case TableProfiles, TableLibraries, TableBooks, TableMembers, TableIssues:
		return true
	}
	return false
}

const (
	ColID          = "id"
	ColCreatedAt   = "created_at"
	ColUpdatedAt   = "updated_at"
	ColLibraryID   = "library_id"
	ColUserID      = "user_id"
	ColName        = "name"
	ColDescription = "description"
	ColFullName    = "full_name"
	ColEmail       = "email"
	ColBookCode    = "b_code"
	ColBookName    = "b_name"
	ColBookAuthor  = "b_author"
	ColBookPrice   = "b_price"
	ColMemberCode  = "m_code"
	ColMemberName  = "m_name"
	ColMemberPhone = "m_phone"
	ColIssueBook   = "ib_code"
	ColIssueMember = "im_code"
	ColIssueDate   = "i_date_of_iss"
	ColReturnDate  = "i_date_of_ret"
)

// Record is a row of one of the fixed tables.
type Record interface {
	TableName() Table
	// Value returns the column value; ok is false for unknown columns.
	// Null columns are reported as an untyped nil.
	Value(column string) (v any, ok bool)
}

type Profile struct {
	ID        string    `json:"id" db:"id"`
	FullName  *string   `json:"full_name" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (Profile) TableName() Table { return TableProfiles }

func (p Profile) Value(column string) (any, bool) {
	switch column {
	case ColID:
		return p.ID, true
	case ColFullName:
		if p.FullName == nil {
			return nil, true
		}
		return *p.FullName, true
	case ColEmail:
		return p.Email, true
	case ColCreatedAt:
		return p.CreatedAt, true
	case ColUpdatedAt:
		return p.UpdatedAt, true
	}
	return nil, false
}

type Library struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	UserID      string    `json:"user_id" db:"user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func (Library) TableName() Table { return TableLibraries }

func (l Library) Value(column string) (any, bool) {
	switch column {
	case ColID:
		return l.ID, true
	case ColName:
		return l.Name, true
	case ColDescription:
		if l.Description == nil {
			return nil, true
		}
		return *l.Description, true
	case ColUserID:
		return l.UserID, true
	case ColCreatedAt:
		return l.CreatedAt, true
	case ColUpdatedAt:
		return l.UpdatedAt, true
	}
	return nil, false
}

type Book struct {
	ID        int       `json:"id" db:"id"`
	Code      int       `json:"b_code" db:"b_code"`
	Name      string    `json:"b_name" db:"b_name"`
	Author    string    `json:"b_author" db:"b_author"`
	Price     float64   `json:"b_price" db:"b_price"`
	LibraryID string    `json:"library_id" db:"library_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (Book) TableName() Table { return TableBooks }

func (b Book) Value(column string) (any, bool) {
	switch column {
	case ColID:
		return b.ID, true
	case ColBookCode:
		return b.Code, true
	case ColBookName:
		return b.Name, true
	case ColBookAuthor:
		return b.Author, true
	case ColBookPrice:
		return b.Price, true
	case ColLibraryID:
		return b.LibraryID, true
	case ColCreatedAt:
		return b.CreatedAt, true
	case ColUpdatedAt:
		return b.UpdatedAt, true
	}
	return nil, false
}

type Member struct {
	ID        int       `json:"id" db:"id"`
	Code      int       `json:"m_code" db:"m_code"`
	Name      string    `json:"m_name" db:"m_name"`
	Phone     string    `json:"m_phone" db:"m_phone"`
	LibraryID string    `json:"library_id" db:"library_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (Member) TableName() Table { return TableMembers }

func (m Member) Value(column string) (any, bool) {
	switch column {
	case ColID:
		return m.ID, true
	case ColMemberCode:
		return m.Code, true
	case ColMemberName:
		return m.Name, true
	case ColMemberPhone:
		return m.Phone, true
	case ColLibraryID:
		return m.LibraryID, true
	case ColCreatedAt:
		return m.CreatedAt, true
	case ColUpdatedAt:
		return m.UpdatedAt, true
	}
	return nil, false
}

// Issue references books and members by their codes, not by ids.
type Issue struct {
	ID         int        `json:"id" db:"id"`
	BookCode   int        `json:"ib_code" db:"ib_code"`
	MemberCode int        `json:"im_code" db:"im_code"`
	IssueDate  time.Time  `json:"i_date_of_iss" db:"i_date_of_iss"`
	ReturnDate *time.Time `json:"i_date_of_ret" db:"i_date_of_ret"`
	LibraryID  string     `json:"library_id" db:"library_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (Issue) TableName() Table { return TableIssues }

func (i Issue) Value(column string) (any, bool) {
	switch column {
	case ColID:
		return i.ID, true
	case ColIssueBook:
		return i.BookCode, true
	case ColIssueMember:
		return i.MemberCode, true
	case ColIssueDate:
		return i.IssueDate, true
	case ColReturnDate:
		if i.ReturnDate == nil {
			return nil, true
		}
		return *i.ReturnDate, true
	case ColLibraryID:
		return i.LibraryID, true
	case ColCreatedAt:
		return i.CreatedAt, true
	case ColUpdatedAt:
		return i.UpdatedAt, true
	}
	return nil, false
}

// Open reports whether the book has not been returned yet.
func (i Issue) Open() bool {
	return i.ReturnDate == nil
}

type IssueWithDetails struct {
	Issue  `json:",inline"`
	Book   *BookDetails   `json:"book"`
	Member *MemberDetails `json:"member"`
}

type BookDetails struct {
	Name   string `json:"b_name"`
	Author string `json:"b_author"`
}

type MemberDetails struct {
	Name  string `json:"m_name"`
	Phone string `json:"m_phone"`
}

type LibraryStats struct {
	TotalBooks     int `json:"totalBooks"`
	TotalMembers   int `json:"totalMembers"`
	ActiveIssues   int `json:"activeIssues"`
	OverdueBooks   int `json:"overdueBooks"`
	ReturnedIssues int `json:"returnedIssues"`
	AvailableBooks int `json:"availableBooks"`
}

type RecentData struct {
	RecentBooks   []Book             `json:"recentBooks"`
	RecentMembers []Member           `json:"recentMembers"`
	RecentIssues  []IssueWithDetails `json:"recentIssues"`
	OverdueIssues []IssueWithDetails `json:"overdueIssues"`
}

type Summary struct {
	LibraryID  string       `json:"libraryId"`
	Stats      LibraryStats `json:"stats"`
	Recent     RecentData   `json:"recent"`
	ComputedAt time.Time    `json:"computedAt"`
}
