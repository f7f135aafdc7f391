package model

import "time"

// Patch is a partial update of one record. Only non-nil fields are applied.
type Patch interface {
	TableName() Table
	Columns() map[string]any
}

type ProfilePatch struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

func (ProfilePatch) TableName() Table { return TableProfiles }

func (p ProfilePatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.FullName != nil {
		cols[ColFullName] = *p.FullName
	}
	if p.Email != nil {
		cols[ColEmail] = *p.Email
	}
	return cols
}

func (p ProfilePatch) Apply(dst *Profile) {
	if p.FullName != nil {
		dst.FullName = p.FullName
	}
	if p.Email != nil {
		dst.Email = *p.Email
	}
}

type LibraryPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (LibraryPatch) TableName() Table { return TableLibraries }

func (p LibraryPatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.Name != nil {
		cols[ColName] = *p.Name
	}
	if p.Description != nil {
		cols[ColDescription] = *p.Description
	}
	return cols
}

func (p LibraryPatch) Apply(dst *Library) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Description != nil {
		dst.Description = p.Description
	}
}

type BookPatch struct {
	Code   *int     `json:"b_code"`
	Name   *string  `json:"b_name"`
	Author *string  `json:"b_author"`
	Price  *float64 `json:"b_price"`
}

func (BookPatch) TableName() Table { return TableBooks }

func (p BookPatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.Code != nil {
		cols[ColBookCode] = *p.Code
	}
	if p.Name != nil {
		cols[ColBookName] = *p.Name
	}
	if p.Author != nil {
		cols[ColBookAuthor] = *p.Author
	}
	if p.Price != nil {
		cols[ColBookPrice] = *p.Price
	}
	return cols
}

func (p BookPatch) Apply(dst *Book) {
	if p.Code != nil {
		dst.Code = *p.Code
	}
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Author != nil {
		dst.Author = *p.Author
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
}

type MemberPatch struct {
	Code  *int    `json:"m_code"`
	Name  *string `json:"m_name"`
	Phone *string `json:"m_phone"`
}

func (MemberPatch) TableName() Table { return TableMembers }

func (p MemberPatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.Code != nil {
		cols[ColMemberCode] = *p.Code
	}
	if p.Name != nil {
		cols[ColMemberName] = *p.Name
	}
	if p.Phone != nil {
		cols[ColMemberPhone] = *p.Phone
	}
	return cols
}

func (p MemberPatch) Apply(dst *Member) {
	if p.Code != nil {
		dst.Code = *p.Code
	}
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Phone != nil {
		dst.Phone = *p.Phone
	}
}

type IssuePatch struct {
	ReturnDate *time.Time `json:"i_date_of_ret"`
	IssueDate  *time.Time `json:"i_date_of_iss"`
}

func (IssuePatch) TableName() Table { return TableIssues }

func (p IssuePatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.ReturnDate != nil {
		cols[ColReturnDate] = *p.ReturnDate
	}
	if p.IssueDate != nil {
		cols[ColIssueDate] = *p.IssueDate
	}
	return cols
}

func (p IssuePatch) Apply(dst *Issue) {
	if p.ReturnDate != nil {
		d := *p.ReturnDate
		dst.ReturnDate = &d
	}
	if p.IssueDate != nil {
		dst.IssueDate = *p.IssueDate
	}
}
