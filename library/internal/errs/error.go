package errs

import (
	"errors"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConfig      = errors.New("invalid backend configuration")
	ErrNotSignedIn = errors.New("not signed in")

	ErrDuplicateEmail = errors.New("a profile with this email already exists")

	ErrInvalidLibrary  = errors.New("invalid library")
	ErrDuplicateName   = errors.New("a library with this name already exists")
	ErrDuplicateCode   = errors.New("code already exists in this library")
	ErrInvalidPhone    = errors.New("phone number must have exactly 10 digits")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrBookIssued      = errors.New("book is currently issued to a member")
	ErrMemberHasIssues = errors.New("member has books currently issued")
	ErrBookNotFound    = errors.New("book with this code does not exist")
	ErrMemberNotFound  = errors.New("member with this code does not exist")
	ErrAlreadyIssued   = errors.New("book is already issued to a member")
	ErrAlreadyReturned = errors.New("book is already returned")
)
