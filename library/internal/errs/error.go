package errs

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")

	ErrUnavailable     = errors.New("Sorry, this book is currently unavailable.")
	ErrAlreadyBorrowed = errors.New("You have already borrowed this book.")
	ErrBorrowLimit     = errors.New("You have reached the borrowing limit (5 books). Please return some books first.")
	ErrAlreadyReturned = errors.New("This book has already been returned.")

	ErrReviewNotAllowed = errors.New("You can only review books you have borrowed and returned.")

	ErrInvalidCredentials = errors.New("Invalid username or password.")
	ErrSelfDelete         = errors.New("You cannot delete your own admin account.")
	ErrPictureTooLarge    = errors.New("Profile picture is too large. Maximum size is 5MB.")
	ErrNotConfirmed       = errors.New("deletion must be confirmed")
)

// ValidationError collects every problem of one submission.
type ValidationError struct {
	Messages []string          `json:"errors"`
	Fields   map[string]string `json:"fields,omitempty"`
	Form     map[string]string `json:"form,omitempty"`
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, " ")
}

func (e *ValidationError) Add(field, msg string) {
	e.Messages = append(e.Messages, msg)
	if field == "" {
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Messages) == 0
}

func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var (
	ErrDuplicateISBN     = errors.New("Book with this ISBN already exists.")
	ErrDuplicateUsername = errors.New("Username already exists. Please choose a different username.")
	ErrDuplicateEmail    = errors.New("Email is already registered. Please use a different email.")
)
