package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/library/internal/notify"
	libraryRepo "github.com/Astemirdum/silent-library/library/internal/repository"
)

var activeStatuses = []model.Status{model.StatusBorrowed, model.StatusOverdue}

// BorrowBook takes one copy for the user. The user row lock serializes the member's own
// attempts and the book row lock serializes the last copy.
func (s *Service) BorrowBook(ctx context.Context, userID, bookID int64) (model.Borrowing, error) {
	now := s.now()
	var (
		book model.Book
		br   model.Borrowing
	)
	err := s.repo.WithTx(ctx, func(repo libraryRepo.Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}
		var err error
		if book, err = repo.GetBookForUpdate(ctx, bookID); err != nil {
			return err
		}
		if !book.CanBeBorrowed() {
			return errs.ErrUnavailable
		}
		has, err := repo.HasBorrowing(ctx, userID, bookID, activeStatuses...)
		if err != nil {
			return err
		}
		if has {
			return errs.ErrAlreadyBorrowed
		}
		active, err := repo.CountBorrowings(ctx, userID, activeStatuses...)
		if err != nil {
			return err
		}
		if active >= model.MaxActiveLoans {
			return errs.ErrBorrowLimit
		}

		br = model.NewBorrowing(bookID, userID, now)
		if br.ID, err = repo.CreateBorrowing(ctx, br); err != nil {
			return err
		}
		return repo.AvailableCount(ctx, bookID, false)
	})
	if err != nil {
		return model.Borrowing{}, err
	}
	br.BookTitle, br.BookAuthor, br.BookISBN = book.Title, book.Author, book.ISBN

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.log.Warn("borrow notification", zap.Int64("user_id", userID), zap.Error(err))
		return br, nil
	}
	br.Username, br.UserEmail = user.Username, user.Email
	s.notifyAsync(notify.BorrowedEvent(user, book, br, now))
	return br, nil
}

// ReturnBook closes the caller's own active borrowing and charges the late fee.
func (s *Service) ReturnBook(ctx context.Context, userID, borrowingID int64) (model.ReturnResult, error) {
	now := s.now()
	var br model.Borrowing
	err := s.repo.WithTx(ctx, func(repo libraryRepo.Repository) error {
		var err error
		if br, err = repo.GetBorrowingForUpdate(ctx, borrowingID); err != nil {
			return err
		}
		if br.UserID != userID {
			return errs.ErrNotFound
		}
		if !br.Status.Active() {
			return errs.ErrAlreadyReturned
		}
		br.LateFee = model.LateFee(br.DueAt, now)
		if err := repo.ReturnBorrowing(ctx, br.ID, now, br.LateFee.StringFixed(2)); err != nil {
			return err
		}
		return repo.AvailableCount(ctx, br.BookID, true)
	})
	if err != nil {
		return model.ReturnResult{}, err
	}
	br.Status = model.StatusReturned
	br.ReturnedAt = &now
	return model.ReturnResult{
		Borrowing: br,
		Late:      now.After(br.DueAt),
		LateFee:   br.LateFee,
	}, nil
}

func (s *Service) markOverdue(ctx context.Context, userID int64, now time.Time) {
	n, err := s.repo.MarkOverdue(ctx, userID, now)
	if err != nil {
		// listings still derive the status
		s.log.Warn("MarkOverdue", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Debug("MarkOverdue", zap.Int64("updated", n))
	}
}

func (s *Service) MyBorrowings(ctx context.Context, userID int64) (model.MyBorrowings, error) {
	now := s.now()
	s.markOverdue(ctx, userID, now)
	list, err := s.repo.ListUserBorrowings(ctx, userID)
	if err != nil {
		return model.MyBorrowings{}, errors.Wrap(err, "ListUserBorrowings")
	}

	res := model.MyBorrowings{
		Active:        make([]model.BorrowingView, 0),
		Overdue:       make([]model.BorrowingView, 0),
		Returned:      make([]model.BorrowingView, 0),
		TotalLateFees: decimal.Zero,
	}
	for _, b := range list {
		v := b.Derive(now)
		switch v.Status {
		case model.StatusOverdue:
			res.Overdue = append(res.Overdue, v)
		case model.StatusReturned:
			res.Returned = append(res.Returned, v)
		default:
			res.Active = append(res.Active, v)
		}
		res.TotalLateFees = res.TotalLateFees.Add(b.LateFee)
	}
	return res, nil
}

func (s *Service) ManageBorrowings(ctx context.Context, filter model.BorrowingFilter) (model.ManagedBorrowings, error) {
	filter.Status = model.Status(strings.ToUpper(strings.TrimSpace(string(filter.Status))))
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Status != "" && !filter.Status.Valid() {
		ve := &errs.ValidationError{}
		ve.Add("status", invalidChoice(filter.Status))
		return model.ManagedBorrowings{}, ve
	}

	now := s.now()
	s.markOverdue(ctx, 0, now)
	list, err := s.repo.ListBorrowings(ctx, filter)
	if err != nil {
		return model.ManagedBorrowings{}, errors.Wrap(err, "ListBorrowings")
	}

	res := model.ManagedBorrowings{
		Borrowings:    make([]model.BorrowingView, 0, len(list)),
		TotalLateFees: decimal.Zero,
		StatusFilter:  filter.Status,
		SearchQuery:   filter.Search,
	}
	for _, b := range list {
		v := b.Derive(now)
		switch v.Status {
		case model.StatusOverdue:
			res.OverdueCount++
		case model.StatusBorrowed:
			res.ActiveCount++
		}
		res.TotalLateFees = res.TotalLateFees.Add(b.LateFee)
		res.Borrowings = append(res.Borrowings, v)
	}
	res.TotalBorrowings = len(res.Borrowings)
	return res, nil
}

// UpdateBorrowingStatus is the staff override. Moving to RETURNED gives the copy back only
// when the record has no return date yet.
func (s *Service) UpdateBorrowingStatus(ctx context.Context, borrowingID int64, status model.Status) (model.Borrowing, error) {
	status = model.Status(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		ve := &errs.ValidationError{}
		ve.Add("status", invalidChoice(status))
		return model.Borrowing{}, ve
	}

	now := s.now()
	err := s.repo.WithTx(ctx, func(repo libraryRepo.Repository) error {
		br, err := repo.GetBorrowingForUpdate(ctx, borrowingID)
		if err != nil {
			return err
		}
		var returnedAt *time.Time
		if status == model.StatusReturned && br.ReturnedAt == nil {
			returnedAt = &now
		}
		if err := repo.SetBorrowingStatus(ctx, br.ID, status, returnedAt); err != nil {
			return err
		}
		if returnedAt != nil {
			return repo.AvailableCount(ctx, br.BookID, true)
		}
		return nil
	})
	if err != nil {
		return model.Borrowing{}, err
	}
	return s.repo.GetBorrowing(ctx, borrowingID)
}

func invalidChoice(status model.Status) string {
	return fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", status)
}
