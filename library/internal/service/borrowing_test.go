package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/library/internal/notify"
)

func TestBorrowBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	dune := f.book(t, "Dune", 2)

	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusBorrowed, br.Status)
	require.Equal(t, f.clock.Now().Add(14*24*time.Hour), br.DueAt)
	require.Equal(t, "Dune", br.BookTitle)
	require.Equal(t, 1, f.copies(t, dune.ID))

	f.svc.Wait()
	events := f.notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, notify.KindBorrowed, events[0].Kind)
	require.Equal(t, ann.Email, events[0].To)

	_, err = f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.ErrorIs(t, err, errs.ErrAlreadyBorrowed)
	require.Equal(t, 1, f.copies(t, dune.ID))

	_, err = f.svc.BorrowBook(ctx, ann.ID, 999)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBorrowBookUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ann := f.user(t, "ann")
	empty := f.book(t, "Empty", 0)

	_, err := f.svc.BorrowBook(context.Background(), ann.ID, empty.ID)
	require.ErrorIs(t, err, errs.ErrUnavailable)
	require.Equal(t, 0, f.copies(t, empty.ID))
}

func TestBorrowBookLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")

	for i := 0; i < model.MaxActiveLoans; i++ {
		b := f.book(t, string(rune('A'+i)), 1)
		_, err := f.svc.BorrowBook(ctx, ann.ID, b.ID)
		require.NoError(t, err)
	}
	sixth := f.book(t, "Sixth", 1)
	_, err := f.svc.BorrowBook(ctx, ann.ID, sixth.ID)
	require.ErrorIs(t, err, errs.ErrBorrowLimit)
	require.Equal(t, 1, f.copies(t, sixth.ID))

	// overdue records still count
	f.clock.Advance(30 * 24 * time.Hour)
	_, err = f.svc.MyBorrowings(ctx, ann.ID)
	require.NoError(t, err)
	_, err = f.svc.BorrowBook(ctx, ann.ID, sixth.ID)
	require.ErrorIs(t, err, errs.ErrBorrowLimit)
}

func TestBorrowLastCopyConcurrently(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	last := f.book(t, "Last", 1)

	const members = 10
	users := make([]model.User, members)
	for i := range users {
		users[i] = f.user(t, "member"+string(rune('a'+i)))
	}

	var (
		wg                     sync.WaitGroup
		succeeded, unavailable atomic.Int32
	)
	for _, u := range users {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.BorrowBook(context.Background(), u.ID, last.ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, errs.ErrUnavailable):
				unavailable.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, succeeded.Load())
	require.EqualValues(t, members-1, unavailable.Load())
	require.Equal(t, 0, f.copies(t, last.ID))
}

func TestBorrowSameBookConcurrently(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ann := f.user(t, "ann")
	book := f.book(t, "Many", 5)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.BorrowBook(context.Background(), ann.ID, book.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, succeeded.Load())
	require.Equal(t, 4, f.copies(t, book.ID))
}

func TestReturnBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	bob := f.user(t, "bob")
	dune := f.book(t, "Dune", 1)

	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)

	_, err = f.svc.ReturnBook(ctx, bob.ID, br.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, 0, f.copies(t, dune.ID))

	f.clock.Advance(10 * 24 * time.Hour)
	res, err := f.svc.ReturnBook(ctx, ann.ID, br.ID)
	require.NoError(t, err)
	require.False(t, res.Late)
	require.True(t, res.LateFee.IsZero())
	require.Equal(t, model.StatusReturned, res.Borrowing.Status)
	require.NotNil(t, res.Borrowing.ReturnedAt)
	require.Equal(t, 1, f.copies(t, dune.ID))

	_, err = f.svc.ReturnBook(ctx, ann.ID, br.ID)
	require.ErrorIs(t, err, errs.ErrAlreadyReturned)
	require.Equal(t, 1, f.copies(t, dune.ID))
}

func TestReturnBookLate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	dune := f.book(t, "Dune", 1)

	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)

	f.clock.Advance(model.LoanPeriod + 3*24*time.Hour + 5*time.Hour)
	res, err := f.svc.ReturnBook(ctx, ann.ID, br.ID)
	require.NoError(t, err)
	require.True(t, res.Late)
	require.True(t, decimal.RequireFromString("1.50").Equal(res.LateFee))

	stored, err := f.repo.GetBorrowing(ctx, br.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("1.50").Equal(stored.LateFee))
	require.Equal(t, 1, f.copies(t, dune.ID))
}

func TestMyBorrowings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	first := f.book(t, "First", 1)
	second := f.book(t, "Second", 1)
	third := f.book(t, "Third", 1)

	old, err := f.svc.BorrowBook(ctx, ann.ID, first.ID)
	require.NoError(t, err)
	returned, err := f.svc.BorrowBook(ctx, ann.ID, second.ID)
	require.NoError(t, err)

	f.clock.Advance(model.LoanPeriod + 2*24*time.Hour)
	_, err = f.svc.ReturnBook(ctx, ann.ID, returned.ID)
	require.NoError(t, err)
	fresh, err := f.svc.BorrowBook(ctx, ann.ID, third.ID)
	require.NoError(t, err)

	res, err := f.svc.MyBorrowings(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, res.Active, 1)
	require.Equal(t, fresh.ID, res.Active[0].ID)
	require.Equal(t, 14, res.Active[0].DaysLeft)
	require.Len(t, res.Overdue, 1)
	require.Equal(t, old.ID, res.Overdue[0].ID)
	require.Equal(t, 2, res.Overdue[0].OverdueDays)
	require.True(t, decimal.RequireFromString("1.00").Equal(res.Overdue[0].AccruedLateFee))
	require.Len(t, res.Returned, 1)
	require.True(t, decimal.RequireFromString("1.00").Equal(res.TotalLateFees))

	// the overdue flip is persisted
	stored, err := f.repo.GetBorrowing(ctx, old.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOverdue, stored.Status)
}

func TestUpdateBorrowingStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	dune := f.book(t, "Dune", 1)

	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	require.Equal(t, 0, f.copies(t, dune.ID))

	_, err = f.svc.UpdateBorrowingStatus(ctx, br.ID, "LOST")
	ve, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Contains(t, ve.Fields, "status")

	updated, err := f.svc.UpdateBorrowingStatus(ctx, br.ID, model.StatusReturned)
	require.NoError(t, err)
	require.Equal(t, model.StatusReturned, updated.Status)
	require.NotNil(t, updated.ReturnedAt)
	require.Equal(t, 1, f.copies(t, dune.ID))

	// returned_at is already set: no second increment
	_, err = f.svc.UpdateBorrowingStatus(ctx, br.ID, model.StatusOverdue)
	require.NoError(t, err)
	_, err = f.svc.UpdateBorrowingStatus(ctx, br.ID, model.StatusReturned)
	require.NoError(t, err)
	require.Equal(t, 1, f.copies(t, dune.ID))

	_, err = f.svc.UpdateBorrowingStatus(ctx, 999, model.StatusReturned)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestManageBorrowings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	bob := f.user(t, "bob")
	dune := f.book(t, "Dune", 2)
	emma := f.book(t, "Emma", 1)

	_, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	f.clock.Advance(model.LoanPeriod + 24*time.Hour)
	_, err = f.svc.BorrowBook(ctx, bob.ID, dune.ID)
	require.NoError(t, err)
	late, err := f.svc.BorrowBook(ctx, bob.ID, emma.ID)
	require.NoError(t, err)
	f.clock.Advance(model.LoanPeriod + 24*time.Hour)
	_, err = f.svc.ReturnBook(ctx, bob.ID, late.ID)
	require.NoError(t, err)

	all, err := f.svc.ManageBorrowings(ctx, model.BorrowingFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, all.TotalBorrowings)
	require.Equal(t, 2, all.OverdueCount)
	require.Equal(t, 0, all.ActiveCount)
	require.True(t, decimal.RequireFromString("0.50").Equal(all.TotalLateFees))

	byUser, err := f.svc.ManageBorrowings(ctx, model.BorrowingFilter{Search: "ANN"})
	require.NoError(t, err)
	require.Equal(t, 1, byUser.TotalBorrowings)
	require.Equal(t, "ANN", byUser.SearchQuery)

	returned, err := f.svc.ManageBorrowings(ctx, model.BorrowingFilter{Status: "returned"})
	require.NoError(t, err)
	require.Equal(t, 1, returned.TotalBorrowings)
	require.Equal(t, model.StatusReturned, returned.StatusFilter)

	_, err = f.svc.ManageBorrowings(ctx, model.BorrowingFilter{Status: "LOST"})
	_, ok := errs.AsValidation(err)
	require.True(t, ok)
}
