package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

func TestSubmitReview(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	dune := f.book(t, "Dune", 1)

	_, err := f.svc.ReviewDraft(ctx, ann.ID, dune.ID)
	require.ErrorIs(t, err, errs.ErrReviewNotAllowed)

	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	// an active borrowing is not enough
	_, err = f.svc.SubmitReview(ctx, ann.ID, dune.ID, model.ReviewForm{Rating: 5})
	require.ErrorIs(t, err, errs.ErrReviewNotAllowed)

	_, err = f.svc.ReturnBook(ctx, ann.ID, br.ID)
	require.NoError(t, err)

	draft, err := f.svc.ReviewDraft(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	require.Nil(t, draft.ExistingReview)

	first, err := f.svc.SubmitReview(ctx, ann.ID, dune.ID, model.ReviewForm{Rating: 4, Comment: "  good  "})
	require.NoError(t, err)
	require.Equal(t, "good", first.Comment)

	f.clock.Advance(time.Hour)
	second, err := f.svc.SubmitReview(ctx, ann.ID, dune.ID, model.ReviewForm{Rating: 2, Comment: "changed my mind"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 2, second.Rating)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))

	draft, err = f.svc.ReviewDraft(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	require.NotNil(t, draft.ExistingReview)
	require.Equal(t, 2, draft.ExistingReview.Rating)

	_, err = f.svc.SubmitReview(ctx, ann.ID, 999, model.ReviewForm{Rating: 3})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSubmitReviewValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	dune := f.book(t, "Dune", 1)
	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	_, err = f.svc.ReturnBook(ctx, ann.ID, br.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		form  model.ReviewForm
		field string
	}{
		{name: "missing rating", form: model.ReviewForm{}, field: "rating"},
		{name: "rating too high", form: model.ReviewForm{Rating: 6}, field: "rating"},
		{name: "comment too long", form: model.ReviewForm{Rating: 3, Comment: strings.Repeat("é", 501)}, field: "comment"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitReview(ctx, ann.ID, dune.ID, tt.form)
			ve, ok := errs.AsValidation(err)
			require.True(t, ok)
			require.Contains(t, ve.Fields, tt.field)
		})
	}

	_, err = f.svc.SubmitReview(ctx, ann.ID, dune.ID, model.ReviewForm{Rating: 3, Comment: strings.Repeat("é", 500)})
	require.NoError(t, err)
}

func TestBookReviews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	dune := f.book(t, "Dune", 3)

	empty, err := f.svc.BookReviews(ctx, dune.ID, 0)
	require.NoError(t, err)
	require.Zero(t, empty.AverageRating)
	require.Empty(t, empty.Reviews)

	var ann model.User
	for i, rating := range []int{4, 5, 5} {
		u := f.user(t, "reader"+string(rune('a'+i)))
		if i == 0 {
			ann = u
		}
		br, err := f.svc.BorrowBook(ctx, u.ID, dune.ID)
		require.NoError(t, err)
		_, err = f.svc.ReturnBook(ctx, u.ID, br.ID)
		require.NoError(t, err)
		_, err = f.svc.SubmitReview(ctx, u.ID, dune.ID, model.ReviewForm{Rating: rating})
		require.NoError(t, err)
	}

	anonymous, err := f.svc.BookReviews(ctx, dune.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 4.7, anonymous.AverageRating)
	require.Equal(t, 3, anonymous.RatingCount)
	require.False(t, anonymous.UserHasReviewed)
	require.Nil(t, anonymous.UserReview)

	mine, err := f.svc.BookReviews(ctx, dune.ID, ann.ID)
	require.NoError(t, err)
	require.True(t, mine.UserHasReviewed)
	require.Equal(t, 4, mine.UserReview.Rating)

	book, err := f.svc.GetBook(ctx, dune.ID)
	require.NoError(t, err)
	require.Equal(t, 4.7, book.AverageRating)
	require.Equal(t, 3, book.TotalBorrowed)
}
