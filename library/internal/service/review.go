package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

// canReview requires a returned borrowing of the book.
func (s *Service) canReview(ctx context.Context, userID, bookID int64) error {
	ok, err := s.repo.HasBorrowing(ctx, userID, bookID, model.StatusReturned)
	if err != nil {
		return errors.Wrap(err, "HasBorrowing")
	}
	if !ok {
		return errs.ErrReviewNotAllowed
	}
	return nil
}

func (s *Service) userReview(ctx context.Context, userID, bookID int64) (*model.Review, error) {
	rv, err := s.repo.GetUserReview(ctx, bookID, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rv, nil
}

func (s *Service) ReviewDraft(ctx context.Context, userID, bookID int64) (model.ReviewDraft, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return model.ReviewDraft{}, err
	}
	if err := s.canReview(ctx, userID, bookID); err != nil {
		return model.ReviewDraft{}, err
	}
	existing, err := s.userReview(ctx, userID, bookID)
	if err != nil {
		return model.ReviewDraft{}, err
	}
	return model.ReviewDraft{Book: book, ExistingReview: existing}, nil
}

// SubmitReview creates the user's review or overwrites rating and comment of the existing one.
func (s *Service) SubmitReview(ctx context.Context, userID, bookID int64, form model.ReviewForm) (model.Review, error) {
	if _, err := s.repo.GetBook(ctx, bookID); err != nil {
		return model.Review{}, err
	}
	if err := s.canReview(ctx, userID, bookID); err != nil {
		return model.Review{}, err
	}
	form.Comment = strings.TrimSpace(form.Comment)
	if ve := s.validate(form); !ve.Empty() {
		return model.Review{}, ve
	}
	return s.repo.UpsertReview(ctx, model.Review{
		BookID:    bookID,
		UserID:    userID,
		Rating:    form.Rating,
		Comment:   form.Comment,
		UpdatedAt: s.now(),
	})
}

// BookReviews lists reviews newest first; viewerID 0 is an anonymous caller.
func (s *Service) BookReviews(ctx context.Context, bookID, viewerID int64) (model.BookReviews, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		return model.BookReviews{}, err
	}
	reviews, err := s.repo.ListReviews(ctx, bookID)
	if err != nil {
		return model.BookReviews{}, errors.Wrap(err, "ListReviews")
	}

	res := model.BookReviews{Book: book, Reviews: reviews, RatingCount: len(reviews)}
	sum := 0
	for i := range reviews {
		sum += reviews[i].Rating
		if viewerID != 0 && reviews[i].UserID == viewerID {
			rv := reviews[i]
			res.UserReview = &rv
			res.UserHasReviewed = true
		}
	}
	res.AverageRating = model.AverageRating(sum, len(reviews))
	if res.Reviews == nil {
		res.Reviews = make([]model.Review, 0)
	}
	return res, nil
}
