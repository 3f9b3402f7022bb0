package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

var reviewColumns = []string{
	"r.id", "r.book_id", "r.user_id", "u.username", "r.rating", "r.comment", "r.created_at", "r.updated_at",
}

func reviewsSelect() sq.SelectBuilder {
	return qb.Select(reviewColumns...).
		From(reviewsTableName + " r").
		Join(fmt.Sprintf("%s u on u.id = r.user_id", usersTableName))
}

func scanReview(row pgx.Row) (model.Review, error) {
	var rv model.Review
	if err := row.Scan(&rv.ID, &rv.BookID, &rv.UserID, &rv.Username, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
		return model.Review{}, err
	}
	return rv.WithDisplay(), nil
}

// UpsertReview keeps one review per (book, user); a second submission overwrites rating and comment.
func (r *repository) UpsertReview(ctx context.Context, rv model.Review) (model.Review, error) {
	q := `
insert into reviews (book_id, user_id, rating, comment, created_at, updated_at)
values (@book_id, @user_id, @rating, @comment, @now, @now)
on conflict (book_id, user_id) do update
    set rating = excluded.rating, comment = excluded.comment, updated_at = excluded.updated_at
returning id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"book_id": rv.BookID,
		"user_id": rv.UserID,
		"rating":  rv.Rating,
		"comment": rv.Comment,
		"now":     rv.UpdatedAt,
	}).Scan(&rv.ID, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return model.Review{}, err
	}
	return rv.WithDisplay(), nil
}

func (r *repository) GetUserReview(ctx context.Context, bookID, userID int64) (model.Review, error) {
	query, args, err := reviewsSelect().
		Where(sq.Eq{"r.book_id": bookID, "r.user_id": userID}).
		ToSql()
	if err != nil {
		return model.Review{}, err
	}
	rv, err := scanReview(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Review{}, errs.ErrNotFound
		}
		return model.Review{}, err
	}
	return rv, nil
}

func (r *repository) ListReviews(ctx context.Context, bookID int64) ([]model.Review, error) {
	query, args, err := reviewsSelect().
		Where(sq.Eq{"r.book_id": bookID}).
		OrderBy("r.created_at desc", "r.id desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Review, error) {
		return scanReview(row)
	})
}

func (r *repository) CountReviews(ctx context.Context, userID int64) (int, error) {
	return r.count(ctx, qb.Select("count(*)").From(reviewsTableName).Where(sq.Eq{"user_id": userID}))
}
