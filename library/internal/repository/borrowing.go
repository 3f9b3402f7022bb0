package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

var borrowingColumns = []string{
	"br.id", "br.book_id", "br.user_id", "b.title", "b.author", "b.isbn", "u.username", "u.email",
	"br.borrowed_at", "br.due_at", "br.returned_at", "br.status", "br.late_fee::text",
}

func borrowingsSelect() sq.SelectBuilder {
	return qb.Select(borrowingColumns...).
		From(borrowingsTableName + " br").
		Join(fmt.Sprintf("%s b on b.id = br.book_id", booksTableName)).
		Join(fmt.Sprintf("%s u on u.id = br.user_id", usersTableName))
}

func scanBorrowing(row pgx.Row) (model.Borrowing, error) {
	var (
		b   model.Borrowing
		fee string
	)
	err := row.Scan(&b.ID, &b.BookID, &b.UserID, &b.BookTitle, &b.BookAuthor, &b.BookISBN,
		&b.Username, &b.UserEmail, &b.BorrowedAt, &b.DueAt, &b.ReturnedAt, &b.Status, &fee)
	if err != nil {
		return model.Borrowing{}, err
	}
	if b.LateFee, err = decimal.NewFromString(fee); err != nil {
		return model.Borrowing{}, errors.Wrap(err, "late_fee")
	}
	return b, nil
}

func (r *repository) collectBorrowings(ctx context.Context, q sq.SelectBuilder) ([]model.Borrowing, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("collectBorrowings", zap.String("q", query), zap.Any("args", args))
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Borrowing, error) {
		return scanBorrowing(row)
	})
}

func (r *repository) CreateBorrowing(ctx context.Context, b model.Borrowing) (int64, error) {
	query, args, err := qb.Insert(borrowingsTableName).
		Columns("book_id", "user_id", "borrowed_at", "due_at", "status", "late_fee").
		Values(b.BookID, b.UserID, b.BorrowedAt, b.DueAt, b.Status, sq.Expr("?::numeric", b.LateFee.StringFixed(2))).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, errs.ErrAlreadyBorrowed
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) getBorrowing(ctx context.Context, q sq.SelectBuilder) (model.Borrowing, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return model.Borrowing{}, err
	}
	b, err := scanBorrowing(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Borrowing{}, errs.ErrNotFound
		}
		return model.Borrowing{}, err
	}
	return b, nil
}

func (r *repository) GetBorrowing(ctx context.Context, id int64) (model.Borrowing, error) {
	return r.getBorrowing(ctx, borrowingsSelect().Where(sq.Eq{"br.id": id}))
}

func (r *repository) GetBorrowingForUpdate(ctx context.Context, id int64) (model.Borrowing, error) {
	return r.getBorrowing(ctx, borrowingsSelect().Where(sq.Eq{"br.id": id}).Suffix("for update of br"))
}

// CountBorrowings counts the user's records, all of them when no status is given.
func (r *repository) CountBorrowings(ctx context.Context, userID int64, statuses ...model.Status) (int, error) {
	q := qb.Select("count(*)").From(borrowingsTableName).Where(sq.Eq{"user_id": userID})
	if len(statuses) > 0 {
		q = q.Where(sq.Eq{"status": statusValues(statuses)})
	}
	return r.count(ctx, q)
}

func (r *repository) HasBorrowing(ctx context.Context, userID, bookID int64, statuses ...model.Status) (bool, error) {
	q := qb.Select("1").From(borrowingsTableName).
		Where(sq.Eq{"user_id": userID, "book_id": bookID})
	if len(statuses) > 0 {
		q = q.Where(sq.Eq{"status": statusValues(statuses)})
	}
	return r.exists(ctx, q)
}

func (r *repository) ListUserBorrowings(ctx context.Context, userID int64) ([]model.Borrowing, error) {
	return r.collectBorrowings(ctx, borrowingsSelect().
		Where(sq.Eq{"br.user_id": userID}).
		OrderBy("br.borrowed_at desc", "br.id desc"))
}

func (r *repository) ListBorrowings(ctx context.Context, filter model.BorrowingFilter) ([]model.Borrowing, error) {
	q := borrowingsSelect().OrderBy("br.borrowed_at desc", "br.id desc")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"br.status": filter.Status})
	}
	if filter.Search != "" {
		like := containsPattern(filter.Search)
		q = q.Where(sq.Or{
			sq.ILike{"b.title": like},
			sq.ILike{"u.username": like},
			sq.ILike{"u.email": like},
		})
	}
	return r.collectBorrowings(ctx, q)
}

// MarkOverdue persists OVERDUE for borrowed records past due; userID 0 covers everyone.
func (r *repository) MarkOverdue(ctx context.Context, userID int64, now time.Time) (int64, error) {
	q := qb.Update(borrowingsTableName).
		Set("status", model.StatusOverdue).
		Where(sq.Eq{"status": model.StatusBorrowed}).
		Where(sq.Lt{"due_at": now})
	if userID != 0 {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReturnBorrowing closes an active record; a record already closed yields ErrAlreadyReturned.
func (r *repository) ReturnBorrowing(ctx context.Context, id int64, returnedAt time.Time, lateFee string) error {
	q := `
update borrowings
    set status = @returned, returned_at = @returned_at, late_fee = @late_fee::numeric
where id = @id and status in (@borrowed, @overdue)`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":          id,
		"returned_at": returnedAt,
		"late_fee":    lateFee,
		"returned":    string(model.StatusReturned),
		"borrowed":    string(model.StatusBorrowed),
		"overdue":     string(model.StatusOverdue),
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyReturned
	}
	return nil
}

// SetBorrowingStatus overwrites the status; a nil returnedAt keeps the stored one.
func (r *repository) SetBorrowingStatus(ctx context.Context, id int64, status model.Status, returnedAt *time.Time) error {
	q := `
update borrowings
    set status = @status, returned_at = coalesce(@returned_at::timestamptz, returned_at)
where id = @id`
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{
		"id":          id,
		"status":      string(status),
		"returned_at": returnedAt,
	})
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return errs.ErrAlreadyBorrowed
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
