package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

var bookColumns = []string{
	"b.id", "b.title", "b.author", "b.isbn", "b.description", "b.category", "b.genre",
	"b.published_date", "b.available_copies", "b.cover_pic",
	fmt.Sprintf("(select count(*) from %s r where r.book_id = b.id)", reviewsTableName),
	fmt.Sprintf("(select coalesce(sum(r.rating), 0) from %s r where r.book_id = b.id)", reviewsTableName),
	fmt.Sprintf("(select count(*) from %s br where br.book_id = b.id)", borrowingsTableName),
}

func scanBook(row pgx.Row) (model.Book, error) {
	var (
		b                                    model.Book
		ratingCount, ratingSum, totalBorrowed int
	)
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Category, &b.Genre,
		&b.PublishedDate, &b.AvailableCopies, &b.CoverPic,
		&ratingCount, &ratingSum, &totalBorrowed)
	if err != nil {
		return model.Book{}, err
	}
	return b.WithStats(ratingCount, ratingSum, totalBorrowed), nil
}

func (r *repository) ListBooks(ctx context.Context, search string) ([]model.Book, error) {
	q := qb.Select(bookColumns...).
		From(booksTableName + " b").
		OrderBy("b.title", "b.id")
	if search != "" {
		like := containsPattern(search)
		q = q.Where(sq.Or{
			sq.ILike{"b.title": like},
			sq.ILike{"b.author": like},
			sq.ILike{"b.genre": like},
		})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("ListBooks", zap.String("q", query), zap.Any("args", args))
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Book, error) {
		return scanBook(row)
	})
}

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName + " b").
		Where(sq.Eq{"b.id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	book, err := scanBook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		r.log.Error("GetBook", zap.String("q", query), zap.Any("args", args))
		return model.Book{}, err
	}
	return book, nil
}

// GetBookForUpdate locks the book row; stats are left empty.
func (r *repository) GetBookForUpdate(ctx context.Context, id int64) (model.Book, error) {
	query, args, err := qb.Select("id", "title", "author", "isbn", "genre", "available_copies").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var b model.Book
	if err := r.db.QueryRow(ctx, query, args...).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Genre, &b.AvailableCopies); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return b.WithStats(0, 0, 0), nil
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (int64, error) {
	query, args, err := qb.Insert(booksTableName).
		Columns("title", "author", "isbn", "description", "category", "genre",
			"published_date", "available_copies", "cover_pic").
		Values(book.Title, book.Author, book.ISBN, book.Description, book.Category, book.Genre,
			book.PublishedDate, book.AvailableCopies, book.CoverPic).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, errs.ErrDuplicateISBN
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UpdateBook(ctx context.Context, book model.Book) error {
	query, args, err := qb.Update(booksTableName).
		SetMap(map[string]any{
			"title":            book.Title,
			"author":           book.Author,
			"isbn":             book.ISBN,
			"description":      book.Description,
			"category":         book.Category,
			"genre":            book.Genre,
			"published_date":   book.PublishedDate,
			"available_copies": book.AvailableCopies,
			"cover_pic":        book.CoverPic,
		}).
		Where(sq.Eq{"id": book.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return errs.ErrDuplicateISBN
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteBook(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(booksTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AvailableCount moves available_copies by one and never below zero.
func (r *repository) AvailableCount(ctx context.Context, bookID int64, isReturn bool) error {
	q := `
update books
    set available_copies = available_copies + @inc
where id = @book_id and available_copies + @inc >= 0`
	inc := 1
	if !isReturn {
		inc = -1
	}
	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"book_id": bookID, "inc": inc})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrUnavailable
	}
	return nil
}
