package repository

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/model"
)

type BookRepository interface {
	ListBooks(ctx context.Context, search string) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	GetBookForUpdate(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, book model.Book) (int64, error)
	UpdateBook(ctx context.Context, book model.Book) error
	DeleteBook(ctx context.Context, id int64) error
	AvailableCount(ctx context.Context, bookID int64, isReturn bool) error
}

type BorrowingRepository interface {
	CreateBorrowing(ctx context.Context, b model.Borrowing) (int64, error)
	GetBorrowing(ctx context.Context, id int64) (model.Borrowing, error)
	GetBorrowingForUpdate(ctx context.Context, id int64) (model.Borrowing, error)
	CountBorrowings(ctx context.Context, userID int64, statuses ...model.Status) (int, error)
	HasBorrowing(ctx context.Context, userID, bookID int64, statuses ...model.Status) (bool, error)
	ListUserBorrowings(ctx context.Context, userID int64) ([]model.Borrowing, error)
	ListBorrowings(ctx context.Context, filter model.BorrowingFilter) ([]model.Borrowing, error)
	MarkOverdue(ctx context.Context, userID int64, now time.Time) (int64, error)
	ReturnBorrowing(ctx context.Context, id int64, returnedAt time.Time, lateFee string) error
	SetBorrowingStatus(ctx context.Context, id int64, status model.Status, returnedAt *time.Time) error
}

type ReviewRepository interface {
	UpsertReview(ctx context.Context, r model.Review) (model.Review, error)
	GetUserReview(ctx context.Context, bookID, userID int64) (model.Review, error)
	ListReviews(ctx context.Context, bookID int64) ([]model.Review, error)
	CountReviews(ctx context.Context, userID int64) (int, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	LockUser(ctx context.Context, id int64) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, id int64) error

	CreateProfile(ctx context.Context, p model.Profile) error
	GetOrCreateProfile(ctx context.Context, userID int64) (model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) error
}

type Repository interface {
	BookRepository
	BorrowingRepository
	ReviewRepository
	UserRepository

	// WithTx runs fn against a repository bound to one transaction.
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
	db   querier
	log  *zap.Logger
}

func NewRepository(pool *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		pool: pool,
		db:   pool,
		log:  log.Named("repo"),
	}, nil
}

var _ Repository = (*repository)(nil)

const (
	booksTableName      = `books`
	borrowingsTableName = `borrowings`
	reviewsTableName    = `reviews`
	usersTableName      = `users`
	profilesTableName   = `user_profiles`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *repository) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	if r.pool == nil {
		// already inside a transaction
		return fn(r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&repository{db: tx, log: r.log})
	})
}

func (r *repository) exists(ctx context.Context, q sq.SelectBuilder) (bool, error) {
	query, args, err := q.Prefix("select exists (").Suffix(")").ToSql()
	if err != nil {
		return false, err
	}
	var ok bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *repository) count(ctx context.Context, q sq.SelectBuilder) (int, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func statusValues(statuses []model.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
