package handler

import (
	"context"

	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/library/internal/service"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
	md "github.com/Astemirdum/silent-library/pkg/middleware"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	ListBooks(ctx context.Context, search string) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, form model.BookForm, cover *filestore.Upload) (model.Book, error)
	UpdateBook(ctx context.Context, id int64, form model.BookForm, cover *filestore.Upload) (model.Book, error)
	BookDeletion(ctx context.Context, id int64) (model.BookDeletion, error)
	DeleteBook(ctx context.Context, id int64, confirm bool) (model.BookDeletion, error)

	BorrowBook(ctx context.Context, userID, bookID int64) (model.Borrowing, error)
	ReturnBook(ctx context.Context, userID, borrowingID int64) (model.ReturnResult, error)
	MyBorrowings(ctx context.Context, userID int64) (model.MyBorrowings, error)
	ManageBorrowings(ctx context.Context, filter model.BorrowingFilter) (model.ManagedBorrowings, error)
	UpdateBorrowingStatus(ctx context.Context, borrowingID int64, status model.Status) (model.Borrowing, error)

	ReviewDraft(ctx context.Context, userID, bookID int64) (model.ReviewDraft, error)
	SubmitReview(ctx context.Context, userID, bookID int64, form model.ReviewForm) (model.Review, error)
	BookReviews(ctx context.Context, bookID, viewerID int64) (model.BookReviews, error)

	Register(ctx context.Context, form model.RegisterForm, picture *filestore.Upload) (model.User, error)
	Login(ctx context.Context, form model.LoginForm) (model.LoginResult, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Profile(ctx context.Context, userID int64) (model.ProfilePage, error)
	UpdateProfile(ctx context.Context, userID int64, form model.ProfileForm, picture *filestore.Upload) (model.ProfilePage, error)

	UserDashboard(ctx context.Context) (model.UserDashboard, error)
	CreateUser(ctx context.Context, form model.UserCreateForm) (model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	UpdateUser(ctx context.Context, id int64, form model.UserEditForm) (model.User, error)
	DeleteUser(ctx context.Context, actorID, id int64) error
}

var (
	_ LibraryService   = (*service.Service)(nil)
	_ md.ProfileLoader = (*service.Service)(nil)
)
