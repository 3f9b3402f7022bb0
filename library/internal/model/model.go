package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanPeriod      = 14 * 24 * time.Hour
	MaxActiveLoans  = 5
	MaxCommentRunes = 500
)

// DailyLateFee is charged per whole day past the due date.
var DailyLateFee = decimal.RequireFromString("0.50")

type Genre string

const (
	GenreFiction    Genre = "FICTION"
	GenreNonFiction Genre = "NON_FICTION"
	GenreSciFi      Genre = "SCI_FI"
	GenreMystery    Genre = "MYSTERY"
	GenreRomance    Genre = "ROMANCE"
	GenreBiography  Genre = "BIOGRAPHY"
	GenreHistory    Genre = "HISTORY"
)

var genreDisplay = map[Genre]string{
	GenreFiction:    "Fiction",
	GenreNonFiction: "Non-Fiction",
	GenreSciFi:      "Science Fiction",
	GenreMystery:    "Mystery",
	GenreRomance:    "Romance",
	GenreBiography:  "Biography",
	GenreHistory:    "History",
}

func (g Genre) Display() string {
	if d, ok := genreDisplay[g]; ok {
		return d
	}
	return string(g)
}

type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Genre           Genre     `json:"genre"`
	GenreDisplay    string    `json:"genre_display"`
	PublishedDate   time.Time `json:"published_date"`
	AvailableCopies int       `json:"available_copies"`
	CoverPic        string    `json:"cover_pic,omitempty"`
	CanBorrow       bool      `json:"can_borrow"`
	AverageRating   float64   `json:"average_rating"`
	RatingCount     int       `json:"rating_count"`
	TotalBorrowed   int       `json:"total_borrowed"`
}

func (b Book) CanBeBorrowed() bool {
	return b.AvailableCopies > 0
}

// WithStats fills the derived read-only fields.
func (b Book) WithStats(ratingCount, ratingSum, totalBorrowed int) Book {
	b.RatingCount = ratingCount
	b.TotalBorrowed = totalBorrowed
	b.AverageRating = AverageRating(ratingSum, ratingCount)
	b.GenreDisplay = b.Genre.Display()
	b.CanBorrow = b.CanBeBorrowed()
	return b
}

// AverageRating is the mean rounded to one decimal, 0 without ratings.
func AverageRating(sum, count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*10) / 10
}

type BookForm struct {
	Title           string `json:"title" form:"title" validate:"required,max=200"`
	Author          string `json:"author" form:"author" validate:"required,max=200"`
	ISBN            string `json:"isbn" form:"isbn" validate:"required,max=13"`
	Description     string `json:"description" form:"description" validate:"required"`
	Category        string `json:"category" form:"category" validate:"required,max=50"`
	Genre           Genre  `json:"genre" form:"genre" validate:"required,oneof=FICTION NON_FICTION SCI_FI MYSTERY ROMANCE BIOGRAPHY HISTORY"`
	PublishedDate   string `json:"published_date" form:"published_date" validate:"required,datetime=2006-01-02"`
	AvailableCopies *int   `json:"available_copies" form:"available_copies" validate:"omitempty,min=0"`
}

func (f BookForm) Normalize() BookForm {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	f.ISBN = strings.TrimSpace(f.ISBN)
	f.Category = strings.TrimSpace(f.Category)
	if f.Genre == "" {
		f.Genre = GenreFiction
	}
	return f
}

// Book converts a validated form; copies default to 1.
func (f BookForm) Book(id int64) Book {
	published, _ := time.Parse(time.DateOnly, f.PublishedDate)
	copies := 1
	if f.AvailableCopies != nil {
		copies = *f.AvailableCopies
	}
	return Book{
		ID:              id,
		Title:           f.Title,
		Author:          f.Author,
		ISBN:            f.ISBN,
		Description:     f.Description,
		Category:        f.Category,
		Genre:           f.Genre,
		PublishedDate:   published,
		AvailableCopies: copies,
	}
}

type Status string

const (
	StatusBorrowed Status = "BORROWED"
	StatusReturned Status = "RETURNED"
	StatusOverdue  Status = "OVERDUE"
	StatusReserved Status = "RESERVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBorrowed, StatusReturned, StatusOverdue, StatusReserved:
		return true
	}
	return false
}

// Active records hold a copy of the book.
func (s Status) Active() bool {
	return s == StatusBorrowed || s == StatusOverdue
}

type Borrowing struct {
	ID         int64           `json:"id"`
	BookID     int64           `json:"book_id"`
	UserID     int64           `json:"user_id"`
	BookTitle  string          `json:"book_title,omitempty"`
	BookAuthor string          `json:"book_author,omitempty"`
	BookISBN   string          `json:"book_isbn,omitempty"`
	Username   string          `json:"username,omitempty"`
	UserEmail  string          `json:"user_email,omitempty"`
	BorrowedAt time.Time       `json:"borrowed_at"`
	DueAt      time.Time       `json:"due_at"`
	ReturnedAt *time.Time      `json:"returned_at,omitempty"`
	Status     Status          `json:"status"`
	LateFee    decimal.Decimal `json:"late_fee"`
}

func NewBorrowing(bookID, userID int64, now time.Time) Borrowing {
	return Borrowing{
		BookID:     bookID,
		UserID:     userID,
		BorrowedAt: now,
		DueAt:      now.Add(LoanPeriod),
		Status:     StatusBorrowed,
		LateFee:    decimal.Zero,
	}
}

// EffectiveStatus turns a BORROWED record past its due date into OVERDUE.
func (b Borrowing) EffectiveStatus(now time.Time) Status {
	if b.Status == StatusBorrowed && now.After(b.DueAt) {
		return StatusOverdue
	}
	return b.Status
}

func (b Borrowing) IsOverdue(now time.Time) bool {
	return b.Status.Active() && now.After(b.DueAt)
}

// OverdueDays counts whole days past due for an active record.
func (b Borrowing) OverdueDays(now time.Time) int {
	if !b.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(b.DueAt) / (24 * time.Hour))
}

func (b Borrowing) DaysLeft(now time.Time) int {
	if b.Status != StatusBorrowed || b.IsOverdue(now) {
		return 0
	}
	return int(b.DueAt.Sub(now) / (24 * time.Hour))
}

// AccruedLateFee is what returning at now would cost.
func (b Borrowing) AccruedLateFee(now time.Time) decimal.Decimal {
	if !b.Status.Active() {
		return decimal.Zero
	}
	return LateFee(b.DueAt, now)
}

func LateFee(dueAt, returnedAt time.Time) decimal.Decimal {
	if !returnedAt.After(dueAt) {
		return decimal.Zero
	}
	days := int64(returnedAt.Sub(dueAt) / (24 * time.Hour))
	return DailyLateFee.Mul(decimal.NewFromInt(days))
}

// Derive refreshes the read-time fields of the record.
func (b Borrowing) Derive(now time.Time) BorrowingView {
	b.Status = b.EffectiveStatus(now)
	return BorrowingView{
		Borrowing:      b,
		OverdueDays:    b.OverdueDays(now),
		DaysLeft:       b.DaysLeft(now),
		AccruedLateFee: b.AccruedLateFee(now),
	}
}

type BorrowingView struct {
	Borrowing
	OverdueDays    int             `json:"overdue_days"`
	DaysLeft       int             `json:"days_left"`
	AccruedLateFee decimal.Decimal `json:"accrued_late_fee"`
}

type MyBorrowings struct {
	Active        []BorrowingView `json:"active_borrowings"`
	Overdue       []BorrowingView `json:"overdue_borrowings"`
	Returned      []BorrowingView `json:"returned_borrowings"`
	TotalLateFees decimal.Decimal `json:"total_late_fees"`
}

type BorrowingFilter struct {
	Status Status
	Search string
}

type ManagedBorrowings struct {
	Borrowings      []BorrowingView `json:"borrowings"`
	TotalBorrowings int             `json:"total_borrowings"`
	OverdueCount    int             `json:"overdue_count"`
	ActiveCount     int             `json:"active_count"`
	TotalLateFees   decimal.Decimal `json:"total_late_fees"`
	StatusFilter    Status          `json:"status_filter"`
	SearchQuery     string          `json:"search_query"`
}

type ReturnResult struct {
	Borrowing Borrowing       `json:"borrowing"`
	Late      bool            `json:"late"`
	LateFee   decimal.Decimal `json:"late_fee"`
}

type Review struct {
	ID            int64     `json:"id"`
	BookID        int64     `json:"book_id"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username,omitempty"`
	Rating        int       `json:"rating"`
	RatingDisplay string    `json:"rating_display"`
	Stars         string    `json:"stars"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WithDisplay fills the rating label and star string.
func (r Review) WithDisplay() Review {
	r.RatingDisplay = RatingLabel(r.Rating)
	r.Stars = Stars(r.Rating)
	return r
}

var ratingLabels = map[int]string{
	1: "1 Star - Poor",
	2: "2 Stars - Fair",
	3: "3 Stars - Good",
	4: "4 Stars - Very Good",
	5: "5 Stars - Excellent",
}

func RatingLabel(rating int) string {
	if l, ok := ratingLabels[rating]; ok {
		return l
	}
	return fmt.Sprintf("%d Stars", rating)
}

func Stars(rating int) string {
	rating = min(max(rating, 0), 5)
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

type ReviewForm struct {
	Rating  int    `json:"rating" form:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" form:"comment" validate:"max=500"`
}

type BookReviews struct {
	Book            Book     `json:"book"`
	Reviews         []Review `json:"reviews"`
	AverageRating   float64  `json:"average_rating"`
	RatingCount     int      `json:"rating_count"`
	UserHasReviewed bool     `json:"user_has_reviewed"`
	UserReview      *Review  `json:"user_review,omitempty"`
}

type ReviewDraft struct {
	Book           Book    `json:"book"`
	ExistingReview *Review `json:"existing_review,omitempty"`
}

type BookDeletion struct {
	Book    Book   `json:"book"`
	Message string `json:"message"`
}

func NewBookDeletion(b Book) BookDeletion {
	return BookDeletion{
		Book:    b,
		Message: fmt.Sprintf("Are you sure you want to delete %q? Send confirm=true to proceed.", b.Title),
	}
}
