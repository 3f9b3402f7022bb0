package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
	libraryRepo "github.com/Astemirdum/silent-library/library/internal/repository"
)

type memState struct {
	seq        int64
	books      map[int64]model.Book
	borrowings map[int64]model.Borrowing
	reviews    map[int64]model.Review
	users      map[int64]model.User
	profiles   map[int64]model.Profile
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:        s.seq,
		books:      make(map[int64]model.Book, len(s.books)),
		borrowings: make(map[int64]model.Borrowing, len(s.borrowings)),
		reviews:    make(map[int64]model.Review, len(s.reviews)),
		users:      make(map[int64]model.User, len(s.users)),
		profiles:   make(map[int64]model.Profile, len(s.profiles)),
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.borrowings {
		c.borrowings[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	return c
}

type memShared struct {
	txMu sync.Mutex // one transaction at a time, like row locks held to commit
	mu   sync.Mutex
	st   *memState
}

// memRepo is an in-memory Repository; failed transactions roll back to a snapshot.
type memRepo struct {
	sh   *memShared
	inTx bool
}

var _ libraryRepo.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{sh: &memShared{st: &memState{
		books:      map[int64]model.Book{},
		borrowings: map[int64]model.Borrowing{},
		reviews:    map[int64]model.Review{},
		users:      map[int64]model.User{},
		profiles:   map[int64]model.Profile{},
	}}}
}

func (r *memRepo) WithTx(_ context.Context, fn func(repo libraryRepo.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.sh.txMu.Lock()
	defer r.sh.txMu.Unlock()

	r.sh.mu.Lock()
	snapshot := r.sh.st.clone()
	r.sh.mu.Unlock()

	if err := fn(&memRepo{sh: r.sh, inTx: true}); err != nil {
		r.sh.mu.Lock()
		r.sh.st = snapshot
		r.sh.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) locked(fn func(st *memState)) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	fn(r.sh.st)
}

func (st *memState) next() int64 {
	st.seq++
	return st.seq
}

func (st *memState) bookWithStats(b model.Book) model.Book {
	count, sum, total := 0, 0, 0
	for _, rv := range st.reviews {
		if rv.BookID == b.ID {
			count++
			sum += rv.Rating
		}
	}
	for _, br := range st.borrowings {
		if br.BookID == b.ID {
			total++
		}
	}
	return b.WithStats(count, sum, total)
}

func (st *memState) joinBorrowing(b model.Borrowing) model.Borrowing {
	book := st.books[b.BookID]
	user := st.users[b.UserID]
	b.BookTitle, b.BookAuthor, b.BookISBN = book.Title, book.Author, book.ISBN
	b.Username, b.UserEmail = user.Username, user.Email
	return b
}

func has(statuses []model.Status, s model.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func contains(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (r *memRepo) ListBooks(_ context.Context, search string) ([]model.Book, error) {
	var out []model.Book
	r.locked(func(st *memState) {
		for _, b := range st.books {
			if search == "" || contains(b.Title, search) || contains(b.Author, search) || contains(string(b.Genre), search) {
				out = append(out, st.bookWithStats(b))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (r *memRepo) GetBook(_ context.Context, id int64) (book model.Book, err error) {
	r.locked(func(st *memState) {
		b, ok := st.books[id]
		if !ok {
			err = errs.ErrNotFound
			return
		}
		book = st.bookWithStats(b)
	})
	return book, err
}

func (r *memRepo) GetBookForUpdate(ctx context.Context, id int64) (model.Book, error) {
	return r.GetBook(ctx, id)
}

func (r *memRepo) CreateBook(_ context.Context, book model.Book) (id int64, err error) {
	r.locked(func(st *memState) {
		for _, b := range st.books {
			if b.ISBN == book.ISBN {
				err = errs.ErrDuplicateISBN
				return
			}
		}
		book.ID = st.next()
		st.books[book.ID] = book
		id = book.ID
	})
	return id, err
}

func (r *memRepo) UpdateBook(_ context.Context, book model.Book) (err error) {
	r.locked(func(st *memState) {
		if _, ok := st.books[book.ID]; !ok {
			err = errs.ErrNotFound
			return
		}
		for _, b := range st.books {
			if b.ID != book.ID && b.ISBN == book.ISBN {
				err = errs.ErrDuplicateISBN
				return
			}
		}
		st.books[book.ID] = book
	})
	return err
}

func (r *memRepo) DeleteBook(_ context.Context, id int64) (err error) {
	r.locked(func(st *memState) {
		if _, ok := st.books[id]; !ok {
			err = errs.ErrNotFound
			return
		}
		delete(st.books, id)
		for k, b := range st.borrowings {
			if b.BookID == id {
				delete(st.borrowings, k)
			}
		}
		for k, rv := range st.reviews {
			if rv.BookID == id {
				delete(st.reviews, k)
			}
		}
	})
	return err
}

func (r *memRepo) AvailableCount(_ context.Context, bookID int64, isReturn bool) (err error) {
	r.locked(func(st *memState) {
		b, ok := st.books[bookID]
		inc := 1
		if !isReturn {
			inc = -1
		}
		if !ok || b.AvailableCopies+inc < 0 {
			err = errs.ErrUnavailable
			return
		}
		b.AvailableCopies += inc
		st.books[bookID] = b
	})
	return err
}

func (r *memRepo) CreateBorrowing(_ context.Context, br model.Borrowing) (id int64, err error) {
	r.locked(func(st *memState) {
		for _, b := range st.borrowings {
			if b.BookID == br.BookID && b.UserID == br.UserID && b.Status.Active() {
				err = errs.ErrAlreadyBorrowed
				return
			}
		}
		br.ID = st.next()
		st.borrowings[br.ID] = br
		id = br.ID
	})
	return id, err
}

func (r *memRepo) GetBorrowing(_ context.Context, id int64) (br model.Borrowing, err error) {
	r.locked(func(st *memState) {
		b, ok := st.borrowings[id]
		if !ok {
			err = errs.ErrNotFound
			return
		}
		br = st.joinBorrowing(b)
	})
	return br, err
}

func (r *memRepo) GetBorrowingForUpdate(ctx context.Context, id int64) (model.Borrowing, error) {
	return r.GetBorrowing(ctx, id)
}

func (r *memRepo) CountBorrowings(_ context.Context, userID int64, statuses ...model.Status) (n int, _ error) {
	r.locked(func(st *memState) {
		for _, b := range st.borrowings {
			if b.UserID == userID && has(statuses, b.Status) {
				n++
			}
		}
	})
	return n, nil
}

func (r *memRepo) HasBorrowing(_ context.Context, userID, bookID int64, statuses ...model.Status) (ok bool, _ error) {
	r.locked(func(st *memState) {
		for _, b := range st.borrowings {
			if b.UserID == userID && b.BookID == bookID && has(statuses, b.Status) {
				ok = true
				return
			}
		}
	})
	return ok, nil
}

func sortBorrowings(list []model.Borrowing) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].BorrowedAt.Equal(list[j].BorrowedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].BorrowedAt.After(list[j].BorrowedAt)
	})
}

func (r *memRepo) ListUserBorrowings(_ context.Context, userID int64) (out []model.Borrowing, _ error) {
	r.locked(func(st *memState) {
		for _, b := range st.borrowings {
			if b.UserID == userID {
				out = append(out, st.joinBorrowing(b))
			}
		}
	})
	sortBorrowings(out)
	return out, nil
}

func (r *memRepo) ListBorrowings(_ context.Context, filter model.BorrowingFilter) (out []model.Borrowing, _ error) {
	r.locked(func(st *memState) {
		for _, b := range st.borrowings {
			b = st.joinBorrowing(b)
			if filter.Status != "" && b.Status != filter.Status {
				continue
			}
			if filter.Search != "" && !contains(b.BookTitle, filter.Search) &&
				!contains(b.Username, filter.Search) && !contains(b.UserEmail, filter.Search) {
				continue
			}
			out = append(out, b)
		}
	})
	sortBorrowings(out)
	return out, nil
}

func (r *memRepo) MarkOverdue(_ context.Context, userID int64, now time.Time) (n int64, _ error) {
	r.locked(func(st *memState) {
		for k, b := range st.borrowings {
			if (userID == 0 || b.UserID == userID) && b.Status == model.StatusBorrowed && b.DueAt.Before(now) {
				b.Status = model.StatusOverdue
				st.borrowings[k] = b
				n++
			}
		}
	})
	return n, nil
}

func (r *memRepo) ReturnBorrowing(_ context.Context, id int64, returnedAt time.Time, lateFee string) (err error) {
	fee, err := decimal.NewFromString(lateFee)
	if err != nil {
		return err
	}
	r.locked(func(st *memState) {
		b, ok := st.borrowings[id]
		if !ok || !b.Status.Active() {
			err = errs.ErrAlreadyReturned
			return
		}
		b.Status = model.StatusReturned
		b.ReturnedAt = &returnedAt
		b.LateFee = fee
		st.borrowings[id] = b
	})
	return err
}

func (r *memRepo) SetBorrowingStatus(_ context.Context, id int64, status model.Status, returnedAt *time.Time) (err error) {
	r.locked(func(st *memState) {
		b, ok := st.borrowings[id]
		if !ok {
			err = errs.ErrNotFound
			return
		}
		b.Status = status
		if returnedAt != nil && b.ReturnedAt == nil {
			b.ReturnedAt = returnedAt
		}
		st.borrowings[id] = b
	})
	return err
}

func (r *memRepo) UpsertReview(_ context.Context, rv model.Review) (out model.Review, _ error) {
	r.locked(func(st *memState) {
		for k, existing := range st.reviews {
			if existing.BookID == rv.BookID && existing.UserID == rv.UserID {
				existing.Rating = rv.Rating
				existing.Comment = rv.Comment
				existing.UpdatedAt = rv.UpdatedAt
				st.reviews[k] = existing
				out = existing
				return
			}
		}
		rv.ID = st.next()
		rv.CreatedAt = rv.UpdatedAt
		rv.Username = st.users[rv.UserID].Username
		st.reviews[rv.ID] = rv
		out = rv
	})
	return out, nil
}

func (r *memRepo) GetUserReview(_ context.Context, bookID, userID int64) (out model.Review, err error) {
	err = errs.ErrNotFound
	r.locked(func(st *memState) {
		for _, rv := range st.reviews {
			if rv.BookID == bookID && rv.UserID == userID {
				out, err = rv, nil
				return
			}
		}
	})
	return out, err
}

func (r *memRepo) ListReviews(_ context.Context, bookID int64) (out []model.Review, _ error) {
	r.locked(func(st *memState) {
		for _, rv := range st.reviews {
			if rv.BookID == bookID {
				out = append(out, rv)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) CountReviews(_ context.Context, userID int64) (n int, _ error) {
	r.locked(func(st *memState) {
		for _, rv := range st.reviews {
			if rv.UserID == userID {
				n++
			}
		}
	})
	return n, nil
}

func (st *memState) duplicateUser(u model.User) error {
	for _, other := range st.users {
		if other.ID == u.ID {
			continue
		}
		if other.Username == u.Username {
			return errs.ErrDuplicateUsername
		}
		if u.Email != "" && strings.EqualFold(other.Email, u.Email) {
			return errs.ErrDuplicateEmail
		}
	}
	return nil
}

func (r *memRepo) CreateUser(_ context.Context, u model.User) (id int64, err error) {
	r.locked(func(st *memState) {
		if err = st.duplicateUser(u); err != nil {
			return
		}
		u.ID = st.next()
		st.users[u.ID] = u
		id = u.ID
	})
	return id, err
}

func (r *memRepo) GetUser(_ context.Context, id int64) (u model.User, err error) {
	r.locked(func(st *memState) {
		var ok bool
		if u, ok = st.users[id]; !ok {
			err = errs.ErrNotFound
		}
	})
	return u, err
}

func (r *memRepo) GetUserByUsername(_ context.Context, username string) (u model.User, err error) {
	err = errs.ErrNotFound
	r.locked(func(st *memState) {
		for _, v := range st.users {
			if v.Username == username {
				u, err = v, nil
				return
			}
		}
	})
	return u, err
}

func (r *memRepo) LockUser(ctx context.Context, id int64) error {
	_, err := r.GetUser(ctx, id)
	return err
}

func (r *memRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetUserByUsername(ctx, username)
	return err == nil, nil
}

func (r *memRepo) EmailExists(_ context.Context, email string) (ok bool, _ error) {
	r.locked(func(st *memState) {
		for _, u := range st.users {
			if u.Email != "" && strings.EqualFold(u.Email, email) {
				ok = true
			}
		}
	})
	return ok, nil
}

func (r *memRepo) ListUsers(_ context.Context) (out []model.User, _ error) {
	r.locked(func(st *memState) {
		for _, u := range st.users {
			out = append(out, u)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateUser(_ context.Context, u model.User) (err error) {
	r.locked(func(st *memState) {
		if _, ok := st.users[u.ID]; !ok {
			err = errs.ErrNotFound
			return
		}
		if err = st.duplicateUser(u); err != nil {
			return
		}
		st.users[u.ID] = u
	})
	return err
}

func (r *memRepo) DeleteUser(_ context.Context, id int64) (err error) {
	r.locked(func(st *memState) {
		if _, ok := st.users[id]; !ok {
			err = errs.ErrNotFound
			return
		}
		delete(st.users, id)
		delete(st.profiles, id)
		for k, b := range st.borrowings {
			if b.UserID == id {
				delete(st.borrowings, k)
			}
		}
		for k, rv := range st.reviews {
			if rv.UserID == id {
				delete(st.reviews, k)
			}
		}
	})
	return err
}

func (r *memRepo) CreateProfile(_ context.Context, p model.Profile) error {
	r.locked(func(st *memState) { st.profiles[p.UserID] = p })
	return nil
}

func (r *memRepo) GetOrCreateProfile(_ context.Context, userID int64) (p model.Profile, err error) {
	r.locked(func(st *memState) {
		if _, ok := st.users[userID]; !ok {
			err = errs.ErrNotFound
			return
		}
		var ok bool
		if p, ok = st.profiles[userID]; !ok {
			p = model.Profile{UserID: userID}
			st.profiles[userID] = p
		}
	})
	return p, err
}

func (r *memRepo) UpdateProfile(_ context.Context, p model.Profile) (err error) {
	r.locked(func(st *memState) {
		if _, ok := st.profiles[p.UserID]; !ok {
			err = errs.ErrNotFound
			return
		}
		st.profiles[p.UserID] = p
	})
	return err
}
