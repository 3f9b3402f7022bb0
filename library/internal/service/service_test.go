package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/library/internal/notify"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memFiles struct {
	mu      sync.Mutex
	n       int
	saved   []string
	removed []string
}

func (f *memFiles) Save(dir string, up *filestore.Upload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if up.Size > filestore.MaxUploadSize {
		return "", filestore.ErrTooLarge
	}
	f.n++
	rel := fmt.Sprintf("%s/file-%d.png", dir, f.n)
	f.saved = append(f.saved, rel)
	return rel, nil
}

func (f *memFiles) Remove(rel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, rel)
	return nil
}

type memNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *memNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *memNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

type memRevoker struct {
	revoked []string
}

func (r *memRevoker) Revoke(_ context.Context, claims *auth.Claims) error {
	r.revoked = append(r.revoked, claims.ID)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	files    *memFiles
	notifier *memNotifier
	revoker  *memRevoker
	tokens   *auth.TokenManager
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		files:    &memFiles{},
		notifier: &memNotifier{},
		revoker:  &memRevoker{},
		tokens:   auth.NewTokenManager(auth.Config{Secret: "test-secret", TokenTTL: time.Hour}),
		clock:    &clock{t: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.repo, f.files, f.notifier, f.tokens, f.revoker, zap.NewNop(),
		WithClock(f.clock.Now), WithLoginURL("http://localhost:8080/api/v1/login"))
	return f
}

func (f *fixture) user(t *testing.T, username string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	u := model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		FirstName:    "First",
		LastName:     "Last",
		IsActive:     true,
		DateJoined:   f.clock.Now(),
	}
	u.ID, err = f.repo.CreateUser(context.Background(), u)
	require.NoError(t, err)
	return u
}

func (f *fixture) book(t *testing.T, title string, copies int) model.Book {
	t.Helper()
	b := model.Book{
		Title:           title,
		Author:          "Author of " + title,
		ISBN:            fmt.Sprintf("isbn-%s", title),
		Description:     "desc",
		Category:        "General",
		Genre:           model.GenreFiction,
		PublishedDate:   time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		AvailableCopies: copies,
	}
	id, err := f.repo.CreateBook(context.Background(), b)
	require.NoError(t, err)
	b.ID = id
	return b
}

func (f *fixture) copies(t *testing.T, bookID int64) int {
	t.Helper()
	b, err := f.repo.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	return b.AvailableCopies
}

func intPtr(v int) *int { return &v }
