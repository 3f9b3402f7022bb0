package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/notify"
	libraryRepo "github.com/Astemirdum/silent-library/library/internal/repository"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
	"github.com/Astemirdum/silent-library/pkg/validate"
)

const notifyTimeout = 10 * time.Second

type FileStore interface {
	Save(dir string, up *filestore.Upload) (string, error)
	Remove(rel string) error
}

type TokenIssuer interface {
	Issue(p auth.Profile) (string, *auth.Claims, error)
}

type Revoker interface {
	Revoke(ctx context.Context, claims *auth.Claims) error
}

type Service struct {
	log       *zap.Logger
	repo      libraryRepo.Repository
	files     FileStore
	notifier  notify.Notifier
	tokens    TokenIssuer
	revoker   Revoker
	validator *validate.CustomValidator
	loginURL  string
	now       func() time.Time

	pending sync.WaitGroup
}

type Option func(*Service)

func WithLoginURL(url string) Option {
	return func(s *Service) { s.loginURL = url }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	repo libraryRepo.Repository,
	files FileStore,
	notifier notify.Notifier,
	tokens TokenIssuer,
	revoker Revoker,
	log *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		log:       log.Named("service"),
		repo:      repo,
		files:     files,
		notifier:  notifier,
		tokens:    tokens,
		revoker:   revoker,
		validator: validate.NewCustomValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until queued notifications are handed off.
func (s *Service) Wait() {
	s.pending.Wait()
}

// notifyAsync never fails the caller: delivery problems are only logged.
func (s *Service) notifyAsync(ev notify.Event) {
	if s.notifier == nil || ev.To == "" {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.log.Warn("notify", zap.String("kind", string(ev.Kind)), zap.String("to", ev.To), zap.Error(err))
		}
	}()
}

func (s *Service) removeFile(rel string) {
	if rel == "" {
		return
	}
	if err := s.files.Remove(rel); err != nil {
		s.log.Warn("remove file", zap.String("path", rel), zap.Error(err))
	}
}

// validate runs the struct tags and collects every failed field.
func (s *Service) validate(form any) *errs.ValidationError {
	ve := &errs.ValidationError{}
	if err := s.validator.Validate(form); err != nil {
		for _, fe := range validate.Fields(err) {
			ve.Add(fe.Field, fe.Message)
		}
	}
	return ve
}
