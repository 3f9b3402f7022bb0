package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/library/internal/notify"
	libraryRepo "github.com/Astemirdum/silent-library/library/internal/repository"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

func (s *Service) checkUsername(ctx context.Context, username string, ve *errs.ValidationError) error {
	switch {
	case username == "":
		ve.Add("username", "Username is required.")
	case utf8.RuneCountInString(username) < minUsernameLen:
		ve.Add("username", "Username must be at least 3 characters long.")
	default:
		exists, err := s.repo.UsernameExists(ctx, username)
		if err != nil {
			return errors.Wrap(err, "UsernameExists")
		}
		if exists {
			ve.Add("username", errs.ErrDuplicateUsername.Error())
		}
	}
	return nil
}

func (s *Service) checkPassword(password, confirm string, ve *errs.ValidationError) {
	switch {
	case password == "":
		ve.Add("password", "Password is required.")
	case len(password) < minPasswordLen:
		ve.Add("password", "Password must be at least 6 characters long.")
	case password != confirm:
		ve.Add("password_confirm", "Passwords do not match.")
	}
}

func validEmail(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

// duplicateField turns a unique violation that raced past the pre-checks into a field error.
func duplicateField(err error, ve *errs.ValidationError) bool {
	switch {
	case errors.Is(err, errs.ErrDuplicateUsername):
		ve.Add("username", err.Error())
	case errors.Is(err, errs.ErrDuplicateEmail):
		ve.Add("email", err.Error())
	default:
		return false
	}
	return true
}

// Register creates the member and the profile in one transaction. Every problem of the
// submission is reported at once.
func (s *Service) Register(ctx context.Context, form model.RegisterForm, picture *filestore.Upload) (model.User, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)

	ve := &errs.ValidationError{Form: form.Echo()}
	if err := s.checkUsername(ctx, form.Username, ve); err != nil {
		return model.User{}, err
	}
	switch {
	case form.Email == "":
		ve.Add("email", "Email is required.")
	case !validEmail(form.Email):
		ve.Add("email", "Please enter a valid email address.")
	default:
		exists, err := s.repo.EmailExists(ctx, form.Email)
		if err != nil {
			return model.User{}, errors.Wrap(err, "EmailExists")
		}
		if exists {
			ve.Add("email", errs.ErrDuplicateEmail.Error())
		}
	}
	if form.FirstName == "" {
		ve.Add("first_name", "First name is required.")
	}
	if form.LastName == "" {
		ve.Add("last_name", "Last name is required.")
	}
	s.checkPassword(form.Password, form.PasswordConfirm, ve)
	if !form.Terms {
		ve.Add("terms", "You must agree to the Terms and Conditions.")
	}
	if !ve.Empty() {
		return model.User{}, ve
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "GenerateFromPassword")
	}
	now := s.now()
	user := model.User{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: string(hash),
		FirstName:    form.FirstName,
		LastName:     form.LastName,
		IsActive:     true,
		DateJoined:   now,
	}

	var saved string
	err = s.repo.WithTx(ctx, func(repo libraryRepo.Repository) error {
		var err error
		if user.ID, err = repo.CreateUser(ctx, user); err != nil {
			return err
		}
		profile := model.Profile{UserID: user.ID, Bio: strings.TrimSpace(form.Bio)}
		if picture != nil {
			if picture.Size > filestore.MaxUploadSize {
				return errs.ErrPictureTooLarge
			}
			if saved, err = s.files.Save(filestore.ProfileDir, picture); err != nil {
				return pictureErr(err)
			}
			profile.ProfilePic = saved
		}
		return repo.CreateProfile(ctx, profile)
	})
	if err != nil {
		s.removeFile(saved)
		if pve, ok := errs.AsValidation(err); ok {
			for field, msg := range pve.Fields {
				ve.Add(field, msg)
			}
			return model.User{}, ve
		}
		if errors.Is(err, errs.ErrPictureTooLarge) {
			ve.Add("profile_pic", err.Error())
			return model.User{}, ve
		}
		if duplicateField(err, ve) {
			return model.User{}, ve
		}
		return model.User{}, err
	}

	s.notifyAsync(notify.WelcomeEvent(user, s.loginURL, now))
	return user, nil
}

func pictureErr(err error) error {
	switch {
	case errors.Is(err, filestore.ErrTooLarge):
		return errs.ErrPictureTooLarge
	case errors.Is(err, filestore.ErrNotAnImage):
		ve := &errs.ValidationError{}
		ve.Add("profile_pic", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
		return ve
	}
	return errors.Wrap(err, "save picture")
}

func (s *Service) Login(ctx context.Context, form model.LoginForm) (model.LoginResult, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(form.Username))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.LoginResult{}, errs.ErrInvalidCredentials
		}
		return model.LoginResult{}, err
	}
	if !user.IsActive {
		return model.LoginResult{}, errs.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)); err != nil {
		return model.LoginResult{}, errs.ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(user.AuthProfile())
	if err != nil {
		return model.LoginResult{}, errors.Wrap(err, "Issue")
	}
	return model.LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.revoker.Revoke(ctx, claims); err != nil {
		return errors.Wrap(err, "Revoke")
	}
	return nil
}

// CurrentProfile reports the stored role of an authenticated caller.
func (s *Service) CurrentProfile(ctx context.Context, userID int64) (auth.Profile, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return auth.Profile{}, auth.ErrNoUser
		}
		return auth.Profile{}, err
	}
	if !user.IsActive {
		return auth.Profile{}, auth.ErrNoUser
	}
	return user.AuthProfile(), nil
}

// Profile gathers the page with its stats queried concurrently.
func (s *Service) Profile(ctx context.Context, userID int64) (model.ProfilePage, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return model.ProfilePage{}, err
	}
	page := model.ProfilePage{User: user}

	gg, gctx := errgroup.WithContext(ctx)
	gg.Go(func() error {
		var err error
		page.Profile, err = s.repo.GetOrCreateProfile(gctx, userID)
		return err
	})
	gg.Go(func() error {
		var err error
		page.Stats.TotalBorrowed, err = s.repo.CountBorrowings(gctx, userID)
		return err
	})
	gg.Go(func() error {
		var err error
		page.Stats.ReviewsCount, err = s.repo.CountReviews(gctx, userID)
		return err
	})
	gg.Go(func() error {
		var err error
		page.Stats.CurrentlyReading, err = s.repo.CountBorrowings(gctx, userID, model.StatusBorrowed)
		return err
	})
	if err := gg.Wait(); err != nil {
		return model.ProfilePage{}, errors.Wrap(err, "Profile")
	}
	return page, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, form model.ProfileForm, picture *filestore.Upload) (model.ProfilePage, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return model.ProfilePage{}, err
	}
	profile, err := s.repo.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return model.ProfilePage{}, err
	}

	profile.Bio = strings.TrimSpace(form.Bio)
	if v := strings.TrimSpace(form.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(form.LastName); v != "" {
		user.LastName = v
	}

	old := profile.ProfilePic
	var saved string
	switch {
	case picture != nil:
		if picture.Size > filestore.MaxUploadSize {
			return model.ProfilePage{}, errs.ErrPictureTooLarge
		}
		if saved, err = s.files.Save(filestore.ProfileDir, picture); err != nil {
			return model.ProfilePage{}, pictureErr(err)
		}
		profile.ProfilePic = saved
	case form.RemovePicture:
		profile.ProfilePic = ""
	}

	err = s.repo.WithTx(ctx, func(repo libraryRepo.Repository) error {
		if err := repo.UpdateUser(ctx, user); err != nil {
			return err
		}
		return repo.UpdateProfile(ctx, profile)
	})
	if err != nil {
		s.removeFile(saved)
		return model.ProfilePage{}, err
	}
	if old != profile.ProfilePic {
		s.removeFile(old)
	}
	return s.Profile(ctx, userID)
}

func (s *Service) UserDashboard(ctx context.Context) (model.UserDashboard, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return model.UserDashboard{}, errors.Wrap(err, "ListUsers")
	}
	var d model.UserDashboard
	d.Users = users
	if d.Users == nil {
		d.Users = make([]model.User, 0)
	}
	d.Stats.Total = len(users)
	for _, u := range users {
		if u.IsStaff {
			d.Stats.Staff++
		}
		if u.IsActive {
			d.Stats.Active++
		}
	}
	return d, nil
}

// CreateUser is the admin form: username and password rules, optional email.
func (s *Service) CreateUser(ctx context.Context, form model.UserCreateForm) (model.User, error) {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))

	ve := &errs.ValidationError{}
	if err := s.checkUsername(ctx, form.Username, ve); err != nil {
		return model.User{}, err
	}
	if form.Email != "" && !validEmail(form.Email) {
		ve.Add("email", "Please enter a valid email address.")
	}
	s.checkPassword(form.Password, form.PasswordConfirm, ve)
	if !ve.Empty() {
		return model.User{}, ve
	}

	user, err := s.createAccount(ctx, model.User{
		Username: form.Username,
		Email:    form.Email,
		IsActive: true,
	}, form.Password)
	if err != nil {
		if duplicateField(err, ve) {
			return model.User{}, ve
		}
		return model.User{}, err
	}
	return user, nil
}

func (s *Service) createAccount(ctx context.Context, user model.User, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, errors.Wrap(err, "GenerateFromPassword")
	}
	user.PasswordHash = string(hash)
	user.DateJoined = s.now()
	err = s.repo.WithTx(ctx, func(repo libraryRepo.Repository) error {
		var err error
		if user.ID, err = repo.CreateUser(ctx, user); err != nil {
			return err
		}
		return repo.CreateProfile(ctx, model.Profile{UserID: user.ID})
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (model.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, form model.UserEditForm) (model.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	ve := s.validate(form)
	if !ve.Empty() {
		return model.User{}, ve
	}

	user.Email = form.Email
	user.FirstName = form.FirstName
	user.LastName = form.LastName
	user.IsStaff = form.IsStaff
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		if duplicateField(err, ve) {
			return model.User{}, ve
		}
		return model.User{}, err
	}
	return user, nil
}

// DeleteUser removes the account with its borrowings, reviews and profile.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return errs.ErrSelfDelete
	}
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return err
	}
	profile, err := s.repo.GetOrCreateProfile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.removeFile(profile.ProfilePic)
	return nil
}

// EnsureAdmin creates the configured superuser once.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}
	exists, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return errors.Wrap(err, "UsernameExists")
	}
	if exists {
		return nil
	}
	if _, err := s.createAccount(ctx, model.User{
		Username:    username,
		IsStaff:     true,
		IsSuperuser: true,
		IsActive:    true,
	}, password); err != nil {
		if errors.Is(err, errs.ErrDuplicateUsername) {
			return nil
		}
		return err
	}
	s.log.Info("admin account created", zap.String("username", username))
	return nil
}
