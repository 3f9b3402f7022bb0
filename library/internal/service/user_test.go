package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/library/internal/notify"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
)

func validRegistration() model.RegisterForm {
	return model.RegisterForm{
		Username:        "  reader  ",
		FirstName:       "Ann",
		LastName:        "Lee",
		Email:           " Ann@Example.com ",
		Password:        "secret1",
		PasswordConfirm: "secret1",
		Bio:             "likes books",
		Terms:           true,
	}
}

func TestRegisterCollectsAllErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), model.RegisterForm{
		Username: "ab",
		Email:    "not-an-email",
		Password: "secret1",
		Bio:      "hi",
	}, nil)
	ve, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Equal(t, []string{
		"Username must be at least 3 characters long.",
		"Please enter a valid email address.",
		"First name is required.",
		"Last name is required.",
		"Passwords do not match.",
		"You must agree to the Terms and Conditions.",
	}, ve.Messages)
	require.Equal(t, "ab", ve.Form["username"])
	require.Equal(t, "hi", ve.Form["bio"])
	require.NotContains(t, ve.Form, "password")

	users, err := f.repo.ListUsers(context.Background())
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.svc.Register(ctx, validRegistration(), &filestore.Upload{Filename: "me.png", Size: 1024})
	require.NoError(t, err)
	require.Equal(t, "reader", user.Username)
	require.Equal(t, "ann@example.com", user.Email)
	require.True(t, user.IsActive)
	require.False(t, user.IsStaff)

	profile, err := f.repo.GetOrCreateProfile(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "likes books", profile.Bio)
	require.Equal(t, "profile_pics/file-1.png", profile.ProfilePic)

	f.svc.Wait()
	events := f.notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, notify.KindWelcome, events[0].Kind)
	require.Contains(t, events[0].Body, "Click here to login: http://localhost:8080/api/v1/login")

	form := validRegistration()
	form.Email = "ANN@example.com"
	_, err = f.svc.Register(ctx, form, nil)
	ve, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Equal(t, []string{
		errs.ErrDuplicateUsername.Error(),
		errs.ErrDuplicateEmail.Error(),
	}, ve.Messages)
}

func TestRegisterPictureTooLargeRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, validRegistration(), &filestore.Upload{Filename: "big.png", Size: filestore.MaxUploadSize + 1})
	ve, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Equal(t, errs.ErrPictureTooLarge.Error(), ve.Fields["profile_pic"])
	require.Equal(t, "reader", ve.Form["username"])

	exists, err := f.repo.UsernameExists(ctx, "reader")
	require.NoError(t, err)
	require.False(t, exists)

	f.svc.Wait()
	require.Empty(t, f.notifier.Events())
}

func TestLoginLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")

	res, err := f.svc.Login(ctx, model.LoginForm{Username: "ann", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, ann.ID, res.User.ID)

	claims, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	require.Equal(t, auth.Profile{UserID: ann.ID, Username: "ann", Role: auth.RoleMember}, claims.Profile)
	require.NotEmpty(t, claims.ID)

	require.NoError(t, f.svc.Logout(ctx, claims))
	require.Equal(t, []string{claims.ID}, f.revoker.revoked)

	_, err = f.svc.Login(ctx, model.LoginForm{Username: "ann", Password: "wrong"})
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, model.LoginForm{Username: "nobody", Password: "secret1"})
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)

	ann.IsActive = false
	require.NoError(t, f.repo.UpdateUser(ctx, ann))
	_, err = f.svc.Login(ctx, model.LoginForm{Username: "ann", Password: "secret1"})
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")
	dune := f.book(t, "Dune", 1)
	emma := f.book(t, "Emma", 1)

	br, err := f.svc.BorrowBook(ctx, ann.ID, dune.ID)
	require.NoError(t, err)
	_, err = f.svc.ReturnBook(ctx, ann.ID, br.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitReview(ctx, ann.ID, dune.ID, model.ReviewForm{Rating: 5})
	require.NoError(t, err)
	_, err = f.svc.BorrowBook(ctx, ann.ID, emma.ID)
	require.NoError(t, err)

	page, err := f.svc.Profile(ctx, ann.ID)
	require.NoError(t, err)
	require.Equal(t, model.UserStats{TotalBorrowed: 2, ReviewsCount: 1, CurrentlyReading: 1}, page.Stats)
	require.Equal(t, ann.ID, page.Profile.UserID)

	page, err = f.svc.UpdateProfile(ctx, ann.ID, model.ProfileForm{Bio: "new bio", FirstName: "Annie"},
		&filestore.Upload{Filename: "me.png", Size: 10})
	require.NoError(t, err)
	require.Equal(t, "new bio", page.Profile.Bio)
	require.Equal(t, "Annie", page.User.FirstName)
	require.Equal(t, "Last", page.User.LastName)
	require.Equal(t, "profile_pics/file-1.png", page.Profile.ProfilePic)

	_, err = f.svc.UpdateProfile(ctx, ann.ID, model.ProfileForm{}, &filestore.Upload{Size: filestore.MaxUploadSize + 1})
	require.ErrorIs(t, err, errs.ErrPictureTooLarge)

	page, err = f.svc.UpdateProfile(ctx, ann.ID, model.ProfileForm{RemovePicture: true}, nil)
	require.NoError(t, err)
	require.Empty(t, page.Profile.ProfilePic)
	require.Empty(t, page.Profile.Bio)
	require.Contains(t, f.files.removed, "profile_pics/file-1.png")
}

func TestUserAdministration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	admin := f.user(t, "admin")

	_, err := f.svc.CreateUser(ctx, model.UserCreateForm{Username: "x", Email: "bad", Password: "123", PasswordConfirm: "123"})
	ve, ok := errs.AsValidation(err)
	require.True(t, ok)
	require.Len(t, ve.Messages, 3)

	created, err := f.svc.CreateUser(ctx, model.UserCreateForm{Username: "clerk", Password: "secret1", PasswordConfirm: "secret1"})
	require.NoError(t, err)
	require.Empty(t, created.Email)

	updated, err := f.svc.UpdateUser(ctx, created.ID, model.UserEditForm{Email: "clerk@example.com", FirstName: "Cl", IsStaff: true})
	require.NoError(t, err)
	require.True(t, updated.IsStaff)
	require.Equal(t, auth.RoleStaff, updated.Role())

	_, err = f.svc.UpdateUser(ctx, created.ID, model.UserEditForm{Email: "admin@example.com"})
	ve, ok = errs.AsValidation(err)
	require.True(t, ok)
	require.Equal(t, errs.ErrDuplicateEmail.Error(), ve.Fields["email"])

	dash, err := f.svc.UserDashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, dash.Stats.Total)
	require.Equal(t, 1, dash.Stats.Staff)
	require.Equal(t, 2, dash.Stats.Active)

	require.ErrorIs(t, f.svc.DeleteUser(ctx, admin.ID, admin.ID), errs.ErrSelfDelete)

	dune := f.book(t, "Dune", 1)
	_, err = f.svc.BorrowBook(ctx, created.ID, dune.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteUser(ctx, admin.ID, created.ID))
	_, err = f.svc.GetUser(ctx, created.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	n, err := f.repo.CountBorrowings(ctx, created.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	require.ErrorIs(t, f.svc.DeleteUser(ctx, admin.ID, created.ID), errs.ErrNotFound)
}

func TestCurrentProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ann := f.user(t, "ann")

	p, err := f.svc.CurrentProfile(ctx, ann.ID)
	require.NoError(t, err)
	require.Equal(t, auth.Profile{UserID: ann.ID, Username: "ann", Role: auth.RoleMember}, p)

	_, err = f.svc.UpdateUser(ctx, ann.ID, model.UserEditForm{Email: "ann@example.com", IsStaff: true})
	require.NoError(t, err)
	p, err = f.svc.CurrentProfile(ctx, ann.ID)
	require.NoError(t, err)
	require.Equal(t, auth.RoleStaff, p.Role)

	ann.IsActive = false
	require.NoError(t, f.repo.UpdateUser(ctx, ann))
	_, err = f.svc.CurrentProfile(ctx, ann.ID)
	require.ErrorIs(t, err, auth.ErrNoUser)

	_, err = f.svc.CurrentProfile(ctx, ann.ID+100)
	require.ErrorIs(t, err, auth.ErrNoUser)
}

func TestEnsureAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.EnsureAdmin(ctx, "", "secret1"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "secret1"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "other"))

	users, err := f.repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, auth.RoleAdmin, users[0].Role())

	res, err := f.svc.Login(ctx, model.LoginForm{Username: "root", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "root", res.User.Username)
}
