package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

var userColumns = []string{
	"id", "username", "email", "password_hash", "first_name", "last_name",
	"is_staff", "is_superuser", "is_active", "date_joined",
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsStaff, &u.IsSuperuser, &u.IsActive, &u.DateJoined)
	return u, err
}

func duplicateUserErr(constraint string) error {
	if constraint == "users_email_uniq" {
		return errs.ErrDuplicateEmail
	}
	return errs.ErrDuplicateUsername
}

func (r *repository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	query, args, err := qb.Insert(usersTableName).
		Columns("username", "email", "password_hash", "first_name", "last_name",
			"is_staff", "is_superuser", "is_active", "date_joined").
		Values(u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
			u.IsStaff, u.IsSuperuser, u.IsActive, u.DateJoined).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return 0, duplicateUserErr(constraint)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) getUser(ctx context.Context, where sq.Sqlizer) (model.User, error) {
	query, args, err := qb.Select(userColumns...).From(usersTableName).Where(where).ToSql()
	if err != nil {
		return model.User{}, err
	}
	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

func (r *repository) GetUser(ctx context.Context, id int64) (model.User, error) {
	return r.getUser(ctx, sq.Eq{"id": id})
}

func (r *repository) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getUser(ctx, sq.Eq{"username": username})
}

// LockUser serializes borrow attempts of one member.
func (r *repository) LockUser(ctx context.Context, id int64) error {
	query, args, err := qb.Select("id").From(usersTableName).
		Where(sq.Eq{"id": id}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return err
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, qb.Select("1").From(usersTableName).Where(sq.Eq{"username": username}))
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, qb.Select("1").From(usersTableName).Where("lower(email) = lower(?)", email))
}

func (r *repository) ListUsers(ctx context.Context) ([]model.User, error) {
	query, args, err := qb.Select(userColumns...).From(usersTableName).
		OrderBy("date_joined desc", "id desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		return scanUser(row)
	})
}

func (r *repository) UpdateUser(ctx context.Context, u model.User) error {
	query, args, err := qb.Update(usersTableName).
		SetMap(map[string]any{
			"email":        u.Email,
			"first_name":   u.FirstName,
			"last_name":    u.LastName,
			"is_staff":     u.IsStaff,
			"is_superuser": u.IsSuperuser,
			"is_active":    u.IsActive,
		}).
		Where(sq.Eq{"id": u.ID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return duplicateUserErr(constraint)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteUser(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(usersTableName).Where(sq.Eq{"id": id}).ToSql()
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

func (r *repository) CreateProfile(ctx context.Context, p model.Profile) error {
	query, args, err := qb.Insert(profilesTableName).
		Columns("user_id", "bio", "profile_pic").
		Values(p.UserID, p.Bio, p.ProfilePic).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// GetOrCreateProfile lazily creates the empty profile of accounts made outside registration.
func (r *repository) GetOrCreateProfile(ctx context.Context, userID int64) (model.Profile, error) {
	q := `
insert into user_profiles (user_id) values (@user_id)
on conflict (user_id) do nothing`
	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"user_id": userID}); err != nil {
		return model.Profile{}, err
	}
	query, args, err := qb.Select("user_id", "bio", "profile_pic").
		From(profilesTableName).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return model.Profile{}, err
	}
	var p model.Profile
	if err := r.db.QueryRow(ctx, query, args...).Scan(&p.UserID, &p.Bio, &p.ProfilePic); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, errs.ErrNotFound
		}
		return model.Profile{}, err
	}
	return p, nil
}

func (r *repository) UpdateProfile(ctx context.Context, p model.Profile) error {
	query, args, err := qb.Update(profilesTableName).
		Set("bio", p.Bio).
		Set("profile_pic", p.ProfilePic).
		Where(sq.Eq{"user_id": p.UserID}).
		ToSql()
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
