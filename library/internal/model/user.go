package model

import (
	"time"

	"github.com/Astemirdum/silent-library/pkg/auth"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsStaff      bool      `json:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsActive     bool      `json:"is_active"`
	DateJoined   time.Time `json:"date_joined"`
}

func (u User) Role() auth.Role {
	switch {
	case u.IsSuperuser:
		return auth.RoleAdmin
	case u.IsStaff:
		return auth.RoleStaff
	default:
		return auth.RoleMember
	}
}

func (u User) AuthProfile() auth.Profile {
	return auth.Profile{UserID: u.ID, Username: u.Username, Role: u.Role()}
}

type Profile struct {
	UserID     int64  `json:"user_id"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profile_pic,omitempty"`
}

type UserStats struct {
	TotalBorrowed    int `json:"total_borrowed"`
	ReviewsCount     int `json:"reviews_count"`
	CurrentlyReading int `json:"currently_reading"`
}

type ProfilePage struct {
	User    User      `json:"user"`
	Profile Profile   `json:"profile"`
	Stats   UserStats `json:"stats"`
}

// RegisterForm fields are echoed back on failure, passwords excluded.
type RegisterForm struct {
	Username        string `json:"username" form:"username"`
	FirstName       string `json:"first_name" form:"first_name"`
	LastName        string `json:"last_name" form:"last_name"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
	Bio             string `json:"bio" form:"bio"`
	Terms           bool   `json:"terms" form:"terms"`
}

func (f RegisterForm) Echo() map[string]string {
	return map[string]string{
		"username":   f.Username,
		"first_name": f.FirstName,
		"last_name":  f.LastName,
		"email":      f.Email,
		"bio":        f.Bio,
	}
}

type LoginForm struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type ProfileForm struct {
	Bio           string `json:"bio" form:"bio"`
	FirstName     string `json:"first_name" form:"first_name"`
	LastName      string `json:"last_name" form:"last_name"`
	RemovePicture bool   `json:"remove_picture" form:"remove_picture"`
}

type UserCreateForm struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm"`
}

type UserEditForm struct {
	Email     string `json:"email" form:"email" validate:"omitempty,email"`
	FirstName string `json:"first_name" form:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" form:"last_name" validate:"max=150"`
	IsStaff   bool   `json:"is_staff" form:"is_staff"`
}

type UserDashboard struct {
	Users []User `json:"users"`
	Stats struct {
		Total  int `json:"total"`
		Staff  int `json:"staff"`
		Active int `json:"active"`
	} `json:"stats"`
}
