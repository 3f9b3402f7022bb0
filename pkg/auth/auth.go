package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

type Config struct {
	Secret   string        `envconfig:"JWT_SECRET" json:"-"`
	TokenTTL time.Duration `envconfig:"JWT_TTL" default:"24h"`
}

type Profile struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type Claims struct {
	Profile Profile `json:"profile"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoUser       = errors.New("user is not authenticated")
)

type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(cfg Config) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token with a fresh token id.
func (m *TokenManager) Issue(p Profile) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		Profile: p,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, "sign token")
	}
	return token, claims, nil
}

func (m *TokenManager) Parse(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type ctxKey struct{}

type contextValue struct {
	profile Profile
	claims  *Claims
}

func SetAuthContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, contextValue{profile: claims.Profile, claims: claims})
}

func GetProfile(ctx context.Context) (Profile, error) {
	v, ok := ctx.Value(ctxKey{}).(contextValue)
	if !ok {
		return Profile{}, ErrNoUser
	}
	return v.profile, nil
}

func GetClaims(ctx context.Context) (*Claims, error) {
	v, ok := ctx.Value(ctxKey{}).(contextValue)
	if !ok || v.claims == nil {
		return nil, ErrNoUser
	}
	return v.claims, nil
}

func GetUserName(ctx context.Context) (string, error) {
	p, err := GetProfile(ctx)
	if err != nil {
		return "", err
	}
	return p.Username, nil
}
