package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/Astemirdum/silent-library/pkg/auth"
)

const (
	AuthorizationHeader = "Authorization"
	bearer              = "Bearer "
)

type TokenParser interface {
	Parse(tokenStr string) (*auth.Claims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ProfileLoader returns auth.ErrNoUser for accounts that are gone or deactivated.
type ProfileLoader interface {
	CurrentProfile(ctx context.Context, userID int64) (auth.Profile, error)
}

// JwtAuthentication rejects requests without a valid, unrevoked bearer token.
func JwtAuthentication(tokens TokenParser, revoked RevocationChecker, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := authenticate(c, tokens, revoked, log)
			if err != nil {
				return err
			}
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "No Authorization Header")
			}
			setClaims(c, claims)
			return next(c)
		}
	}
}

// OptionalAuthentication attaches the caller when a valid token is sent and lets anonymous
// requests through.
func OptionalAuthentication(tokens TokenParser, revoked RevocationChecker, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := authenticate(c, tokens, revoked, log)
			if err != nil {
				return err
			}
			if claims != nil {
				setClaims(c, claims)
			}
			return next(c)
		}
	}
}

func authenticate(c echo.Context, tokens TokenParser, revoked RevocationChecker, log *zap.Logger) (*auth.Claims, error) {
	authorization := c.Request().Header.Get(AuthorizationHeader)
	if authorization == "" {
		return nil, nil
	}
	if !strings.HasPrefix(authorization, bearer) {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization Header")
	}
	claims, err := tokens.Parse(strings.TrimPrefix(authorization, bearer))
	if err != nil {
		if err == auth.ErrTokenExpired {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "TokenExpired")
		}
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "JwtAccessDenied")
	}
	if revoked != nil {
		isRevoked, err := revoked.IsRevoked(c.Request().Context(), claims.ID)
		if err != nil {
			// redis being down must not lock every member out
			log.Warn("revocation check", zap.Error(err))
		}
		if isRevoked {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "TokenRevoked")
		}
	}
	return claims, nil
}

func setClaims(c echo.Context, claims *auth.Claims) {
	req := c.Request()
	c.SetRequest(req.WithContext(auth.SetAuthContext(req.Context(), claims)))
}

// RefreshProfile replaces the profile carried by the token with the stored one, so role
// changes and deactivation apply before the token expires. Must run after JwtAuthentication.
func RefreshProfile(profiles ProfileLoader, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			claims, err := auth.GetClaims(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			p, err := profiles.CurrentProfile(ctx, claims.Profile.UserID)
			if err != nil {
				if errors.Is(err, auth.ErrNoUser) {
					return echo.NewHTTPError(http.StatusUnauthorized, "JwtAccessDenied")
				}
				log.Error("refresh profile", zap.Int64("user_id", claims.Profile.UserID), zap.Error(err))
				return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
			fresh := *claims
			fresh.Profile = p
			setClaims(c, &fresh)
			return next(c)
		}
	}
}

// RequireRole must run after JwtAuthentication.
func RequireRole(roles ...auth.Role) echo.MiddlewareFunc {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := auth.GetProfile(c.Request().Context())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			if _, ok := allowed[p.Role]; !ok {
				return echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")
			}
			return next(c)
		}
	}
}

func NewRateLimiter(rps rate.Limit) echo.MiddlewareFunc {
	return middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rps))
}

func RequestLoggerConfig(log *zap.Logger) middleware.RequestLoggerConfig {
	log = log.Named("echo")
	c := middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		HandleError:  true,
		LogError:     true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := zapcore.InfoLevel
			if v.Status >= http.StatusInternalServerError {
				level = zapcore.ErrorLevel
			}
			log.Log(level, "request",
				zap.String("URI", v.URI),
				zap.String("Method", v.Method),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}
	return c
}
