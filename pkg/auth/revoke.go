package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" json:"-"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func NewRedisClient(cfg Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

const revokedKeyPrefix = "library:revoked:"

// Revoker keeps logged-out token ids in redis until the tokens would expire anyway.
type Revoker struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRevoker(rdb *redis.Client) *Revoker {
	return &Revoker{rdb: rdb, now: time.Now}
}

func (r *Revoker) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrInvalidToken
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Time.Sub(r.now()); left > 0 {
			ttl = left
		}
	}
	return errors.Wrap(r.rdb.Set(ctx, revokedKeyPrefix+claims.ID, 1, ttl).Err(), "redis set")
}

func (r *Revoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}
