package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
)

// UserDatabase defines the user lookups the cache sits in front of.
type UserDatabase interface {
	GetUserByID(ctx context.Context, userID bson.ObjectID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// UserCache serves user lookups from Redis. Cached users never carry the
// password digest, so credential checks must read the database.
type UserCache struct {
	cache *Cache
	db    UserDatabase
	ttl   time.Duration
}

// NewUserCache creates a user cache in front of db.
func NewUserCache(cache *Cache, db UserDatabase, ttl time.Duration) *UserCache {
	return &UserCache{cache: cache, db: db, ttl: ttl}
}

// GetUserByID returns the user with the given id.
func (uc *UserCache) GetUserByID(ctx context.Context, userID bson.ObjectID) (*models.User, error) {
	return Fetch(ctx, uc.cache, UserKey(userID), uc.ttl, func(ctx context.Context) (*models.User, error) {
		return uc.db.GetUserByID(ctx, userID)
	})
}

// GetUserByUsername returns the user with the given username and primes
// the by-id entry, which the session gate reads.
func (uc *UserCache) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := Fetch(ctx, uc.cache, UserByUsernameKey(username), uc.ttl, func(ctx context.Context) (*models.User, error) {
		return uc.db.GetUserByUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, UserKey(user.ID), user, uc.ttl); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.Hex()).Msg("Failed to prime user cache")
	}
	return user, nil
}

// InvalidateUser drops both cached entries of user. Call it after any
// write to the user document.
func (uc *UserCache) InvalidateUser(ctx context.Context, user *models.User) error {
	return uc.cache.Delete(ctx, UserKey(user.ID), UserByUsernameKey(user.Username))
}
