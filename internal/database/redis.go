package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/metrics"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/cache"
	"github.com/WencesJ/Speer-Tweeter/pkg/config"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// RedisDB wraps a Redis client for session storage and caching.
// Provides type-safe methods for:
//   - Session records with automatic expiration
//   - Idempotent session destruction
//   - Per-user session listing
//
// Session records live at "session:{userID}:{sessionID}" as hashes.
type RedisDB struct {
	client *redis.Client // Underlying Redis client with connection pooling
}

// Session hash fields.
const (
	fieldUserID          = "user_id"
	fieldUsername        = "username"
	fieldPasswordVersion = "password_version"
	fieldDeviceInfo      = "device_info"
	fieldIPAddress       = "ip_address"
	fieldVerifiedAt      = "verified_at"
	fieldCreatedAt       = "created_at"
	fieldExpiresAt       = "expires_at"
)

// NewRedisDB connects to Redis, backing off per utils.StoreBackoff for up
// to 30 seconds. Rejected credentials fail at once.
//
// Example:
//
//	redisDB, err := database.NewRedisDB(&cfg.Redis)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Redis connection failed")
//	}
//	defer redisDB.Close()
func NewRedisDB(cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := utils.StoreBackoff()
	backoff.Permanent = isAuthError
	err := backoff.Do(ctx, "redis ping", func(ctx context.Context) error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("Successfully connected to Redis")

	return &RedisDB{client: client}, nil
}

// isAuthError matches the replies Redis sends for a missing or wrong password.
func isAuthError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "WRONGPASS")
}

// NewRedisDBFromClient wraps an existing client. Used by tests with miniredis.
func NewRedisDBFromClient(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

// Close closes the Redis connection pool.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Client returns the underlying client for the cache layer.
func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Ping checks Redis connectivity. Used by the readiness probe.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetSession stores a session record with the given TTL. The record and its
// expiry are written in one MULTI/EXEC so a record never exists without a TTL.
func (r *RedisDB) SetSession(ctx context.Context, s *models.Session, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp("redis", "set_session", err, time.Since(start)) }()

	key := cache.SessionKey(s.UserID, s.ID)
	data := map[string]interface{}{
		fieldUserID:          s.UserID.Hex(),
		fieldUsername:        s.Username,
		fieldPasswordVersion: s.PasswordVersion,
		fieldDeviceInfo:      s.DeviceInfo,
		fieldIPAddress:       s.IPAddress,
		fieldVerifiedAt:      s.VerifiedAt.UTC().Format(time.RFC3339Nano),
		fieldCreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldExpiresAt:       s.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, data)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return wrapStoreError("set session", err)
	}
	return nil
}

// GetSession loads a session record. It returns ErrSessionNotFound when the
// record was destroyed or has expired.
func (r *RedisDB) GetSession(ctx context.Context, userID bson.ObjectID, sessionID string) (_ *models.Session, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp("redis", "get_session", err, time.Since(start)) }()

	result, err := r.client.HGetAll(ctx, cache.SessionKey(userID, sessionID)).Result()
	if err != nil {
		return nil, wrapStoreError("get session", err)
	}
	if len(result) == 0 {
		return nil, ErrSessionNotFound
	}

	s, err := decodeSession(sessionID, result)
	if err != nil {
		return nil, wrapStoreError("decode session", err)
	}
	return s, nil
}

// DeleteSession removes a session record. destroyed reports whether this
// call removed it; concurrent callers racing on one session see true exactly
// once.
func (r *RedisDB) DeleteSession(ctx context.Context, userID bson.ObjectID, sessionID string) (destroyed bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp("redis", "delete_session", err, time.Since(start)) }()

	n, err := r.client.Del(ctx, cache.SessionKey(userID, sessionID)).Result()
	if err != nil {
		return false, wrapStoreError("delete session", err)
	}
	return n > 0, nil
}

// ListUserSessions returns the ids of every live session of a user.
func (r *RedisDB) ListUserSessions(ctx context.Context, userID bson.ObjectID) ([]string, error) {
	pattern := cache.SessionPattern(userID)
	prefix := strings.TrimSuffix(pattern, "*")

	var sessions []string
	var cursor uint64

	for {
		var keys []string
		var err error

		keys, cursor, err = r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, wrapStoreError("scan sessions", err)
		}

		for _, key := range keys {
			if len(key) > len(prefix) {
				sessions = append(sessions, key[len(prefix):])
			}
		}

		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

func decodeSession(sessionID string, h map[string]string) (*models.Session, error) {
	userID, err := bson.ObjectIDFromHex(h[fieldUserID])
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	version, err := strconv.ParseInt(h[fieldPasswordVersion], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid password version: %w", err)
	}

	s := &models.Session{
		ID:              sessionID,
		UserID:          userID,
		Username:        h[fieldUsername],
		PasswordVersion: version,
		DeviceInfo:      h[fieldDeviceInfo],
		IPAddress:       h[fieldIPAddress],
	}

	for field, dst := range map[string]*time.Time{
		fieldVerifiedAt: &s.VerifiedAt,
		fieldCreatedAt:  &s.CreatedAt,
		fieldExpiresAt:  &s.ExpiresAt,
	} {
		t, err := time.Parse(time.RFC3339Nano, h[field])
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field, err)
		}
		*dst = t
	}

	return s, nil
}
