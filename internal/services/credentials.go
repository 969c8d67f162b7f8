package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/credentials"
	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
)

// CredentialUserStore defines the user persistence the credential store
// needs. Lookups must return the password digest.
type CredentialUserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID bson.ObjectID, passwordHash string) (*models.User, error)
}

// UserInvalidator drops cached copies of a user after a write.
type UserInvalidator interface {
	InvalidateUser(ctx context.Context, user *models.User) error
}

// CredentialStore owns password hashing and verification and username
// uniqueness.
type CredentialStore struct {
	users      CredentialUserStore
	hasher     *credentials.Hasher
	invalidate UserInvalidator // nil when caching is disabled
	events     events.Publisher
}

// NewCredentialStore creates a credential store. invalidator may be nil.
func NewCredentialStore(users CredentialUserStore, hasher *credentials.Hasher, invalidator UserInvalidator, publisher events.Publisher) *CredentialStore {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &CredentialStore{
		users:      users,
		hasher:     hasher,
		invalidate: invalidator,
		events:     publisher,
	}
}

// Register creates a user with a hashed password. The username is trimmed
// and lowercased first and must then hold 3 to 30 characters. Returns
// ErrUsernameTaken when it is already in use.
func (c *CredentialStore) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = models.NormalizeUsername(username)
	if n := utf8.RuneCountInString(username); n < models.UsernameMinLen || n > models.UsernameMaxLen {
		return nil, invalidInput("username must be %d to %d characters long", models.UsernameMinLen, models.UsernameMaxLen)
	}

	digest, err := c.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := c.users.CreateUser(ctx, username, digest)
	if errors.Is(err, database.ErrDuplicateUsername) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	c.events.Publish(events.New(events.EntityUser, events.KindCreated, user.ID.Hex(), user.ID.Hex()))
	return user, nil
}

// Verify checks a username and password pair. Unknown users and wrong
// passwords both yield an INVALID_CREDENTIALS AuthError; unknown users still
// pay for one bcrypt comparison.
func (c *CredentialStore) Verify(ctx context.Context, username, password string) (*models.User, error) {
	username = models.NormalizeUsername(username)

	user, err := c.users.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		c.hasher.Burn(password)
		return nil, invalidCredentials(errors.New("unknown username"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := c.hasher.Verify(user.Password, password); err != nil {
		if !errors.Is(err, credentials.ErrMismatch) {
			log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Stored password digest is unreadable")
		}
		return nil, invalidCredentials(err)
	}

	return user, nil
}

// ChangePassword verifies the current password, stores the digest of the
// new one and bumps the user's password version. Every session created
// before the change fails its next revocation check.
func (c *CredentialStore) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) (*models.User, error) {
	user, err := c.Verify(ctx, username, currentPassword)
	if err != nil {
		return nil, err
	}

	digest, err := c.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	updated, err := c.users.UpdatePassword(ctx, user.ID, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to change password: %w", err)
	}

	if c.invalidate != nil {
		if err := c.invalidate.InvalidateUser(ctx, updated); err != nil {
			log.Warn().Err(err).Str("user_id", updated.ID.Hex()).Msg("Failed to invalidate cached user")
		}
	}

	c.events.Publish(events.New(events.EntityUser, events.KindPasswordChanged, updated.ID.Hex(), updated.ID.Hex()))
	return updated, nil
}
