package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// ErrDuplicateUsername is returned by CreateUser when the unique username
// index rejects the insert.
var ErrDuplicateUsername = errors.New("username already exists")

// CreateUser inserts a user with the given normalized username and password
// digest. PasswordVersion starts at 0.
func (m *MongoDB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		Username:  username,
		Password:  passwordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := m.collection(UsersCollection).InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, wrapStoreError("create user", err)
	}
	user.ID = res.InsertedID.(bson.ObjectID)

	log.Info().
		Str("user_id", user.ID.Hex()).
		Str("username", user.Username).
		Msg("User created successfully")

	return user, nil
}

// GetUserByID returns the user with the given id, or ErrNotFound.
func (m *MongoDB) GetUserByID(ctx context.Context, userID bson.ObjectID) (*models.User, error) {
	return m.findUser(ctx, "get user", bson.M{"_id": userID})
}

// GetUserByUsername returns the user with the given normalized username,
// or ErrNotFound. The returned user carries its password digest.
func (m *MongoDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(ctx, "get user by username", bson.M{"username": username})
}

func (m *MongoDB) findUser(ctx context.Context, op string, filter bson.M) (*models.User, error) {
	var user models.User
	err := m.collection(UsersCollection).FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	return &user, nil
}

// UpdatePassword replaces the digest of the user, increments its
// PasswordVersion and returns the updated user.
func (m *MongoDB) UpdatePassword(ctx context.Context, userID bson.ObjectID, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"password":          passwordHash,
			"passwordChangedAt": now,
			"updatedAt":         now,
		},
		"$inc": bson.M{"passwordVersion": 1},
	}

	var user models.User
	err := m.collection(UsersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError("update password", err)
	}

	log.Info().
		Str("user_id", user.ID.Hex()).
		Int64("password_version", user.PasswordVersion).
		Msg("Password updated")

	return &user, nil
}

// DeleteUser removes the user document. It returns ErrNotFound when no
// user had that id.
func (m *MongoDB) DeleteUser(ctx context.Context, userID bson.ObjectID) error {
	res, err := m.collection(UsersCollection).DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return wrapStoreError("delete user", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindUsers runs a list query on users. The password digest is never
// loaded.
func (m *MongoDB) FindUsers(ctx context.Context, spec *query.Spec) ([]models.User, int64, error) {
	scoped := *spec
	if len(scoped.Projection) == 0 {
		scoped.Projection = bson.M{"password": 0}
	}

	users := []models.User{}
	total, err := findWithSpec(ctx, m.collection(UsersCollection), &scoped, &users)
	if err != nil {
		return nil, 0, wrapStoreError("find users", err)
	}
	return users, total, nil
}
