package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// Page is one page of a list query.
type Page[T any] struct {
	Items  []T
	Total  int64
	Params utils.PageParams
}

// Response renders the page with its pagination metadata.
func (p *Page[T]) Response() utils.PaginatedResponse {
	return utils.NewPaginatedResponse(p.Items, p.Params, p.Total)
}

func newPage[T any](items []T, total int64, spec *query.Spec) *Page[T] {
	return &Page[T]{Items: items, Total: total, Params: spec.PageParams()}
}

// UserStore defines the user persistence the user service needs.
type UserStore interface {
	FindUsers(ctx context.Context, spec *query.Spec) ([]models.User, int64, error)
	DeleteUser(ctx context.Context, userID bson.ObjectID) error
}

// UserReader loads single users, possibly through the cache.
type UserReader interface {
	GetUserByID(ctx context.Context, userID bson.ObjectID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// UserService serves user listings, profiles and account deletion.
type UserService struct {
	store      UserStore
	reader     UserReader
	invalidate UserInvalidator // nil when caching is disabled
	sessions   *SessionService
	events     events.Publisher
	queries    *query.Builder
}

// NewUserService creates a user service. invalidator may be nil.
func NewUserService(store UserStore, reader UserReader, invalidator UserInvalidator, sessions *SessionService, publisher events.Publisher, limits ...query.Option) *UserService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	opts := append([]query.Option{
		query.WithHiddenFields("password"),
		query.WithStringFields("username"),
	}, limits...)

	return &UserService{
		store:      store,
		reader:     reader,
		invalidate: invalidator,
		sessions:   sessions,
		events:     publisher,
		queries:    query.NewBuilder(opts...),
	}
}

// List returns one page of users. The password digest can be neither
// filtered on nor selected.
func (s *UserService) List(ctx context.Context, params url.Values) (*Page[models.User], error) {
	spec, err := s.queries.Build(params)
	if err != nil {
		return nil, err
	}

	users, total, err := s.store.FindUsers(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return newPage(users, total, spec), nil
}

// GetByUsername returns the public profile of a user.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.reader.GetUserByUsername(ctx, models.NormalizeUsername(username))
}

// Me returns the record of the authenticated user.
func (s *UserService) Me(ctx context.Context, principal *models.Principal) (*models.User, error) {
	return s.reader.GetUserByID(ctx, principal.ID)
}

// DeleteAccount removes the user and destroys all of their sessions.
// Sessions the sweep misses fail their next revocation check.
func (s *UserService) DeleteAccount(ctx context.Context, principal *models.Principal) error {
	if err := s.store.DeleteUser(ctx, principal.ID); err != nil {
		return err
	}

	if s.invalidate != nil {
		user := &models.User{ID: principal.ID, Username: principal.Username}
		if err := s.invalidate.InvalidateUser(ctx, user); err != nil {
			log.Warn().Err(err).Str("user_id", principal.ID.Hex()).Msg("Failed to invalidate cached user")
		}
	}

	if _, err := s.sessions.RevokeAll(ctx, principal.ID, "", ReasonUserDeleted); err != nil {
		log.Warn().Err(err).Str("user_id", principal.ID.Hex()).Msg("Failed to revoke sessions of deleted user")
	}

	s.events.Publish(events.New(events.EntityUser, events.KindDeleted, principal.ID.Hex(), principal.ID.Hex()))
	log.Info().Str("user_id", principal.ID.Hex()).Msg("User account deleted")
	return nil
}
