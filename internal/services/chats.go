package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// ChatStore defines the chat persistence the chat service needs,
// including the transaction primitive used by the cascading delete.
type ChatStore interface {
	WithTransaction(ctx context.Context, fn database.TxFunc) error
	GetOrCreateChat(ctx context.Context, a, b bson.ObjectID) (*models.Chat, bool, error)
	GetChat(ctx context.Context, filter bson.M) (*models.Chat, error)
	FindChats(ctx context.Context, spec *query.Spec) ([]models.Chat, int64, error)
	FindOneAndDeleteChat(ctx context.Context, filter bson.M) (*models.Chat, error)
	DeleteChatByID(ctx context.Context, chatID bson.ObjectID) (int64, error)
	DeleteMessagesByChat(ctx context.Context, chatID bson.ObjectID) (int64, error)
}

// ChatService manages direct chats between two users.
type ChatService struct {
	store   ChatStore
	users   UserLookup
	events  events.Publisher
	queries *query.Builder
}

// NewChatService creates a chat service.
func NewChatService(store ChatStore, users UserLookup, publisher events.Publisher, limits ...query.Option) *ChatService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	opts := append([]query.Option{
		query.WithAlias(IdentityKey, "members"),
		query.WithObjectIDFields("members"),
	}, limits...)

	return &ChatService{
		store:   store,
		users:   users,
		events:  publisher,
		queries: query.NewBuilder(opts...),
	}
}

// GetOrCreateWith returns the direct chat between the principal and
// recipient, creating it on first use. The recipient must exist and may
// not be the principal.
func (s *ChatService) GetOrCreateWith(ctx context.Context, principal *models.Principal, recipient bson.ObjectID) (*models.Chat, error) {
	if recipient == principal.ID {
		return nil, invalidInput("cannot open a chat with yourself")
	}
	if _, err := s.users.GetUserByID(ctx, recipient); err != nil {
		return nil, err
	}

	chat, created, err := s.store.GetOrCreateChat(ctx, principal.ID, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat: %w", err)
	}

	if created {
		s.events.Publish(events.New(events.EntityChat, events.KindCreated, chat.ID.Hex(), principal.ID.Hex()))
		log.Info().
			Str("chat_id", chat.ID.Hex()).
			Str("user_id", principal.ID.Hex()).
			Msg("Chat created")
	}
	return chat, nil
}

// GetForMember returns a chat the principal belongs to. Chats of other
// users are reported as not found.
func (s *ChatService) GetForMember(ctx context.Context, principal *models.Principal, chatID bson.ObjectID) (*models.Chat, error) {
	return s.store.GetChat(ctx, memberFilter(chatID, principal.ID))
}

// List returns one page of chats. Callers scope it with AttachIdentity.
func (s *ChatService) List(ctx context.Context, params url.Values) (*Page[models.Chat], error) {
	spec, err := s.queries.Build(params)
	if err != nil {
		return nil, err
	}

	chats, total, err := s.store.FindChats(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return newPage(chats, total, spec), nil
}

// DeleteForMember deletes a chat of the principal together with its
// messages.
func (s *ChatService) DeleteForMember(ctx context.Context, principal *models.Principal, chatID bson.ObjectID) (*models.ChatDeletion, error) {
	result, err := s.DeleteChatWithMessages(ctx, memberFilter(chatID, principal.ID))
	if err != nil {
		return nil, err
	}

	if result.Deleted {
		s.events.Publish(events.New(events.EntityChat, events.KindDeleted, chatID.Hex(), principal.ID.Hex()).
			WithDetail(fmt.Sprintf("%d messages", result.MessagesDeleted)))
	}
	return result, nil
}

// DeleteChatWithMessages removes the first chat matching filter and every
// message of it in one transaction. A filter matching nothing is a no-op
// reported as Deleted == false. On any failure the transaction is aborted,
// the chat stays in place and the error is returned.
func (s *ChatService) DeleteChatWithMessages(ctx context.Context, filter bson.M) (*models.ChatDeletion, error) {
	result := &models.ChatDeletion{}

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		chat, err := s.store.FindOneAndDeleteChat(ctx, filter)
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		n, err := s.store.DeleteMessagesByChat(ctx, chat.ID)
		if err != nil {
			return err
		}

		if _, err := s.store.DeleteChatByID(ctx, chat.ID); err != nil {
			return err
		}

		result.Deleted = true
		result.ChatID = chat.ID
		result.MessagesDeleted = n
		return nil
	})
	if err != nil {
		log.Error().Err(err).Interface("filter", filter).Msg("Cascading chat delete aborted")
		return nil, fmt.Errorf("failed to delete chat: %w", err)
	}

	if result.Deleted {
		log.Info().
			Str("chat_id", result.ChatID.Hex()).
			Int64("messages", result.MessagesDeleted).
			Msg("Chat deleted with messages")
	}
	return result, nil
}

func memberFilter(chatID, userID bson.ObjectID) bson.M {
	return bson.M{"_id": chatID, "members": userID}
}
