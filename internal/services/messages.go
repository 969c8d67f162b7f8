package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// MessageStore defines the message persistence the message service needs.
type MessageStore interface {
	GetChat(ctx context.Context, filter bson.M) (*models.Chat, error)
	GetMessage(ctx context.Context, msgID bson.ObjectID) (*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	DeleteMessage(ctx context.Context, filter bson.M) (*models.Message, error)
	FindMessages(ctx context.Context, spec *query.Spec) ([]models.Message, int64, error)
}

// MessageInput is the body of a new message.
type MessageInput struct {
	Text      string
	Date      time.Time
	Time      models.ClockTime
	Recipient bson.ObjectID
}

// MessageService handles direct messages inside chats.
type MessageService struct {
	store   MessageStore
	events  events.Publisher
	queries *query.Builder
}

// NewMessageService creates a message service. Messages list oldest first.
func NewMessageService(store MessageStore, publisher events.Publisher, limits ...query.Option) *MessageService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	opts := append([]query.Option{
		query.WithDefaultSort(query.DefaultSortField),
		query.WithObjectIDFields("author", "recipient", "chat"),
		query.WithStringFields("text"),
	}, limits...)

	return &MessageService{
		store:   store,
		events:  publisher,
		queries: query.NewBuilder(opts...),
	}
}

// ListForChat returns one page of messages of a chat the principal belongs
// to. The chat filter cannot be overridden from the query string.
func (s *MessageService) ListForChat(ctx context.Context, principal *models.Principal, chatID bson.ObjectID, params url.Values) (*Page[models.Message], error) {
	if _, err := s.store.GetChat(ctx, memberFilter(chatID, principal.ID)); err != nil {
		return nil, err
	}

	spec, err := s.queries.Build(params)
	if err != nil {
		return nil, err
	}
	spec.Constrain("chat", chatID)

	msgs, total, err := s.store.FindMessages(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return newPage(msgs, total, spec), nil
}

// Send posts a message to a chat of the principal. The recipient must be
// the other member of the chat.
func (s *MessageService) Send(ctx context.Context, principal *models.Principal, chatID bson.ObjectID, in MessageInput) (*models.Message, error) {
	text, err := normalizeText(in.Text)
	if err != nil {
		return nil, err
	}

	chat, err := s.store.GetChat(ctx, memberFilter(chatID, principal.ID))
	if err != nil {
		return nil, err
	}

	other, ok := chat.Other(principal.ID)
	if !ok || other != in.Recipient {
		return nil, invalidInput("recipient is not a member of this chat")
	}

	msg, err := s.store.CreateMessage(ctx, &models.Message{
		Text:      text,
		Author:    principal.ID,
		Recipient: in.Recipient,
		Chat:      chat.ID,
		Date:      in.Date,
		Time:      in.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	s.events.Publish(events.New(events.EntityMessage, events.KindCreated, msg.ID.Hex(), principal.ID.Hex()))
	return msg, nil
}

// Delete removes a message the principal authored. Messages by others
// yield ErrForbidden.
func (s *MessageService) Delete(ctx context.Context, principal *models.Principal, msgID bson.ObjectID) (*models.Message, error) {
	msg, err := s.store.DeleteMessage(ctx, bson.M{"_id": msgID, "author": principal.ID})
	if errors.Is(err, database.ErrNotFound) {
		if _, gerr := s.store.GetMessage(ctx, msgID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.New(events.EntityMessage, events.KindDeleted, msg.ID.Hex(), principal.ID.Hex()))
	return msg, nil
}
