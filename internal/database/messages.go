package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// CreateMessage inserts msg and returns it with its id and timestamps set.
func (m *MongoDB) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	res, err := m.collection(MessagesCollection).InsertOne(ctx, msg)
	if err != nil {
		return nil, wrapStoreError("create message", err)
	}
	msg.ID = res.InsertedID.(bson.ObjectID)
	return msg, nil
}

// GetMessage returns the message with the given id, or ErrNotFound.
func (m *MongoDB) GetMessage(ctx context.Context, msgID bson.ObjectID) (*models.Message, error) {
	var msg models.Message
	err := m.collection(MessagesCollection).FindOne(ctx, bson.M{"_id": msgID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError("get message", err)
	}
	return &msg, nil
}

// DeleteMessage removes the message matching filter and returns it, or
// ErrNotFound.
func (m *MongoDB) DeleteMessage(ctx context.Context, filter bson.M) (*models.Message, error) {
	var msg models.Message
	err := m.collection(MessagesCollection).FindOneAndDelete(ctx, filter).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError("delete message", err)
	}
	return &msg, nil
}

// DeleteMessagesByChat removes every message of a chat and reports how many
// were removed.
func (m *MongoDB) DeleteMessagesByChat(ctx context.Context, chatID bson.ObjectID) (int64, error) {
	res, err := m.collection(MessagesCollection).DeleteMany(ctx, bson.M{"chat": chatID})
	if err != nil {
		return 0, wrapStoreError("delete chat messages", err)
	}
	return res.DeletedCount, nil
}

// FindMessages runs a list query on messages.
func (m *MongoDB) FindMessages(ctx context.Context, spec *query.Spec) ([]models.Message, int64, error) {
	msgs := []models.Message{}
	total, err := findWithSpec(ctx, m.collection(MessagesCollection), spec, &msgs)
	if err != nil {
		return nil, 0, wrapStoreError("find messages", err)
	}
	return msgs, total, nil
}
