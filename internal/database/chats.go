package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// orderedMembers returns the pair in a canonical order so one pair of users
// always maps to the same members array.
func orderedMembers(a, b bson.ObjectID) bson.A {
	if b.Hex() < a.Hex() {
		a, b = b, a
	}
	return bson.A{a, b}
}

// GetOrCreateChat returns the direct chat between a and b, creating it when
// it does not exist yet. created reports whether this call inserted it.
func (m *MongoDB) GetOrCreateChat(ctx context.Context, a, b bson.ObjectID) (chat *models.Chat, created bool, err error) {
	now := time.Now().UTC()
	newID := bson.NewObjectID()
	filter := bson.M{"members": orderedMembers(a, b)}
	update := bson.M{"$setOnInsert": bson.M{"_id": newID, "createdAt": now, "updatedAt": now}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc models.Chat
	if err := m.collection(ChatsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, false, wrapStoreError("get or create chat", err)
	}

	return &doc, doc.ID == newID, nil
}

// GetChat returns the chat matching filter, or ErrNotFound.
func (m *MongoDB) GetChat(ctx context.Context, filter bson.M) (*models.Chat, error) {
	var chat models.Chat
	err := m.collection(ChatsCollection).FindOne(ctx, filter).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError("get chat", err)
	}
	return &chat, nil
}

// FindChats runs a list query on chats.
func (m *MongoDB) FindChats(ctx context.Context, spec *query.Spec) ([]models.Chat, int64, error) {
	chats := []models.Chat{}
	total, err := findWithSpec(ctx, m.collection(ChatsCollection), spec, &chats)
	if err != nil {
		return nil, 0, wrapStoreError("find chats", err)
	}
	return chats, total, nil
}

// FindOneAndDeleteChat removes the first chat matching filter and returns
// it, or ErrNotFound when nothing matched.
func (m *MongoDB) FindOneAndDeleteChat(ctx context.Context, filter bson.M) (*models.Chat, error) {
	var chat models.Chat
	err := m.collection(ChatsCollection).FindOneAndDelete(ctx, filter).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError("delete chat", err)
	}
	return &chat, nil
}

// DeleteChatByID removes the chat with the given id and reports how many
// documents were removed. Zero is not an error.
func (m *MongoDB) DeleteChatByID(ctx context.Context, chatID bson.ObjectID) (int64, error) {
	res, err := m.collection(ChatsCollection).DeleteOne(ctx, bson.M{"_id": chatID})
	if err != nil {
		return 0, wrapStoreError("delete chat by id", err)
	}
	return res.DeletedCount, nil
}
