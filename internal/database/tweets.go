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

// CreateTweet inserts tweet and returns it with its id and timestamps set.
func (m *MongoDB) CreateTweet(ctx context.Context, tweet *models.Tweet) (*models.Tweet, error) {
	now := time.Now().UTC()
	tweet.CreatedAt = now
	tweet.UpdatedAt = now

	res, err := m.collection(TweetsCollection).InsertOne(ctx, tweet)
	if err != nil {
		return nil, wrapStoreError("create tweet", err)
	}
	tweet.ID = res.InsertedID.(bson.ObjectID)
	return tweet, nil
}

// GetTweet returns the tweet with the given id, or ErrNotFound.
func (m *MongoDB) GetTweet(ctx context.Context, tweetID bson.ObjectID) (*models.Tweet, error) {
	var tweet models.Tweet
	err := m.collection(TweetsCollection).FindOne(ctx, bson.M{"_id": tweetID}).Decode(&tweet)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError("get tweet", err)
	}
	return &tweet, nil
}

// UpdateTweet applies set to the tweet matching filter and returns the
// updated document, or ErrNotFound when nothing matched.
func (m *MongoDB) UpdateTweet(ctx context.Context, filter bson.M, set bson.M) (*models.Tweet, error) {
	fields := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range set {
		fields[k] = v
	}
	return m.findOneAndUpdateTweet(ctx, "update tweet", filter, bson.M{"$set": fields})
}

// IncrementLikes adds delta to the like counter. A decrement only applies
// while the counter is positive; at zero the tweet is returned unchanged.
func (m *MongoDB) IncrementLikes(ctx context.Context, tweetID bson.ObjectID, delta int64) (*models.Tweet, error) {
	filter := bson.M{"_id": tweetID}
	if delta < 0 {
		filter["likes"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"likes": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}

	tweet, err := m.findOneAndUpdateTweet(ctx, "update likes", filter, update)
	if errors.Is(err, ErrNotFound) && delta < 0 {
		return m.GetTweet(ctx, tweetID)
	}
	return tweet, err
}

func (m *MongoDB) findOneAndUpdateTweet(ctx context.Context, op string, filter, update bson.M) (*models.Tweet, error) {
	var tweet models.Tweet
	err := m.collection(TweetsCollection).
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&tweet)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	return &tweet, nil
}

// DeleteTweet removes the tweet matching filter, or returns ErrNotFound.
func (m *MongoDB) DeleteTweet(ctx context.Context, filter bson.M) error {
	res, err := m.collection(TweetsCollection).DeleteOne(ctx, filter)
	if err != nil {
		return wrapStoreError("delete tweet", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindTweets runs a list query on tweets.
func (m *MongoDB) FindTweets(ctx context.Context, spec *query.Spec) ([]models.Tweet, int64, error) {
	tweets := []models.Tweet{}
	total, err := findWithSpec(ctx, m.collection(TweetsCollection), spec, &tweets)
	if err != nil {
		return nil, 0, wrapStoreError("find tweets", err)
	}
	return tweets, total, nil
}
