package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// MaxTextLength bounds tweet and message text.
const MaxTextLength = 200

// TweetStore defines the tweet persistence the tweet service needs.
type TweetStore interface {
	CreateTweet(ctx context.Context, tweet *models.Tweet) (*models.Tweet, error)
	GetTweet(ctx context.Context, tweetID bson.ObjectID) (*models.Tweet, error)
	UpdateTweet(ctx context.Context, filter bson.M, set bson.M) (*models.Tweet, error)
	IncrementLikes(ctx context.Context, tweetID bson.ObjectID, delta int64) (*models.Tweet, error)
	DeleteTweet(ctx context.Context, filter bson.M) error
	FindTweets(ctx context.Context, spec *query.Spec) ([]models.Tweet, int64, error)
}

// TweetInput is the body of a new tweet.
type TweetInput struct {
	Text string
	Date time.Time
	Time models.ClockTime
}

// TweetUpdate holds the fields of a tweet edit; nil fields stay unchanged.
type TweetUpdate struct {
	Text *string
	Date *time.Time
	Time *models.ClockTime
}

// TweetService handles tweets, retweets and likes.
type TweetService struct {
	store   TweetStore
	events  events.Publisher
	queries *query.Builder
}

// NewTweetService creates a tweet service.
func NewTweetService(store TweetStore, publisher events.Publisher, limits ...query.Option) *TweetService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	opts := append([]query.Option{
		query.WithAlias(IdentityKey, "author"),
		query.WithObjectIDFields("author", "retweetOf"),
		query.WithStringFields("text"),
	}, limits...)

	return &TweetService{
		store:   store,
		events:  publisher,
		queries: query.NewBuilder(opts...),
	}
}

// normalizeText trims and lowercases text and checks its length.
func normalizeText(text string) (string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return "", invalidInput("text is required")
	}
	if n > MaxTextLength {
		return "", invalidInput("text must be at most %d characters", MaxTextLength)
	}
	return text, nil
}

// Create posts a tweet by the principal.
func (s *TweetService) Create(ctx context.Context, principal *models.Principal, in TweetInput) (*models.Tweet, error) {
	text, err := normalizeText(in.Text)
	if err != nil {
		return nil, err
	}

	tweet, err := s.store.CreateTweet(ctx, &models.Tweet{
		Text:   text,
		Author: principal.ID,
		Date:   in.Date,
		Time:   in.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tweet: %w", err)
	}

	s.publish(events.KindCreated, tweet.ID, principal.ID)
	return tweet, nil
}

// Retweet posts a copy of another tweet by the principal, linked to the
// original and marked as a thread.
func (s *TweetService) Retweet(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) (*models.Tweet, error) {
	original, err := s.store.GetTweet(ctx, tweetID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	retweet, err := s.store.CreateTweet(ctx, &models.Tweet{
		Text:      original.Text,
		Author:    principal.ID,
		Date:      now.Truncate(24 * time.Hour),
		Time:      models.ClockTime{Hour: now.Hour(), Min: now.Minute(), Sec: now.Second()},
		Thread:    true,
		RetweetOf: &original.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retweet: %w", err)
	}

	s.publish(events.KindCreated, retweet.ID, principal.ID)
	return retweet, nil
}

// Get returns one tweet.
func (s *TweetService) Get(ctx context.Context, tweetID bson.ObjectID) (*models.Tweet, error) {
	return s.store.GetTweet(ctx, tweetID)
}

// List returns one page of tweets. The "user" key filters by author.
func (s *TweetService) List(ctx context.Context, params url.Values) (*Page[models.Tweet], error) {
	spec, err := s.queries.Build(params)
	if err != nil {
		return nil, err
	}

	tweets, total, err := s.store.FindTweets(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to list tweets: %w", err)
	}
	return newPage(tweets, total, spec), nil
}

// Update edits a tweet of the principal. Tweets by other users yield
// ErrForbidden.
func (s *TweetService) Update(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID, in TweetUpdate) (*models.Tweet, error) {
	set := bson.M{}
	if in.Text != nil {
		text, err := normalizeText(*in.Text)
		if err != nil {
			return nil, err
		}
		set["text"] = text
	}
	if in.Date != nil {
		set["date"] = *in.Date
	}
	if in.Time != nil {
		set["time"] = *in.Time
	}
	if len(set) == 0 {
		return nil, invalidInput("nothing to update")
	}

	tweet, err := s.store.UpdateTweet(ctx, bson.M{"_id": tweetID, "author": principal.ID}, set)
	if errors.Is(err, database.ErrNotFound) {
		return nil, s.ownershipError(ctx, tweetID)
	}
	if err != nil {
		return nil, err
	}

	s.publish(events.KindUpdated, tweet.ID, principal.ID)
	return tweet, nil
}

// Delete removes a tweet of the principal.
func (s *TweetService) Delete(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) error {
	err := s.store.DeleteTweet(ctx, bson.M{"_id": tweetID, "author": principal.ID})
	if errors.Is(err, database.ErrNotFound) {
		return s.ownershipError(ctx, tweetID)
	}
	if err != nil {
		return err
	}

	s.publish(events.KindDeleted, tweetID, principal.ID)
	return nil
}

// Like adds one like.
func (s *TweetService) Like(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) (*models.Tweet, error) {
	tweet, err := s.store.IncrementLikes(ctx, tweetID, 1)
	if err != nil {
		return nil, err
	}
	s.publish(events.KindLiked, tweetID, principal.ID)
	return tweet, nil
}

// Unlike removes one like. The counter never drops below zero.
func (s *TweetService) Unlike(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) (*models.Tweet, error) {
	tweet, err := s.store.IncrementLikes(ctx, tweetID, -1)
	if err != nil {
		return nil, err
	}
	s.publish(events.KindUnliked, tweetID, principal.ID)
	return tweet, nil
}

// ownershipError tells a missing tweet from someone else's.
func (s *TweetService) ownershipError(ctx context.Context, tweetID bson.ObjectID) error {
	_, err := s.store.GetTweet(ctx, tweetID)
	if err == nil {
		return ErrForbidden
	}
	return err
}

func (s *TweetService) publish(kind events.Kind, tweetID, actorID bson.ObjectID) {
	s.events.Publish(events.New(events.EntityTweet, kind, tweetID.Hex(), actorID.Hex()))
	log.Debug().
		Str("tweet_id", tweetID.Hex()).
		Str("kind", string(kind)).
		Msg("Tweet changed")
}
