package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// TweetService defines the tweet operations the tweet endpoints need.
type TweetService interface {
	Create(ctx context.Context, principal *models.Principal, in services.TweetInput) (*models.Tweet, error)
	Retweet(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) (*models.Tweet, error)
	Get(ctx context.Context, tweetID bson.ObjectID) (*models.Tweet, error)
	List(ctx context.Context, params url.Values) (*services.Page[models.Tweet], error)
	Update(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID, in services.TweetUpdate) (*models.Tweet, error)
	Delete(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) error
	Like(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) (*models.Tweet, error)
	Unlike(ctx context.Context, principal *models.Principal, tweetID bson.ObjectID) (*models.Tweet, error)
}

// TweetHandler handles the /tweets endpoints. Every route is gated.
type TweetHandler struct {
	tweets TweetService
}

// NewTweetHandler creates a tweet handler.
func NewTweetHandler(tweets TweetService) *TweetHandler {
	return &TweetHandler{tweets: tweets}
}

// CreateTweetRequest is the body of POST /tweets.
type CreateTweetRequest struct {
	Text string            `json:"text" validate:"required,max=200"`
	Date *time.Time        `json:"date" validate:"required"`
	Time *models.ClockTime `json:"time" validate:"required"`
}

// UpdateTweetRequest is the body of PATCH /tweets/{id}. Absent fields stay
// unchanged.
type UpdateTweetRequest struct {
	Text *string           `json:"text" validate:"omitempty,max=200"`
	Date *time.Time        `json:"date"`
	Time *models.ClockTime `json:"time"`
}

// RetweetRequest is the body of POST /tweets/retweet.
type RetweetRequest struct {
	Tweet string `json:"tweet" validate:"required,mongodb"`
}

// List lists tweets. Filtering by "user" selects a single author.
func (h *TweetHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.tweets.List(r.Context(), r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", page.Response())
}

// Create posts a tweet by the caller.
func (h *TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req CreateTweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	tweet, err := h.tweets.Create(r.Context(), principal, services.TweetInput{
		Text: req.Text,
		Date: *req.Date,
		Time: *req.Time,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusCreated, "Tweet created successfully", tweet)
}

// Retweet reposts another tweet as the caller.
func (h *TweetHandler) Retweet(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	var req RetweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	// the validator already checked the hex form
	tweetID, _ := bson.ObjectIDFromHex(req.Tweet)

	tweet, err := h.tweets.Retweet(r.Context(), principal, tweetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusCreated, "Retweeted successfully", tweet)
}

// Get returns a tweet by id.
func (h *TweetHandler) Get(w http.ResponseWriter, r *http.Request) {
	tweetID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	tweet, err := h.tweets.Get(r.Context(), tweetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", tweet)
}

// Update edits a tweet of the caller.
func (h *TweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	tweetID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req UpdateTweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	tweet, err := h.tweets.Update(r.Context(), principal, tweetID, services.TweetUpdate{
		Text: req.Text,
		Date: req.Date,
		Time: req.Time,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "Tweet updated successfully", tweet)
}

// Delete removes a tweet of the caller.
func (h *TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	tweetID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.tweets.Delete(r.Context(), principal, tweetID); err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithMessage(w, r, http.StatusOK, "Tweet deleted successfully")
}

// Like increments the like counter of a tweet.
func (h *TweetHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, h.tweets.Like)
}

// Unlike decrements the like counter of a tweet, never below zero.
func (h *TweetHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, h.tweets.Unlike)
}

func (h *TweetHandler) react(w http.ResponseWriter, r *http.Request, fn func(context.Context, *models.Principal, bson.ObjectID) (*models.Tweet, error)) {
	principal, ok := principalFrom(w, r)
	if !ok {
		return
	}

	tweetID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	tweet, err := fn(r.Context(), principal, tweetID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	utils.RespondWithSuccess(w, r, http.StatusOK, "", tweet)
}
