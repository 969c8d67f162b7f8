package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ClockTime is the wall-clock time a client attaches to tweets and messages.
type ClockTime struct {
	Hour int `json:"hour" bson:"hour" validate:"min=0,max=23"`
	Min  int `json:"min" bson:"min" validate:"min=0,max=59"`
	Sec  int `json:"sec" bson:"sec" validate:"min=0,max=59"`
}

// Tweet is a short post. Retweets are tweets with Thread set and RetweetOf
// pointing at the original.
type Tweet struct {
	ID        bson.ObjectID  `json:"_id" bson:"_id,omitempty"`
	Text      string         `json:"text" bson:"text"`
	Author    bson.ObjectID  `json:"author" bson:"author"`
	Date      time.Time      `json:"date" bson:"date"`
	Time      ClockTime      `json:"time" bson:"time"`
	Likes     int64          `json:"likes" bson:"likes"`
	Thread    bool           `json:"thread" bson:"thread"`
	RetweetOf *bson.ObjectID `json:"retweetOf,omitempty" bson:"retweetOf,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt" bson:"updatedAt"`
}
