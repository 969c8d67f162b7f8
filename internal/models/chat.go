package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Chat is a direct conversation between exactly two users.
type Chat struct {
	ID        bson.ObjectID   `json:"_id" bson:"_id,omitempty"`
	Members   []bson.ObjectID `json:"members" bson:"members"`
	CreatedAt time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// HasMember reports whether userID takes part in the chat.
func (c *Chat) HasMember(userID bson.ObjectID) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Other returns the member that is not userID, and false when userID is not
// a member.
func (c *Chat) Other(userID bson.ObjectID) (bson.ObjectID, bool) {
	if !c.HasMember(userID) {
		return bson.NilObjectID, false
	}
	for _, m := range c.Members {
		if m != userID {
			return m, true
		}
	}
	return bson.NilObjectID, false
}

// Message belongs to exactly one chat. Author and Recipient are both
// members of that chat.
type Message struct {
	ID        bson.ObjectID `json:"_id" bson:"_id,omitempty"`
	Text      string        `json:"text" bson:"text"`
	Author    bson.ObjectID `json:"author" bson:"author"`
	Recipient bson.ObjectID `json:"recipient" bson:"recipient"`
	Chat      bson.ObjectID `json:"chat" bson:"chat"`
	Date      time.Time     `json:"date" bson:"date"`
	Time      ClockTime     `json:"time" bson:"time"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// ChatDeletion reports the outcome of a cascading chat delete. Deleted is
// false when no chat matched, which is not an error.
type ChatDeletion struct {
	Deleted         bool          `json:"deleted"`
	ChatID          bson.ObjectID `json:"chatId"`
	MessagesDeleted int64         `json:"messagesDeleted"`
}
