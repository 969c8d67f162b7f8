package cache

import "go.mongodb.org/mongo-driver/v2/bson"

// Key prefixes. Keys take the form "prefix:identifier".
const (
	UserPrefix    = "user:"
	SessionPrefix = "session:"
)

// UserKey is the key of a cached user by id.
//
// Example: "user:65a5c0e2f1d2a3b4c5d6e7f8"
func UserKey(userID bson.ObjectID) string {
	return UserPrefix + userID.Hex()
}

// UserByUsernameKey is the key of a cached user by username.
//
// Example: "user:username:ada"
func UserByUsernameKey(username string) string {
	return UserPrefix + "username:" + username
}

// SessionKey is the key of a session record. Sessions are scoped per user.
//
// Example: "session:65a5c0e2f1d2a3b4c5d6e7f8:3f2c1a9e-6d55-4d0b-8c1e-3b1f0e6f9a10"
func SessionKey(userID bson.ObjectID, sessionID string) string {
	return SessionPrefix + userID.Hex() + ":" + sessionID
}

// SessionPattern is a SCAN pattern matching every session of a user.
//
// Example: "session:65a5c0e2f1d2a3b4c5d6e7f8:*"
func SessionPattern(userID bson.ObjectID) string {
	return SessionPrefix + userID.Hex() + ":*"
}
