// Package models defines the core domain models for the application.
// These models represent the data structures used throughout the system
// for users, sessions, tweets, chats and messages.
//
// Stored models carry matching JSON and BSON struct tags so the field names
// clients filter and sort on are the document field names. Sensitive fields
// are marked with `json:"-"` to prevent accidental exposure in API responses.
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User represents a user account in the system, authenticated by username
// and password.
//
// PasswordVersion starts at 0 and is incremented on every password change.
// Sessions record the version they were created with, so a change revokes
// every older session on its next request.
//
// JSON example:
//
//	{
//	  "_id": "65a5c0e2f1d2a3b4c5d6e7f8",
//	  "username": "ada",
//	  "passwordVersion": 1,
//	  "passwordChangedAt": "2024-01-20T14:45:00Z",
//	  "createdAt": "2024-01-15T10:30:00Z",
//	  "updatedAt": "2024-01-20T14:45:00Z"
//	}
type User struct {
	ID                bson.ObjectID `json:"_id" bson:"_id,omitempty"`                                        // Unique user identifier
	Username          string        `json:"username" bson:"username"`                                        // Lowercased, unique
	Password          string        `json:"-" bson:"password"`                                               // bcrypt digest (NEVER exposed in JSON)
	PasswordVersion   int64         `json:"passwordVersion" bson:"passwordVersion"`                          // Revocation counter
	PasswordChangedAt *time.Time    `json:"passwordChangedAt,omitempty" bson:"passwordChangedAt,omitempty"` // Last password change (nullable)
	CreatedAt         time.Time     `json:"createdAt" bson:"createdAt"`                                      // Account creation timestamp
	UpdatedAt         time.Time     `json:"updatedAt" bson:"updatedAt"`                                      // Last update timestamp
}

// Principal is the resolved identity of an authenticated request.
// It lives in the request context only and is never persisted.
type Principal struct {
	ID       bson.ObjectID `json:"_id"`
	Username string        `json:"username"`
}

// Principal returns the identity of u.
func (u *User) Principal() *Principal {
	return &Principal{ID: u.ID, Username: u.Username}
}

// Username length bounds, counted in characters after normalization.
const (
	UsernameMinLen = 3
	UsernameMaxLen = 30
)

// NormalizeUsername trims and lowercases a username the way it is stored.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
