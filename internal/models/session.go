package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Session represents an authenticated session backed by Redis storage.
// Sessions are created on login and destroyed on logout, password change,
// revocation or when their self-destruct timer fires.
//
// The session does not hold a password. It records the PasswordVersion of
// the user at login time; a mismatch with the live user revokes it.
//
// Example (internal representation):
//
//	Session{
//	  ID: "3f2c1a9e-6d55-4d0b-8c1e-3b1f0e6f9a10",
//	  UserID: bson.ObjectID{...},
//	  Username: "ada",
//	  PasswordVersion: 0,
//	  DeviceInfo: "Chrome 120.0 on macOS 10.15.7 (Desktop)",
//	  IPAddress: "192.168.1.100",
//	  VerifiedAt: time.Now(),
//	  CreatedAt: time.Now(),
//	  ExpiresAt: time.Now().Add(24*time.Hour),
//	}
type Session struct {
	ID              string        `json:"id"`
	UserID          bson.ObjectID `json:"userId"`
	Username        string        `json:"username"`
	PasswordVersion int64         `json:"-"`
	DeviceInfo      string        `json:"deviceInfo"`
	IPAddress       string        `json:"ipAddress"`
	VerifiedAt      time.Time     `json:"verifiedAt"` // When the password was last checked
	CreatedAt       time.Time     `json:"createdAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
}

// SessionInfo is a sanitized version of Session for session listing
// endpoints. Current marks the session the request was made with.
//
// JSON example:
//
//	{
//	  "id": "3f2c1a9e-6d55-4d0b-8c1e-3b1f0e6f9a10",
//	  "deviceInfo": "Chrome 120.0 on macOS 10.15.7 (Desktop)",
//	  "ipAddress": "192.168.1.100",
//	  "createdAt": "2024-01-20T14:45:00Z",
//	  "expiresAt": "2024-01-21T14:45:00Z",
//	  "current": true
//	}
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

// Info returns the public view of s.
func (s *Session) Info(currentID string) SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		DeviceInfo: s.DeviceInfo,
		IPAddress:  s.IPAddress,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
		Current:    s.ID == currentID,
	}
}
