// Package testutil provides common testing utilities, fixtures, and helpers
// for use across all test files of the service.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
)

// TestUser creates a test user with default values
func TestUser() *models.User {
	return &models.User{
		ID:        bson.NewObjectID(),
		Username:  "testuser",
		Password:  "$2a$04$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// TestUserNamed creates a test user with a specific username
func TestUserNamed(username string) *models.User {
	user := TestUser()
	user.Username = username
	return user
}

// TestUserWithID creates a test user with a specific ID
func TestUserWithID(id bson.ObjectID) *models.User {
	user := TestUser()
	user.ID = id
	return user
}

// TestPrincipal returns the principal of a fresh test user
func TestPrincipal() *models.Principal {
	return TestUser().Principal()
}

// TestSession creates a live session of user
func TestSession(user *models.User) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		Username:        user.Username,
		PasswordVersion: user.PasswordVersion,
		DeviceInfo:      "Chrome 120.0.0.0 · Windows 10 · Desktop",
		IPAddress:       IPAddresses.Public,
		VerifiedAt:      now,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Hour),
	}
}

// TestTweet creates a tweet by author
func TestTweet(author bson.ObjectID, text string) *models.Tweet {
	now := time.Now().UTC()
	return &models.Tweet{
		ID:        bson.NewObjectID(),
		Text:      text,
		Author:    author,
		Date:      now.Truncate(24 * time.Hour),
		Time:      models.ClockTime{Hour: 12, Min: 30, Sec: 0},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestChat creates a chat between a and b
func TestChat(a, b bson.ObjectID) *models.Chat {
	now := time.Now().UTC()
	return &models.Chat{
		ID:        bson.NewObjectID(),
		Members:   []bson.ObjectID{a, b},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TimePtr returns a pointer to the given time
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StringPtr returns a pointer to the given string
func StringPtr(s string) *string {
	return &s
}

// UserAgents provides common user agent strings for testing
var UserAgents = struct {
	Chrome       string
	Safari       string
	Firefox      string
	Edge         string
	MobileChrome string
	MobileSafari string
	Unknown      string
}{
	Chrome:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Safari:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	Firefox:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	Edge:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	MobileChrome: "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.144 Mobile Safari/537.36",
	MobileSafari: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	Unknown:      "",
}

// IPAddresses provides test IP addresses
var IPAddresses = struct {
	Public     string
	Private    string
	Localhost  string
	Private10  string
	Private172 string
}{
	Public:     "203.0.113.42",
	Private:    "192.168.1.100",
	Localhost:  "127.0.0.1",
	Private10:  "10.0.0.1",
	Private172: "172.16.0.1",
}
