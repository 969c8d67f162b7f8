package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestChat_Other(t *testing.T) {
	a, b, stranger := bson.NewObjectID(), bson.NewObjectID(), bson.NewObjectID()
	chat := &Chat{Members: []bson.ObjectID{a, b}}

	other, ok := chat.Other(a)
	assert.True(t, ok)
	assert.Equal(t, b, other)

	other, ok = chat.Other(b)
	assert.True(t, ok)
	assert.Equal(t, a, other)

	_, ok = chat.Other(stranger)
	assert.False(t, ok)
	assert.False(t, chat.HasMember(stranger))
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "ada", NormalizeUsername("  Ada "))
}

func TestSession_Info(t *testing.T) {
	s := &Session{ID: "s1", DeviceInfo: "Chrome", IPAddress: "10.0.0.1", PasswordVersion: 3}

	info := s.Info("s1")
	assert.True(t, info.Current)
	assert.Equal(t, "Chrome", info.DeviceInfo)

	assert.False(t, s.Info("other").Current)
}
