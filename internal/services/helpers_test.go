package services

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/WencesJ/Speer-Tweeter/internal/credentials"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/testutil"
)

var testSecret = []byte("test-secret-key-min-32-bytes-long!!")

// publisher records published events.
type publisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *publisher) count(entity events.Entity, kind events.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Entity == entity && e.Kind == kind {
			n++
		}
	}
	return n
}

func (p *publisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return events.Event{}
	}
	return p.events[len(p.events)-1]
}

type authFixture struct {
	auth     *SessionAuthenticator
	creds    *CredentialStore
	sessions *SessionService
	tokens   *TokenService
	store    *testutil.MemoryStore
	events   *publisher
	mr       *miniredis.Miniredis
}

func setupAuth(t *testing.T, maxAge, lead time.Duration) *authFixture {
	t.Helper()

	mr, cleanup := testutil.SetupMiniRedis(t)
	t.Cleanup(cleanup)
	redisDB := testutil.NewTestRedisDB(t, mr)

	store := testutil.NewMemoryStore()
	pub := &publisher{}

	creds := NewCredentialStore(store, credentials.NewHasher(bcrypt.MinCost), nil, pub)
	sessions := NewSessionService(redisDB, maxAge, lead, pub)
	t.Cleanup(sessions.Shutdown)
	tokens := NewTokenService(testSecret)

	return &authFixture{
		auth:     NewSessionAuthenticator(creds, sessions, tokens, store),
		creds:    creds,
		sessions: sessions,
		tokens:   tokens,
		store:    store,
		events:   pub,
		mr:       mr,
	}
}
