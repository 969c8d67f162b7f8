package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/metrics"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
)

// Reasons a session is destroyed, used in logs, events and metrics.
const (
	ReasonLogout         = "logout"
	ReasonExpired        = "expired"
	ReasonRevoked        = "revoked"
	ReasonPasswordChange = "password_change"
	ReasonUserDeleted    = "user_deleted"
	ReasonReplaced       = "replaced"
)

// SessionStore defines the interface for session storage operations.
// DeleteSession must report whether the call removed the record.
type SessionStore interface {
	SetSession(ctx context.Context, s *models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, userID bson.ObjectID, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, userID bson.ObjectID, sessionID string) (bool, error)
	ListUserSessions(ctx context.Context, userID bson.ObjectID) ([]string, error)
}

// SessionService manages session records and their self-destruct timers.
//
// Every session gets a timer firing at maxAge - lead, which destroys it
// through the same idempotent path as logout. The record's TTL in Redis is
// maxAge, so a record outlives its timer only if the process dies.
type SessionService struct {
	store  SessionStore
	maxAge time.Duration
	lead   time.Duration
	events events.Publisher

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewSessionService creates a new session service.
//
// Parameters:
//   - store: Redis-backed session records
//   - maxAge: Session lifetime
//   - lead: How long before maxAge the self-destruct timer fires
//   - publisher: Lifecycle event sink (nil discards events)
func NewSessionService(store SessionStore, maxAge, lead time.Duration, publisher events.Publisher) *SessionService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &SessionService{
		store:  store,
		maxAge: maxAge,
		lead:   lead,
		events: publisher,
		timers: make(map[string]*time.Timer),
	}
}

// MaxAge returns the lifetime of new sessions.
func (s *SessionService) MaxAge() time.Duration {
	return s.maxAge
}

// Create stores a new session for user and arms its self-destruct timer.
// The session ID is a fresh UUIDv4 and is never reused.
func (s *SessionService) Create(ctx context.Context, user *models.User, deviceInfo, ipAddress string) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		Username:        user.Username,
		PasswordVersion: user.PasswordVersion,
		DeviceInfo:      deviceInfo,
		IPAddress:       ipAddress,
		VerifiedAt:      now,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.maxAge),
	}

	if err := s.store.SetSession(ctx, session, s.maxAge); err != nil {
		log.Error().
			Err(err).
			Str("user_id", user.ID.Hex()).
			Msg("Failed to create session")
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.schedule(session.UserID, session.ID)
	metrics.SessionCreated()
	s.events.Publish(events.New(events.EntitySession, events.KindCreated, session.ID, user.ID.Hex()))

	log.Info().
		Str("user_id", user.ID.Hex()).
		Str("session_id", session.ID).
		Str("device", deviceInfo).
		Msg("Session created successfully")

	return session, nil
}

// Get loads a live session. Returns database.ErrSessionNotFound once the
// session has been destroyed.
func (s *SessionService) Get(ctx context.Context, userID bson.ObjectID, sessionID string) (*models.Session, error) {
	return s.store.GetSession(ctx, userID, sessionID)
}

// Destroy removes a session and stops its timer. It is idempotent: when
// several callers race (logout, timer, revocation) exactly one of them gets
// destroyed == true, and only that one records the destruction.
func (s *SessionService) Destroy(ctx context.Context, userID bson.ObjectID, sessionID, reason string) (bool, error) {
	s.stopTimer(userID, sessionID)

	destroyed, err := s.store.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to destroy session: %w", err)
	}
	if !destroyed {
		return false, nil
	}

	metrics.SessionDestroyed(reason)
	s.events.Publish(events.New(events.EntitySession, events.KindDestroyed, sessionID, userID.Hex()).WithDetail(reason))

	log.Info().
		Str("user_id", userID.Hex()).
		Str("session_id", sessionID).
		Str("reason", reason).
		Msg("Session destroyed")

	return true, nil
}

// List returns every live session of a user. currentID marks the session
// the request was made with.
func (s *SessionService) List(ctx context.Context, userID bson.ObjectID, currentID string) ([]models.SessionInfo, error) {
	ids, err := s.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]models.SessionInfo, 0, len(ids))
	for _, id := range ids {
		session, err := s.store.GetSession(ctx, userID, id)
		if err != nil {
			if !errors.Is(err, database.ErrSessionNotFound) {
				log.Warn().
					Err(err).
					Str("user_id", userID.Hex()).
					Str("session_id", id).
					Msg("Failed to get session info")
			}
			continue
		}
		sessions = append(sessions, session.Info(currentID))
	}

	return sessions, nil
}

// RevokeAll destroys every session of a user except exceptID (which may be
// empty) and returns how many were destroyed by this call.
func (s *SessionService) RevokeAll(ctx context.Context, userID bson.ObjectID, exceptID, reason string) (int, error) {
	ids, err := s.store.ListUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	count := 0
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		destroyed, err := s.Destroy(ctx, userID, id, reason)
		if err != nil {
			log.Warn().
				Err(err).
				Str("user_id", userID.Hex()).
				Str("session_id", id).
				Msg("Failed to delete session")
			continue
		}
		if destroyed {
			count++
		}
	}

	log.Info().
		Str("user_id", userID.Hex()).
		Int("count", count).
		Str("reason", reason).
		Msg("Sessions revoked")

	return count, nil
}

// Shutdown stops every pending timer. Records stay in Redis and expire by
// TTL; no new timers are armed afterwards.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.closed = true
}

// pendingTimers reports how many self-destruct timers are armed.
func (s *SessionService) pendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func timerKey(userID bson.ObjectID, sessionID string) string {
	return userID.Hex() + ":" + sessionID
}

func (s *SessionService) schedule(userID bson.ObjectID, sessionID string) {
	delay := s.maxAge - s.lead
	if delay <= 0 {
		delay = s.maxAge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.timers[timerKey(userID, sessionID)] = time.AfterFunc(delay, func() {
		s.expire(userID, sessionID)
	})
}

func (s *SessionService) stopTimer(userID bson.ObjectID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := timerKey(userID, sessionID)
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

func (s *SessionService) expire(userID bson.ObjectID, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.Destroy(ctx, userID, sessionID, ReasonExpired); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.Hex()).
			Str("session_id", sessionID).
			Msg("Failed to destroy expired session")
	}
}

// ExtractDeviceInfo parses a User-Agent string into a short, readable
// device description such as "Chrome 120.0.0.0 · Windows 10 · Desktop".
// Falls back to the raw (truncated) string when nothing can be parsed.
func ExtractDeviceInfo(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgent)

	var parts []string

	if ua.Name != "" {
		browser := ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
		parts = append(parts, browser)
	}

	if ua.OS != "" {
		os := ua.OS
		if ua.OSVersion != "" {
			os += " " + ua.OSVersion
		}
		parts = append(parts, os)
	}

	switch {
	case ua.Mobile:
		parts = append(parts, "Mobile")
	case ua.Tablet:
		parts = append(parts, "Tablet")
	case ua.Desktop:
		parts = append(parts, "Desktop")
	}

	if len(parts) == 0 {
		if len(userAgent) > 100 {
			return userAgent[:100] + "..."
		}
		return userAgent
	}

	return strings.Join(parts, " · ")
}
