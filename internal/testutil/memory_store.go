package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

// MemoryStore is an in-memory stand-in for database.MongoDB.
//
// Filters support equality (matching any element of array fields), $in and
// the range operators used by the query builder. Transactions snapshot every
// collection and restore the snapshot when the callback fails or panics.
// Fail makes a named method return an error, which is how tests break a
// step in the middle of a transaction.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[bson.ObjectID]models.User
	tweets   map[bson.ObjectID]models.Tweet
	chats    map[bson.ObjectID]models.Chat
	msgs     map[bson.ObjectID]models.Message
	failures map[string]error

	Transactions int // committed or aborted transactions
	Aborted      int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    map[bson.ObjectID]models.User{},
		tweets:   map[bson.ObjectID]models.Tweet{},
		chats:    map[bson.ObjectID]models.Chat{},
		msgs:     map[bson.ObjectID]models.Message{},
		failures: map[string]error{},
	}
}

// Fail makes method return err until cleared with a nil err.
func (s *MemoryStore) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *MemoryStore) failure(method string) error {
	if err, ok := s.failures[method]; ok {
		return &database.StoreError{Op: method, Err: err}
	}
	return nil
}

// WithTransaction runs fn against a snapshot that is restored on error.
func (s *MemoryStore) WithTransaction(ctx context.Context, fn database.TxFunc) (err error) {
	s.mu.Lock()
	snap := s.snapshot()
	s.Transactions++
	s.mu.Unlock()

	restore := func() {
		s.mu.Lock()
		s.users, s.tweets, s.chats, s.msgs = snap.users, snap.tweets, snap.chats, snap.msgs
		s.Aborted++
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() *MemoryStore {
	return &MemoryStore{
		users:  cloneMap(s.users),
		tweets: cloneMap(s.tweets),
		chats:  cloneMap(s.chats),
		msgs:   cloneMap(s.msgs),
	}
}

func cloneMap[V any](m map[bson.ObjectID]V) map[bson.ObjectID]V {
	out := make(map[bson.ObjectID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateUser"); err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if u.Username == username {
			return nil, database.ErrDuplicateUsername
		}
	}

	now := time.Now().UTC()
	user := models.User{
		ID:        bson.NewObjectID(),
		Username:  username,
		Password:  passwordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	return &user, nil
}

// PutUser stores user as is, assigning an id when it has none.
func (s *MemoryStore) PutUser(user *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	s.users[user.ID] = *user
	return user
}

func (s *MemoryStore) GetUserByID(ctx context.Context, userID bson.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetUserByUsername"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, userID bson.ObjectID, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("UpdatePassword"); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	now := time.Now().UTC()
	u.Password = passwordHash
	u.PasswordVersion++
	u.PasswordChangedAt = &now
	u.UpdatedAt = now
	s.users[userID] = u
	return &u, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, userID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteUser"); err != nil {
		return err
	}
	if _, ok := s.users[userID]; !ok {
		return database.ErrNotFound
	}
	delete(s.users, userID)
	return nil
}

func (s *MemoryStore) FindUsers(ctx context.Context, spec *query.Spec) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("FindUsers"); err != nil {
		return nil, 0, err
	}
	users, total := find(s.users, spec)
	for i := range users {
		users[i].Password = ""
	}
	return users, total, nil
}

// Tweets

func (s *MemoryStore) CreateTweet(ctx context.Context, tweet *models.Tweet) (*models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateTweet"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	tweet.ID = bson.NewObjectID()
	tweet.CreatedAt = now
	tweet.UpdatedAt = now
	s.tweets[tweet.ID] = *tweet
	return tweet, nil
}

func (s *MemoryStore) GetTweet(ctx context.Context, tweetID bson.ObjectID) (*models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[tweetID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) UpdateTweet(ctx context.Context, filter bson.M, set bson.M) (*models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := firstMatch(s.tweets, filter)
	if !ok {
		return nil, database.ErrNotFound
	}
	t := s.tweets[id]
	if v, ok := set["text"].(string); ok {
		t.Text = v
	}
	if v, ok := set["date"].(time.Time); ok {
		t.Date = v
	}
	if v, ok := set["time"].(models.ClockTime); ok {
		t.Time = v
	}
	t.UpdatedAt = time.Now().UTC()
	s.tweets[id] = t
	return &t, nil
}

func (s *MemoryStore) IncrementLikes(ctx context.Context, tweetID bson.ObjectID, delta int64) (*models.Tweet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tweets[tweetID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if t.Likes+delta >= 0 {
		t.Likes += delta
		s.tweets[tweetID] = t
	}
	return &t, nil
}

func (s *MemoryStore) DeleteTweet(ctx context.Context, filter bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := firstMatch(s.tweets, filter)
	if !ok {
		return database.ErrNotFound
	}
	delete(s.tweets, id)
	return nil
}

func (s *MemoryStore) FindTweets(ctx context.Context, spec *query.Spec) ([]models.Tweet, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tweets, total := find(s.tweets, spec)
	return tweets, total, nil
}

// Chats

func (s *MemoryStore) GetOrCreateChat(ctx context.Context, a, b bson.ObjectID) (*models.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("GetOrCreateChat"); err != nil {
		return nil, false, err
	}
	for _, c := range s.chats {
		if c.HasMember(a) && c.HasMember(b) {
			return &c, false, nil
		}
	}
	now := time.Now().UTC()
	chat := models.Chat{ID: bson.NewObjectID(), Members: []bson.ObjectID{a, b}, CreatedAt: now, UpdatedAt: now}
	s.chats[chat.ID] = chat
	return &chat, true, nil
}

func (s *MemoryStore) GetChat(ctx context.Context, filter bson.M) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := firstMatch(s.chats, filter)
	if !ok {
		return nil, database.ErrNotFound
	}
	c := s.chats[id]
	return &c, nil
}

func (s *MemoryStore) FindChats(ctx context.Context, spec *query.Spec) ([]models.Chat, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chats, total := find(s.chats, spec)
	return chats, total, nil
}

func (s *MemoryStore) FindOneAndDeleteChat(ctx context.Context, filter bson.M) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("FindOneAndDeleteChat"); err != nil {
		return nil, err
	}
	id, ok := firstMatch(s.chats, filter)
	if !ok {
		return nil, database.ErrNotFound
	}
	c := s.chats[id]
	delete(s.chats, id)
	return &c, nil
}

func (s *MemoryStore) DeleteChatByID(ctx context.Context, chatID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteChatByID"); err != nil {
		return 0, err
	}
	if _, ok := s.chats[chatID]; !ok {
		return 0, nil
	}
	delete(s.chats, chatID)
	return 1, nil
}

// Messages

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("CreateMessage"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	msg.ID = bson.NewObjectID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	s.msgs[msg.ID] = *msg
	return msg, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, msgID bson.ObjectID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[msgID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, filter bson.M) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := firstMatch(s.msgs, filter)
	if !ok {
		return nil, database.ErrNotFound
	}
	m := s.msgs[id]
	delete(s.msgs, id)
	return &m, nil
}

func (s *MemoryStore) DeleteMessagesByChat(ctx context.Context, chatID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("DeleteMessagesByChat"); err != nil {
		return 0, err
	}
	var n int64
	for id, m := range s.msgs {
		if m.Chat == chatID {
			delete(s.msgs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindMessages(ctx context.Context, spec *query.Spec) ([]models.Message, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, total := find(s.msgs, spec)
	return msgs, total, nil
}

// Counts returns the number of chats and messages held.
func (s *MemoryStore) Counts() (chats, msgs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats), len(s.msgs)
}

// Matching

func toDoc(v interface{}) bson.M {
	raw, err := bson.Marshal(v)
	if err != nil {
		panic(err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		panic(err)
	}
	return doc
}

func firstMatch[V any](m map[bson.ObjectID]V, filter bson.M) (bson.ObjectID, bool) {
	for _, id := range sortedIDs(m) {
		if matches(toDoc(m[id]), filter) {
			return id, true
		}
	}
	return bson.NilObjectID, false
}

func find[V any](m map[bson.ObjectID]V, spec *query.Spec) ([]V, int64) {
	type row struct {
		val V
		doc bson.M
	}

	var rows []row
	for _, id := range sortedIDs(m) {
		doc := toDoc(m[id])
		if matches(doc, spec.Filter) {
			rows = append(rows, row{val: m[id], doc: doc})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range spec.Sort {
			c := compare(rows[i].doc[key.Key], rows[j].doc[key.Key])
			if c == 0 {
				continue
			}
			if dir, _ := key.Value.(int); dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	total := int64(len(rows))
	skip := int(spec.Skip())
	out := []V{}
	for i := skip; i < len(rows) && (spec.Limit <= 0 || len(out) < spec.Limit); i++ {
		out = append(out, rows[i].val)
	}
	return out, total
}

func sortedIDs[V any](m map[bson.ObjectID]V) []bson.ObjectID {
	ids := make([]bson.ObjectID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	return ids
}

func matches(doc, filter bson.M) bool {
	for field, cond := range filter {
		if !matchField(doc[field], cond) {
			return false
		}
	}
	return true
}

func matchField(value, cond interface{}) bool {
	ops, isOps := cond.(bson.M)
	if isOps {
		for op, arg := range ops {
			switch op {
			case "$in":
				found := false
				for _, want := range toSlice(arg) {
					if equalValue(value, want) {
						found = true
					}
				}
				if !found {
					return false
				}
			case "$gte", "$gt", "$lte", "$lt":
				if value == nil {
					return false
				}
				c := compare(value, arg)
				if (op == "$gte" && c < 0) || (op == "$gt" && c <= 0) ||
					(op == "$lte" && c > 0) || (op == "$lt" && c >= 0) {
					return false
				}
			default:
				panic("memory store: unsupported operator " + op)
			}
		}
		return true
	}
	return equalValue(value, cond)
}

func toSlice(v interface{}) []interface{} {
	switch t := v.(type) {
	case bson.A:
		return t
	case []interface{}:
		return t
	case []bson.ObjectID:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	}
	return []interface{}{v}
}

// equalValue compares a document value with a filter value. Arrays match
// when any element does.
func equalValue(value, want interface{}) bool {
	if arr, ok := value.(bson.A); ok {
		for _, el := range arr {
			if equalValue(el, want) {
				return true
			}
		}
		return false
	}
	return compare(value, want) == 0 && sameKind(value, want)
}

func sameKind(a, b interface{}) bool {
	_, an := number(a)
	_, bn := number(b)
	if an || bn {
		return an && bn
	}
	return fmt.Sprintf("%T", normalize(a)) == fmt.Sprintf("%T", normalize(b))
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return bson.NewDateTimeFromTime(t)
	}
	return v
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compare(a, b interface{}) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}

	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case bson.ObjectID:
		if y, ok := b.(bson.ObjectID); ok {
			return strings.Compare(x.Hex(), y.Hex())
		}
	case bson.DateTime:
		if y, ok := b.(bson.DateTime); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case bool:
		if y, ok := b.(bool); ok {
			if x == y {
				return 0
			}
			if !x {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
