package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/WencesJ/Speer-Tweeter/internal/metrics"
	"github.com/WencesJ/Speer-Tweeter/pkg/config"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// Collection names.
const (
	UsersCollection    = "users"
	TweetsCollection   = "tweets"
	ChatsCollection    = "chats"
	MessagesCollection = "msgs"
)

// TxFunc is a function that executes within a transaction. The context it
// receives carries the transaction's session; every collection call made
// with it participates in the transaction.
type TxFunc func(ctx context.Context) error

// MongoDB wraps a MongoDB client and the application database.
// Provides methods for:
//   - User, tweet, chat and message persistence
//   - Index management
//   - Multi-document transactions (requires a replica set)
type MongoDB struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDB connects to MongoDB and waits for the primary, backing off
// per utils.StoreBackoff for up to 30 seconds.
//
// Example:
//
//	mongoDB, err := database.NewMongoDB(&cfg.Mongo)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("MongoDB connection failed")
//	}
//	defer mongoDB.Close(context.Background())
func NewMongoDB(cfg *config.MongoConfig) (*MongoDB, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = utils.StoreBackoff().Do(ctx, "mongo ping", func(ctx context.Context) error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		return client.Ping(pingCtx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("Successfully connected to MongoDB")

	return &MongoDB{client: client, db: client.Database(cfg.Database)}, nil
}

// Close disconnects the client, waiting for in-flight operations until ctx
// expires.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping verifies the primary is reachable. Used by the readiness probe.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// EnsureIndexes creates the indexes the application relies on. It is
// idempotent and runs at startup.
//
// Indexes:
//   - users.username (unique): username uniqueness and login lookups
//   - tweets.author + createdAt: per-author timelines
//   - chats.members: membership lookups
//   - msgs.chat + createdAt: chat history and the cascade delete
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		TweetsCollection: {
			{Keys: bson.D{{Key: "author", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		ChatsCollection: {
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		MessagesCollection: {
			{Keys: bson.D{{Key: "chat", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	for name, models := range indexes {
		created, err := m.collection(name).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
		log.Debug().Str("collection", name).Strs("indexes", created).Msg("Indexes ensured")
	}

	log.Info().Msg("MongoDB indexes ensured")
	return nil
}

// WithTransaction executes fn within a multi-document transaction.
// If fn returns an error, the transaction is aborted; otherwise it is
// committed. The session is ended on every exit path.
//
// Panics in fn abort the transaction before re-panicking.
//
// Example:
//
//	err := db.WithTransaction(ctx, func(ctx context.Context) error {
//	    if _, err := db.DeleteMessagesByChat(ctx, chatID); err != nil {
//	        return err
//	    }
//	    return db.DeleteChatByID(ctx, chatID)
//	})
func (m *MongoDB) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp("mongo", "transaction", err, time.Since(start)) }()

	sess, err := m.client.StartSession()
	if err != nil {
		return &StoreError{Op: "start session", Err: err}
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	if err := sess.StartTransaction(); err != nil {
		return &StoreError{Op: "start transaction", Err: err}
	}

	txCtx := mongo.NewSessionContext(ctx, sess)

	defer func() {
		if r := recover(); r != nil {
			if abortErr := sess.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
				log.Error().Err(abortErr).Msg("Failed to abort transaction after panic")
			}
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if abortErr := sess.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
			log.Error().Err(abortErr).Msg("Failed to abort transaction")
			return &StoreError{Op: "abort transaction", Err: fmt.Errorf("transaction error: %v, abort error: %w", err, abortErr)}
		}
		return err
	}

	if err := sess.CommitTransaction(ctx); err != nil {
		return &StoreError{Op: "commit transaction", Err: err}
	}

	return nil
}

// findWithSpec runs a paged find on coll and decodes every document into
// out, which must be a pointer to a slice. It returns the total number of
// documents matching the filter, ignoring the page window.
func findWithSpec(ctx context.Context, coll *mongo.Collection, spec *query.Spec, out interface{}) (total int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp("mongo", "find_"+coll.Name(), err, time.Since(start)) }()

	filter := spec.Filter
	if filter == nil {
		filter = bson.M{}
	}

	total, err = coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}

	cursor, err := coll.Find(ctx, filter, spec.FindOptions())
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return 0, err
	}

	return total, nil
}
