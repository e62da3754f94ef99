// Package mongostore implements recovery.Store durably over MongoDB, so a
// chat session's archived history survives a SessionCoordinator process
// restart.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/aether-frame/aether-frame/contracts"
	"github.com/aether-frame/aether-frame/recovery"
)

const (
	defaultCollection = "session_recoveries"
	defaultOpTimeout   = 5 * time.Second
)

// Options configures a Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements recovery.Store against a MongoDB collection, keyed by
// chat_session_id with last-write-wins semantics (Save overwrites any
// existing record, matching the recovery protocol's re-queue behavior).
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// NewStore constructs a Store and ensures its unique index on
// chat_session_id.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "chat_session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(idxCtx, idx); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

type historyEntryDoc struct {
	Role      contracts.Role `bson:"role"`
	Content   string         `bson:"content"`
	Timestamp time.Time      `bson:"timestamp"`
}

type recordDoc struct {
	ChatSessionID string            `bson:"chat_session_id"`
	UserID        string            `bson:"user_id"`
	AgentID       string            `bson:"agent_id"`
	AgentConfig   bson.Raw          `bson:"agent_config,omitempty"`
	ChatHistory   []historyEntryDoc `bson:"chat_history"`
	ArchivedAt    time.Time         `bson:"archived_at"`
}

// Save upserts record, replacing any prior archive for the same chat
// session.
func (s *Store) Save(ctx context.Context, record contracts.SessionRecoveryRecord) error {
	if record.ChatSessionID == "" {
		return errors.New("mongostore: chat_session_id is required")
	}
	doc := toDoc(record)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"chat_session_id": record.ChatSessionID}
	update := bson.M{"$set": doc}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// Load returns the archived record for chatSessionID, or recovery.ErrNotFound.
func (s *Store) Load(ctx context.Context, chatSessionID string) (contracts.SessionRecoveryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc recordDoc
	err := s.coll.FindOne(ctx, bson.M{"chat_session_id": chatSessionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return contracts.SessionRecoveryRecord{}, recovery.ErrNotFound
		}
		return contracts.SessionRecoveryRecord{}, err
	}
	return fromDoc(doc), nil
}

// Delete removes the archived record for chatSessionID. No-op if absent.
func (s *Store) Delete(ctx context.Context, chatSessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"chat_session_id": chatSessionID})
	return err
}

func toDoc(r contracts.SessionRecoveryRecord) recordDoc {
	history := make([]historyEntryDoc, 0, len(r.ChatHistory))
	for _, h := range r.ChatHistory {
		history = append(history, historyEntryDoc{Role: h.Role, Content: h.Content, Timestamp: h.Timestamp.UTC()})
	}
	var cfgRaw bson.Raw
	if r.AgentConfig != nil {
		if raw, err := bson.Marshal(r.AgentConfig); err == nil {
			cfgRaw = raw
		}
	}
	return recordDoc{
		ChatSessionID: r.ChatSessionID,
		UserID:        r.UserID,
		AgentID:       r.AgentID,
		AgentConfig:   cfgRaw,
		ChatHistory:   history,
		ArchivedAt:    r.ArchivedAt.UTC(),
	}
}

func fromDoc(d recordDoc) contracts.SessionRecoveryRecord {
	history := make([]contracts.HistoryEntry, 0, len(d.ChatHistory))
	for _, h := range d.ChatHistory {
		history = append(history, contracts.HistoryEntry{Role: h.Role, Content: h.Content, Timestamp: h.Timestamp})
	}
	var cfg *contracts.AgentConfig
	if len(d.AgentConfig) > 0 {
		var decoded contracts.AgentConfig
		if err := bson.Unmarshal(d.AgentConfig, &decoded); err == nil {
			cfg = &decoded
		}
	}
	return contracts.SessionRecoveryRecord{
		ChatSessionID: d.ChatSessionID,
		UserID:        d.UserID,
		AgentID:       d.AgentID,
		AgentConfig:   cfg,
		ChatHistory:   history,
		ArchivedAt:    d.ArchivedAt,
	}
}
