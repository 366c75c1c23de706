// Package auditlog's Mongo backend mirrors the client/collection
// interface seams the teacher uses for its run-event log
// (features/runlog/mongo/clients/mongo/client.go): a narrow interface
// wrapping the real driver so store logic can be unit tested against a
// fake collection instead of a live Mongo deployment.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

const (
	defaultCollection = "gateway_log_records"
	defaultTimeout    = 5 * time.Second
)

// logDocument is the BSON shape of one LogRecord.
type logDocument struct {
	ID          string    `bson:"_id"`
	Timestamp   time.Time `bson:"timestamp"`
	Endpoint    string    `bson:"endpoint"`
	Provider    string    `bson:"provider"`
	Model       string    `bson:"model"`
	ClientModel string    `bson:"client_model"`
	APIKeyID    string    `bson:"api_key_id"`
	SessionID   string    `bson:"session_id"`
	Stream      bool      `bson:"stream"`

	RequestPayload  []byte `bson:"request_payload,omitempty"`
	ResponsePayload []byte `bson:"response_payload,omitempty"`

	InputTokens       int      `bson:"input_tokens"`
	OutputTokens      int      `bson:"output_tokens"`
	CachedReadTokens  int      `bson:"cached_read_tokens"`
	CachedWriteTokens int      `bson:"cached_write_tokens"`
	TTFTMillis        float64  `bson:"ttft_ms"`
	TPOTMillis        *float64 `bson:"tpot_ms,omitempty"`

	Finalized     bool   `bson:"finalized"`
	LatencyMillis int64  `bson:"latency_ms,omitempty"`
	StatusCode    int    `bson:"status_code,omitempty"`
	ErrorMessage  string `bson:"error,omitempty"`
}

func toDocument(rec *LogRecord) logDocument {
	return logDocument{
		ID:                rec.ID,
		Timestamp:         rec.Timestamp.UTC(),
		Endpoint:          rec.Endpoint,
		Provider:          rec.Provider,
		Model:             rec.Model,
		ClientModel:       rec.ClientModel,
		APIKeyID:          rec.APIKeyID,
		SessionID:         rec.SessionID,
		Stream:            rec.Stream,
		RequestPayload:    rec.RequestPayload,
		ResponsePayload:   rec.ResponsePayload,
		InputTokens:       rec.Usage.InputTokens,
		OutputTokens:      rec.Usage.OutputTokens,
		CachedReadTokens:  rec.Usage.CachedReadTokens,
		CachedWriteTokens: rec.Usage.CachedWriteTokens,
		TTFTMillis:        rec.Usage.TTFTMillis,
		TPOTMillis:        rec.Usage.TPOTMillis,
		Finalized:         rec.Finalized,
		LatencyMillis:     rec.LatencyMillis,
		StatusCode:        rec.StatusCode,
		ErrorMessage:      rec.ErrorMessage,
	}
}

func fromDocument(doc logDocument) *LogRecord {
	return &LogRecord{
		ID:              doc.ID,
		Timestamp:       doc.Timestamp,
		Endpoint:        doc.Endpoint,
		Provider:        doc.Provider,
		Model:           doc.Model,
		ClientModel:     doc.ClientModel,
		APIKeyID:        doc.APIKeyID,
		SessionID:       doc.SessionID,
		Stream:          doc.Stream,
		RequestPayload:  doc.RequestPayload,
		ResponsePayload: doc.ResponsePayload,
		Usage: model.TokenUsage{
			InputTokens:       doc.InputTokens,
			OutputTokens:      doc.OutputTokens,
			CachedReadTokens:  doc.CachedReadTokens,
			CachedWriteTokens: doc.CachedWriteTokens,
			TTFTMillis:        doc.TTFTMillis,
			TPOTMillis:        doc.TPOTMillis,
		},
		Finalized:     doc.Finalized,
		LatencyMillis: doc.LatencyMillis,
		StatusCode:    doc.StatusCode,
		ErrorMessage:  doc.ErrorMessage,
	}
}

// collection is the narrow surface MongoStore needs, letting tests
// substitute a fake instead of talking to a live server.
type collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	UpdateByID(ctx context.Context, id any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) UpdateByID(ctx context.Context, id any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateByID(ctx, id, update, opts...)
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return c.coll.FindOne(ctx, filter, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// MongoStore implements Store against a MongoDB collection.
type MongoStore struct {
	coll    collection
	timeout time.Duration
}

// NewMongoStore builds a MongoStore over the given database/collection
// name (collectionName defaults to "gateway_log_records").
func NewMongoStore(client *mongodriver.Client, database, collectionName string, timeout time.Duration) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	if database == "" {
		return nil, errors.New("database name is required")
	}
	if collectionName == "" {
		collectionName = defaultCollection
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := client.Database(database).Collection(collectionName)
	return &MongoStore{coll: mongoCollection{coll: coll}, timeout: timeout}, nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *MongoStore) Create(ctx context.Context, rec *LogRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.InsertOne(ctx, toDocument(rec))
	return err
}

func (s *MongoStore) UpsertRequestPayload(ctx context.Context, id string, payload []byte) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"request_payload": payload}})
}

func (s *MongoStore) UpdateTokens(ctx context.Context, id string, usage model.TokenUsage) error {
	set := bson.M{
		"input_tokens":        usage.InputTokens,
		"output_tokens":       usage.OutputTokens,
		"cached_read_tokens":  usage.CachedReadTokens,
		"cached_write_tokens": usage.CachedWriteTokens,
		"ttft_ms":             usage.TTFTMillis,
	}
	if usage.TPOTMillis != nil {
		set["tpot_ms"] = *usage.TPOTMillis
	}
	return s.update(ctx, id, bson.M{"$set": set})
}

func (s *MongoStore) UpsertResponsePayload(ctx context.Context, id string, payload []byte) error {
	return s.update(ctx, id, bson.M{"$set": bson.M{"response_payload": payload}})
}

func (s *MongoStore) Finalize(ctx context.Context, id string, info FinalizeInfo) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Finalized {
		return ErrAlreadyFinalized
	}

	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"finalized":   true,
		"latency_ms":  info.LatencyMillis,
		"status_code": info.StatusCode,
		"error":       info.ErrorMessage,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) update(ctx context.Context, id string, update bson.M) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*LogRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc logDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromDocument(doc), nil
}

func (s *MongoStore) ListFinalized(ctx context.Context, since, until time.Time) ([]*LogRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"finalized": true,
		"timestamp": bson.M{"$gte": since.UTC(), "$lt": until.UTC()},
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("auditlog: mongo find failed: %w", err)
	}
	defer cur.Close(ctx)

	var out []*LogRecord
	for cur.Next(ctx) {
		var doc logDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, fromDocument(doc))
	}
	return out, cur.Err()
}
