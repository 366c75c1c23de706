package auditlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// fakeCollection is a narrow in-memory stand-in for the real Mongo
// collection, mirroring the teacher's runlog mongo client test fakes.
type fakeCollection struct {
	docs map[string]logDocument
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: make(map[string]logDocument)}
}

func (f *fakeCollection) InsertOne(_ context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	doc := document.(logDocument)
	f.docs[doc.ID] = doc
	return &mongodriver.InsertOneResult{InsertedID: doc.ID}, nil
}

func (f *fakeCollection) UpdateByID(_ context.Context, id any, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	idStr := id.(string)
	doc, ok := f.docs[idStr]
	if !ok {
		return &mongodriver.UpdateResult{MatchedCount: 0}, nil
	}
	set := update.(bson.M)["$set"].(bson.M)
	applySet(&doc, set)
	f.docs[idStr] = doc
	return &mongodriver.UpdateResult{MatchedCount: 1}, nil
}

func applySet(doc *logDocument, set bson.M) {
	for k, v := range set {
		switch k {
		case "request_payload":
			doc.RequestPayload = v.([]byte)
		case "response_payload":
			doc.ResponsePayload = v.([]byte)
		case "input_tokens":
			doc.InputTokens = v.(int)
		case "output_tokens":
			doc.OutputTokens = v.(int)
		case "cached_read_tokens":
			doc.CachedReadTokens = v.(int)
		case "cached_write_tokens":
			doc.CachedWriteTokens = v.(int)
		case "ttft_ms":
			doc.TTFTMillis = v.(float64)
		case "tpot_ms":
			f := v.(float64)
			doc.TPOTMillis = &f
		case "finalized":
			doc.Finalized = v.(bool)
		case "latency_ms":
			doc.LatencyMillis = v.(int64)
		case "status_code":
			doc.StatusCode = v.(int)
		case "error":
			doc.ErrorMessage = v.(string)
		}
	}
}

func (f *fakeCollection) FindOne(_ context.Context, filter any, _ ...options.Lister[options.FindOneOptions]) singleResult {
	id := filter.(bson.M)["_id"].(string)
	doc, ok := f.docs[id]
	return &fakeSingleResult{doc: doc, found: ok}
}

type fakeSingleResult struct {
	doc   logDocument
	found bool
}

func (r *fakeSingleResult) Decode(val any) error {
	if !r.found {
		return mongodriver.ErrNoDocuments
	}
	p := val.(*logDocument)
	*p = r.doc
	return nil
}

func (f *fakeCollection) Find(_ context.Context, filter any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
	m := filter.(bson.M)
	var out []logDocument
	for _, doc := range f.docs {
		if finalized, ok := m["finalized"].(bool); ok && doc.Finalized != finalized {
			continue
		}
		if ts, ok := m["timestamp"].(bson.M); ok {
			since := ts["$gte"].(time.Time)
			until := ts["$lt"].(time.Time)
			if doc.Timestamp.Before(since) || !doc.Timestamp.Before(until) {
				continue
			}
		}
		out = append(out, doc)
	}
	return &fakeCursor{docs: out}, nil
}

type fakeCursor struct {
	docs []logDocument
	pos  int
}

func (c *fakeCursor) Next(context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	p := val.(*logDocument)
	*p = c.docs[c.pos-1]
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Close(context.Context) error { return nil }

func newTestMongoStore() (*MongoStore, *fakeCollection) {
	coll := newFakeCollection()
	return &MongoStore{coll: coll, timeout: time.Second}, coll
}

func TestMongoStore_CreateAndGet(t *testing.T) {
	s, _ := newTestMongoStore()
	ctx := context.Background()
	rec := &LogRecord{ID: "log-1", Timestamp: time.Now(), Provider: "anthropic-prod", Model: "claude-sonnet-4-5"}
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "log-1")
	require.NoError(t, err)
	require.Equal(t, "anthropic-prod", got.Provider)
}

func TestMongoStore_GetNotFound(t *testing.T) {
	s, _ := newTestMongoStore()
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMongoStore_UpdateTokensAndFinalize(t *testing.T) {
	s, _ := newTestMongoStore()
	ctx := context.Background()
	rec := &LogRecord{ID: "log-1", Timestamp: time.Now()}
	require.NoError(t, s.Create(ctx, rec))

	require.NoError(t, s.UpdateTokens(ctx, "log-1", model.TokenUsage{InputTokens: 10, OutputTokens: 20}))
	require.NoError(t, s.Finalize(ctx, "log-1", FinalizeInfo{LatencyMillis: 42, StatusCode: 200}))

	got, err := s.Get(ctx, "log-1")
	require.NoError(t, err)
	require.Equal(t, 10, got.Usage.InputTokens)
	require.True(t, got.Finalized)
	require.EqualValues(t, 42, got.LatencyMillis)
}

func TestMongoStore_DoubleFinalizeFails(t *testing.T) {
	s, _ := newTestMongoStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "log-1", Timestamp: time.Now()}))
	require.NoError(t, s.Finalize(ctx, "log-1", FinalizeInfo{StatusCode: 200}))

	err := s.Finalize(ctx, "log-1", FinalizeInfo{StatusCode: 200})
	require.True(t, errors.Is(err, ErrAlreadyFinalized))
}

func TestMongoStore_ListFinalizedFiltersByWindow(t *testing.T) {
	s, _ := newTestMongoStore()
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "in-window", Timestamp: base.Add(time.Hour), Provider: "p1"}))
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "before-window", Timestamp: base.Add(-time.Hour), Provider: "p1"}))
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "not-finalized", Timestamp: base.Add(time.Hour), Provider: "p1"}))

	require.NoError(t, s.Finalize(ctx, "in-window", FinalizeInfo{StatusCode: 200}))
	require.NoError(t, s.Finalize(ctx, "before-window", FinalizeInfo{StatusCode: 200}))

	recs, err := s.ListFinalized(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "in-window", recs[0].ID)
}
