package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

func TestMemoryStore_FullLifecycle(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	rec := &LogRecord{ID: "log-1", Timestamp: time.Now(), Endpoint: "/v1/messages", Provider: "anthropic-prod"}
	require.NoError(t, s.Create(ctx, rec))
	require.NoError(t, s.UpsertRequestPayload(ctx, "log-1", []byte(`{"a":1}`)))
	require.NoError(t, s.UpdateTokens(ctx, "log-1", model.TokenUsage{InputTokens: 5}))
	require.NoError(t, s.UpdateTokens(ctx, "log-1", model.TokenUsage{InputTokens: 5, OutputTokens: 9}))
	require.NoError(t, s.UpsertResponsePayload(ctx, "log-1", []byte(`{"b":2}`)))
	require.NoError(t, s.Finalize(ctx, "log-1", FinalizeInfo{LatencyMillis: 100, StatusCode: 200}))

	got, err := s.Get(ctx, "log-1")
	require.NoError(t, err)
	require.Equal(t, 9, got.Usage.OutputTokens)
	require.True(t, got.Finalized)
	require.Equal(t, []byte(`{"a":1}`), got.RequestPayload)
	require.Equal(t, []byte(`{"b":2}`), got.ResponsePayload)
}

func TestMemoryStore_DoubleFinalizeFails(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "log-1", Timestamp: time.Now()}))
	require.NoError(t, s.Finalize(ctx, "log-1", FinalizeInfo{StatusCode: 200}))
	require.ErrorIs(t, s.Finalize(ctx, "log-1", FinalizeInfo{StatusCode: 500}), ErrAlreadyFinalized)
}

func TestMemoryStore_UnknownIDFails(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	require.ErrorIs(t, s.UpsertRequestPayload(ctx, "missing", nil), ErrNotFound)
	require.ErrorIs(t, s.Finalize(ctx, "missing", FinalizeInfo{}), ErrNotFound)
}

func TestMemoryStore_RingEvictsOldest(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "a", Timestamp: time.Now()}))
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "b", Timestamp: time.Now()}))
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "c", Timestamp: time.Now()}))

	_, err := s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "c")
	require.NoError(t, err)
}

func TestMemoryStore_ListFinalizedWindow(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, &LogRecord{ID: "in", Timestamp: base.Add(time.Hour), Provider: "p"}))
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "out", Timestamp: base.Add(-time.Hour), Provider: "p"}))
	require.NoError(t, s.Create(ctx, &LogRecord{ID: "unfinalized", Timestamp: base.Add(time.Hour), Provider: "p"}))

	require.NoError(t, s.Finalize(ctx, "in", FinalizeInfo{StatusCode: 200}))
	require.NoError(t, s.Finalize(ctx, "out", FinalizeInfo{StatusCode: 200}))

	recs, err := s.ListFinalized(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "in", recs[0].ID)
}
