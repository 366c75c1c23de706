package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogger_GeneratesIDWhenEmpty(t *testing.T) {
	store := NewMemoryStore(0)
	l, err := New(context.Background(), store, LogRecord{Timestamp: time.Now()})
	require.NoError(t, err)
	require.NotEmpty(t, l.ID())
}

func TestLogger_FinalizeIsIdempotent(t *testing.T) {
	store := NewMemoryStore(0)
	l, err := New(context.Background(), store, LogRecord{ID: "log-1", Timestamp: time.Now()})
	require.NoError(t, err)

	require.NoError(t, l.Finalize(context.Background(), FinalizeInfo{StatusCode: 200}))
	// A second Finalize call must not reach the store a second time
	// (which would otherwise surface ErrAlreadyFinalized); Logger
	// swallows it behind the first call's cached result.
	require.NoError(t, l.Finalize(context.Background(), FinalizeInfo{StatusCode: 500}))

	got, err := store.Get(context.Background(), "log-1")
	require.NoError(t, err)
	require.Equal(t, 200, got.StatusCode)
}

func TestLogger_FullLifecycleDelegatesToStore(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	l, err := New(ctx, store, LogRecord{ID: "log-1", Timestamp: time.Now(), Provider: "anthropic-prod"})
	require.NoError(t, err)

	require.NoError(t, l.UpsertRequestPayload(ctx, []byte(`{"req":true}`)))
	require.NoError(t, l.UpsertResponsePayload(ctx, []byte(`{"resp":true}`)))
	require.NoError(t, l.Finalize(ctx, FinalizeInfo{LatencyMillis: 12, StatusCode: 200}))

	got, err := store.Get(ctx, "log-1")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"req":true}`), got.RequestPayload)
	require.Equal(t, []byte(`{"resp":true}`), got.ResponsePayload)
	require.EqualValues(t, 12, got.LatencyMillis)
}
