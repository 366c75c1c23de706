package auditlog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// Logger drives one LogRecord through its lifecycle for a single
// request, guaranteeing Finalize fires at most once no matter how many
// exit paths the caller's handler takes (spec §3).
type Logger struct {
	store Store
	id    string

	finalizeOnce sync.Once
	finalizeErr  error
}

// New creates the record (lifecycle step 1) and returns a Logger bound
// to it. If rec.ID is empty a uuid is generated.
func New(ctx context.Context, store Store, rec LogRecord) (*Logger, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := store.Create(ctx, &rec); err != nil {
		return nil, err
	}
	return &Logger{store: store, id: rec.ID}, nil
}

// ID returns the bound log id.
func (l *Logger) ID() string { return l.id }

// UpsertRequestPayload is lifecycle step 2.
func (l *Logger) UpsertRequestPayload(ctx context.Context, payload []byte) error {
	return l.store.UpsertRequestPayload(ctx, l.id, payload)
}

// UpdateTokens is lifecycle step 3; callers may invoke it more than
// once as a stream progresses.
func (l *Logger) UpdateTokens(ctx context.Context, usage model.TokenUsage) error {
	return l.store.UpdateTokens(ctx, l.id, usage)
}

// UpsertResponsePayload is lifecycle step 4.
func (l *Logger) UpsertResponsePayload(ctx context.Context, payload []byte) error {
	return l.store.UpsertResponsePayload(ctx, l.id, payload)
}

// Finalize is lifecycle step 5, the terminal step. Only the first call
// reaches the store; later calls return the first call's result
// without touching the store again.
func (l *Logger) Finalize(ctx context.Context, info FinalizeInfo) error {
	l.finalizeOnce.Do(func() {
		l.finalizeErr = l.store.Finalize(ctx, l.id, info)
	})
	return l.finalizeErr
}
