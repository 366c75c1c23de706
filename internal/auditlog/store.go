package auditlog

import (
	"context"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// Store persists the LogRecord lifecycle.
type Store interface {
	Create(ctx context.Context, rec *LogRecord) error
	UpsertRequestPayload(ctx context.Context, id string, payload []byte) error
	UpdateTokens(ctx context.Context, id string, usage model.TokenUsage) error
	UpsertResponsePayload(ctx context.Context, id string, payload []byte) error
	Finalize(ctx context.Context, id string, info FinalizeInfo) error
	Get(ctx context.Context, id string) (*LogRecord, error)
	// ListFinalized returns finalized records with Timestamp in
	// [since, until), for Aggregator.RollUp.
	ListFinalized(ctx context.Context, since, until time.Time) ([]*LogRecord, error)
}
