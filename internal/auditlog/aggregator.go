package auditlog

import (
	"context"
	"time"
)

// DailyAggregate is one day/provider/key bucket of finalized usage
// (spec §2's "daily aggregation" component, elaborated in full here).
type DailyAggregate struct {
	Day          string // YYYY-MM-DD, UTC
	Provider     string
	APIKeyID     string
	RequestCount int64
	InputTokens  int64
	OutputTokens int64
	ErrorCount   int64
	LatencySum   int64 // milliseconds, for computing an average
}

// Aggregator computes DailyAggregates from a Store's finalized records.
type Aggregator struct {
	store Store
}

// NewAggregator builds an Aggregator over store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// RollUp buckets every finalized record with Timestamp in [since, until)
// by UTC day, provider, and api key.
func (a *Aggregator) RollUp(ctx context.Context, since, until time.Time) ([]DailyAggregate, error) {
	recs, err := a.store.ListFinalized(ctx, since, until)
	if err != nil {
		return nil, err
	}

	type bucketKey struct {
		day      string
		provider string
		apiKeyID string
	}
	buckets := make(map[bucketKey]*DailyAggregate)
	var order []bucketKey

	for _, rec := range recs {
		key := bucketKey{
			day:      rec.Timestamp.UTC().Format("2006-01-02"),
			provider: rec.Provider,
			apiKeyID: rec.APIKeyID,
		}
		agg, ok := buckets[key]
		if !ok {
			agg = &DailyAggregate{Day: key.day, Provider: key.provider, APIKeyID: key.apiKeyID}
			buckets[key] = agg
			order = append(order, key)
		}
		agg.RequestCount++
		agg.InputTokens += int64(rec.Usage.InputTokens)
		agg.OutputTokens += int64(rec.Usage.OutputTokens)
		agg.LatencySum += rec.LatencyMillis
		if rec.ErrorMessage != "" {
			agg.ErrorCount++
		}
	}

	out := make([]DailyAggregate, 0, len(order))
	for _, key := range order {
		out = append(out, *buckets[key])
	}
	return out, nil
}
