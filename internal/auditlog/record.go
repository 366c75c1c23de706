// Package auditlog implements the LogRecord lifecycle of spec §3: one
// document per request, created once the handler has resolved the route
// and the provider's connector, and mutated through a fixed sequence of
// upserts before being finalized exactly once. A request that fails
// before that point (auth, normalization, routing) gets no record.
package auditlog

import (
	"errors"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// ErrAlreadyFinalized is returned by a Store when Finalize is called a
// second time for the same record (spec §3 "at most one finalize per
// record").
var ErrAlreadyFinalized = errors.New("auditlog: record already finalized")

// ErrNotFound is returned when a Store operation references an unknown
// log id.
var ErrNotFound = errors.New("auditlog: record not found")

// LogRecord is one request's audit trail.
type LogRecord struct {
	ID          string
	Timestamp   time.Time
	Endpoint    string
	Provider    string
	Model       string
	ClientModel string
	APIKeyID    string
	SessionID   string
	Stream      bool

	RequestPayload  []byte
	ResponsePayload []byte

	Usage model.TokenUsage

	Finalized     bool
	LatencyMillis int64
	StatusCode    int
	ErrorMessage  string
}

// FinalizeInfo carries the terminal fields recorded once per request.
type FinalizeInfo struct {
	LatencyMillis int64
	StatusCode    int
	ErrorMessage  string
}
