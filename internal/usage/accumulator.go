// Package usage implements the streaming usage accumulator: providers
// repeat cumulative usage totals with varying completeness across SSE
// events, so the accumulator keeps the maximum non-negative value seen
// for each field rather than the last one (spec §4.9, §8 monotonicity).
package usage

import "github.com/chenpu17/cc-gw-sub001/internal/model"

// Accumulator tracks the running maximum of each usage field observed
// across a stream of partial/cumulative usage reports.
type Accumulator struct {
	current model.TokenUsage
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Observe folds in one usage report using the selectMax rule for every
// field independently; TTFT is taken verbatim from the first caller
// that sets it (it is not a cumulative counter).
func (a *Accumulator) Observe(u model.TokenUsage) {
	a.current.InputTokens = maxInt(a.current.InputTokens, u.InputTokens)
	a.current.OutputTokens = maxInt(a.current.OutputTokens, u.OutputTokens)
	a.current.CachedReadTokens = maxInt(a.current.CachedReadTokens, u.CachedReadTokens)
	a.current.CachedWriteTokens = maxInt(a.current.CachedWriteTokens, u.CachedWriteTokens)
	if u.TTFTMillis > 0 && a.current.TTFTMillis == 0 {
		a.current.TTFTMillis = u.TTFTMillis
	}
}

// SetTPOT stores the final computed TPOT value (nil when undefined).
func (a *Accumulator) SetTPOT(v *float64) {
	a.current.TPOTMillis = v
}

// Snapshot returns the current accumulated usage.
func (a *Accumulator) Snapshot() model.TokenUsage {
	return a.current
}

func maxInt(a, b int) int {
	if b < 0 {
		return a
	}
	if b > a {
		return b
	}
	return a
}
