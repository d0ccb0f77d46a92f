// Package quota enforces the daily key-issuance cap. Two variants exist:
// a local one over persisted per-day counters (legacy offline scheme) and a
// remote one that recounts the ledger on every check (dated scheme).
//
// Neither variant is transactional with key creation. Two callers can both
// pass CanIssue before either persists, so the cap can be overrun by at most
// the number of concurrent callers minus one. That skew is accepted; the
// remote store's own accounting is the real bound.
package quota

import (
	"context"
	"time"

	"cskeys/internal/localstore"
)

// DefaultDailyCap is the issuance cap per calendar day for both variants.
const DefaultDailyCap = 5

// Policy answers whether another key may be issued right now.
type Policy interface {
	CanIssue(ctx context.Context) (bool, error)
}

// LocalPolicy enforces the cap against persisted local counters keyed by
// calendar day. Used by the legacy offline scheme, where the counter is the
// only record there is.
type LocalPolicy struct {
	store *localstore.Store
	cap   int
	now   func() time.Time
}

// NewLocalPolicy creates a local quota policy. A cap of zero or less falls
// back to the default.
func NewLocalPolicy(store *localstore.Store, cap int) *LocalPolicy {
	if cap <= 0 {
		cap = DefaultDailyCap
	}
	return &LocalPolicy{store: store, cap: cap, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (p *LocalPolicy) WithClock(now func() time.Time) *LocalPolicy {
	p.now = now
	return p
}

// CanIssue implements Policy.
func (p *LocalPolicy) CanIssue(context.Context) (bool, error) {
	today := p.now().Format(localstore.DateKeyLayout)
	return p.store.DailyCount(today) < p.cap, nil
}

// RecordIssuance increments today's counter. Only the local variant has an
// explicit increment; the remote variant recounts the ledger instead.
func (p *LocalPolicy) RecordIssuance(context.Context) error {
	return p.store.IncrementDaily(p.now().Format(localstore.DateKeyLayout))
}
