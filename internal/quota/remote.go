package quota

import (
	"context"
	"log/slog"
	"time"

	apperrors "cskeys/internal/errors"
	"cskeys/internal/sheetstore"
)

// Lister is the slice of the remote store the remote policy needs.
type Lister interface {
	List(ctx context.Context) (*sheetstore.ListResult, error)
}

// RemotePolicy derives today's issuance count by listing the remote ledger
// and counting entries created on the current local calendar date. There is
// no increment call; every check recounts.
//
// The day comparison is calendar-date string equality in the local zone: a
// key issued at 23:59 and one at 00:01 count against different days even
// though only two minutes apart. That matches the deployed behavior and is
// intentional simplicity.
//
// On any transport or remote-logic failure the policy fails closed and
// blocks issuance. The quota is the only thing standing between the public
// page and unbounded key minting, so availability loses to enforcement here.
type RemotePolicy struct {
	lister Lister
	cap    int
	now    func() time.Time
	logger *slog.Logger
}

// NewRemotePolicy creates a remote quota policy.
func NewRemotePolicy(lister Lister, cap int, logger *slog.Logger) *RemotePolicy {
	if cap <= 0 {
		cap = DefaultDailyCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemotePolicy{
		lister: lister,
		cap:    cap,
		now:    time.Now,
		logger: logger.With(slog.String("component", "quota")),
	}
}

// WithClock overrides the time source. Test hook.
func (p *RemotePolicy) WithClock(now func() time.Time) *RemotePolicy {
	p.now = now
	return p
}

// CanIssue implements Policy. The returned error is non-nil only for
// remote failures, in which case issuance is blocked (fail closed).
func (p *RemotePolicy) CanIssue(ctx context.Context) (bool, error) {
	result, err := p.lister.List(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "quota check failed, blocking issuance",
			slog.String("error", err.Error()),
		)
		return false, err
	}
	if !result.Success {
		// A rejected listing is not an empty ledger; treat it like any
		// other remote failure and block issuance.
		p.logger.WarnContext(ctx, "quota check rejected by remote store, blocking issuance")
		return false, apperrors.NewRemoteLogicError("GET_ALL_KEYS", "listing rejected")
	}

	today := p.now().Local().Format("20060102")
	issued := 0
	for _, key := range result.Keys {
		created, parseErr := parseRemoteTime(key.CreatedTime)
		if parseErr != nil {
			// A row with an unreadable timestamp cannot count toward today
			p.logger.DebugContext(ctx, "skipping key with unparsable creation time",
				slog.String("created_time", key.CreatedTime),
			)
			continue
		}
		if created.Local().Format("20060102") == today {
			issued++
		}
	}

	p.logger.DebugContext(ctx, "daily quota check",
		slog.Int("issued_today", issued),
		slog.Int("cap", p.cap),
	)
	return issued < p.cap, nil
}

// parseRemoteTime accepts the timestamp shapes the Apps Script deployment
// has produced over time.
func parseRemoteTime(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
