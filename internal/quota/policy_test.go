package quota

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "cskeys/internal/errors"
	"cskeys/internal/localstore"
	"cskeys/internal/sheetstore"
)

func newTestLocalStore(t *testing.T) *localstore.Store {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "keystore.json"))
	require.NoError(t, err)
	return store
}

func TestLocalPolicyCap(t *testing.T) {
	store := newTestLocalStore(t)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	policy := NewLocalPolicy(store, 5).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := policy.CanIssue(ctx)
		require.NoError(t, err)
		require.True(t, ok, "issuance %d should be allowed", i+1)
		require.NoError(t, policy.RecordIssuance(ctx))
	}

	ok, err := policy.CanIssue(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "sixth issuance must be denied")
}

func TestLocalPolicyDayRollover(t *testing.T) {
	store := newTestLocalStore(t)
	now := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	policy := NewLocalPolicy(store, 1).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, policy.RecordIssuance(ctx))
	ok, err := policy.CanIssue(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// Two minutes later it is a new calendar day and the counter resets
	now = time.Date(2024, 1, 16, 0, 1, 0, 0, time.UTC)
	ok, err = policy.CanIssue(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalPolicyDefaultCap(t *testing.T) {
	store := newTestLocalStore(t)
	policy := NewLocalPolicy(store, 0)
	assert.Equal(t, DefaultDailyCap, policy.cap)
}

// stubLister fakes the remote ledger listing.
type stubLister struct {
	result *sheetstore.ListResult
	err    error
}

func (s *stubLister) List(context.Context) (*sheetstore.ListResult, error) {
	return s.result, s.err
}

func TestRemotePolicyCountsTodayOnly(t *testing.T) {
	// Timestamps are derived from local noon so the calendar-day
	// comparison is stable regardless of the test machine's zone.
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.Local)
	lister := &stubLister{result: &sheetstore.ListResult{
		Success: true,
		Keys: []sheetstore.KeyRecord{
			{Code: "k1", CreatedTime: now.Add(-2 * time.Hour).UTC().Format(time.RFC3339)},
			{Code: "k2", CreatedTime: now.Add(-1 * time.Hour).UTC().Format("2006-01-02 15:04:05")},
			{Code: "k3", CreatedTime: now.Add(-24 * time.Hour).UTC().Format(time.RFC3339)},
			{Code: "k4", CreatedTime: "garbage"},
		},
	}}

	policy := NewRemotePolicy(lister, 2, nil).WithClock(func() time.Time { return now })
	ok, err := policy.CanIssue(context.Background())
	require.NoError(t, err)
	// Two of the four rows count toward today: cap of 2 is spent
	assert.False(t, ok)

	policy = NewRemotePolicy(lister, 3, nil).WithClock(func() time.Time { return now })
	ok, err = policy.CanIssue(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemotePolicyFailsClosed(t *testing.T) {
	lister := &stubLister{err: errors.New("connection refused")}
	policy := NewRemotePolicy(lister, 5, nil)

	ok, err := policy.CanIssue(context.Background())
	assert.False(t, ok, "transport failure must block issuance")
	assert.Error(t, err)
}

func TestRemotePolicyRejectedListingFailsClosed(t *testing.T) {
	// A success:false listing carries no rows, which must not read as
	// "nothing issued today"
	lister := &stubLister{result: &sheetstore.ListResult{Success: false}}
	policy := NewRemotePolicy(lister, 5, nil)

	ok, err := policy.CanIssue(context.Background())
	assert.False(t, ok, "rejected listing must block issuance")
	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteLogic(err))
}

func TestRemotePolicyEmptyLedger(t *testing.T) {
	lister := &stubLister{result: &sheetstore.ListResult{Success: true}}
	policy := NewRemotePolicy(lister, 5, nil)

	ok, err := policy.CanIssue(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseRemoteTime(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"2024-01-15T08:00:00Z", false},
		{"2024-01-15T08:00:00.000Z", false},
		{"2024-01-15 08:00:00", false},
		{"2024-01-15", false},
		{"15/01/2024", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := parseRemoteTime(tt.value)
		if tt.wantErr {
			assert.Error(t, err, "value %q", tt.value)
		} else {
			assert.NoError(t, err, "value %q", tt.value)
		}
	}
}
