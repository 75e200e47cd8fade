package linking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailagent/internal/api"
)

// fakeBackend implements Backend for tests. confirmed maps code values the
// bot has reported to the backend.
type fakeBackend struct {
	issued    []string
	nextCode  string
	expiresAt time.Time
	createErr error
	statusErr error
	confirmed map[string]api.LinkingStatus
	polls     []string
}

func (f *fakeBackend) CreateLinkingCode(ctx context.Context) (*api.LinkingCode, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.issued = append(f.issued, f.nextCode)
	return &api.LinkingCode{Code: f.nextCode, ExpiresAt: f.expiresAt}, nil
}

func (f *fakeBackend) LinkingStatus(ctx context.Context, code string) (*api.LinkingStatus, error) {
	f.polls = append(f.polls, code)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if status, ok := f.confirmed[code]; ok {
		return &status, nil
	}
	return &api.LinkingStatus{Verified: false}, nil
}

func TestPollOnce_NoCode(t *testing.T) {
	v, err := NewVerifier(&fakeBackend{})
	require.NoError(t, err)

	result, err := v.PollOnce(context.Background())
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Equal(t, StatusNone, result.Status)
}

func TestIssueAndPoll_Pending(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{nextCode: "A1B2C3", expiresAt: now.Add(10 * time.Minute)}

	v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	code, err := v.IssueCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", code.Code)
	assert.Equal(t, StatusIssued, v.Status())

	result, err := v.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, result.Status)
}

func TestPollOnce_Confirmed(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		nextCode:  "A1B2C3",
		expiresAt: now.Add(10 * time.Minute),
		confirmed: map[string]api.LinkingStatus{
			"A1B2C3": {Verified: true, TelegramID: 424242, TelegramUsername: "someuser"},
		},
	}

	v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = v.IssueCode(context.Background())
	require.NoError(t, err)

	result, err := v.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, int64(424242), result.TelegramID)
	assert.Equal(t, "someuser", result.TelegramUsername)
	assert.Equal(t, StatusConfirmed, v.Status())

	// A confirmed code stays confirmed without another network request
	polls := len(backend.polls)
	again, err := v.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)
	assert.Equal(t, polls, len(backend.polls))
}

func TestPollOnce_TTLBoundary(t *testing.T) {
	issued := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	expiresAt := issued.Add(10 * time.Minute)

	tests := []struct {
		name       string
		pollAt     time.Time
		wantStatus Status
		wantPolls  int
	}{
		{name: "just inside TTL", pollAt: issued.Add(9*time.Minute + 59*time.Second), wantStatus: StatusIssued, wantPolls: 1},
		{name: "just past TTL", pollAt: issued.Add(10*time.Minute + time.Second), wantStatus: StatusExpired, wantPolls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{nextCode: "A1B2C3", expiresAt: expiresAt}

			now := issued
			v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
			require.NoError(t, err)

			_, err = v.IssueCode(context.Background())
			require.NoError(t, err)

			now = tt.pollAt
			result, err := v.PollOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)

			// An expired code is never revalidated against the backend
			assert.Len(t, backend.polls, tt.wantPolls)
		})
	}
}

func TestIssueCode_ReissueInvalidatesPrevious(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		nextCode:  "FIRST1",
		expiresAt: now.Add(10 * time.Minute),
		confirmed: map[string]api.LinkingStatus{
			// The bot would confirm the first code
			"FIRST1": {Verified: true, TelegramID: 1, TelegramUsername: "early"},
		},
	}

	v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = v.IssueCode(context.Background())
	require.NoError(t, err)

	backend.nextCode = "SECOND"
	_, err = v.IssueCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SECOND", v.Code())

	// Polling now checks the second code only; the first code's would-be
	// confirmation is unreachable
	result, err := v.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, result.Status)
	assert.Equal(t, []string{"SECOND"}, backend.polls)
}

func TestPollOnce_NetworkError(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		nextCode:  "A1B2C3",
		expiresAt: now.Add(10 * time.Minute),
		statusErr: errors.New("connection reset"),
	}

	v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = v.IssueCode(context.Background())
	require.NoError(t, err)

	result, err := v.PollOnce(context.Background())
	assert.Error(t, err)
	// A failed poll leaves the code issued; the caller may retry
	assert.Equal(t, StatusIssued, result.Status)
	assert.Equal(t, StatusIssued, v.Status())
}

func TestStatus_Expired(t *testing.T) {
	issued := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{nextCode: "A1B2C3", expiresAt: issued.Add(10 * time.Minute)}

	now := issued
	v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = v.IssueCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, v.Status())

	now = issued.Add(11 * time.Minute)
	assert.Equal(t, StatusExpired, v.Status())
}

func TestReset(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{nextCode: "A1B2C3", expiresAt: now.Add(10 * time.Minute)}

	v, err := NewVerifier(backend, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	_, err = v.IssueCode(context.Background())
	require.NoError(t, err)

	v.Reset()
	assert.Equal(t, StatusNone, v.Status())
	assert.Empty(t, v.Code())
	assert.True(t, v.ExpiresAt().IsZero())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "none", StatusNone.String())
	assert.Equal(t, "issued", StatusIssued.String())
	assert.Equal(t, "confirmed", StatusConfirmed.String())
	assert.Equal(t, "expired", StatusExpired.String())
	assert.Equal(t, "unknown", Status(99).String())
}
