package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mailagent/internal/api"
)

// fakeBackend implements Backend for tests.
type fakeBackend struct {
	authConfigErr error
	exchangeErr   error
	exchanges     int
	lastCode      string
	lastState     string
}

func (f *fakeBackend) GmailAuthConfig(ctx context.Context) (*api.GmailAuthConfig, error) {
	if f.authConfigErr != nil {
		return nil, f.authConfigErr
	}
	return &api.GmailAuthConfig{
		AuthURL:     "https://accounts.example.com/o/oauth2/auth",
		TokenURL:    "https://accounts.example.com/o/oauth2/token",
		ClientID:    "client-123",
		RedirectURI: "http://127.0.0.1:8765/oauth/callback",
		Scopes:      []string{"https://www.googleapis.com/auth/gmail.readonly"},
	}, nil
}

func (f *fakeBackend) ExchangeGmailCode(ctx context.Context, code, state string) (*api.GmailConnection, error) {
	f.exchanges++
	f.lastCode = code
	f.lastState = state
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &api.GmailConnection{Email: "user@example.com", SessionToken: "session-abc"}, nil
}

func newTestCoordinator(t *testing.T, backend Backend) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(backend,
		WithPendingPath(filepath.Join(t.TempDir(), "oauth_pending.json")),
	)
	require.NoError(t, err)
	return c
}

// stateFromAuthURL extracts the state parameter Begin embedded in the URL.
func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestBegin(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	assert.Equal(t, PhaseIdle, c.Phase())

	authURL, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", u.Host)
	assert.Equal(t, "client-123", u.Query().Get("client_id"))
	assert.NotEmpty(t, u.Query().Get("state"))

	assert.Equal(t, PhaseAwaitingRedirect, c.Phase())
	assert.True(t, c.HasPending())
	assert.Equal(t, 2, c.ReturnStep())
}

func TestBegin_BackendUnavailable(t *testing.T) {
	backend := &fakeBackend{authConfigErr: errors.New("connection refused")}
	c := newTestCoordinator(t, backend)

	_, err := c.Begin(context.Background(), 2)
	assert.Error(t, err)
	assert.False(t, c.HasPending())
}

func TestResume_Success(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	authURL, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)
	state := stateFromAuthURL(t, authURL)

	conn, err := c.Resume(context.Background(), "code=auth-code&state="+url.QueryEscape(state))
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", conn.Email)
	assert.Equal(t, "auth-code", backend.lastCode)
	assert.Equal(t, state, backend.lastState)
	assert.Equal(t, PhaseResolved, c.Phase())

	// The attempt is consumed
	assert.False(t, c.HasPending())
}

func TestResume_ReplayRejected(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	authURL, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)
	state := stateFromAuthURL(t, authURL)
	query := "code=auth-code&state=" + url.QueryEscape(state)

	_, err = c.Resume(context.Background(), query)
	require.NoError(t, err)

	// Replaying the exact callback must not re-trigger the exchange
	_, err = c.Resume(context.Background(), query)
	assert.ErrorIs(t, err, ErrNoPendingAttempt)
	assert.Equal(t, 1, backend.exchanges)
}

func TestResume_StateMismatch(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	_, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)

	_, err = c.Resume(context.Background(), "code=auth-code&state=forged-state")
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Equal(t, PhaseRejected, c.Phase())
	assert.Zero(t, backend.exchanges)

	// A mismatched callback still consumes the attempt
	assert.False(t, c.HasPending())
}

func TestResume_CrossAttemptStateRejected(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	firstURL, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)
	firstState := stateFromAuthURL(t, firstURL)

	// Starting attempt B invalidates attempt A's state
	_, err = c.Begin(context.Background(), 2)
	require.NoError(t, err)

	_, err = c.Resume(context.Background(), "code=auth-code&state="+url.QueryEscape(firstState))
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Zero(t, backend.exchanges)
}

func TestResume_MissingParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "no code", query: "state=something"},
		{name: "no state", query: "code=something"},
		{name: "empty", query: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			c := newTestCoordinator(t, backend)

			_, err := c.Begin(context.Background(), 2)
			require.NoError(t, err)

			_, err = c.Resume(context.Background(), tt.query)
			assert.ErrorIs(t, err, ErrMissingParameters)
			assert.Zero(t, backend.exchanges)
		})
	}
}

func TestResume_MalformedQueryConsumesAttempt(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	_, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)

	// An unparseable query consumes the attempt like every other rejection
	_, err = c.Resume(context.Background(), "code=%zz")
	assert.ErrorIs(t, err, ErrMissingParameters)
	assert.Equal(t, PhaseRejected, c.Phase())
	assert.Zero(t, backend.exchanges)
	assert.False(t, c.HasPending())
}

func TestResume_ProviderDenied(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	_, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)

	_, err = c.Resume(context.Background(), "error=access_denied")
	assert.ErrorIs(t, err, ErrProviderDenied)
	assert.Zero(t, backend.exchanges)
}

func TestResume_ExchangeFailure(t *testing.T) {
	backend := &fakeBackend{exchangeErr: fmt.Errorf("backend down")}
	c := newTestCoordinator(t, backend)

	authURL, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)
	state := stateFromAuthURL(t, authURL)

	_, err = c.Resume(context.Background(), "code=auth-code&state="+url.QueryEscape(state))
	require.Error(t, err)
	assert.Equal(t, PhaseRejected, c.Phase())

	// The failed attempt is consumed; the user retries with a fresh state
	assert.False(t, c.HasPending())
}

func TestResume_NoAttempt(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	_, err := c.Resume(context.Background(), "code=auth-code&state=whatever")
	assert.ErrorIs(t, err, ErrNoPendingAttempt)
}

func TestNewCoordinator_RehydratesPendingAttempt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_pending.json")
	backend := &fakeBackend{}

	first, err := NewCoordinator(backend, WithPendingPath(path))
	require.NoError(t, err)

	authURL, err := first.Begin(context.Background(), 2)
	require.NoError(t, err)
	state := stateFromAuthURL(t, authURL)

	// A fresh process sees the durable attempt and can complete it
	second, err := NewCoordinator(backend, WithPendingPath(path))
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingRedirect, second.Phase())
	assert.Equal(t, 2, second.ReturnStep())

	conn, err := second.Resume(context.Background(), "code=auth-code&state="+url.QueryEscape(state))
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", conn.Email)
}

func TestNewCoordinator_CorruptPendingIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_pending.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0600))

	c, err := NewCoordinator(&fakeBackend{}, WithPendingPath(path))
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.False(t, c.HasPending())
}

func TestCancel(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend)

	_, err := c.Begin(context.Background(), 2)
	require.NoError(t, err)

	c.Cancel()
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.False(t, c.HasPending())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "awaiting_redirect", PhaseAwaitingRedirect.String())
	assert.Equal(t, "resolved", PhaseResolved.String())
	assert.Equal(t, "rejected", PhaseRejected.String())
	assert.Equal(t, "unknown", Phase(99).String())
}

func TestNewStateToken_Unique(t *testing.T) {
	a, err := newStateToken()
	require.NoError(t, err)
	b, err := newStateToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40)
}
