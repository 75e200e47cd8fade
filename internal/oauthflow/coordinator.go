package oauthflow

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/api"
	"github.com/teemow/mailagent/internal/logging"
)

const (
	// pendingFileName is the fixed storage key for the in-flight attempt.
	pendingFileName = "oauth_pending.json"

	// stateTokenBytes is the entropy of a state token before encoding.
	stateTokenBytes = 32

	dirPerm  = 0700
	filePerm = 0600
)

// Backend is the subset of the api client the coordinator needs.
type Backend interface {
	GmailAuthConfig(ctx context.Context) (*api.GmailAuthConfig, error)
	ExchangeGmailCode(ctx context.Context, code, state string) (*api.GmailConnection, error)
}

// Coordinator turns an external OAuth redirect into a connected-Gmail
// confirmation. The suspension point of the handshake is a full navigation
// away from the client, so the attempt's state token is persisted to disk
// before the authorization URL is handed out, and the returning callback is
// validated against that durable record rather than anything in memory.
type Coordinator struct {
	backend Backend
	path    string
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	phase Phase
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPendingPath overrides the pending-attempt file path (used in tests).
func WithPendingPath(path string) Option {
	return func(c *Coordinator) {
		c.path = path
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger sets the logger used by the coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a coordinator backed by the given backend client.
// Without WithPendingPath the pending attempt lives alongside the progress
// snapshot under the user config directory.
func NewCoordinator(backend Backend, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}

	c := &Coordinator{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
		phase:   PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user config directory: %w", err)
		}
		c.path = filepath.Join(configDir, "mailagent", pendingFileName)
	}

	// A pending attempt left on disk by an earlier process means we are
	// still between redirect and callback.
	if _, err := c.loadPending(); err == nil {
		c.phase = PhaseAwaitingRedirect
	}

	return c, nil
}

// Phase returns the coordinator's current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// HasPending reports whether a durable in-flight attempt exists.
func (c *Coordinator) HasPending() bool {
	_, err := c.loadPending()
	return err == nil
}

// Begin starts a fresh authorization attempt and returns the authorization
// URL the user's browser must navigate to. The attempt's state token is
// persisted before the URL is returned; if persistence fails, Begin fails,
// because a callback could then never be validated.
//
// Beginning a new attempt overwrites any previous one: a state token from an
// earlier attempt is no longer accepted once Begin has been called again.
func (c *Coordinator) Begin(ctx context.Context, returnStep int) (string, error) {
	cfg, err := c.backend.GmailAuthConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch auth config: %w", err)
	}

	state, err := newStateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	pending := &pendingHandshake{
		State:      state,
		AttemptID:  uuid.NewString(),
		ReturnStep: returnStep,
		CreatedAt:  c.now(),
	}
	if err := c.savePending(pending); err != nil {
		return "", fmt.Errorf("failed to persist authorization attempt: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURI,
		Scopes:      cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)

	c.mu.Lock()
	c.phase = PhaseAwaitingRedirect
	c.mu.Unlock()

	c.logger.Info("authorization attempt started",
		logging.Operation("oauth.begin"),
		logging.Attempt(pending.AttemptID),
		slog.String("state", logging.SanitizeToken(state)),
	)

	return authURL, nil
}

// Resume consumes the redirect's query string and completes the handshake.
// The pending attempt is consumed exactly once regardless of outcome, so a
// refreshed or replayed callback URL cannot re-trigger the exchange.
func (c *Coordinator) Resume(ctx context.Context, rawQuery string) (*api.GmailConnection, error) {
	pending, err := c.loadPending()
	if err != nil {
		return nil, c.reject("", ErrNoPendingAttempt)
	}

	// Consume the attempt before interpreting anything else. Single-use is
	// the replay defense: success or failure, this state never validates a
	// second callback.
	c.clearPending()

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, c.reject(pending.AttemptID, fmt.Errorf("%w: %v", ErrMissingParameters, err))
	}

	if errParam := params.Get("error"); errParam != "" {
		return nil, c.reject(pending.AttemptID, fmt.Errorf("%w: %s", ErrProviderDenied, errParam))
	}

	code := params.Get("code")
	state := params.Get("state")
	if code == "" || state == "" {
		return nil, c.reject(pending.AttemptID, ErrMissingParameters)
	}

	if subtle.ConstantTimeCompare([]byte(state), []byte(pending.State)) != 1 {
		return nil, c.reject(pending.AttemptID, ErrStateMismatch)
	}

	conn, err := c.backend.ExchangeGmailCode(ctx, code, state)
	if err != nil {
		return nil, c.reject(pending.AttemptID, fmt.Errorf("code exchange failed: %w", err))
	}

	c.mu.Lock()
	c.phase = PhaseResolved
	c.mu.Unlock()

	c.logger.Info("authorization attempt resolved",
		logging.Operation("oauth.resume"),
		logging.Attempt(pending.AttemptID),
		logging.UserHash(conn.Email),
		logging.Status(logging.StatusSuccess),
	)

	return conn, nil
}

// ReturnStep reports which wizard step the pending attempt intends to land
// on, or 0 when no attempt is pending.
func (c *Coordinator) ReturnStep() int {
	pending, err := c.loadPending()
	if err != nil {
		return 0
	}
	return pending.ReturnStep
}

// Cancel abandons any pending attempt.
func (c *Coordinator) Cancel() {
	c.clearPending()
	c.mu.Lock()
	c.phase = PhaseIdle
	c.mu.Unlock()
}

// reject records a failed attempt and returns the error for the caller.
func (c *Coordinator) reject(attemptID string, err error) error {
	c.mu.Lock()
	c.phase = PhaseRejected
	c.mu.Unlock()

	c.logger.Warn("authorization attempt rejected",
		logging.Operation("oauth.resume"),
		logging.Attempt(attemptID),
		logging.Err(err),
	)
	return err
}

func (c *Coordinator) savePending(p *pendingHandshake) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), dirPerm); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, filePerm)
}

func (c *Coordinator) loadPending() (*pendingHandshake, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var p pendingHandshake
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.State == "" {
		return nil, fmt.Errorf("pending attempt missing state")
	}
	return &p, nil
}

func (c *Coordinator) clearPending() {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("failed to remove pending attempt",
			logging.Operation("oauth.clear"),
			logging.Err(err),
		)
	}
}

// newStateToken returns a fresh opaque state token.
func newStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
