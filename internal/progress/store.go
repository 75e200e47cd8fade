package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teemow/mailagent/internal/logging"
)

const (
	// StaleAfter is how old a snapshot may be before it is flagged stale.
	// Stale snapshots are still returned; discarding them is a policy
	// decision that belongs to the wizard controller.
	StaleAfter = 7 * 24 * time.Hour

	// progressFileName is the fixed storage key for the snapshot.
	progressFileName = "onboarding.json"

	dirPerm  = 0700
	filePerm = 0600
)

// Store persists the onboarding snapshot as a single JSON file. It keeps an
// in-memory mirror of the last loaded or saved snapshot so callers can read
// back what was persisted without touching disk again.
//
// The store is single-writer by contract (the wizard controller); the mutex
// only protects the mirror against concurrent readers.
type Store struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.RWMutex
	mirror *Progress
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPath overrides the snapshot file path (used in tests).
func WithPath(path string) StoreOption {
	return func(s *Store) {
		s.path = path
	}
}

// WithStaleAfter overrides the staleness threshold.
func WithStaleAfter(d time.Duration) StoreOption {
	return func(s *Store) {
		s.staleAfter = d
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a progress store. Without WithPath the snapshot lives
// under the user config directory (e.g. ~/.config/mailagent/onboarding.json).
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		staleAfter: StaleAfter,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user config directory: %w", err)
		}
		s.path = filepath.Join(configDir, "mailagent", progressFileName)
	}

	return s, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted snapshot. It returns the snapshot and whether it
// is stale (older than the staleness threshold).
//
// Load fails soft: a missing file returns (nil, false); a malformed or
// structurally invalid payload is erased and also returns (nil, false).
// Load never returns an error to the caller.
func (s *Store) Load() (*Progress, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read progress snapshot, treating as absent",
				logging.Operation("progress.load"),
				logging.Err(err),
			)
		}
		return nil, false
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn("corrupt progress snapshot, erasing",
			logging.Operation("progress.load"),
			logging.Err(err),
		)
		s.erase()
		return nil, false
	}

	if err := validate(&p); err != nil {
		s.logger.Warn("invalid progress snapshot, erasing",
			logging.Operation("progress.load"),
			logging.Err(err),
		)
		s.erase()
		return nil, false
	}

	isStale := s.now().Sub(p.LastUpdated) > s.staleAfter

	s.mu.Lock()
	s.mirror = p.Clone()
	s.mu.Unlock()

	s.logger.Debug("progress snapshot loaded",
		logging.Operation("progress.load"),
		slog.Int("current_step", p.CurrentStep),
		slog.Bool("gmail_connected", p.GmailConnected),
		slog.Bool("telegram_connected", p.TelegramConnected),
		slog.Bool("stale", isStale),
	)

	return &p, isStale
}

// Save persists the snapshot, overwriting any existing record. Save is
// best-effort: failures are logged and swallowed, since losing resumability
// must never block the onboarding flow itself.
func (s *Store) Save(p *Progress) {
	if p == nil {
		return
	}

	s.mu.Lock()
	s.mirror = p.Clone()
	s.mu.Unlock()

	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Warn("failed to encode progress snapshot",
			logging.Operation("progress.save"),
			logging.Err(err),
		)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		s.logger.Warn("failed to create config directory",
			logging.Operation("progress.save"),
			logging.Err(err),
		)
		return
	}

	if err := os.WriteFile(s.path, data, filePerm); err != nil {
		s.logger.Warn("failed to write progress snapshot",
			logging.Operation("progress.save"),
			logging.Err(err),
		)
		return
	}

	s.logger.Debug("progress snapshot saved",
		logging.Operation("progress.save"),
		slog.Int("current_step", p.CurrentStep),
	)
}

// Clear removes the persisted snapshot and resets the in-memory mirror.
// Clearing an already-cleared store is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	s.mirror = nil
	s.mu.Unlock()

	s.erase()

	s.logger.Debug("progress snapshot cleared",
		logging.Operation("progress.clear"),
	)
}

// Current returns a copy of the last loaded or saved snapshot, or nil when
// nothing has been persisted in this process.
func (s *Store) Current() *Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror.Clone()
}

// erase removes the snapshot file, ignoring not-exist errors.
func (s *Store) erase() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove progress snapshot",
			logging.Operation("progress.erase"),
			logging.Err(err),
		)
	}
}

// validate checks structural shape only. Business rules (step gates, flag
// consistency) belong to the wizard controller.
func validate(p *Progress) error {
	if p.CurrentStep < 1 {
		return fmt.Errorf("currentStep %d out of range", p.CurrentStep)
	}
	if p.LastUpdated.IsZero() {
		return fmt.Errorf("lastUpdated missing")
	}
	return nil
}
