package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/mailagent/internal/api"
	"github.com/teemow/mailagent/internal/linking"
	"github.com/teemow/mailagent/internal/logging"
	"github.com/teemow/mailagent/internal/progress"
)

// Sentinel errors for illegal transitions. All are recoverable; the wizard
// stays on its current step.
var (
	// ErrGmailNotConnected means a transition past the gmail step was
	// attempted without a connected Gmail account.
	ErrGmailNotConnected = errors.New("gmail account not connected")

	// ErrTelegramNotConnected means a transition past the telegram step
	// was attempted without a linked Telegram bot.
	ErrTelegramNotConnected = errors.New("telegram bot not linked")

	// ErrResumeDecisionPending means stale progress was restored and the
	// caller must choose ResumeStale or Restart before proceeding.
	ErrResumeDecisionPending = errors.New("stale progress needs a resume-or-restart decision")

	// ErrWrongStep means the requested operation does not belong to the
	// current step.
	ErrWrongStep = errors.New("operation not valid for current step")

	// ErrLinkExpired means the Telegram linking code expired before the
	// bot confirmed it; the user may request a new code.
	ErrLinkExpired = errors.New("linking code expired")
)

// Store is the persistence contract the controller drives. The controller
// is the only writer of the step cursor; the store persists snapshots
// without business validation.
type Store interface {
	Load() (*progress.Progress, bool)
	Save(*progress.Progress)
	Clear()
}

// Coordinator is the OAuth handshake contract (see package oauthflow).
type Coordinator interface {
	Begin(ctx context.Context, returnStep int) (string, error)
	Resume(ctx context.Context, rawQuery string) (*api.GmailConnection, error)
	HasPending() bool
	Cancel()
}

// Verifier is the Telegram linking contract (see package linking).
type Verifier interface {
	IssueCode(ctx context.Context) (*api.LinkingCode, error)
	PollOnce(ctx context.Context) (linking.PollResult, error)
	Code() string
}

// Completer marks onboarding finished on the backend.
type Completer interface {
	CompleteOnboarding(ctx context.Context) error
}

// Controller sequences the onboarding wizard. It owns the step cursor
// exclusively, enforces the connection gates on every transition attempt,
// and reconciles resumed progress with what the flags actually justify.
type Controller struct {
	store       Store
	coordinator Coordinator
	verifier    Verifier
	completer   Completer
	policy      ResumePolicy
	now         func() time.Time
	logger      *slog.Logger

	mu           sync.Mutex
	step         Step
	prog         *progress.Progress
	conn         *api.GmailConnection
	stalePending bool
	finished     bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithResumePolicy sets how a stored step ahead of the flags is handled.
func WithResumePolicy(policy ResumePolicy) Option {
	return func(c *Controller) {
		c.policy = policy
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger sets the logger used by the controller.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// New creates a controller and synchronously restores persisted progress.
// The single Load happens here, before the caller ever observes a step, so
// there is no window where an earlier step is shown and then replaced.
func New(store Store, coordinator Coordinator, verifier Verifier, completer Completer, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer cannot be nil")
	}

	c := &Controller{
		store:       store,
		coordinator: coordinator,
		verifier:    verifier,
		completer:   completer,
		policy:      ResumeClamp,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.restore()
	return c, nil
}

// restore reconciles persisted progress with the step the flags justify.
func (c *Controller) restore() {
	stored, isStale := c.store.Load()
	if stored == nil {
		c.prog = &progress.Progress{CurrentStep: int(StepWelcome)}
		c.step = StepWelcome
		return
	}

	allowed := furthestAllowed(stored)
	storedStep := Step(stored.CurrentStep)
	if !storedStep.valid() {
		storedStep = StepWelcome
	}

	if storedStep > allowed && c.policy == ResumeRestart {
		c.logger.Warn("stored step ahead of connection flags, restarting",
			logging.Operation("wizard.restore"),
			slog.Int("stored_step", stored.CurrentStep),
			logging.Step(allowed.String()),
		)
		c.store.Clear()
		c.prog = &progress.Progress{CurrentStep: int(StepWelcome)}
		c.step = StepWelcome
		return
	}

	// Never trust a stored cursor that is ahead of what the flags justify.
	step := storedStep
	if step > allowed {
		c.logger.Warn("stored step ahead of connection flags, clamping",
			logging.Operation("wizard.restore"),
			slog.Int("stored_step", stored.CurrentStep),
			logging.Step(allowed.String()),
		)
		step = allowed
	}

	c.prog = stored.Clone()
	c.prog.CurrentStep = int(step)
	c.step = step
	c.stalePending = isStale

	c.logger.Info("progress restored",
		logging.Operation("wizard.restore"),
		logging.Step(step.String()),
		slog.Bool("stale", isStale),
	)
}

// furthestAllowed computes the furthest step the connection flags justify.
func furthestAllowed(p *progress.Progress) Step {
	if !p.GmailConnected {
		return StepGmail
	}
	if !p.TelegramConnected {
		return StepTelegram
	}
	return StepComplete
}

// Step returns the current wizard step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Progress returns a copy of the working snapshot.
func (c *Controller) Progress() *progress.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prog.Clone()
}

// NeedsResumeDecision reports whether restored progress was stale. Stale
// progress is not discarded automatically; the UI surfaces a resume-or-
// restart choice and calls ResumeStale or Restart.
func (c *Controller) NeedsResumeDecision() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalePending
}

// ResumeStale accepts the restored-but-stale progress and continues.
func (c *Controller) ResumeStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalePending = false
}

// Restart discards all progress and returns to the welcome step.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Clear()
	c.coordinator.Cancel()
	c.prog = &progress.Progress{CurrentStep: int(StepWelcome)}
	c.step = StepWelcome
	c.stalePending = false
	c.finished = false

	c.logger.Info("wizard restarted", logging.Operation("wizard.restart"))
}

// Advance moves to the next step. The connection gates are enforced on
// every attempt: the wizard never moves past gmail without a connected
// account nor past telegram without a linked bot.
func (c *Controller) Advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked()
}

func (c *Controller) advanceLocked() error {
	if c.stalePending {
		return ErrResumeDecisionPending
	}
	if c.step >= StepComplete {
		return nil
	}

	next := c.step + 1
	if err := c.gateLocked(next); err != nil {
		return err
	}

	c.step = next
	c.saveLocked()

	c.logger.Info("step advanced",
		logging.Operation("wizard.advance"),
		logging.Step(next.String()),
	)
	return nil
}

// GoTo navigates directly to a step, subject to the same gates. Backward
// navigation is always allowed.
func (c *Controller) GoTo(target Step) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !target.valid() {
		return fmt.Errorf("invalid step %d", int(target))
	}
	if c.stalePending {
		return ErrResumeDecisionPending
	}
	if err := c.gateLocked(target); err != nil {
		return err
	}

	c.step = target
	c.saveLocked()
	return nil
}

// gateLocked rejects a target step the connection flags do not justify.
func (c *Controller) gateLocked(target Step) error {
	if target > StepGmail && !c.prog.GmailConnected {
		return ErrGmailNotConnected
	}
	if target > StepTelegram && !c.prog.TelegramConnected {
		return ErrTelegramNotConnected
	}
	return nil
}

// StartGmailConnect begins an OAuth attempt and returns the authorization
// URL the user's browser must open.
func (c *Controller) StartGmailConnect(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.stalePending {
		c.mu.Unlock()
		return "", ErrResumeDecisionPending
	}
	if c.step != StepGmail {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: expected %s, on %s", ErrWrongStep, StepGmail, c.step)
	}
	c.mu.Unlock()

	return c.coordinator.Begin(ctx, int(StepGmail))
}

// FinishGmailConnect consumes the OAuth callback query. On success the
// Gmail flags are recorded, the snapshot is saved and the wizard advances
// to the telegram step. On failure the wizard stays on the gmail step and
// the returned error carries the recoverable cause.
func (c *Controller) FinishGmailConnect(ctx context.Context, rawQuery string) error {
	conn, err := c.coordinator.Resume(ctx, rawQuery)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	c.prog.GmailConnected = true
	c.prog.GmailEmail = conn.Email
	if c.step < StepTelegram {
		c.step = StepTelegram
	}
	c.saveLocked()

	c.logger.Info("gmail connected",
		logging.Operation("wizard.gmail"),
		logging.UserHash(conn.Email),
		logging.Status(logging.StatusSuccess),
	)
	return nil
}

// GmailConnection returns the connection established in this process, or
// nil when Gmail was connected in an earlier run. The session lives only in
// memory, so a resumed wizard has the flags but not the tokens.
func (c *Controller) GmailConnection() *api.GmailConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// StartTelegramLink issues a fresh linking code for the user to relay to
// the bot. Reissuing invalidates any previous code.
func (c *Controller) StartTelegramLink(ctx context.Context) (*api.LinkingCode, error) {
	c.mu.Lock()
	if c.stalePending {
		c.mu.Unlock()
		return nil, ErrResumeDecisionPending
	}
	if c.step != StepTelegram {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: expected %s, on %s", ErrWrongStep, StepTelegram, c.step)
	}
	c.mu.Unlock()

	return c.verifier.IssueCode(ctx)
}

// PollTelegramLink performs one verification check and applies a
// confirmation to the wizard state. A confirmation arriving after the user
// left the telegram step is discarded rather than applied.
func (c *Controller) PollTelegramLink(ctx context.Context) (linking.PollResult, error) {
	code := c.verifier.Code()

	result, err := c.verifier.PollOnce(ctx)
	if err != nil {
		return result, err
	}

	switch result.Status {
	case linking.StatusExpired:
		return result, ErrLinkExpired
	case linking.StatusConfirmed:
		c.mu.Lock()
		defer c.mu.Unlock()

		// Late-response guard: ignore a confirmation when the wizard has
		// moved on or the code was reissued mid-flight.
		if c.step != StepTelegram || c.verifier.Code() != code {
			return result, nil
		}

		c.prog.TelegramConnected = true
		c.prog.TelegramUsername = result.TelegramUsername
		c.step = StepFolders
		c.saveLocked()

		c.logger.Info("telegram linked",
			logging.Operation("wizard.telegram"),
			slog.String("telegram_username", result.TelegramUsername),
			logging.Status(logging.StatusSuccess),
		)
	}
	return result, nil
}

// AwaitTelegramLink polls sequentially at the given interval until the code
// is confirmed, expires, or the context is cancelled. Polls never overlap:
// a new request is issued only after the previous one resolved. A transient
// backend failure does not end the wait; the code stays issued and the next
// tick retries, bounded by the caller's context deadline.
func (c *Controller) AwaitTelegramLink(ctx context.Context, interval time.Duration) (linking.PollResult, error) {
	for {
		result, err := c.PollTelegramLink(ctx)
		if err != nil {
			if errors.Is(err, ErrLinkExpired) || errors.Is(err, linking.ErrNoCode) || ctx.Err() != nil {
				return result, err
			}
			c.logger.Warn("linking poll failed, will retry",
				logging.Operation("wizard.telegram"),
				logging.Err(err),
			)
		}
		if result.Status == linking.StatusConfirmed {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// SetFolders records the configured folder rules and saves the snapshot.
func (c *Controller) SetFolders(folders []progress.FolderRule) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stalePending {
		return ErrResumeDecisionPending
	}
	if c.step != StepFolders {
		return fmt.Errorf("%w: expected %s, on %s", ErrWrongStep, StepFolders, c.step)
	}

	c.prog.Folders = make([]progress.FolderRule, len(folders))
	copy(c.prog.Folders, folders)
	c.saveLocked()
	return nil
}

// CompleteFolders finishes the folders step.
func (c *Controller) CompleteFolders() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepFolders {
		return fmt.Errorf("%w: expected %s, on %s", ErrWrongStep, StepFolders, c.step)
	}
	return c.advanceLocked()
}

// CompletePreferences finishes the preferences step.
func (c *Controller) CompletePreferences() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepPreferences {
		return fmt.Errorf("%w: expected %s, on %s", ErrWrongStep, StepPreferences, c.step)
	}
	return c.advanceLocked()
}

// Finish marks onboarding complete on the backend and clears persisted
// progress. Finish is idempotent: a retried completion is a no-op. A failed
// backend call leaves the snapshot in place so the user can retry.
func (c *Controller) Finish(ctx context.Context) error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return nil
	}
	if c.step != StepComplete {
		c.mu.Unlock()
		return fmt.Errorf("%w: expected %s, on %s", ErrWrongStep, StepComplete, c.step)
	}
	if err := c.gateLocked(StepComplete); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := c.completer.CompleteOnboarding(ctx); err != nil {
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return nil
	}
	c.finished = true
	c.store.Clear()

	c.logger.Info("onboarding complete",
		logging.Operation("wizard.finish"),
		logging.Status(logging.StatusSuccess),
	)
	return nil
}

// saveLocked persists the working snapshot with a fresh timestamp.
// Callers must hold c.mu.
func (c *Controller) saveLocked() {
	c.prog.CurrentStep = int(c.step)
	c.prog.LastUpdated = c.now()
	c.store.Save(c.prog)
}
