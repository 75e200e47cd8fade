package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/mailagent/internal/api"
	"github.com/teemow/mailagent/internal/config"
	"github.com/teemow/mailagent/internal/gmail"
	"github.com/teemow/mailagent/internal/instrumentation"
	"github.com/teemow/mailagent/internal/linking"
	"github.com/teemow/mailagent/internal/oauthflow"
	"github.com/teemow/mailagent/internal/progress"
	"github.com/teemow/mailagent/internal/server"
	"github.com/teemow/mailagent/internal/wizard"
)

func newOnboardCmd() *cobra.Command {
	var (
		restart      bool
		noBrowser    bool
		backendURL   string
		callbackAddr string
		pollInterval time.Duration
		resumePolicy string
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Run the interactive onboarding wizard",
		Long: `Walk through the Mail Agent setup: connect your Gmail account through
Google's consent screen, link the Telegram bot with a short-lived code and
pick the folders the agent should watch.

Progress is saved after every completed step. If the wizard is interrupted,
running it again resumes at the last verified step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if backendURL != "" {
				cfg.BackendURL = backendURL
			}
			if callbackAddr != "" {
				cfg.CallbackAddr = callbackAddr
			}
			if pollInterval > 0 {
				cfg.PollInterval = pollInterval
			}
			if resumePolicy != "" {
				cfg.ResumePolicy = resumePolicy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runOnboard(ctx, cfg, onboardOptions{
				restart:   restart,
				noBrowser: noBrowser,
				in:        os.Stdin,
				out:       os.Stdout,
			})
		},
	}

	cmd.Flags().BoolVar(&restart, "restart", false, "Discard saved progress and start over")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().StringVar(&backendURL, "backend", "", "Backend base URL (overrides MAILAGENT_BACKEND_URL)")
	cmd.Flags().StringVar(&callbackAddr, "callback-addr", "", "OAuth callback listen address (overrides MAILAGENT_CALLBACK_ADDR)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Telegram link poll cadence (overrides MAILAGENT_POLL_INTERVAL)")
	cmd.Flags().StringVar(&resumePolicy, "resume-policy", "", "Resume policy, clamp or restart (overrides MAILAGENT_RESUME_POLICY)")

	return cmd
}

type onboardOptions struct {
	restart   bool
	noBrowser bool
	in        io.Reader
	out       io.Writer
}

func runOnboard(ctx context.Context, cfg config.Config, opts onboardOptions) error {
	logger := slog.Default()

	instr, err := instrumentation.NewProvider(ctx, instrumentationConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := instr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", "error", err)
		}
	}()
	metrics := instr.Metrics()

	health := server.NewHealthChecker()
	if cfg.MetricsEnabled && instr.Enabled() {
		metricsSrv, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: instr,
			HealthChecker:           health,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			health.SetShuttingDown()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	backend, err := api.NewClient(cfg.BackendURL,
		api.WithLogger(logger),
		api.WithInstrumentation(metrics, instr.Tracer()),
	)
	if err != nil {
		return err
	}

	store, err := newProgressStore(cfg, logger)
	if err != nil {
		return err
	}

	coordinator, err := newCoordinator(cfg, backend, logger)
	if err != nil {
		return err
	}

	verifier, err := linking.NewVerifier(backend, linking.WithLogger(logger))
	if err != nil {
		return err
	}

	policy := wizard.ResumeClamp
	if cfg.ResumePolicy == config.ResumePolicyRestart {
		policy = wizard.ResumeRestart
	}

	wiz, err := wizard.New(store, coordinator, verifier, backend,
		wizard.WithResumePolicy(policy),
		wizard.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	in := bufio.NewReader(opts.in)
	out := opts.out

	if opts.restart {
		wiz.Restart()
	}

	if wiz.NeedsResumeDecision() {
		fmt.Fprintln(out, "Found saved progress that is more than a week old.")
		if promptYesNo(in, out, "Resume where you left off?", false) {
			wiz.ResumeStale()
		} else {
			wiz.Restart()
		}
	}

	for {
		step := wiz.Step()
		if metrics != nil {
			metrics.RecordWizardStep(ctx, step.String())
		}

		switch step {
		case wizard.StepWelcome:
			fmt.Fprintln(out, "Welcome to Mail Agent setup.")
			fmt.Fprintln(out, "This wizard connects your Gmail account and Telegram, then")
			fmt.Fprintln(out, "configures the folders the agent should watch.")
			fmt.Fprintln(out)
			if err := wiz.Advance(); err != nil {
				return err
			}

		case wizard.StepGmail:
			if err := runGmailStep(ctx, cfg, wiz, opts, in, out, metrics); err != nil {
				return err
			}

		case wizard.StepTelegram:
			if err := runTelegramStep(ctx, cfg, wiz, in, out, metrics); err != nil {
				return err
			}

		case wizard.StepFolders:
			if err := runFoldersStep(ctx, wiz, in, out); err != nil {
				return err
			}

		case wizard.StepPreferences:
			if err := runPreferencesStep(wiz, in, out); err != nil {
				return err
			}

		case wizard.StepComplete:
			if err := wiz.Finish(ctx); err != nil {
				return err
			}
			prog := wiz.Progress()
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Setup complete. Gmail account %s is connected", prog.GmailEmail)
			if prog.TelegramUsername != "" {
				fmt.Fprintf(out, " and Telegram user @%s is linked", prog.TelegramUsername)
			}
			fmt.Fprintf(out, ". Watching %d folders.\n", len(prog.Folders))
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// runGmailStep drives one OAuth handshake: bind the loopback listener,
// open the consent screen and wait for the redirect.
func runGmailStep(ctx context.Context, cfg config.Config, wiz *wizard.Controller, opts onboardOptions, in *bufio.Reader, out io.Writer, metrics *instrumentation.Metrics) error {
	// The listener must be bound before the consent screen opens so the
	// redirect has somewhere to land.
	done := make(chan error, 1)
	callbackSrv, err := server.NewCallbackServer(func(cbCtx context.Context, rawQuery string) error {
		err := wiz.FinishGmailConnect(cbCtx, rawQuery)
		select {
		case done <- err:
		default:
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := callbackSrv.Listen(cfg.CallbackAddr); err != nil {
		return err
	}
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := callbackSrv.Serve(); err != nil {
			select {
			case done <- err:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = callbackSrv.Shutdown(shutdownCtx)
		<-serveDone
	}()

	authURL, err := wiz.StartGmailConnect(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Connect your Gmail account:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s\n", authURL)
	fmt.Fprintln(out)
	if !opts.noBrowser {
		if err := openBrowser(authURL); err == nil {
			fmt.Fprintln(out, "A browser window should have opened. Complete the consent screen there.")
		}
	}
	fmt.Fprintln(out, "Waiting for Google to redirect back...")

	select {
	case err := <-done:
		if err != nil {
			if metrics != nil {
				metrics.RecordOAuthAttempt(ctx, instrumentation.OAuthResultRejected)
			}
			fmt.Fprintf(out, "Gmail connection failed: %v\n", err)
			if promptYesNo(in, out, "Try again?", true) {
				return nil
			}
			return err
		}
		if metrics != nil {
			metrics.RecordOAuthAttempt(ctx, instrumentation.OAuthResultSuccess)
		}
		fmt.Fprintf(out, "Connected %s.\n\n", wiz.Progress().GmailEmail)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runTelegramStep issues a linking code and waits for the bot to confirm it.
func runTelegramStep(ctx context.Context, cfg config.Config, wiz *wizard.Controller, in *bufio.Reader, out io.Writer, metrics *instrumentation.Metrics) error {
	code, err := wiz.StartTelegramLink(ctx)
	if err != nil {
		return err
	}
	if metrics != nil {
		metrics.RecordLinkingCodeIssued(ctx)
	}

	fmt.Fprintln(out, "Link your Telegram account:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Send this code to the Mail Agent bot: %s\n", code.Code)
	fmt.Fprintf(out, "  The code expires at %s.\n", code.ExpiresAt.Local().Format(time.Kitchen))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Waiting for the bot to confirm...")

	waitCtx, cancel := context.WithTimeout(ctx, cfg.LinkTimeout)
	defer cancel()

	result, err := wiz.AwaitTelegramLink(waitCtx, cfg.PollInterval)
	if err != nil {
		if errors.Is(err, wizard.ErrLinkExpired) {
			if metrics != nil {
				metrics.RecordLinkingPoll(ctx, instrumentation.LinkingExpired)
			}
			fmt.Fprintln(out, "The linking code expired before the bot confirmed it.")
			if promptYesNo(in, out, "Issue a new code?", true) {
				return nil
			}
		}
		return err
	}

	if metrics != nil {
		metrics.RecordLinkingPoll(ctx, instrumentation.LinkingConfirmed)
	}
	fmt.Fprintf(out, "Linked Telegram user @%s.\n\n", result.TelegramUsername)
	return nil
}

// runFoldersStep offers folder rules based on the account's Gmail labels
// and records the selection.
func runFoldersStep(ctx context.Context, wiz *wizard.Controller, in *bufio.Reader, out io.Writer) error {
	suggestions := suggestFolders(ctx, wiz, out)

	fmt.Fprintln(out, "Choose the folders the agent should watch:")
	fmt.Fprintln(out)
	for i, rule := range suggestions {
		fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, rule.Name, rule.Query)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "Numbers to include (comma-separated, empty for all): ")
	line, _ := in.ReadString('\n')
	selected, err := selectFolders(suggestions, line)
	if err != nil {
		fmt.Fprintf(out, "Invalid selection: %v. Keeping all folders.\n", err)
		selected = suggestions
	}

	if err := wiz.SetFolders(selected); err != nil {
		return err
	}
	if err := wiz.CompleteFolders(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching %d folders.\n\n", len(selected))
	return nil
}

// suggestFolders fetches label-based suggestions when the session still has
// a Google token, falling back to the defaults otherwise.
func suggestFolders(ctx context.Context, wiz *wizard.Controller, out io.Writer) []progress.FolderRule {
	conn := wiz.GmailConnection()
	if conn == nil || conn.GoogleAccessToken == "" {
		return gmail.SuggestFolders(nil)
	}

	client, err := gmail.NewClient(ctx, newStaticToken(conn.GoogleAccessToken))
	if err != nil {
		slog.Warn("gmail client unavailable, using default folders", "error", err)
		return gmail.SuggestFolders(nil)
	}

	labels, err := client.Labels(ctx)
	if err != nil {
		slog.Warn("failed to list Gmail labels, using default folders", "error", err)
		return gmail.SuggestFolders(nil)
	}

	if len(labels) > 0 {
		fmt.Fprintln(out, "Found existing Gmail labels to base folders on.")
	}
	return gmail.SuggestFolders(labels)
}

// runPreferencesStep records notification preferences for the selected
// folders.
func runPreferencesStep(wiz *wizard.Controller, in *bufio.Reader, out io.Writer) error {
	prog := wiz.Progress()

	if len(prog.Folders) > 0 && promptYesNo(in, out, "Send a Telegram notification for new mail in these folders?", true) {
		folders := make([]progress.FolderRule, len(prog.Folders))
		copy(folders, prog.Folders)
		for i := range folders {
			folders[i].NotifyTelegram = true
		}
		if err := wiz.GoTo(wizard.StepFolders); err != nil {
			return err
		}
		if err := wiz.SetFolders(folders); err != nil {
			return err
		}
		if err := wiz.CompleteFolders(); err != nil {
			return err
		}
	}

	return wiz.CompletePreferences()
}

// selectFolders filters the suggestions down to the 1-based indexes in the
// user's comma-separated input. Empty input keeps everything.
func selectFolders(suggestions []progress.FolderRule, input string) ([]progress.FolderRule, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		result := make([]progress.FolderRule, len(suggestions))
		copy(result, suggestions)
		return result, nil
	}

	var selected []progress.FolderRule
	seen := make(map[int]bool)
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		if idx < 1 || idx > len(suggestions) {
			return nil, fmt.Errorf("%d is out of range", idx)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, suggestions[idx-1])
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("no folders selected")
	}
	return selected, nil
}

// promptYesNo asks a yes/no question and returns the answer, falling back
// to the default on empty or unreadable input.
func promptYesNo(in *bufio.Reader, out io.Writer, question string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s ", question, hint)

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

// newProgressStore builds the progress store, honoring the data directory
// override.
func newProgressStore(cfg config.Config, logger *slog.Logger) (*progress.Store, error) {
	opts := []progress.StoreOption{progress.WithLogger(logger)}
	if cfg.DataDir != "" {
		opts = append(opts, progress.WithPath(filepath.Join(cfg.DataDir, "onboarding.json")))
	}
	return progress.NewStore(opts...)
}

// newCoordinator builds the OAuth coordinator, honoring the data directory
// override.
func newCoordinator(cfg config.Config, backend oauthflow.Backend, logger *slog.Logger) (*oauthflow.Coordinator, error) {
	opts := []oauthflow.Option{oauthflow.WithLogger(logger)}
	if cfg.DataDir != "" {
		opts = append(opts, oauthflow.WithPendingPath(filepath.Join(cfg.DataDir, "oauth_pending.json")))
	}
	return oauthflow.NewCoordinator(backend, opts...)
}

// instrumentationConfig derives the instrumentation setup from the agent
// configuration.
func instrumentationConfig(cfg config.Config) instrumentation.Config {
	ic := instrumentation.DefaultConfig()
	ic.ServiceVersion = version
	if !cfg.MetricsEnabled {
		ic.Enabled = false
	}
	return ic
}

// newStaticToken wraps a bearer token for the Gmail client.
func newStaticToken(accessToken string) *oauth2.Token {
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
}

// openBrowser opens the URL with the platform's default browser.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
