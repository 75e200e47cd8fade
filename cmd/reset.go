package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/mailagent/internal/api"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard saved onboarding progress",
		Long: `Delete the saved onboarding snapshot and any pending OAuth handshake.
The next onboarding run starts from the beginning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if !yes {
				in := bufio.NewReader(os.Stdin)
				if !promptYesNo(in, os.Stdout, "Discard saved onboarding progress?", false) {
					fmt.Println("Aborted.")
					return nil
				}
			}

			store, err := newProgressStore(cfg, slog.Default())
			if err != nil {
				return err
			}
			store.Clear()

			backend, err := api.NewClient(cfg.BackendURL)
			if err != nil {
				return err
			}

			coordinator, err := newCoordinator(cfg, backend, slog.Default())
			if err != nil {
				return err
			}
			coordinator.Cancel()

			fmt.Println("Saved onboarding progress discarded.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
