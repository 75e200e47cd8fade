package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show saved onboarding progress",
		Long: `Show the state of a saved onboarding run: which step it stopped at,
which accounts are connected and which folders were selected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := newProgressStore(cfg, slog.Default())
			if err != nil {
				return err
			}

			prog, isStale := store.Load()
			if prog == nil {
				fmt.Println("No saved onboarding progress.")
				return nil
			}

			fmt.Printf("Saved at:  %s", prog.LastUpdated.Local().Format("2006-01-02 15:04"))
			if isStale {
				fmt.Print(" (stale, a resume prompt will be shown)")
			}
			fmt.Println()
			fmt.Printf("Step:      %d\n", prog.CurrentStep)
			fmt.Printf("Gmail:     %s\n", connectionLine(prog.GmailConnected, prog.GmailEmail))
			fmt.Printf("Telegram:  %s\n", connectionLine(prog.TelegramConnected, "@"+prog.TelegramUsername))

			if len(prog.Folders) > 0 {
				fmt.Println("Folders:")
				for _, f := range prog.Folders {
					notify := ""
					if f.NotifyTelegram {
						notify = " (notifies Telegram)"
					}
					fmt.Printf("  - %s%s\n", f.Name, notify)
				}
			}
			return nil
		},
	}
}

func connectionLine(connected bool, detail string) string {
	if !connected {
		return "not connected"
	}
	return "connected " + detail
}
