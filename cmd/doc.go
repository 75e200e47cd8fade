// Package cmd implements the command-line interface for mailagent.
//
// This package provides the following commands:
//   - onboard: Run the interactive setup wizard (Gmail, Telegram, folders)
//   - status: Show saved onboarding progress
//   - reset: Discard saved onboarding progress
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all commands
//
// The onboard command is the default command when no subcommand is specified.
package cmd
