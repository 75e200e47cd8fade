package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate CLI documentation",
		Long: `Generate markdown documentation for all mailagent commands.
This command introspects the registered commands and outputs their
documentation in markdown format, ensuring the documentation is always
accurate and in sync with the actual command implementations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.Root(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(root *cobra.Command, outputFile string) error {
	markdown := generateCommandsMarkdown(root)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

func generateCommandsMarkdown(root *cobra.Command) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Command Reference\n\n")
	sb.WriteString(fmt.Sprintf("%s\n\n", root.Short))
	sb.WriteString("**Note:** This documentation is automatically generated from the command definitions.\n\n")

	commands := visibleCommands(root)
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name() < commands[j].Name()
	})

	// Table of contents
	sb.WriteString("## Commands\n\n")
	for _, c := range commands {
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", c.Name(), c.Name()))
	}
	sb.WriteString("\n")

	for _, c := range commands {
		sb.WriteString(generateCommandMarkdown(c))
		sb.WriteString("\n")
	}

	return sb.String()
}

// visibleCommands returns the root's subcommands minus the hidden and
// auto-generated ones.
func visibleCommands(root *cobra.Command) []*cobra.Command {
	var commands []*cobra.Command
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		commands = append(commands, c)
	}
	return commands
}

func generateCommandMarkdown(cmd *cobra.Command) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", cmd.Name()))
	sb.WriteString(fmt.Sprintf("```\nmailagent %s\n```\n\n", cmd.Use))

	if cmd.Long != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", cmd.Long))
	} else if cmd.Short != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", cmd.Short))
	}

	var flags []*pflag.Flag
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, f)
	})

	if len(flags) > 0 {
		sb.WriteString("**Flags:**\n")
		for _, f := range flags {
			sb.WriteString(fmt.Sprintf("- `--%s`", f.Name))
			if f.Shorthand != "" {
				sb.WriteString(fmt.Sprintf(" (`-%s`)", f.Shorthand))
			}
			sb.WriteString(fmt.Sprintf(": %s", f.Usage))
			if f.DefValue != "" && f.DefValue != "false" {
				sb.WriteString(fmt.Sprintf(" (default: %s)", f.DefValue))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
