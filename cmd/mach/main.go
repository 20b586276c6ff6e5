// Command mach bundles JavaScript, TypeScript, CSS and HTML for the web.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mach/internal/failure"
	"mach/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "mach",
	Short:         "A bundler for JavaScript, TypeScript, CSS and HTML",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return applyColorFlag(cmd)
	},
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	flags.String("trace", "", "write trace events to a file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.Duration("trace-heartbeat", 0, "emit a heartbeat at this interval (0 disables)")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		reportError(err)
		os.Exit(failure.ExitCode(err))
	}
}

func reportError(err error) {
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), usage.err)
		return
	}
	label := "error:"
	if failure.IsPlugin(err) {
		label = "plugin error:"
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString(label), err)
}

// usageError marks mistakes in how mach was invoked.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func applyColorFlag(cmd *cobra.Command) error {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch value {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !isTerminal(os.Stderr)
	default:
		return &usageError{fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)}
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
