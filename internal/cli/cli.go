// Package cli implements the aaalint command line client. Its analyze command
// plays the role the editor extension plays for the original backend: take a
// selection of Python test code, send it to the analysis server, and render
// the returned report.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/daimoniac/aaalint/internal/client"
	"github.com/daimoniac/aaalint/internal/version"
)

// Options carries the global CLI configuration
type Options struct {
	ServerURL string
	Timeout   time.Duration
}

// NewRootCommand builds the aaalint command tree
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "aaalint",
		Short: "Analyze pytest code for Arrange-Act-Assert structure issues",
		Long: `aaalint sends Python test code to an aaalint analysis server and
renders the structural report it returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("AAALINT_SERVER")
	if defaultServer == "" {
		defaultServer = client.DefaultBaseURL
	}

	rootCmd.PersistentFlags().StringVar(&opts.ServerURL, "server", defaultServer, "analysis server base URL")
	rootCmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "request timeout")

	rootCmd.AddCommand(newAnalyzeCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newVersionCommand(opts))

	return rootCmd
}

func newClient(opts *Options) *client.Client {
	return client.New(opts.ServerURL, client.WithTimeout(opts.Timeout))
}

// newAnalyzeCommand builds the analyze subcommand
func newAnalyzeCommand(opts *Options) *cobra.Command {
	var (
		startLine  int
		endLine    int
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a selection of Python test code",
		Long: `Analyze reads Python test code from a file (or stdin when no file is
given), optionally narrowed to a line range, and sends it to the analysis
server. The raw analysis report replaces the output surface: stdout by
default, or the file given with --output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := readSelection(cmd, args, startLine, endLine)
			if err != nil {
				return err
			}

			return runAnalyze(cmd, opts, selection, outputPath)
		},
	}

	cmd.Flags().IntVar(&startLine, "start", 0, "first line of the selection (1-based, inclusive)")
	cmd.Flags().IntVar(&endLine, "end", 0, "last line of the selection (1-based, inclusive)")
	cmd.Flags().StringVar(&outputPath, "output", "", "write the report to this file instead of stdout")

	return cmd
}

// readSelection loads the code selection from the file argument or stdin
func readSelection(cmd *cobra.Command, args []string, startLine, endLine int) (string, error) {
	var source []byte
	var err error

	if len(args) == 1 {
		source, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", args[0], err)
		}
	} else {
		source, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	return selectLines(string(source), startLine, endLine)
}

// selectLines narrows source to the 1-based inclusive line range [start, end].
// A zero start or end leaves that boundary open.
func selectLines(source string, start, end int) (string, error) {
	if start == 0 && end == 0 {
		return source, nil
	}

	if start < 0 || end < 0 {
		return "", fmt.Errorf("line numbers must be positive")
	}
	if start > 0 && end > 0 && end < start {
		return "", fmt.Errorf("end line %d is before start line %d", end, start)
	}

	lines := strings.Split(source, "\n")
	if start == 0 {
		start = 1
	}
	if end == 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return "", nil
	}

	return strings.Join(lines[start-1:end], "\n"), nil
}

// runAnalyze performs the analyze action for a selection
func runAnalyze(cmd *cobra.Command, opts *Options, selection, outputPath string) error {
	// An empty selection never triggers a request
	if strings.TrimSpace(selection) == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to analyze: the selection is empty.")
		return nil
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Analyzing selection...")

	result, err := newClient(opts).AnalyzeCode(cmd.Context(), selection)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "could not connect to analysis server")
		return writeReport(cmd, outputPath, fmt.Sprintf("Error: %v\n", err))
	}

	return writeReport(cmd, outputPath, result)
}

// writeReport replaces the output surface with the report text
func writeReport(cmd *cobra.Command, outputPath, report string) error {
	if !strings.HasSuffix(report, "\n") {
		report += "\n"
	}

	if outputPath == "" {
		fmt.Fprint(cmd.OutOrStdout(), report)
		return nil
	}

	if err := os.WriteFile(outputPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", outputPath, err)
	}
	return nil
}

// newHistoryCommand builds the history subcommand
func newHistoryCommand(opts *Options) *cobra.Command {
	var (
		suite string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analyses from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			analyses, err := newClient(opts).ListAnalyses(cmd.Context(), suite, limit)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "could not connect to analysis server")
				return err
			}

			if len(analyses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analyses recorded.")
				return nil
			}

			w := cmd.OutOrStdout()
			for _, a := range analyses {
				verdict := "FAIL"
				if a.VerdictPassed {
					verdict = "PASS"
				}
				marker := ""
				if a.Tolerated {
					marker = " (tolerated)"
				}
				fmt.Fprintf(w, "%s  %-4s  %-22s  %s::%s%s\n",
					a.CreatedAt, verdict, a.IssueType, a.FilePath, a.TestName, marker)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&suite, "suite", "", "filter by suite name")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")

	return cmd
}

// newVersionCommand builds the version subcommand
func newVersionCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and server versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "aaalint client %s\n", version.Version)

			info, err := newClient(opts).CheckCompatibility(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "server: %v\n", err)
				return nil
			}

			serverVersion := info.Version
			if serverVersion == "" {
				serverVersion = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "aaalint server %s\n", serverVersion)
			return nil
		},
	}
}

// Execute runs the CLI with the process arguments
func Execute() int {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
