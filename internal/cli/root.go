// Package cli provides the Cobra command tree and output wiring for posture.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tbckr/posture/internal/config"
	"github.com/tbckr/posture/internal/output"
	"github.com/tbckr/posture/internal/version"
	"github.com/tbckr/posture/internal/worker"
)

// NewRootCmd builds the top-level Cobra command for posture.
// Callers must set stdout/stderr via cmd.SetOut / cmd.SetErr before Execute.
func NewRootCmd() *cobra.Command {
	// d is populated by PersistentPreRunE before any subcommand's RunE runs.
	// Cobra only executes the innermost PersistentPreRunE, so a subcommand that defines
	// its own hook must call buildDeps itself.
	var d deps

	cmd := &cobra.Command{
		Use:   "posture",
		Short: "posture: low-noise external security posture assessment",
		Long: `posture assesses the external security posture of a domain while keeping every
outbound request inside an explicit network policy.

Modes (least to most contact with the target): passive < low-noise.
DNS policies: none < minimal < full. Every outbound operation, admitted or
blocked, is recorded in the run's network ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := buildDeps(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			d = *resolved
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	config.RegisterFlagCompletions(cmd)

	cmd.Version = version.Get().Version
	cmd.SetVersionTemplate("posture version {{.Version}}\n")

	cmd.AddGroup(
		&cobra.Group{ID: "assess", Title: "Assessment Commands:"},
		&cobra.Group{ID: "utility", Title: "Utility Commands:"},
	)

	cmd.AddCommand(
		newRunCmd(&d),
		newAuditCmd(&d),
		newBudgetsCmd(&d),
		newConfigCmd(&d),
		newCompletionCmd(),
		newVersionCmd(&d),
	)

	return cmd
}

// deps holds fully-resolved runtime dependencies for a subcommand.
type deps struct {
	logger *slog.Logger
	cfg    *config.Config
}

// buildDeps resolves config and logger. Accepted-but-deprecated values are reported as
// warnings once the logger exists.
func buildDeps(cmd *cobra.Command, stderr io.Writer) (*deps, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	for _, msg := range cfg.Deprecations {
		logger.Warn(msg)
	}

	switch output.Format(cfg.Output) {
	case output.FormatText, output.FormatJSON:
	default:
		return nil, fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", cfg.Output)
	}

	return &deps{cfg: cfg, logger: logger}, nil
}

// resolveInputs returns positional args, or reads non-empty lines from stdin when
// no args are provided. Returns an error if stdin is an interactive terminal with
// no args (i.e. the user forgot to pass an argument or pipe input).
func resolveInputs(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	r := cmd.InOrStdin()
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // file descriptors fit in int on all supported platforms
		return nil, fmt.Errorf("no input: pass a domain or pipe stdin")
	}
	inputs, err := worker.ReadInputs(r)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input: stdin contained no domains")
	}
	return inputs, nil
}

// writeResult formats and writes a result to stdout.
func writeResult(stdout io.Writer, d *deps, result any) error {
	if err := output.Write(stdout, output.Format(d.cfg.Output), result); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
