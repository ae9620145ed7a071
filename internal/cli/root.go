package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-offline-sync/internal/agent"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	"github.com/noah-isme/attendance-offline-sync/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LoadConfig overrides config.Load (tests).
	LoadConfig func() (*config.Config, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the attendance agent.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{LoadConfig: config.Load}

	cmd := &cobra.Command{
		Use:   "attendance-agent",
		Short: "Offline-first attendance recorder",
		Long: `Records attendance into a local store and uploads pending sheets to the
remote attendance endpoint whenever connectivity allows.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openAgent loads configuration and wires an agent. The caller must Close it.
func openAgent(ctx context.Context, opts *RootOptions) (*agent.Agent, error) {
	load := opts.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to init logger", err)
	}
	a, err := agent.New(ctx, cfg, logr)
	if err != nil {
		_ = logr.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to start agent", err)
	}
	return a, nil
}

func closeAgent(a *agent.Agent) {
	if err := a.Close(); err != nil {
		a.Logger.Warn("close agent", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

func requireStore(a *agent.Agent) error {
	if a.Store == nil {
		return NewExitError(ExitCommandError, "local store unavailable; running in direct mode")
	}
	return nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
