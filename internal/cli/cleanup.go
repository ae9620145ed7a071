package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/attendance-offline-sync/pkg/config"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge synced records past the retention window",
		Long: `Delete synced records older than the retention window (7 days unless
RETENTION_WINDOW or --older-than says otherwise). Pending records are never removed.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			opts := *rootOpts
			base := opts.LoadConfig
			if base == nil {
				base = config.Load
			}
			opts.LoadConfig = func() (*config.Config, error) {
				cfg, err := base()
				if err == nil && olderThan > 0 {
					cfg.Retention.Window = olderThan
				}
				return cfg, err
			}

			a, err := openAgent(cmd.Context(), &opts)
			if err != nil {
				return err
			}
			defer closeAgent(a)
			if err := requireStore(a); err != nil {
				return err
			}

			deleted, err := a.Retention.RunOnce(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "cleanup", err)
			}
			return out.Success(map[string]int{"deleted": deleted}, fmt.Sprintf("deleted %d synced records", deleted))
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override the retention window (e.g. 72h)")
	return cmd
}
