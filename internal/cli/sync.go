package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload pending records now",
		Long: `Run one sync cycle against the remote endpoint. Failed batches stay pending;
the command exits with status 1 when any batch failed or the cycle was skipped.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			a, err := openAgent(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer closeAgent(a)
			if err := requireStore(a); err != nil {
				return err
			}

			result := a.Sync.SyncPendingRecords(cmd.Context())
			a.Sync.PublishStatus(cmd.Context())

			lines := []string{fmt.Sprintf("synced %d records in %d batches", result.Synced, len(result.Groups))}
			for _, g := range result.Groups {
				state := "ok"
				if !g.Success {
					state = "failed: " + g.Error
				}
				lines = append(lines, fmt.Sprintf("  course %d %s: %d/%d %s", g.CourseID, g.Date, g.Synced, g.Records, state))
			}
			if result.Message != "" {
				lines = append(lines, result.Message)
			}
			if err := out.Success(result, lines...); err != nil {
				return err
			}

			if !result.Success {
				return NewExitError(ExitFailure, fmt.Sprintf("sync did not run: %s", result.Message))
			}
			if failed := result.FailedGroups(); failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d batches remain pending", failed))
			}
			return nil
		},
	}
}
