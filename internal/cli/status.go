package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "status",
		Short:        "Show pending and synced counts",
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

			status, err := a.Sync.Status(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "read sync status", err)
			}
			return out.Success(status,
				fmt.Sprintf("pending: %d", status.Pending),
				fmt.Sprintf("synced:  %d", status.Synced),
				fmt.Sprintf("online:  %t", status.IsOnline),
			)
		},
	}
}
