package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
	"github.com/noah-isme/attendance-offline-sync/internal/service"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Type       string
	Out        string
	Course     int64
	Date       string
	SyncStatus string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export local records as CSV or PDF",
		Long: `Render local records for diagnostics. Without --out the file is stored in the
export archive (EXPORT_DIR); "--out -" writes to stdout.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "csv", "export type (csv|pdf)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output path, - for stdout")
	cmd.Flags().Int64Var(&opts.Course, "course", 0, "only this course")
	cmd.Flags().StringVar(&opts.Date, "date", "", "only this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.SyncStatus, "sync-status", "", "pending or synced")

	return cmd
}

func (o *ExportOptions) filter() (models.RecordFilter, error) {
	filter := models.RecordFilter{Date: o.Date}
	if o.Course > 0 {
		course := o.Course
		filter.CourseID = &course
	}
	switch models.SyncState(o.SyncStatus) {
	case "":
	case models.SyncStatePending, models.SyncStateSynced:
		state := models.SyncState(o.SyncStatus)
		filter.SyncStatus = &state
	default:
		return filter, fmt.Errorf("--sync-status must be pending or synced")
	}
	return filter, nil
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	out := newFormatter(opts.RootOptions, cmd)

	format, err := service.ParseExportFormat(opts.Type)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --type", err)
	}
	filter, err := opts.filter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	a, err := openAgent(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeAgent(a)
	if err := requireStore(a); err != nil {
		return err
	}

	if opts.Out == "" {
		path, err := a.Exports.Archive(cmd.Context(), filter, format)
		if err != nil {
			return WrapExitError(ExitFailure, "archive export", err)
		}
		return out.Success(map[string]string{"path": path}, "export written to "+path)
	}

	file, err := a.Exports.Render(cmd.Context(), filter, format)
	if err != nil {
		return WrapExitError(ExitFailure, "render export", err)
	}
	if opts.Out == "-" {
		_, err := cmd.OutOrStdout().Write(file.Body)
		return err
	}
	if err := os.WriteFile(opts.Out, file.Body, 0o644); err != nil {
		return WrapExitError(ExitFailure, "write export", err)
	}
	return out.Success(map[string]string{"path": opts.Out}, "export written to "+opts.Out)
}
