package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/attendance-offline-sync/internal/models"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Course int64
	Date   string
	Marks  []string
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an attendance sheet locally",
		Long: `Save one attendance sheet for a course and date. Entries are stored as pending
and uploaded by the next sync.

Example:
  attendance-agent record --course 12 --date 2025-12-22 --mark 1=Present --mark 2=Absent`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.Course, "course", 0, "course id (required)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "session date YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringArrayVarP(&opts.Marks, "mark", "m", nil, "student mark as <studentId>=<status>, repeatable")
	_ = cmd.MarkFlagRequired("course")

	return cmd
}

func runRecord(cmd *cobra.Command, opts *RecordOptions) error {
	out := newFormatter(opts.RootOptions, cmd)

	data, err := parseMarks(opts.Marks)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --mark", err)
	}
	date := opts.Date
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	}

	a, err := openAgent(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeAgent(a)

	written, err := a.Attendance.Record(cmd.Context(), opts.Course, date, data)
	if err != nil {
		return WrapExitError(ExitFailure, "record attendance", err)
	}
	out.VerboseLog("stored %d entries in %s mode", written, a.Mode())
	return out.Success(
		map[string]interface{}{"written": written, "course": opts.Course, "date": date, "mode": a.Mode()},
		fmt.Sprintf("recorded %d entries for course %d on %s (%s)", written, opts.Course, date, a.Mode()),
	)
}

// parseMarks turns repeated id=status flags into an attendance map. Later marks for the
// same student replace earlier ones.
func parseMarks(marks []string) (map[string]string, error) {
	if len(marks) == 0 {
		return nil, fmt.Errorf("at least one mark is required")
	}
	data := make(map[string]string, len(marks))
	for _, mark := range marks {
		id, status, ok := strings.Cut(mark, "=")
		id = strings.TrimSpace(id)
		status = strings.TrimSpace(status)
		if !ok || id == "" || status == "" {
			return nil, fmt.Errorf("mark %q must look like <studentId>=<status>", mark)
		}
		data[id] = status
	}
	return data, nil
}
