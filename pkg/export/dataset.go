package export

import "fmt"

// Column describes one exported field. Width is a relative weight for PDF layout; zero means 1.
type Column struct {
	Key   string
	Label string
	Width float64
}

// Dataset is a titled table of rows keyed by Column.Key.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
	// Summary lines are printed under the table in PDF output.
	Summary []string
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	seen := make(map[string]struct{}, len(d.Columns))
	for _, col := range d.Columns {
		if col.Key == "" {
			return fmt.Errorf("export column without key")
		}
		if _, dup := seen[col.Key]; dup {
			return fmt.Errorf("duplicate export column %q", col.Key)
		}
		seen[col.Key] = struct{}{}
	}
	return nil
}

func (d Dataset) labels() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.Label
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = row[col.Key]
	}
	return out
}
