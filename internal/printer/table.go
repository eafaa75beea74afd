package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/slok/remoterun/internal/model"
)

// TablePrinter prints run information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintRunList prints run records in a table format.
func (t *TablePrinter) PrintRunList(runs []model.RunRecord) error {
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tHOST\tSTATUS\tEXIT\tDURATION\tCREATED")

	// Print rows.
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Hostname,
			r.Status,
			r.ExitCode,
			r.Duration.Truncate(time.Millisecond),
			TimeAgo(r.CreatedAt),
		)
	}

	return nil
}

// PrintRun prints detailed run information.
func (t *TablePrinter) PrintRun(run model.RunRecord) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", run.ID)
	fmt.Fprintf(t.writer, "Host:       %s\n", run.Hostname)
	if run.Label != "" {
		fmt.Fprintf(t.writer, "Label:      %s\n", run.Label)
	}
	fmt.Fprintf(t.writer, "Command:    %s\n", run.Command)
	fmt.Fprintf(t.writer, "Status:     %s\n", run.Status)
	fmt.Fprintf(t.writer, "Exit code:  %d\n", run.ExitCode)
	fmt.Fprintf(t.writer, "Duration:   %s\n", run.Duration.Truncate(time.Millisecond))
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(run.CreatedAt))

	if run.FailureMessage != "" {
		fmt.Fprintf(t.writer, "Failure:    %s\n", run.FailureMessage)
	}

	return nil
}

// PrintMessage prints a plain message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}
