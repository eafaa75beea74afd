package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/remoterun/internal/model"
)

// JSONPrinter prints run information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// runOutput represents a run record in the JSON output.
type runOutput struct {
	ID             string    `json:"id"`
	Hostname       string    `json:"hostname"`
	Label          string    `json:"label,omitempty"`
	Command        string    `json:"command"`
	Status         string    `json:"status"`
	ExitCode       int       `json:"exit_code"`
	FailureMessage string    `json:"failure_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	DurationMS     int64     `json:"duration_ms"`
}

func newRunOutput(r model.RunRecord) runOutput {
	return runOutput{
		ID:             r.ID,
		Hostname:       r.Hostname,
		Label:          r.Label,
		Command:        r.Command,
		Status:         string(r.Status),
		ExitCode:       r.ExitCode,
		FailureMessage: r.FailureMessage,
		CreatedAt:      r.CreatedAt,
		DurationMS:     r.Duration.Milliseconds(),
	}
}

// PrintRunList prints run records as a JSON array.
func (j *JSONPrinter) PrintRunList(runs []model.RunRecord) error {
	out := make([]runOutput, 0, len(runs))
	for _, r := range runs {
		out = append(out, newRunOutput(r))
	}
	return j.encode(out)
}

// PrintRun prints a single run record as JSON.
func (j *JSONPrinter) PrintRun(run model.RunRecord) error {
	return j.encode(newRunOutput(run))
}

// PrintMessage prints a message as JSON.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(map[string]string{"message": msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
