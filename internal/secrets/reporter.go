package secrets

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
)

// Format specifies the output format for validation reports.
type Format string

const (
	// FormatText produces human-readable text output.
	FormatText Format = "text"
	// FormatJSON produces machine-readable JSON output.
	FormatJSON Format = "json"
)

// Reporter formats and writes validation reports.
type Reporter struct {
	out    io.Writer
	format Format
}

// NewReporter creates a new Reporter.
func NewReporter(out io.Writer, format Format) *Reporter {
	return &Reporter{
		out:    out,
		format: format,
	}
}

// Report writes the validation report to the output. serverCount is the
// total number of servers in the registry, used in the success summary.
func (r *Reporter) Report(report *Report, serverCount int) error {
	switch r.format {
	case FormatJSON:
		return r.reportJSON(report)
	default:
		return r.reportText(report, serverCount)
	}
}

func (r *Reporter) reportJSON(report *Report) error {
	payload := struct {
		Passed  bool               `json:"passed"`
		Servers map[string][]Issue `json:"servers,omitempty"`
	}{
		Passed: report.Empty(),
	}
	if !report.Empty() {
		payload.Servers = make(map[string][]Issue, len(report.Servers()))
		for _, key := range report.Servers() {
			payload.Servers[key] = report.Issues(key)
		}
	}

	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(payload), "encoding JSON report")
}

func (r *Reporter) reportText(report *Report, serverCount int) error {
	if report.Empty() {
		fmt.Fprintln(r.out, color.GreenString(
			"validate-env passed: all %d server env references resolve", serverCount))
		return nil
	}

	fmt.Fprintf(r.out, "%s\n\n", color.RedString(
		"validate-env failed: %d issue(s)", report.Total()))

	// Issues are grouped by server so one server's secrets can be fixed
	// without re-reading the whole list.
	for _, key := range report.Servers() {
		fmt.Fprintf(r.out, "  %s:\n", color.CyanString(key))
		for _, issue := range report.Issues(key) {
			fmt.Fprintf(r.out, "    %s -- %s\n", issue.Var, issue.Detail)
		}
	}

	fmt.Fprintln(r.out, "\nFill in the missing values in your .env file and re-run.")
	return nil
}
