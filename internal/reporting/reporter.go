// Package reporting exports investigation snapshots as reports.
package reporting

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/vantrace/ferret-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter writes one investigation report to its output.
type Reporter interface {
	// Write renders the snapshot and its roll-up summary.
	Write(inv schemas.Investigation, summary schemas.InvestigationSummary) error
	// Close finalizes the report and releases the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format and output path. An empty path
// or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		return newJSONReporter(writer), nil
	case "text":
		return newTextReporter(writer), nil
	default:
		if !isStdOut {
			writer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// report is the envelope both formats are rendered from.
type report struct {
	Investigation schemas.Investigation        `json:"investigation"`
	Summary       schemas.InvestigationSummary `json:"summary"`
}

type jsonReporter struct {
	writer io.WriteCloser
}

func newJSONReporter(writer io.WriteCloser) *jsonReporter {
	return &jsonReporter{writer: writer}
}

func (r *jsonReporter) Write(inv schemas.Investigation, summary schemas.InvestigationSummary) error {
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report{Investigation: inv, Summary: summary}); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error {
	return r.writer.Close()
}

type textReporter struct {
	writer io.WriteCloser
}

func newTextReporter(writer io.WriteCloser) *textReporter {
	return &textReporter{writer: writer}
}

func (r *textReporter) Write(inv schemas.Investigation, summary schemas.InvestigationSummary) error {
	w := r.writer
	fmt.Fprintf(w, "Investigation %s\n", inv.ID)
	fmt.Fprintf(w, "  Query:  %s\n", inv.QueryText)
	fmt.Fprintf(w, "  Status: %s\n", inv.Status)
	if inv.Summary != "" {
		fmt.Fprintf(w, "  Result: %s\n", inv.Summary)
	}
	fmt.Fprintln(w)

	for _, p := range inv.Pipelines {
		fmt.Fprintf(w, "  [%s] %s (%.0f%%)\n", p.Status, p.DisplayName, p.Progress)
		if p.ErrorMessage != "" {
			fmt.Fprintf(w, "      error: %s\n", p.ErrorMessage)
		}
		if p.Result != nil {
			fmt.Fprintf(w, "      items: %d  confidence: %.2f  took: %dms\n",
				len(p.Result.Items), p.Result.Confidence, p.Result.ExecutionTimeMs)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Pipelines completed: %d/%d\n", summary.CompletedPipelines, summary.TotalPipelines)
	fmt.Fprintf(w, "  Result items:        %d\n", summary.TotalResultItems)
	fmt.Fprintf(w, "  Avg confidence:      %.2f\n", summary.AverageConfidence)
	fmt.Fprintf(w, "  Duration:            %dms\n", summary.DurationMs)
	return nil
}

func (r *textReporter) Close() error {
	return r.writer.Close()
}
