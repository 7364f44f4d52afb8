// Package report renders run reports for terminals and writes them to
// JSON for later inspection.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/promptcheck/promptcheck/pkg/engine"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// statusLabel returns a display string for a test entry, colored when
// requested.
func statusLabel(tr engine.TestReport, color bool) string {
	label, c := plainLabel(tr)
	if !color {
		return label
	}
	return c + label + colorReset
}

func plainLabel(tr engine.TestReport) (string, string) {
	switch tr.Status {
	case engine.TestSkipped:
		return "SKIP", colorDim
	case engine.TestFiltered:
		return "FILTERED", colorYellow
	case engine.TestUnreachable:
		return "UNREACHABLE", colorYellow
	case engine.TestWouldRun:
		return "WOULD RUN", colorGreen
	}

	// Executed: summarize across models.
	pass, fail, timeout, errored := 0, 0, 0, 0
	for _, mr := range tr.Results {
		switch mr.Status {
		case engine.ModelPassed:
			pass++
		case engine.ModelTimedOut:
			timeout++
		case engine.ModelErrored, engine.ModelCanceled:
			errored++
		default:
			fail++
		}
	}
	switch {
	case timeout > 0:
		return "TIMEOUT", colorRed
	case errored > 0:
		return "ERROR", colorRed
	case fail > 0:
		return "FAIL", colorRed
	default:
		return "PASS", colorGreen
	}
}

// FormatDuration formats a duration for table display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Print writes the full report: one table per suite, per-model aggregates,
// warnings, and the overall summary.
func Print(w io.Writer, r *engine.Report, color bool) {
	if r.DryRun {
		fmt.Fprintf(w, "dry run: scope %q, nothing executed\n\n", r.Scope)
	}

	for _, sr := range r.Suites {
		printSuite(w, sr, color)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "warnings:\n")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	overall := r.Summary()
	if overall.Defined {
		fmt.Fprintf(w, "overall: %.2f across %d suites in %s\n",
			overall.Score, len(r.Suites), FormatDuration(r.Duration))
	} else {
		fmt.Fprintf(w, "overall: inconclusive (no executed tests) in %s\n", FormatDuration(r.Duration))
	}
}

func printSuite(w io.Writer, sr engine.SuiteReport, color bool) {
	sep := strings.Repeat("-", 78)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %s\n", sr.Name)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  %-28s  %-11s  %7s  %s\n", "TEST", "STATUS", "WEIGHT", "DETAIL")

	for _, tr := range sr.Tests {
		detail := tr.Reason
		if tr.Status == engine.TestExecuted {
			detail = modelSummary(tr)
		}
		fmt.Fprintf(w, "  %-28s  %-11s  %7.1f  %s\n",
			truncate(tr.Name, 28), statusLabel(tr, color), tr.Weight, truncate(detail, 48))
	}

	fmt.Fprintf(w, "%s\n", sep)
	models := make([]string, 0, len(sr.PerModel))
	for m := range sr.PerModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		agg := sr.PerModel[m]
		if agg.Defined {
			fmt.Fprintf(w, "  %-28s  %.2f (weight %.1f, %d results)\n", m, agg.Score, agg.TotalWeight, agg.Samples)
		} else {
			fmt.Fprintf(w, "  %-28s  inconclusive\n", m)
		}
	}
	if sr.Summary.Defined {
		fmt.Fprintf(w, "  suite aggregate: %.2f\n", sr.Summary.Score)
	} else {
		fmt.Fprintf(w, "  suite aggregate: inconclusive\n")
	}
	fmt.Fprintln(w)
}

// modelSummary compresses per-model results into one line.
func modelSummary(tr engine.TestReport) string {
	parts := make([]string, 0, len(tr.Results))
	for _, mr := range tr.Results {
		switch mr.Status {
		case engine.ModelTimedOut:
			parts = append(parts, fmt.Sprintf("%s=timeout", mr.Model))
		case engine.ModelErrored:
			parts = append(parts, fmt.Sprintf("%s=error", mr.Model))
		case engine.ModelCanceled:
			parts = append(parts, fmt.Sprintf("%s=canceled", mr.Model))
		default:
			parts = append(parts, fmt.Sprintf("%s=%.2f", mr.Model, mr.Score))
		}
	}
	return strings.Join(parts, " ")
}

// Save writes the report as pretty-printed JSON to the given path,
// creating parent directories as needed.
func Save(r *engine.Report, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report to %s: %w", path, err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
