package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"steward/internal/models"
)

// Report is the human-readable summary of one dispatch run, built from the
// persisted outcome ledger so it can be regenerated after the fact.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Attempted   int
	Succeeded   int
	Failed      int
	Outcomes    []models.DeliveryOutcome
}

// BuildReport aggregates the outcomes of a single run.
func BuildReport(runID string, outcomes []models.DeliveryOutcome, generatedAt time.Time) Report {
	r := Report{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC(),
		Attempted:   len(outcomes),
		Outcomes:    outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	return r
}

// Render formats the report as plain text, grouped by condition type.
func (r Report) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Delivery Report\n")
	fmt.Fprintf(&b, "Run:       %s\n", r.RunID)
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Attempted: %d  Succeeded: %d  Failed: %d\n", r.Attempted, r.Succeeded, r.Failed)

	for _, cond := range models.AllConditionTypes {
		var lines []string
		for _, o := range r.Outcomes {
			if o.Condition != cond {
				continue
			}
			status := "sent"
			if !o.Success {
				status = "FAILED"
			}
			lines = append(lines, fmt.Sprintf("  %-6s %s -> %s", status, o.SubjectID, o.Recipient))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", cond, len(lines))
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if r.Attempted == 0 {
		b.WriteString("\nNo notifications were due.\n")
	}
	return b.String()
}

// WriteReport renders the report into dir using a timestamped file name and
// returns the path written.
func WriteReport(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	name := fmt.Sprintf("delivery_report_%s.txt", r.GeneratedAt.Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
