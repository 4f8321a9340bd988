package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a list of run results as human-readable text.
func FormatText(results []*RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Running %d scenario", len(results))
	if len(results) != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	totalSteps := 0
	totalPassed := 0
	failedScenarios := 0

	for _, r := range results {
		totalSteps += r.Total
		totalPassed += r.Passed

		verdict := "PASS"
		if r.Failed > 0 {
			verdict = "FAIL"
			failedScenarios++
		}
		fmt.Fprintf(&b, "  %s  %s (%d/%d)\n", verdict, r.Name, r.Passed, r.Total)
		for _, s := range r.Steps {
			mark := "ok"
			if !s.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "    %-4s #%d %-12s nonce=%-4d %-8s %-22s %-7s trust=%+.2f  %s\n",
				mark, s.Index, s.Kind, s.Nonce, strings.ToUpper(s.Actual), s.Code, s.SafeMode, s.Trust, truncate(s.Reason, 60))
			if s.Mismatch != "" {
				fmt.Fprintf(&b, "         %s\n", s.Mismatch)
			}
		}
	}

	fmt.Fprintf(&b, "\n%d of %d steps passed.", totalPassed, totalSteps)
	if failedScenarios > 0 {
		fmt.Fprintf(&b, " %d of %d scenarios failed.", failedScenarios, len(results))
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders run results as JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
