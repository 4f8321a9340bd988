package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a Result as a human-readable text timeline.
func FormatTimeline(result *Result) string {
	if len(result.Entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Journal | %s–%s UTC\n",
		formatDateRange(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		switch e.Type {
		case TypeSafeMode:
			fmt.Fprintf(&b, "%-10s %-9s %-22s %s\n", ts, "SAFEMODE", e.FromMode+" -> "+e.SafeMode, truncate(e.Reason, 60))
		default:
			fmt.Fprintf(&b, "%-10s %-9s %-22s %-13s trust=%5.2f  %s\n",
				ts, e.Verdict, truncate(e.Code, 22), e.Command.Kind, e.Trust, truncate(e.Reason, 50))
		}
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a Result as indented JSON.
func FormatJSON(result *Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal journal result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{fmt.Sprintf("%d accepted", s.Accepted), fmt.Sprintf("%d rejected", s.Rejected)}
	if s.SafeModeEvents > 0 {
		parts = append(parts, fmt.Sprintf("%d safe-mode", s.SafeModeEvents))
	}

	codes := make([]string, 0, len(s.Codes))
	for code := range s.Codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	var byCode []string
	for _, code := range codes {
		byCode = append(byCode, fmt.Sprintf("%s=%d", code, s.Codes[code]))
	}

	out := "Summary: " + strings.Join(parts, ", ")
	if len(byCode) > 0 {
		out += " | " + strings.Join(byCode, " ")
	}
	return out + "\n"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
