package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aegis/internal/audit"
)

var (
	tailLines    int
	tailEnvelope string
	tailVerdict  string
	tailSince    time.Duration
	tailFormat   string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show (0 for all)")
	auditTailCmd.Flags().StringVar(&tailEnvelope, "envelope", "", "Only entries for this envelope id")
	auditTailCmd.Flags().StringVar(&tailVerdict, "verdict", "", "Only decisions with this verdict (ACCEPTED|REJECTED)")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only entries newer than this (e.g. 1h)")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "timeline", "Output format (timeline|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit journal operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision journal.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit journal",
	Long:  "Walks the JSONL journal and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit journal entries",
	Long:  "Reads the journal, applies filters and prints the newest entries with a summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	return fmt.Errorf("FAILED at line %d: %s", result.ErrorLine, result.Error)
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{
		EnvelopeID: tailEnvelope,
		Verdict:    tailVerdict,
		Last:       tailLines,
	}
	if tailSince > 0 {
		filter.From = time.Now().Add(-tailSince)
	}

	result, err := audit.Read(args[0], filter)
	if err != nil {
		return err
	}

	switch tailFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	default:
		fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(result))
	}
	return nil
}
